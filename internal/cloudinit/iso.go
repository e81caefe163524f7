package cloudinit

import (
	"bytes"
	"fmt"

	"github.com/kdomanski/iso9660"

	"github.com/jbweber/dockvirt/internal/spec"
)

// cidataVolumeLabel is fixed by the NoCloud datasource contract: the guest's
// init system looks for a volume literally named "cidata" (lowercase), not
// the uppercase "CIDATA" some NoCloud implementations also tolerate.
const cidataVolumeLabel = "cidata"

// GenerateISO renders the three cloud-init documents for vm and bundles them
// into a NoCloud seed ISO, ready to be written to <work_dir>/seed.iso and
// attached to the domain as a read-only disk.
func GenerateISO(vm spec.VMSpec, hasDockerfile bool) ([]byte, error) {
	userData, err := GenerateUserData(vm, hasDockerfile)
	if err != nil {
		return nil, fmt.Errorf("generate user-data: %w", err)
	}
	metaData, err := GenerateMetaData(vm)
	if err != nil {
		return nil, fmt.Errorf("generate meta-data: %w", err)
	}
	networkConfig, err := GenerateNetworkConfig(vm)
	if err != nil {
		return nil, fmt.Errorf("generate network-config: %w", err)
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("create ISO writer: %w", err)
	}
	defer func() { _ = writer.Cleanup() }()

	if err := writer.AddFile(bytes.NewReader([]byte(userData)), "user-data"); err != nil {
		return nil, fmt.Errorf("add user-data: %w", err)
	}
	if err := writer.AddFile(bytes.NewReader([]byte(metaData)), "meta-data"); err != nil {
		return nil, fmt.Errorf("add meta-data: %w", err)
	}
	if err := writer.AddFile(bytes.NewReader([]byte(networkConfig)), "network-config"); err != nil {
		return nil, fmt.Errorf("add network-config: %w", err)
	}

	var buf bytes.Buffer
	if err := writer.WriteTo(&buf, cidataVolumeLabel); err != nil {
		return nil, fmt.Errorf("write ISO image: %w", err)
	}
	return buf.Bytes(), nil
}
