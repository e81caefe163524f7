// Package installer implements generate-image: rendering a minimal ISO9660
// installer image that carries the dockvirt binary itself plus a first-boot
// script, so a freshly provisioned host can bootstrap dockvirt without a
// separate package download. This reuses the Seed Builder's (internal/
// cloudinit) ISO-writing approach — the same kdomanski/iso9660 writer, a
// different volume label and payload — rather than introducing a second ISO
// library for what is the same underlying operation.
package installer

import (
	"bytes"
	"fmt"
	"os"

	"github.com/kdomanski/iso9660"
)

// volumeLabel distinguishes an installer image from a cidata seed ISO; unlike
// "cidata" this label has no external compatibility requirement, since
// nothing but dockvirt's own first-boot script reads this volume.
const volumeLabel = "DOCKVIRT"

// firstBootScriptName is the fixed path the embedded script is written
// under, matched by the name firstBootScript below documents running it as.
const firstBootScriptName = "first-boot.sh"

const binaryName = "dockvirt"

// firstBootScript installs the bundled dockvirt binary and runs an initial
// doctor/heal pass, so the host is ready to run `dockvirt up` immediately
// after first boot.
const firstBootScript = `#!/bin/sh
set -e
mount_point="$(dirname "$0")"
install -m 0755 "$mount_point/dockvirt" /usr/local/bin/dockvirt
/usr/local/bin/dockvirt heal --apply || true
echo "dockvirt installed to /usr/local/bin/dockvirt"
`

// Build renders an installer ISO containing the first-boot script and the
// binary at binaryPath, returning the image bytes ready to be written to
// disk or attached to a VM as boot media.
func Build(binaryPath string) ([]byte, error) {
	binData, err := os.ReadFile(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("read dockvirt binary %s: %w", binaryPath, err)
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("create ISO writer: %w", err)
	}
	defer func() { _ = writer.Cleanup() }()

	if err := writer.AddFile(bytes.NewReader([]byte(firstBootScript)), firstBootScriptName); err != nil {
		return nil, fmt.Errorf("add %s: %w", firstBootScriptName, err)
	}
	if err := writer.AddFile(bytes.NewReader(binData), binaryName); err != nil {
		return nil, fmt.Errorf("add %s: %w", binaryName, err)
	}

	var buf bytes.Buffer
	if err := writer.WriteTo(&buf, volumeLabel); err != nil {
		return nil, fmt.Errorf("write installer ISO: %w", err)
	}
	return buf.Bytes(), nil
}
