// Package metadata stores the resolved VMSpec inside the domain's own
// libvirt custom XML metadata, so the spec used at definition time persists
// with the VM itself and can be compared against on a later `up` without any
// external state file.
package metadata

import (
	"encoding/xml"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/dockvirt/internal/spec"
)

const (
	// Namespace is the XML namespace under which the spec is stored.
	Namespace = "https://github.com/jbweber/dockvirt/spec/v1"

	// Key is the metadata key used to set/get this namespace's element.
	Key = "dockvirt-vm-spec"
)

// domainModificationImpactConfig mirrors VIR_DOMAIN_AFFECT_CURRENT, passed
// numerically like internal/libvirt/driver.go's lease constants.
const domainModificationImpactConfig = 0

// specMetadata is the XML wrapper around the spec, stored as YAML text so a
// human inspecting `virsh dumpxml` can read it directly.
type specMetadata struct {
	XMLName  xml.Name `xml:"metadata"`
	Xmlns    string   `xml:"xmlns,attr"`
	SpecYAML string   `xml:",innerxml"`
}

// metadataClient is the subset of *libvirt.Libvirt this package needs,
// letting tests substitute a mock without a real libvirt connection.
type metadataClient interface {
	DomainSetMetadata(dom libvirt.Domain, typ int32, metadata, key, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)
}

// Store writes vm's spec into domain's metadata, replacing any existing
// value under Namespace.
func Store(l metadataClient, domain libvirt.Domain, vm spec.VMSpec) error {
	yamlData, err := yaml.Marshal(vm)
	if err != nil {
		return fmt.Errorf("marshal VMSpec to YAML: %w", err)
	}

	wrapped := specMetadata{Xmlns: Namespace, SpecYAML: string(yamlData)}
	xmlData, err := xml.MarshalIndent(wrapped, "  ", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata to XML: %w", err)
	}

	err = l.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{string(xmlData)},
		libvirt.OptString{Key},
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(domainModificationImpactConfig),
	)
	if err != nil {
		return fmt.Errorf("set libvirt domain metadata: %w", err)
	}
	return nil
}

// Load retrieves the VMSpec stored in domain's metadata.
func Load(l metadataClient, domain libvirt.Domain) (spec.VMSpec, error) {
	xmlStr, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(domainModificationImpactConfig),
	)
	if err != nil {
		return spec.VMSpec{}, fmt.Errorf("get libvirt domain metadata: %w", err)
	}

	var wrapped specMetadata
	if err := xml.Unmarshal([]byte(xmlStr), &wrapped); err != nil {
		return spec.VMSpec{}, fmt.Errorf("unmarshal metadata XML: %w", err)
	}

	var vm spec.VMSpec
	if err := yaml.Unmarshal([]byte(wrapped.SpecYAML), &vm); err != nil {
		return spec.VMSpec{}, fmt.Errorf("unmarshal VMSpec from YAML: %w", err)
	}
	return vm, nil
}

// Exists reports whether spec metadata is present on domain.
func Exists(l metadataClient, domain libvirt.Domain) bool {
	_, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(domainModificationImpactConfig),
	)
	return err == nil
}
