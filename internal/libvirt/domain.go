package libvirt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/dockvirt/internal/naming"
	"github.com/jbweber/dockvirt/internal/spec"
)

// DefaultNetworkName is the libvirt network used when a VMSpec requests the
// NAT-backed default networking mode.
const DefaultNetworkName = "default"

// variantMetadataNamespace/URI hold the guest variant tag
// (images[spec.os].variant) in the domain's free-form <metadata> block.
// libvirtxml's typed Domain struct has no dedicated "OS variant" field —
// that concept belongs to osinfo-db/virt-install, external to the domain
// XML schema itself — so it's carried here for the Hypervisor Driver's own
// bookkeeping (and anything inspecting the domain XML later)
// rather than applied to any device/feature default at this layer.
const (
	variantMetadataNamespace = "https://github.com/jbweber/dockvirt"
	variantMetadataURI       = "dockvirt"
)

// GenerateDomainXML builds the libvirt domain definition for a VM: a single
// virtio boot disk backed by diskPath, a read-only SATA CD-ROM backed by
// seedISOPath, and either the default NAT network or a declared bridge
// interface.
func GenerateDomainXML(vm spec.VMSpec, diskPath, seedISOPath, variant string) (string, error) {
	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: vm.Name,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(vm.MemMiB),
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     uint(vm.CPUs),
		},
		OS: &libvirtxml.DomainOS{
			Firmware: "efi",
			Type: &libvirtxml.DomainOSType{
				Arch: "x86_64",
				Type: "hvm",
			},
			BIOS: &libvirtxml.DomainBIOS{
				UseSerial: "yes",
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
			PAE:  &libvirtxml.DomainFeature{},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode: "host-model",
			Model: &libvirtxml.DomainCPUModel{
				Fallback: "allow",
			},
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
			Timer: []libvirtxml.DomainTimer{
				{Name: "rtc", TickPolicy: "catchup"},
				{Name: "pit", TickPolicy: "delay"},
				{Name: "hpet", Present: "no"},
			},
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "restart",
		Metadata:   variantMetadata(variant),
		Devices: &libvirtxml.DomainDeviceList{
			Controllers: []libvirtxml.DomainController{
				{
					Type:  "pci",
					Index: uintPtr(0),
					Model: "pci-root",
				},
			},
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
			RNGs: []libvirtxml.DomainRNG{
				{
					Model: "virtio",
					Backend: &libvirtxml.DomainRNGBackend{
						Random: &libvirtxml.DomainRNGBackendRandom{
							Device: "/dev/urandom",
						},
					},
				},
			},
		},
	}

	domain.Devices.Disks = []libvirtxml.DomainDisk{
		{
			Device: "disk",
			Driver: &libvirtxml.DomainDiskDriver{
				Name:  "qemu",
				Type:  "qcow2",
				Cache: "none",
			},
			Source: &libvirtxml.DomainDiskSource{
				File: &libvirtxml.DomainDiskSourceFile{
					File: diskPath,
				},
			},
			Target: &libvirtxml.DomainDiskTarget{
				Dev: "vda",
				Bus: "virtio",
			},
			Boot: &libvirtxml.DomainDeviceBoot{
				Order: 1,
			},
		},
		{
			Device: "cdrom",
			Driver: &libvirtxml.DomainDiskDriver{
				Name: "qemu",
				Type: "raw",
			},
			Source: &libvirtxml.DomainDiskSource{
				File: &libvirtxml.DomainDiskSourceFile{
					File: seedISOPath,
				},
			},
			Target: &libvirtxml.DomainDiskTarget{
				Dev: "sda",
				Bus: "sata",
			},
			ReadOnly: &libvirtxml.DomainDiskReadOnly{},
		},
	}

	iface, err := buildInterface(vm)
	if err != nil {
		return "", err
	}
	domain.Devices.Interfaces = []libvirtxml.DomainInterface{iface}

	domain.Devices.Serials = []libvirtxml.DomainSerial{
		{
			Source: &libvirtxml.DomainChardevSource{Pty: &libvirtxml.DomainChardevSourcePty{}},
			Target: &libvirtxml.DomainSerialTarget{Port: uintPtr(0)},
		},
	}
	domain.Devices.Consoles = []libvirtxml.DomainConsole{
		{
			Source: &libvirtxml.DomainChardevSource{Pty: &libvirtxml.DomainChardevSourcePty{}},
			Target: &libvirtxml.DomainConsoleTarget{Type: "serial", Port: uintPtr(0)},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal domain XML: %w", err)
	}
	return xml, nil
}

// buildInterface configures the guest NIC for either the default NAT network
// or a declared bridge. The MAC is deterministically derived from the VM
// name (naming.MACFromName) rather than a pre-known address, since the
// guest's IP isn't known until after it acquires a DHCP lease — stable
// across repeated up/down cycles for the same name, which is what lets the
// Hypervisor Driver's lease lookup key on it.
func buildInterface(vm spec.VMSpec) (libvirtxml.DomainInterface, error) {
	mac := naming.MACFromName(vm.Name)
	ifaceName := naming.InterfaceNameFromName(vm.Name)

	base := libvirtxml.DomainInterface{
		MAC: &libvirtxml.DomainInterfaceMAC{Address: mac},
		Model: &libvirtxml.DomainInterfaceModel{
			Type: "virtio",
		},
		Target: &libvirtxml.DomainInterfaceTarget{Dev: ifaceName},
	}

	switch vm.Net.Kind {
	case spec.NetDefault:
		base.Source = &libvirtxml.DomainInterfaceSource{
			Network: &libvirtxml.DomainInterfaceSourceNetwork{
				Network: DefaultNetworkName,
			},
		}
	case spec.NetBridge:
		if vm.Net.Interface == "" {
			return libvirtxml.DomainInterface{}, fmt.Errorf("bridge network requires an interface name")
		}
		base.Source = &libvirtxml.DomainInterfaceSource{
			Bridge: &libvirtxml.DomainInterfaceSourceBridge{
				Bridge: vm.Net.Interface,
			},
		}
	default:
		return libvirtxml.DomainInterface{}, fmt.Errorf("unrecognized net kind %q", vm.Net.Kind)
	}

	return base, nil
}

func variantMetadata(variant string) *libvirtxml.DomainMetadata {
	if variant == "" {
		return nil
	}
	return &libvirtxml.DomainMetadata{
		XML: fmt.Sprintf(`<dockvirt:variant xmlns:dockvirt=%q>%s</dockvirt:variant>`,
			variantMetadataNamespace, variant),
	}
}

func uintPtr(v uint) *uint { return &v }
