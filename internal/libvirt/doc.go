// Package libvirt drives the hypervisor: connection management across the
// per-user and system contexts, domain XML generation from a resolved
// VMSpec, and the Driver type implementing define/start, destroy, list,
// and DHCP lease queries.
//
// Connection Management:
//
// Connect dials one context's UNIX socket; SelectConnection dials both and
// picks the system context only when the declared network or pool is
// defined there and not in the per-user session, preferring unprivileged
// operation otherwise.
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Domain XML Generation:
//
// GenerateDomainXML renders the libvirtxml document from a VMSpec plus the
// work_dir paths produced by the disk and cloud-init builders: the overlay
// disk and seed ISO as the two storage devices (seed read-only), the
// declared network or bridge, and the guest variant's OS tuning metadata.
//
//	xml, err := libvirt.GenerateDomainXML(vm, diskPath, seedISOPath, variant)
//
// Consumer-Side Interfaces:
//
// This package defines no interfaces of its own. Consumers (internal/vm,
// internal/storage, internal/metadata) each declare the subset of
// operations they need; *libvirt.Libvirt and *Driver satisfy them
// implicitly, so tests substitute fakes without a running hypervisor.
package libvirt
