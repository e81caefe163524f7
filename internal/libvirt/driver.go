package libvirt

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	govirt "github.com/digitalocean/go-libvirt"

	"github.com/jbweber/dockvirt/internal/dockerr"
	"github.com/jbweber/dockvirt/internal/metadata"
	"github.com/jbweber/dockvirt/internal/spec"
)

// domainUndefineNvram mirrors VIR_DOMAIN_UNDEFINE_NVRAM, passed numerically
// for the same ABI-stability reason as the lease constants below.
const domainUndefineNvram = govirt.DomainUndefineFlagsValues(4)

// Driver implements the VM lifecycle operations on top of a single libvirt
// connection: define and start, destroy, list, and lease.
type Driver struct {
	client *Client
}

// NewDriver wraps an already-connected Client.
func NewDriver(client *Client) *Driver {
	return &Driver{client: client}
}

// domainStateRunning mirrors VIR_DOMAIN_RUNNING; passed numerically for the
// same ABI-stability reason as the other constants in this file.
const domainStateRunning = 1

// Exists reports whether name is currently defined, regardless of state.
func (d *Driver) Exists(name string) (bool, error) {
	lv := d.client.Libvirt()
	if _, err := lv.DomainLookupByName(name); err != nil {
		return false, nil
	}
	return true, nil
}

// State returns a human-readable domain state ("running", "shutoff", ...)
// for the named domain.
func (d *Driver) State(name string) (string, error) {
	lv := d.client.Libvirt()

	dom, err := lv.DomainLookupByName(name)
	if err != nil {
		return "", dockerr.New(dockerr.Internal, name, "", fmt.Errorf("lookup domain: %w", err))
	}

	state, _, err := lv.DomainGetState(dom, 0)
	if err != nil {
		return "", dockerr.New(dockerr.Internal, name, "", fmt.Errorf("get domain state: %w", err))
	}
	return stateToString(state), nil
}

func stateToString(state int32) string {
	switch state {
	case 0:
		return "no state"
	case domainStateRunning:
		return "running"
	case 2:
		return "blocked"
	case 3:
		return "paused"
	case 4:
		return "shutdown"
	case 5:
		return "shutoff"
	case 6:
		return "crashed"
	case 7:
		return "pmsuspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// CurrentLease returns the domain's current DHCP lease, if any, without
// polling. Used by `dockvirt ip`, which reports absence rather than waiting.
func (d *Driver) CurrentLease(name string) (string, bool, error) {
	lv := d.client.Libvirt()

	dom, err := lv.DomainLookupByName(name)
	if err != nil {
		return "", false, dockerr.New(dockerr.Internal, name, "", fmt.Errorf("lookup domain: %w", err))
	}

	ip, ok := leaseIPv4(lv, dom)
	return ip, ok, nil
}

// StoreSpec persists vm's spec in name's domain metadata, so the spec used
// at definition time stays with the VM.
func (d *Driver) StoreSpec(name string, vm spec.VMSpec) error {
	lv := d.client.Libvirt()

	dom, err := lv.DomainLookupByName(name)
	if err != nil {
		return dockerr.New(dockerr.Internal, name, "", fmt.Errorf("lookup domain: %w", err))
	}
	if err := metadata.Store(lv, dom, vm); err != nil {
		return dockerr.New(dockerr.Internal, name, "", fmt.Errorf("store spec metadata: %w", err))
	}
	return nil
}

// LoadSpec retrieves the spec previously stored by StoreSpec for name.
func (d *Driver) LoadSpec(name string) (spec.VMSpec, error) {
	lv := d.client.Libvirt()

	dom, err := lv.DomainLookupByName(name)
	if err != nil {
		return spec.VMSpec{}, dockerr.New(dockerr.Internal, name, "", fmt.Errorf("lookup domain: %w", err))
	}
	vm, err := metadata.Load(lv, dom)
	if err != nil {
		return spec.VMSpec{}, dockerr.New(dockerr.Internal, name, "", fmt.Errorf("load spec metadata: %w", err))
	}
	return vm, nil
}

// DefineAndStart defines the domain for vm and starts it. A domain that
// already exists in any state is a DomainCreate failure — callers compare
// the stored spec first and only reach here for a genuinely new VM.
func (d *Driver) DefineAndStart(vm spec.VMSpec, diskPath, seedISOPath, variant string) error {
	lv := d.client.Libvirt()

	if _, err := lv.DomainLookupByName(vm.Name); err == nil {
		return dockerr.New(dockerr.DomainCreate, vm.Name, "run `dockvirt down` before redefining", fmt.Errorf("domain already defined"))
	}

	xml, err := GenerateDomainXML(vm, diskPath, seedISOPath, variant)
	if err != nil {
		return dockerr.New(dockerr.DomainCreate, vm.Name, "", err)
	}

	dom, err := lv.DomainDefineXML(xml)
	if err != nil {
		return dockerr.New(dockerr.DomainCreate, vm.Name, "run `dockvirt heal`", fmt.Errorf("define domain: %w", err))
	}

	if err := lv.DomainCreate(dom); err != nil {
		// Roll back the partial definition: a domain that failed to start
		// must not be left behind as a defined-but-stopped leftover.
		_ = lv.DomainUndefineFlags(dom, domainUndefineNvram)
		return dockerr.New(dockerr.DomainCreate, vm.Name, "run `dockvirt heal`", fmt.Errorf("start domain: %w", err))
	}

	return nil
}

// Destroy stops and undefines the named domain. A missing domain is
// success, per the "down is idempotent" contract.
func (d *Driver) Destroy(name string) error {
	lv := d.client.Libvirt()

	dom, err := lv.DomainLookupByName(name)
	if err != nil {
		return nil
	}

	// Best effort: the domain may already be shut off.
	_ = lv.DomainDestroy(dom)

	if err := lv.DomainUndefineFlags(dom, domainUndefineNvram); err != nil {
		if err2 := lv.DomainUndefine(dom); err2 != nil {
			return dockerr.New(dockerr.Internal, name, "run `dockvirt heal`", fmt.Errorf("undefine domain: %w", err2))
		}
	}

	return nil
}

// List returns the names of all domains known to libvirt in this context.
func (d *Driver) List() ([]string, error) {
	lv := d.client.Libvirt()

	doms, _, err := lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, dockerr.New(dockerr.Internal, "", "", fmt.Errorf("list domains: %w", err))
	}

	names := make([]string, 0, len(doms))
	for _, dom := range doms {
		names = append(names, dom.Name)
	}
	return names, nil
}

// Lease polls the domain's DHCP lease until it has an IPv4 address or
// timeout elapses, backing off between polls. A timeout is reported as
// dockerr.LeaseTimeout, non-fatal to the VM's state: the domain stays
// Running, only readiness can't yet be checked.
func (d *Driver) Lease(ctx context.Context, name string, timeout time.Duration) (string, error) {
	lv := d.client.Libvirt()

	dom, err := lv.DomainLookupByName(name)
	if err != nil {
		return "", dockerr.New(dockerr.Internal, name, "", fmt.Errorf("lookup domain: %w", err))
	}

	deadline := time.Now().Add(timeout)
	backoff := 500 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		if ip, ok := leaseIPv4(lv, dom); ok {
			return ip, nil
		}

		if time.Now().After(deadline) {
			return "", dockerr.New(dockerr.LeaseTimeout, name, "check the VM console or network configuration", fmt.Errorf("no DHCP lease within %s", timeout))
		}

		// Jittered backoff, clamped to the deadline so a failing poll
		// returns within about a second of its timeout instead of
		// overshooting by a full backoff interval.
		wait := backoff + time.Duration(rand.Int63n(int64(backoff)/2))
		if remaining := time.Until(deadline); wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return "", dockerr.New(dockerr.Cancelled, name, "", ctx.Err())
		case <-time.After(wait):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// leaseSourceDHCPLease and ipAddrTypeIPv4 mirror the libvirt public API's
// VIR_DOMAIN_INTERFACE_ADDRESSES_SRC_LEASE and VIR_IP_ADDR_TYPE_IPV4 enum
// values. They're passed as plain integers rather than govirt-side named
// constants: the wire protocol encodes them numerically either way, and
// the numeric values are stable ABI, unlike struct/method names.
const (
	leaseSourceDHCPLease = 0
	ipAddrTypeIPv4       = 0
)

func leaseIPv4(lv *govirt.Libvirt, dom govirt.Domain) (string, bool) {
	ifaces, err := lv.DomainInterfaceAddresses(dom, uint32(leaseSourceDHCPLease), 0)
	if err != nil {
		return "", false
	}
	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			if addr.Type == ipAddrTypeIPv4 {
				return addr.Addr, true
			}
		}
	}
	return "", false
}

// SelectConnection connects to both the per-user (qemu:///session) and
// system-wide (qemu:///system) libvirt sockets where reachable. When only
// one is reachable, that one is used. When both are reachable and the
// declared network or pool exists only in the system-wide context, the
// system-wide connection is used; otherwise the per-user context is
// preferred, since unprivileged operation is the default posture.
func SelectConnection(ctx context.Context, userSocket, systemSocket, netName, poolName string, timeout time.Duration) (*Client, error) {
	userClient, userErr := ConnectWithContext(ctx, userSocket, timeout)
	systemClient, systemErr := ConnectWithContext(ctx, systemSocket, timeout)

	switch {
	case userErr != nil && systemErr != nil:
		return nil, dockerr.New(dockerr.ToolMissing, "", "run `dockvirt heal`", fmt.Errorf("no reachable libvirt connection (user: %v, system: %v)", userErr, systemErr))
	case userErr != nil:
		return systemClient, nil
	case systemErr != nil:
		return userClient, nil
	}

	if !hasNetworkOrPool(userClient, netName, poolName) && hasNetworkOrPool(systemClient, netName, poolName) {
		_ = userClient.Close()
		return systemClient, nil
	}
	_ = systemClient.Close()
	return userClient, nil
}

func hasNetworkOrPool(c *Client, netName, poolName string) bool {
	lv := c.Libvirt()
	if netName != "" {
		if _, err := lv.NetworkLookupByName(netName); err == nil {
			return true
		}
	}
	if poolName != "" {
		if _, err := lv.StoragePoolLookupByName(poolName); err == nil {
			return true
		}
	}
	return false
}
