package libvirt

import (
	"fmt"

	"github.com/jbweber/dockvirt/internal/dockerr"
)

// DefaultNetworkXML is the standard NAT network libvirt ships as "default":
// a virbr0 bridge with a private /24 and DHCP. The doctor repair defines
// this XML verbatim when the network is missing.
const DefaultNetworkXML = `<network>
  <name>default</name>
  <forward mode='nat'/>
  <bridge name='virbr0' stp='on' delay='0'/>
  <ip address='192.168.122.1' netmask='255.255.255.0'>
    <dhcp>
      <range start='192.168.122.2' end='192.168.122.254'/>
    </dhcp>
  </ip>
</network>`

// NetworkStatus describes one named network's defined/active/autostart
// state, the basis of Doctor's network check.
type NetworkStatus struct {
	Defined   bool
	Active    bool
	Autostart bool
}

// NetworkState inspects the named network without mutating anything.
func (d *Driver) NetworkState(name string) (NetworkStatus, error) {
	lv := d.client.Libvirt()
	net, err := lv.NetworkLookupByName(name)
	if err != nil {
		return NetworkStatus{}, nil
	}
	active, err := lv.NetworkIsActive(net)
	if err != nil {
		return NetworkStatus{}, dockerr.New(dockerr.Internal, name, "", fmt.Errorf("query network active state: %w", err))
	}
	autostart, err := lv.NetworkGetAutostart(net)
	if err != nil {
		return NetworkStatus{}, dockerr.New(dockerr.Internal, name, "", fmt.Errorf("query network autostart: %w", err))
	}
	return NetworkStatus{Defined: true, Active: active != 0, Autostart: autostart != 0}, nil
}

// EnsureNetwork defines name from xmlDesc if absent, starts it if inactive,
// and turns on autostart — the repair behind Doctor's network check.
func (d *Driver) EnsureNetwork(name, xmlDesc string) error {
	lv := d.client.Libvirt()

	net, err := lv.NetworkLookupByName(name)
	if err != nil {
		net, err = lv.NetworkDefineXML(xmlDesc)
		if err != nil {
			return dockerr.New(dockerr.NetworkInactive, name, "define the network manually with the hypervisor CLI", fmt.Errorf("define network: %w", err))
		}
	}

	if active, err := lv.NetworkIsActive(net); err != nil {
		return dockerr.New(dockerr.Internal, name, "", fmt.Errorf("query network active state: %w", err))
	} else if active == 0 {
		if err := lv.NetworkCreate(net); err != nil {
			return dockerr.New(dockerr.NetworkInactive, name, "start the network manually with the hypervisor CLI", fmt.Errorf("start network: %w", err))
		}
	}

	if err := lv.NetworkSetAutostart(net, 1); err != nil {
		return dockerr.New(dockerr.Internal, name, "", fmt.Errorf("set network autostart: %w", err))
	}
	return nil
}
