package libvirt

import "testing"

func TestDriver_NetworkStateForUnknownNetworkIsNotDefined(t *testing.T) {
	c := connectOrSkip(t)
	defer c.Close()

	d := NewDriver(c)
	status, err := d.NetworkState("dockvirt-test-network-never-exists")
	if err != nil {
		t.Fatalf("NetworkState: %v", err)
	}
	if status.Defined {
		t.Error("expected network to report as not defined")
	}
}
