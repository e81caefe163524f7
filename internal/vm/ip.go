package vm

import (
	"fmt"

	"github.com/jbweber/dockvirt/internal/dockerr"
)

// IP returns the current DHCP lease for the named VM, without polling. It
// fails with dockerr.LeaseTimeout if the domain holds no lease, matching the
// CLI contract's "exit nonzero if not leased"; if no domain of that name is
// defined, the driver's lookup error is returned instead.
func IP(env *Environment, name string) (string, error) {
	ip, ok, err := env.driver.CurrentLease(name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", dockerr.New(dockerr.LeaseTimeout, name, "run `dockvirt up` or wait for the guest to obtain an address", fmt.Errorf("no current DHCP lease for %s", name))
	}
	return ip, nil
}
