package vm

import (
	"github.com/jbweber/dockvirt/internal/spec"
)

// Info describes one domain known to the hypervisor, with its dockvirt
// spec populated when available (domains not created by dockvirt carry a
// zero Spec).
type Info struct {
	Name    string
	State   string
	Spec    spec.VMSpec
	Managed bool
}

// List returns every domain currently defined, running or not.
func List(env *Environment) ([]Info, error) {
	names, err := env.driver.List()
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		state, err := env.driver.State(name)
		if err != nil {
			state = "unknown"
		}

		info := Info{Name: name, State: state}
		if vmSpec, err := env.driver.LoadSpec(name); err == nil {
			info.Spec = vmSpec
			info.Managed = true
		}
		infos = append(infos, info)
	}
	return infos, nil
}
