package stack

import (
	"encoding/json"

	"github.com/jbweber/dockvirt/internal/spec"
)

// NodeStatus is one stack node's outcome, keyed by name in Result.
type NodeStatus struct {
	Instance spec.VMInstance
	Err      error
}

// MarshalJSON renders Err as its message string, since the error interface
// itself carries no exported fields for encoding/json to walk.
func (n NodeStatus) MarshalJSON() ([]byte, error) {
	errMsg := ""
	if n.Err != nil {
		errMsg = n.Err.Error()
	}
	return json.Marshal(struct {
		Instance spec.VMInstance
		Err      string `json:",omitempty"`
	}{Instance: n.Instance, Err: errMsg})
}

// Result is the per-node status map a Deploy or Destroy call returns.
type Result map[string]NodeStatus

// Failed reports whether any node ended in PhaseFailed.
func (r Result) Failed() bool {
	for _, s := range r {
		if s.Instance.Phase == spec.PhaseFailed {
			return true
		}
	}
	return false
}

// Skipped returns the names of every node marked PhaseSkipped.
func (r Result) Skipped() []string {
	var names []string
	for name, s := range r {
		if s.Instance.Phase == spec.PhaseSkipped {
			names = append(names, name)
		}
	}
	return names
}
