package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/dockvirt/internal/spec"
	"github.com/jbweber/dockvirt/internal/stack"
	"github.com/jbweber/dockvirt/internal/vm"
)

// YAMLFormatter renders results as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatVMList(infos []vm.Info) (string, error) {
	data, err := yaml.Marshal(infos)
	if err != nil {
		return "", fmt.Errorf("marshal VM list to YAML: %w", err)
	}
	return string(data), nil
}

func (f *YAMLFormatter) FormatDoctorReport(report spec.DoctorReport) (string, error) {
	data, err := yaml.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal doctor report to YAML: %w", err)
	}
	return string(data), nil
}

func (f *YAMLFormatter) FormatStackResult(result stack.Result) (string, error) {
	// yaml.v3 has no Marshaler hook for the unexported-field error problem
	// MarshalJSON solves on NodeStatus, so render via a string-keyed view.
	view := make(map[string]yamlNodeStatus, len(result))
	for name, status := range result {
		errMsg := ""
		if status.Err != nil {
			errMsg = status.Err.Error()
		}
		instance := status.Instance
		instance.Err = nil // rendered separately as Err below; avoids an unexported-field struct under the hood of the error interface
		view[name] = yamlNodeStatus{Instance: instance, Err: errMsg}
	}
	data, err := yaml.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("marshal stack result to YAML: %w", err)
	}
	return string(data), nil
}

type yamlNodeStatus struct {
	Instance spec.VMInstance `yaml:"instance"`
	Err      string          `yaml:"err,omitempty"`
}
