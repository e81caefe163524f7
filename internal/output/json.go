package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/dockvirt/internal/spec"
	"github.com/jbweber/dockvirt/internal/stack"
	"github.com/jbweber/dockvirt/internal/vm"
)

// JSONFormatter renders results as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) FormatVMList(infos []vm.Info) (string, error) {
	if infos == nil {
		infos = []vm.Info{}
	}
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal VM list to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

func (f *JSONFormatter) FormatDoctorReport(report spec.DoctorReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal doctor report to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

func (f *JSONFormatter) FormatStackResult(result stack.Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal stack result to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
