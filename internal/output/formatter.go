// Package output formats the core's result types (vm.Info, spec.DoctorReport,
// stack.Result) for display: a human-readable colored table, or a
// machine-readable YAML/JSON document, selected at the CLI boundary.
package output

import (
	"fmt"

	"github.com/jbweber/dockvirt/internal/spec"
	"github.com/jbweber/dockvirt/internal/stack"
	"github.com/jbweber/dockvirt/internal/vm"
)

// Format is an output format selector.
type Format string

const (
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

// Formatter renders each of the core's reportable result shapes.
type Formatter interface {
	FormatVMList(infos []vm.Info) (string, error)
	FormatDoctorReport(report spec.DoctorReport) (string, error)
	FormatStackResult(result stack.Result) (string, error)
}

// Options controls how NewFormatter builds a Formatter.
type Options struct {
	Format    Format
	NoHeaders bool
	NoColor   bool
}

// NewFormatter returns the Formatter for opts.Format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable, "":
		return &TableFormatter{NoHeaders: opts.NoHeaders, NoColor: opts.NoColor}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is one NewFormatter accepts.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}
