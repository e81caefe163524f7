package output

import (
	"bytes"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/jbweber/dockvirt/internal/spec"
	"github.com/jbweber/dockvirt/internal/stack"
	"github.com/jbweber/dockvirt/internal/vm"
)

// TableFormatter renders results as human-readable, optionally colored
// tables.
type TableFormatter struct {
	NoHeaders bool
	NoColor   bool
}

// FormatVMList renders one row per domain: name, hypervisor state string,
// managed flag, and, when stored spec metadata is present, image reference
// and guest port ("-" otherwise). The leased IP is not shown.
func (f *TableFormatter) FormatVMList(infos []vm.Info) (string, error) {
	if len(infos) == 0 {
		return "No VMs found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tMANAGED\tIMAGE\tPORT")
	}
	for _, info := range infos {
		managed := "no"
		image, port := "-", "-"
		if info.Managed {
			managed = "yes"
			image = info.Spec.Image
			if info.Spec.Port != 0 {
				port = fmt.Sprintf("%d", info.Spec.Port)
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", info.Name, info.State, managed, image, port)
	}
	_ = w.Flush()
	return buf.String(), nil
}

// FormatDoctorReport renders one row per finding, severity colored when
// NoColor is false and the output is attached to a color-capable writer.
func (f *TableFormatter) FormatDoctorReport(report spec.DoctorReport) (string, error) {
	if len(report.Findings) == 0 {
		return "No findings\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "ID\tSEVERITY\tFIXABLE\tMESSAGE")
	}
	for _, finding := range report.Findings {
		severity := f.colorSeverity(finding.Severity)
		fixable := "no"
		if finding.Fixable {
			fixable = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", finding.ID, severity, fixable, finding.Message)
	}
	_ = w.Flush()
	return buf.String(), nil
}

func (f *TableFormatter) colorSeverity(s spec.Severity) string {
	if f.NoColor {
		return string(s)
	}
	switch s {
	case spec.SeverityError:
		return color.RedString(string(s))
	case spec.SeverityWarn:
		return color.YellowString(string(s))
	default:
		return color.GreenString(string(s))
	}
}

// FormatStackResult renders one row per stack node, sorted by node name,
// with phase colored the same way as doctor severities.
func (f *TableFormatter) FormatStackResult(result stack.Result) (string, error) {
	if len(result) == 0 {
		return "No nodes found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tPHASE\tIP\tERROR")
	}
	names := make([]string, 0, len(result))
	for name := range result {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		status := result[name]
		phase := f.colorPhase(status.Instance.Phase)
		ip := status.Instance.IP
		if ip == "" {
			ip = "-"
		}
		errMsg := "-"
		if status.Err != nil {
			errMsg = status.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, phase, ip, errMsg)
	}
	_ = w.Flush()
	return buf.String(), nil
}

func (f *TableFormatter) colorPhase(p spec.VMPhase) string {
	if f.NoColor {
		return string(p)
	}
	switch p {
	case spec.PhaseFailed:
		return color.RedString(string(p))
	case spec.PhaseSkipped:
		return color.YellowString(string(p))
	case spec.PhaseReady, spec.PhaseRunning:
		return color.GreenString(string(p))
	default:
		if spec.IsTerminal(p) {
			return color.HiBlackString(string(p))
		}
		return string(p)
	}
}
