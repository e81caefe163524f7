package output

import (
	"strings"
	"testing"

	"github.com/jbweber/dockvirt/internal/spec"
	"github.com/jbweber/dockvirt/internal/stack"
	"github.com/jbweber/dockvirt/internal/vm"
)

func testInfos() []vm.Info {
	return []vm.Info{
		{Name: "web", State: "running", Managed: true, Spec: spec.VMSpec{Name: "web", Image: "nginx:latest", Port: 80}},
		{Name: "stray", State: "shutoff", Managed: false},
	}
}

func TestTableFormatter_FormatVMList(t *testing.T) {
	formatter := &TableFormatter{}

	t.Run("empty", func(t *testing.T) {
		out, err := formatter.FormatVMList(nil)
		if err != nil {
			t.Fatalf("FormatVMList: %v", err)
		}
		if !strings.Contains(out, "No VMs found") {
			t.Errorf("expected empty-list message, got: %s", out)
		}
	})

	t.Run("populated", func(t *testing.T) {
		out, err := formatter.FormatVMList(testInfos())
		if err != nil {
			t.Fatalf("FormatVMList: %v", err)
		}
		for _, want := range []string{"NAME", "web", "nginx:latest", "stray", "shutoff"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q: %s", want, out)
			}
		}
	})

	t.Run("no headers", func(t *testing.T) {
		f := &TableFormatter{NoHeaders: true}
		out, err := f.FormatVMList(testInfos())
		if err != nil {
			t.Fatalf("FormatVMList: %v", err)
		}
		if strings.Contains(out, "NAME\t") {
			t.Errorf("expected no header row, got: %s", out)
		}
	})
}

func TestTableFormatter_FormatDoctorReport(t *testing.T) {
	report := spec.DoctorReport{Findings: []spec.Finding{
		{ID: "net-active", Severity: spec.SeverityError, Message: "default network is inactive", Fixable: true},
		{ID: "tools-present", Severity: spec.SeverityInfo, Message: "all required tools found"},
	}}

	f := &TableFormatter{NoColor: true}
	out, err := f.FormatDoctorReport(report)
	if err != nil {
		t.Fatalf("FormatDoctorReport: %v", err)
	}
	for _, want := range []string{"net-active", "error", "tools-present", "info"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestTableFormatter_FormatStackResult(t *testing.T) {
	result := stack.Result{
		"db":  {Instance: spec.VMInstance{Spec: spec.VMSpec{Name: "db"}, Phase: spec.PhaseReady, IP: "192.0.2.5"}},
		"web": {Instance: spec.VMInstance{Spec: spec.VMSpec{Name: "web"}, Phase: spec.PhaseSkipped}},
	}

	f := &TableFormatter{NoColor: true}
	out, err := f.FormatStackResult(result)
	if err != nil {
		t.Fatalf("FormatStackResult: %v", err)
	}
	for _, want := range []string{"db", "Ready", "192.0.2.5", "web", "Skipped"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestYAMLFormatter_RoundtripsAllShapes(t *testing.T) {
	f := &YAMLFormatter{}

	if out, err := f.FormatVMList(testInfos()); err != nil || !strings.Contains(out, "web") {
		t.Errorf("FormatVMList: out=%q err=%v", out, err)
	}

	report := spec.DoctorReport{Findings: []spec.Finding{{ID: "x", Severity: spec.SeverityWarn, Message: "m"}}}
	if out, err := f.FormatDoctorReport(report); err != nil || !strings.Contains(out, "m") {
		t.Errorf("FormatDoctorReport: out=%q err=%v", out, err)
	}

	result := stack.Result{"db": {Instance: spec.VMInstance{Spec: spec.VMSpec{Name: "db"}, Phase: spec.PhaseFailed}, Err: errString("boom")}}
	out, err := f.FormatStackResult(result)
	if err != nil {
		t.Fatalf("FormatStackResult: %v", err)
	}
	if !strings.Contains(out, "boom") {
		t.Errorf("expected error message in YAML output, got: %s", out)
	}
}

func TestJSONFormatter_RoundtripsAllShapes(t *testing.T) {
	f := &JSONFormatter{}

	if out, err := f.FormatVMList(nil); err != nil || strings.TrimSpace(out) != "[]" {
		t.Errorf("FormatVMList(nil) = %q, %v", out, err)
	}

	report := spec.DoctorReport{Findings: []spec.Finding{{ID: "x", Severity: spec.SeverityError, Message: "m"}}}
	if out, err := f.FormatDoctorReport(report); err != nil || !strings.Contains(out, `"x"`) {
		t.Errorf("FormatDoctorReport: out=%q err=%v", out, err)
	}

	result := stack.Result{"db": {Instance: spec.VMInstance{Spec: spec.VMSpec{Name: "db"}, Phase: spec.PhaseFailed}, Err: errString("boom")}}
	out, err := f.FormatStackResult(result)
	if err != nil {
		t.Fatalf("FormatStackResult: %v", err)
	}
	if !strings.Contains(out, "boom") {
		t.Errorf("expected error message in JSON output, got: %s", out)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
