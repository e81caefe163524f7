// Package probe is a read-only survey of the
// host's fitness to run dockvirt, reported as a spec.DoctorReport so it
// shares rendering with Doctor's check/heal output (internal/output).
//
// Every check here is non-mutating — probe never writes a file, defines a
// libvirt object, or installs anything. internal/doctor is the only package
// that repairs what probe (or its own checks) finds missing.
package probe

import (
	"context"
	"os/exec"
	"runtime"
	"time"

	"github.com/jbweber/dockvirt/internal/libvirt"
	"github.com/jbweber/dockvirt/internal/spec"
)

// OSFamily identifies the host's package-management family, used to phrase
// Doctor's install hints in the right dialect.
type OSFamily string

const (
	OSFamilyAPT     OSFamily = "apt"
	OSFamilyDNF     OSFamily = "dnf"
	OSFamilyPacman  OSFamily = "pacman"
	OSFamilyUnknown OSFamily = "unknown"
)

// RequiredTools lists the external binaries dockvirt shells out to. Keep in
// sync with the actual subprocess calls: qemu-img for overlay disks;
// genisoimage-class tooling is replaced by the in-process iso9660 writer so
// it is not listed, and docker runs guest-side, not on the host.
var RequiredTools = []string{"qemu-img"}

// DetectOSFamily inspects PATH for each family's characteristic package
// manager binary. Only meaningful on linux; reports OSFamilyUnknown
// elsewhere.
func DetectOSFamily() OSFamily {
	if runtime.GOOS != "linux" {
		return OSFamilyUnknown
	}
	switch {
	case toolPresent("apt-get"):
		return OSFamilyAPT
	case toolPresent("dnf"):
		return OSFamilyDNF
	case toolPresent("pacman"):
		return OSFamilyPacman
	default:
		return OSFamilyUnknown
	}
}

func toolPresent(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// MissingTools returns the subset of RequiredTools not found on PATH.
func MissingTools() []string {
	var missing []string
	for _, tool := range RequiredTools {
		if !toolPresent(tool) {
			missing = append(missing, tool)
		}
	}
	return missing
}

// ConnectResult reports whether a hypervisor connection context
// (qemu:///session-style user socket, or qemu:///system-style system socket)
// is reachable.
type ConnectResult struct {
	Reachable bool
	Err       error
}

// ProbeHypervisor dials both the user and system libvirt sockets (without
// retaining either connection) and reports reachability of each,
// independently of which one the Hypervisor Driver would ultimately select
// for a real operation (internal/libvirt.Driver.SelectConnection makes that
// choice; this probe only answers "can we talk to it at all").
func ProbeHypervisor(ctx context.Context, userSocket, systemSocket string, timeout time.Duration) (user, system ConnectResult) {
	user = dialProbe(ctx, userSocket, timeout)
	system = dialProbe(ctx, systemSocket, timeout)
	return user, system
}

func dialProbe(ctx context.Context, socketPath string, timeout time.Duration) ConnectResult {
	client, err := libvirt.ConnectWithContext(ctx, socketPath, timeout)
	if err != nil {
		return ConnectResult{Reachable: false, Err: err}
	}
	defer client.Close()
	if err := client.Ping(); err != nil {
		return ConnectResult{Reachable: false, Err: err}
	}
	return ConnectResult{Reachable: true}
}

// Options configures Run.
type Options struct {
	UserSocket   string
	SystemSocket string
	Timeout      time.Duration
}

// Run performs every System Probe check and renders the findings as a
// spec.DoctorReport, reusing the same shape Doctor emits so `dockvirt check`
// and `dockvirt heal` share one table/yaml/json renderer
// (internal/output.FormatDoctorReport).
func Run(ctx context.Context, opts Options) spec.DoctorReport {
	var findings []spec.Finding

	family := DetectOSFamily()
	findings = append(findings, spec.Finding{
		ID:       "os-family",
		Severity: spec.SeverityInfo,
		Message:  "detected OS family: " + string(family),
		Fixable:  false,
	})

	if missing := MissingTools(); len(missing) > 0 {
		for _, tool := range missing {
			findings = append(findings, spec.Finding{
				ID:       "tool-missing:" + tool,
				Severity: spec.SeverityError,
				Message:  tool + " not found on PATH",
				Fixable:  false,
			})
		}
	} else {
		findings = append(findings, spec.Finding{
			ID:       "tools-present",
			Severity: spec.SeverityInfo,
			Message:  "all required tools present on PATH",
			Fixable:  false,
		})
	}

	userRes, systemRes := ProbeHypervisor(ctx, opts.UserSocket, opts.SystemSocket, opts.Timeout)
	findings = append(findings, hypervisorFinding("hypervisor-user", "user", userRes))
	findings = append(findings, hypervisorFinding("hypervisor-system", "system", systemRes))

	return spec.DoctorReport{Findings: findings}
}

func hypervisorFinding(id, context string, res ConnectResult) spec.Finding {
	if res.Reachable {
		return spec.Finding{
			ID:       id,
			Severity: spec.SeverityInfo,
			Message:  "hypervisor reachable in " + context + " context",
			Fixable:  false,
		}
	}
	msg := "hypervisor unreachable in " + context + " context"
	if res.Err != nil {
		msg += ": " + res.Err.Error()
	}
	return spec.Finding{
		ID:       id,
		Severity: spec.SeverityWarn,
		Message:  msg,
		Fixable:  false,
	}
}
