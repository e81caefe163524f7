// Package doctor runs a sequence of independent, idempotent checks over the
// host's readiness to run dockvirt, each with an optional repair.
// `dockvirt heal` runs Run and stops; `dockvirt heal --apply` additionally
// calls Apply for every fixable finding. (`dockvirt check` runs the
// read-only internal/probe survey, not this package.)
//
// Doctor itself never runs elevated; the one repair that needs root (the
// base-directory ACL/SELinux fix) shells out through sudo so the
// escalation is explicit and visible.
package doctor

import (
	"context"
	"os"

	"github.com/jbweber/dockvirt/internal/cloudinit"
	"github.com/jbweber/dockvirt/internal/config"
	"github.com/jbweber/dockvirt/internal/libvirt"
	"github.com/jbweber/dockvirt/internal/probe"
	"github.com/jbweber/dockvirt/internal/spec"
	"github.com/jbweber/dockvirt/internal/storage"
)

// fix action identifiers, matched against spec.Finding.FixAction by Apply.
const (
	fixNetwork    = "network"
	fixPool       = "pool"
	fixCatalog    = "catalog"
	fixBaseDirACL = "basedir-acl"
)

// Options configures Run/Apply.
type Options struct {
	BaseDir     string
	NetworkName string
	PoolName    string
	Driver      *libvirt.Driver
	StorageMgr  *storage.Manager
}

// Run performs every Doctor check (never mutating) and returns the combined
// findings, in the fixed order: tools, network, pool, base-dir permissions,
// image catalog, cloud-init templates.
func Run(ctx context.Context, opts Options) spec.DoctorReport {
	var findings []spec.Finding

	findings = append(findings, toolFindings()...)
	findings = append(findings, networkFinding(opts))
	findings = append(findings, poolFinding(ctx, opts))
	findings = append(findings, baseDirFinding(opts))
	findings = append(findings, catalogFinding(opts))
	findings = append(findings, templateFindings()...)

	return spec.DoctorReport{Findings: findings}
}

// Apply repairs every fixable finding in report, returning a fresh report
// produced by re-running Run — repairs are idempotent, so applying twice is
// safe and the returned report reflects the post-repair state.
func Apply(ctx context.Context, opts Options, report spec.DoctorReport) (spec.DoctorReport, []error) {
	var errs []error
	for _, f := range report.Findings {
		if !f.Fixable {
			continue
		}
		var err error
		switch f.FixAction {
		case fixNetwork:
			err = opts.Driver.EnsureNetwork(opts.networkName(), libvirt.DefaultNetworkXML)
		case fixPool:
			err = opts.StorageMgr.EnsureDefaultPoolActive(ctx)
		case fixCatalog:
			err = repairCatalog(opts.BaseDir)
		case fixBaseDirACL:
			err = repairBaseDirACL(opts.BaseDir)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return Run(ctx, opts), errs
}

func (o Options) networkName() string {
	if o.NetworkName == "" {
		return "default"
	}
	return o.NetworkName
}

func (o Options) poolName() string {
	if o.PoolName == "" {
		return storage.DefaultPoolName
	}
	return o.PoolName
}

// toolFindings checks the same required-tool set the System Probe reports,
// as fixable=false findings (error severity for each missing tool) — Doctor
// never auto-installs packages, it only surfaces the install hint.
func toolFindings() []spec.Finding {
	missing := probe.MissingTools()
	if len(missing) == 0 {
		return []spec.Finding{{
			ID:       "tools",
			Severity: spec.SeverityInfo,
			Message:  "all required tools present on PATH",
			Fixable:  false,
		}}
	}
	var findings []spec.Finding
	family := probe.DetectOSFamily()
	for _, tool := range missing {
		findings = append(findings, spec.Finding{
			ID:       "tool-missing:" + tool,
			Severity: spec.SeverityError,
			Message:  tool + " not found on PATH (" + installHint(family, tool) + ")",
			Fixable:  false,
		})
	}
	return findings
}

func installHint(family probe.OSFamily, tool string) string {
	switch family {
	case probe.OSFamilyAPT:
		return "install with: apt-get install " + tool
	case probe.OSFamilyDNF:
		return "install with: dnf install " + tool
	case probe.OSFamilyPacman:
		return "install with: pacman -S " + tool
	default:
		return "install " + tool + " using your package manager"
	}
}

// networkFinding checks the default hypervisor network's defined/active/
// autostart state via internal/libvirt.NetworkState.
func networkFinding(opts Options) spec.Finding {
	name := opts.networkName()
	if opts.Driver == nil {
		return spec.Finding{
			ID:       "network",
			Severity: spec.SeverityWarn,
			Message:  "cannot reach hypervisor to check network " + name,
			Fixable:  false,
		}
	}
	status, err := opts.Driver.NetworkState(name)
	if err != nil {
		return spec.Finding{
			ID:       "network",
			Severity: spec.SeverityError,
			Message:  "failed to query network " + name + ": " + err.Error(),
			Fixable:  false,
		}
	}
	if status.Defined && status.Active && status.Autostart {
		return spec.Finding{
			ID:       "network",
			Severity: spec.SeverityInfo,
			Message:  "network " + name + " defined, active, and autostarting",
			Fixable:  false,
		}
	}
	return spec.Finding{
		ID:        "network",
		Severity:  spec.SeverityError,
		Message:   "network " + name + " is not defined, active, and autostarting",
		Fixable:   true,
		FixAction: fixNetwork,
	}
}

// poolFinding checks the default storage pool's defined/active/autostart
// state via internal/storage.Manager.GetPoolInfo.
func poolFinding(ctx context.Context, opts Options) spec.Finding {
	name := opts.poolName()
	if opts.StorageMgr == nil {
		return spec.Finding{
			ID:       "pool",
			Severity: spec.SeverityWarn,
			Message:  "cannot reach hypervisor to check pool " + name,
			Fixable:  false,
		}
	}
	info, err := opts.StorageMgr.GetPoolInfo(ctx, name)
	if err != nil {
		return spec.Finding{
			ID:        "pool",
			Severity:  spec.SeverityError,
			Message:   "storage pool " + name + " not defined",
			Fixable:   true,
			FixAction: fixPool,
		}
	}
	if info.Active() && info.Autostart {
		return spec.Finding{
			ID:       "pool",
			Severity: spec.SeverityInfo,
			Message:  "pool " + name + " defined, active, and autostarting",
			Fixable:  false,
		}
	}
	return spec.Finding{
		ID:        "pool",
		Severity:  spec.SeverityError,
		Message:   "pool " + name + " is not active and autostarting",
		Fixable:   true,
		FixAction: fixPool,
	}
}

// baseDirFinding checks only that the base directory exists and is a
// directory; it does not inspect permissions, ACLs or SELinux labels, so a
// directory the hypervisor service account cannot traverse still reports as
// info. The repair (setfacl/restorecon) runs only when the directory is
// missing or not a directory.
func baseDirFinding(opts Options) spec.Finding {
	info, err := os.Stat(opts.BaseDir)
	if err != nil || !info.IsDir() {
		return spec.Finding{
			ID:        "basedir",
			Severity:  spec.SeverityError,
			Message:   "base directory " + opts.BaseDir + " does not exist or is not traversable",
			Fixable:   true,
			FixAction: fixBaseDirACL,
		}
	}
	return spec.Finding{
		ID:       "basedir",
		Severity: spec.SeverityInfo,
		Message:  "base directory " + opts.BaseDir + " exists",
		Fixable:  false,
	}
}

// catalogFinding loads the global config with LoadGlobalConfig and reports
// whether it loads and validates. LoadGlobalConfig accepts the legacy
// os_images key, so a file still written under os_images reports as valid
// and is not rewritten. The repair (repairCatalog) is EnsureGlobalConfig,
// which writes the default catalog only when no file exists; an existing
// unparsable or invalid file is left as it is and the repair fails.
func catalogFinding(opts Options) spec.Finding {
	gc, err := config.LoadGlobalConfig(opts.BaseDir)
	if err != nil {
		return spec.Finding{
			ID:        "catalog",
			Severity:  spec.SeverityError,
			Message:   "image catalog at " + opts.BaseDir + " is missing or invalid: " + err.Error(),
			Fixable:   true,
			FixAction: fixCatalog,
		}
	}
	if err := gc.Validate(); err != nil {
		return spec.Finding{
			ID:        "catalog",
			Severity:  spec.SeverityError,
			Message:   "image catalog invalid: " + err.Error(),
			Fixable:   true,
			FixAction: fixCatalog,
		}
	}
	return spec.Finding{
		ID:       "catalog",
		Severity: spec.SeverityInfo,
		Message:  "image catalog loads and is valid",
		Fixable:  false,
	}
}

func repairCatalog(baseDir string) error {
	_, err := config.EnsureGlobalConfig(baseDir)
	return err
}

// templateFindings verifies the three cloud-init templates render without
// error against a minimal sample spec — a cheap stand-in VMSpec, since the
// Seed Builder is a pure renderer with no host dependency to probe instead.
func templateFindings() []spec.Finding {
	sample := spec.VMSpec{Name: "doctor-check", Domain: "doctor-check.local", Port: 80}

	checks := []struct {
		id string
		fn func() error
	}{
		{"template-user-data", func() error {
			_, err := cloudinit.GenerateUserData(sample, false)
			return err
		}},
		{"template-meta-data", func() error {
			_, err := cloudinit.GenerateMetaData(sample)
			return err
		}},
		{"template-network-config", func() error {
			_, err := cloudinit.GenerateNetworkConfig(sample)
			return err
		}},
	}

	var findings []spec.Finding
	for _, c := range checks {
		if err := c.fn(); err != nil {
			findings = append(findings, spec.Finding{
				ID:       c.id,
				Severity: spec.SeverityError,
				Message:  c.id + " failed to render: " + err.Error(),
				Fixable:  false,
			})
			continue
		}
		findings = append(findings, spec.Finding{
			ID:       c.id,
			Severity: spec.SeverityInfo,
			Message:  c.id + " renders cleanly",
			Fixable:  false,
		})
	}
	return findings
}
