// Package spec holds the frozen data model shared by every component:
// OSImage, GlobalConfig, VMSpec, VMInstance, StackDecl, ImageCacheEntry and
// DoctorReport. Types here are plain values; I/O and merge logic live in
// the packages that produce and consume them (config, cache, vm, stack,
// doctor).
package spec

import (
	"encoding/json"
	"fmt"
)

// OSImage describes one entry in the image catalog.
type OSImage struct {
	Key     string `yaml:"-"`
	URL     string `yaml:"url"`
	Variant string `yaml:"variant"`
}

// GlobalConfig is the per-user catalog of default OS and known images.
type GlobalConfig struct {
	DefaultOS string             `yaml:"default_os"`
	Images    map[string]OSImage `yaml:"images"`
}

// Validate checks that default_os names a key present in images.
func (g *GlobalConfig) Validate() error {
	if g.DefaultOS == "" {
		return fmt.Errorf("default_os is required")
	}
	if _, ok := g.Images[g.DefaultOS]; !ok {
		return fmt.Errorf("default_os %q is not present in images", g.DefaultOS)
	}
	for key, img := range g.Images {
		if img.URL == "" {
			return fmt.Errorf("image %q has no url", key)
		}
	}
	return nil
}

// NetKind distinguishes the two accepted forms of the `net` config key.
type NetKind string

const (
	NetDefault NetKind = "default"
	NetBridge  NetKind = "bridge"
)

// NetSpec is the parsed form of the `net` project-config key.
type NetSpec struct {
	Kind      NetKind
	Interface string // set when Kind == NetBridge
}

func (n NetSpec) String() string {
	if n.Kind == NetBridge {
		return "bridge=" + n.Interface
	}
	return "default"
}

// VMSpec is the frozen, fully-merged and validated configuration for one VM.
// Once produced by the config resolver it is treated as immutable by every
// downstream component.
type VMSpec struct {
	Name   string
	Domain string
	Image  string // container image reference
	Port   int
	OS     string
	MemMiB int
	CPUs   int
	DiskGB int
	Net    NetSpec
}

// Equivalent reports whether two specs describe the same running workload:
// same image reference and port. A repeat `up` against a running domain
// only re-probes readiness when the specs are Equivalent.
func (v VMSpec) Equivalent(other VMSpec) bool {
	return v.Image == other.Image && v.Port == other.Port
}

// VMPhase is the state-machine phase of a VMInstance.
type VMPhase string

const (
	PhaseAbsent   VMPhase = "Absent"
	PhasePrepared VMPhase = "Prepared"
	PhaseDefined  VMPhase = "Defined"
	PhaseRunning  VMPhase = "Running"
	PhaseReady    VMPhase = "Ready"
	PhaseTornDown VMPhase = "Torn-down"
	PhaseFailed   VMPhase = "Failed"
	PhaseSkipped  VMPhase = "Skipped"
)

// VMInstance is the runtime record for one named VM.
type VMInstance struct {
	Spec        VMSpec
	WorkDir     string
	DiskPath    string
	SeedISOPath string
	Phase       VMPhase
	IP          string
	Conditions  []Condition
	Err         error // set when Phase == PhaseFailed
}

// MarshalJSON renders Err as its message string, since the error interface
// carries no exported fields for encoding/json to walk on its own.
func (vi VMInstance) MarshalJSON() ([]byte, error) {
	type alias struct {
		Spec        VMSpec
		WorkDir     string
		DiskPath    string
		SeedISOPath string
		Phase       VMPhase
		IP          string
		Conditions  []Condition
		Err         string `json:",omitempty"`
	}
	a := alias{
		Spec: vi.Spec, WorkDir: vi.WorkDir, DiskPath: vi.DiskPath, SeedISOPath: vi.SeedISOPath,
		Phase: vi.Phase, IP: vi.IP, Conditions: vi.Conditions,
	}
	if vi.Err != nil {
		a.Err = vi.Err.Error()
	}
	return json.Marshal(a)
}

// StackEntry is one VMSpec-producing node in a StackDecl.
type StackEntry struct {
	Spec       VMSpec
	DependsOn  []string
}

// StackDecl is an ordered, named set of StackEntry nodes.
type StackDecl struct {
	Entries []StackEntry
}

// ImageCacheEntry describes one base image's cache state.
type ImageCacheEntry struct {
	Key       string
	URL       string
	LocalPath string
	Complete  bool
}

// Severity classifies a DoctorReport finding.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Finding is one entry in a DoctorReport.
type Finding struct {
	ID       string
	Severity Severity
	Message  string
	Fixable  bool
	// FixAction identifies which repair function produced this finding;
	// opaque to callers that only render the report.
	FixAction string
}

// DoctorReport is an ordered sequence of Doctor findings.
type DoctorReport struct {
	Findings []Finding
}

// HasErrors reports whether any finding has error severity.
func (d DoctorReport) HasErrors() bool {
	for _, f := range d.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}
