// Package loader reads a stack declaration file from YAML into a
// spec.StackDecl, reusing the Config Resolver's per-entry merge so a stack
// entry accepts the same key/value shape as a project config file.
package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/dockvirt/internal/config"
	"github.com/jbweber/dockvirt/internal/dockerr"
	"github.com/jbweber/dockvirt/internal/spec"
)

// rawEntry is the on-disk shape of one stack node: the same field set as
// config.ProjectConfig, plus depends_on.
type rawEntry struct {
	Name      string   `yaml:"name"`
	Domain    string   `yaml:"domain"`
	Image     string   `yaml:"image"`
	Port      string   `yaml:"port"`
	OS        string   `yaml:"os"`
	Mem       string   `yaml:"mem"`
	CPUs      string   `yaml:"cpus"`
	Disk      string   `yaml:"disk"`
	Net       string   `yaml:"net"`
	DependsOn []string `yaml:"depends_on"`
}

type rawStackDecl struct {
	Entries []rawEntry `yaml:"entries"`
}

// LoadFromFile reads a stack declaration from path and resolves every entry
// against gc (CLI overrides are not part of a stack declaration, so each
// entry is resolved with empty config.Overrides).
func LoadFromFile(path string, gc *spec.GlobalConfig) (spec.StackDecl, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return spec.StackDecl{}, fmt.Errorf("read stack declaration %s: %w", path, err)
	}
	return LoadFromYAML(data, gc)
}

// LoadFromYAML parses and resolves a stack declaration from YAML bytes.
func LoadFromYAML(data []byte, gc *spec.GlobalConfig) (spec.StackDecl, error) {
	var raw rawStackDecl
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return spec.StackDecl{}, dockerr.New(dockerr.ConfigInvalid, "", "fix the YAML syntax", err)
	}
	if len(raw.Entries) == 0 {
		return spec.StackDecl{}, dockerr.New(dockerr.ConfigInvalid, "", "a stack declaration needs at least one entry", fmt.Errorf("no entries"))
	}

	seen := make(map[string]bool, len(raw.Entries))
	entries := make([]spec.StackEntry, 0, len(raw.Entries))
	for _, re := range raw.Entries {
		if re.Name == "" {
			return spec.StackDecl{}, dockerr.New(dockerr.ConfigInvalid, "", "every entry needs a name", fmt.Errorf("entry missing name"))
		}
		if seen[re.Name] {
			return spec.StackDecl{}, dockerr.New(dockerr.ConfigInvalid, re.Name, "", fmt.Errorf("duplicate entry name %q", re.Name))
		}
		seen[re.Name] = true

		pc := &config.ProjectConfig{
			Name: re.Name, Domain: re.Domain, Image: re.Image, Port: re.Port,
			OS: re.OS, Mem: re.Mem, CPUs: re.CPUs, Disk: re.Disk, Net: re.Net,
		}
		vmSpec, err := config.Resolve(gc, pc, config.Overrides{})
		if err != nil {
			return spec.StackDecl{}, err
		}
		entries = append(entries, spec.StackEntry{Spec: vmSpec, DependsOn: re.DependsOn})
	}

	for _, e := range entries {
		for _, dep := range e.DependsOn {
			if !seen[dep] {
				return spec.StackDecl{}, dockerr.New(dockerr.ConfigInvalid, e.Spec.Name, "", fmt.Errorf("%q depends_on unknown entry %q", e.Spec.Name, dep))
			}
		}
	}

	return spec.StackDecl{Entries: entries}, nil
}
