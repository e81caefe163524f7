// Package config discovers and parses the per-user GlobalConfig and per-project config
// file, merges them with CLI overrides into a frozen spec.VMSpec, and seeds
// a default image catalog on first run.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/dockvirt/internal/dockerr"
	"github.com/jbweber/dockvirt/internal/imageref"
	"github.com/jbweber/dockvirt/internal/spec"
)

// ProjectConfigName is the fixed, hidden filename the Config Resolver looks
// for while walking upward from the working directory.
const ProjectConfigName = ".dockvirt"

// GlobalConfigName is the fixed filename of the per-user GlobalConfig inside
// the base directory.
const GlobalConfigName = "config.yaml"

var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// rawGlobalConfig is the on-disk shape of GlobalConfig. It accepts both the
// current `images` key and the legacy `os_images` alias so that a file
// written by an older version loads unchanged.
type rawGlobalConfig struct {
	DefaultOS    string                `yaml:"default_os"`
	Images       map[string]rawOSImage `yaml:"images,omitempty"`
	LegacyImages map[string]rawOSImage `yaml:"os_images,omitempty"`
}

type rawOSImage struct {
	URL     string `yaml:"url"`
	Variant string `yaml:"variant"`
}

// LoadGlobalConfig reads and unifies the GlobalConfig from <base>/config.yaml.
// A file containing only the legacy `os_images` root key reads back under
// `images`; both keys present is permitted, with `images` entries winning on
// key collision.
func LoadGlobalConfig(baseDir string) (*spec.GlobalConfig, error) {
	path := filepath.Join(baseDir, GlobalConfigName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read global config %s: %w", path, err)
	}

	var raw rawGlobalConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dockerr.New(dockerr.ConfigInvalid, path, "fix the YAML syntax", err)
	}

	images := make(map[string]spec.OSImage, len(raw.LegacyImages)+len(raw.Images))
	for key, img := range raw.LegacyImages {
		images[key] = spec.OSImage{Key: key, URL: img.URL, Variant: img.Variant}
	}
	for key, img := range raw.Images {
		images[key] = spec.OSImage{Key: key, URL: img.URL, Variant: img.Variant}
	}

	gc := &spec.GlobalConfig{DefaultOS: raw.DefaultOS, Images: images}
	if err := gc.Validate(); err != nil {
		return nil, dockerr.New(dockerr.ConfigInvalid, path, "edit config.yaml or run `dockvirt heal --apply`", err)
	}
	return gc, nil
}

// SaveGlobalConfig writes the GlobalConfig back to <base>/config.yaml,
// always under the current `images` key (never `os_images`).
func SaveGlobalConfig(baseDir string, gc *spec.GlobalConfig) error {
	raw := rawGlobalConfig{
		DefaultOS: gc.DefaultOS,
		Images:    make(map[string]rawOSImage, len(gc.Images)),
	}
	for key, img := range gc.Images {
		raw.Images[key] = rawOSImage{URL: img.URL, Variant: img.Variant}
	}

	data, err := yaml.Marshal(&raw)
	if err != nil {
		return fmt.Errorf("marshal global config: %w", err)
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return fmt.Errorf("create base dir %s: %w", baseDir, err)
	}
	path := filepath.Join(baseDir, GlobalConfigName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write global config %s: %w", path, err)
	}
	return nil
}

// defaultCatalog is written on first run by EnsureGlobalConfig: a
// current Ubuntu LTS and a current Fedora Cloud base, so `up` has a working
// default_os without any manual setup.
func defaultCatalog() *spec.GlobalConfig {
	return &spec.GlobalConfig{
		DefaultOS: "ubuntu22.04",
		Images: map[string]spec.OSImage{
			"ubuntu22.04": {
				Key:     "ubuntu22.04",
				URL:     "https://cloud-images.ubuntu.com/jammy/current/jammy-server-cloudimg-amd64.img",
				Variant: "ubuntu22.04",
			},
			"fedora39": {
				Key:     "fedora39",
				URL:     "https://download.fedoraproject.org/pub/fedora/linux/releases/39/Cloud/x86_64/images/Fedora-Cloud-Base-39-1.5.x86_64.qcow2",
				Variant: "fedora39",
			},
		},
	}
}

// EnsureGlobalConfig loads the GlobalConfig, writing the default catalog
// first if <base>/config.yaml does not yet exist.
func EnsureGlobalConfig(baseDir string) (*spec.GlobalConfig, error) {
	path := filepath.Join(baseDir, GlobalConfigName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := SaveGlobalConfig(baseDir, defaultCatalog()); err != nil {
			return nil, err
		}
	}
	return LoadGlobalConfig(baseDir)
}

// Lookup resolves an OS key against the catalog, failing with UnknownOS
// otherwise.
func Lookup(gc *spec.GlobalConfig, key string) (spec.OSImage, error) {
	img, ok := gc.Images[key]
	if !ok {
		return spec.OSImage{}, dockerr.New(dockerr.UnknownOS, key, "add it to config.yaml or pick a known os", nil)
	}
	return img, nil
}

// ProjectConfig is the parsed key/value project file, before merge.
type ProjectConfig struct {
	Name   string
	Domain string
	Image  string
	Port   string
	OS     string
	Mem    string
	CPUs   string
	Disk   string
	Net    string
	// Unknown preserves keys the core doesn't recognize but must not drop.
	Unknown map[string]string
}

// DiscoverProjectConfig walks upward from dir looking for a file named
// ProjectConfigName, stopping at the filesystem root. Returns ("", false)
// if none is found.
func DiscoverProjectConfig(dir string) (string, bool) {
	dir = filepath.Clean(dir)
	for {
		candidate := filepath.Join(dir, ProjectConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// ParseProjectConfig parses a key=value project file: `#` comments and blank
// lines are ignored, and duplicate keys follow last-wins.
func ParseProjectConfig(path string) (*ProjectConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open project config %s: %w", path, err)
	}
	defer f.Close()

	kv := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, dockerr.New(dockerr.ConfigInvalid, path, "use key=value lines", fmt.Errorf("malformed line %q", line))
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		kv[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read project config %s: %w", path, err)
	}

	pc := &ProjectConfig{Unknown: make(map[string]string)}
	for key, val := range kv {
		switch key {
		case "name":
			pc.Name = val
		case "domain":
			pc.Domain = val
		case "image":
			pc.Image = val
		case "port":
			pc.Port = val
		case "os":
			pc.OS = val
		case "mem":
			pc.Mem = val
		case "cpus":
			pc.CPUs = val
		case "disk":
			pc.Disk = val
		case "net":
			pc.Net = val
		default:
			pc.Unknown[key] = val
		}
	}
	return pc, nil
}

// Overrides carries CLI-invocation overrides, the highest-precedence tier of
// the merge. Empty-string fields mean "not overridden".
type Overrides struct {
	Name, Domain, Image, Port, OS, Mem, CPUs, Disk, Net string
}

// Resolve merges global defaults, the project file, and CLI overrides
// (lowest to highest precedence) into a frozen spec.VMSpec and validates
// it. Merge is a simple tiered field-by-field override: the
// highest-precedence non-empty value for a field always wins, so the result
// is deterministic and associative per tier regardless of call order.
func Resolve(gc *spec.GlobalConfig, pc *ProjectConfig, ov Overrides) (spec.VMSpec, error) {
	merged := ProjectConfig{
		Name:   firstNonEmpty(ov.Name, valueOf(pc, "Name")),
		Domain: firstNonEmpty(ov.Domain, valueOf(pc, "Domain")),
		Image:  firstNonEmpty(ov.Image, valueOf(pc, "Image")),
		Port:   firstNonEmpty(ov.Port, valueOf(pc, "Port")),
		OS:     firstNonEmpty(ov.OS, valueOf(pc, "OS"), gc.DefaultOS),
		Mem:    firstNonEmpty(ov.Mem, valueOf(pc, "Mem"), "1024"),
		CPUs:   firstNonEmpty(ov.CPUs, valueOf(pc, "CPUs"), "1"),
		Disk:   firstNonEmpty(ov.Disk, valueOf(pc, "Disk"), "10"),
		Net:    firstNonEmpty(ov.Net, valueOf(pc, "Net"), "default"),
	}

	if merged.Name == "" {
		return spec.VMSpec{}, dockerr.New(dockerr.ConfigInvalid, "", "set name= in the project file", fmt.Errorf("name is required"))
	}
	if !namePattern.MatchString(merged.Name) {
		return spec.VMSpec{}, dockerr.New(dockerr.ConfigInvalid, merged.Name, "use a DNS-1123 label", fmt.Errorf("invalid VM name %q", merged.Name))
	}

	if _, ok := gc.Images[merged.OS]; !ok {
		return spec.VMSpec{}, dockerr.New(dockerr.UnknownOS, merged.OS, "add it to config.yaml or pick a known os", nil)
	}

	port, err := strconv.Atoi(merged.Port)
	if err != nil || port < 1 || port > 65535 {
		return spec.VMSpec{}, dockerr.New(dockerr.ConfigInvalid, merged.Port, "port must be in [1,65535]", fmt.Errorf("invalid port %q", merged.Port))
	}

	mem, err := parseMemMiB(merged.Mem)
	if err != nil || mem < 256 {
		return spec.VMSpec{}, dockerr.New(dockerr.ConfigInvalid, merged.Mem, "mem must be >= 256 MiB", fmt.Errorf("invalid mem %q", merged.Mem))
	}

	cpus, err := strconv.Atoi(merged.CPUs)
	if err != nil || cpus < 1 {
		return spec.VMSpec{}, dockerr.New(dockerr.ConfigInvalid, merged.CPUs, "cpus must be >= 1", fmt.Errorf("invalid cpus %q", merged.CPUs))
	}

	disk, err := parseDiskGB(merged.Disk)
	if err != nil || disk < 1 {
		return spec.VMSpec{}, dockerr.New(dockerr.ConfigInvalid, merged.Disk, "disk must be >= 1 GiB", fmt.Errorf("invalid disk %q", merged.Disk))
	}

	net, err := parseNetSpec(merged.Net)
	if err != nil {
		return spec.VMSpec{}, dockerr.New(dockerr.ConfigInvalid, merged.Net, "use `default` or `bridge=<ifname>`", err)
	}

	if merged.Image != "" {
		if _, err := imageref.Parse(merged.Image); err != nil {
			return spec.VMSpec{}, dockerr.New(dockerr.ConfigInvalid, merged.Image, "use a valid image reference, e.g. docker.io/library/nginx:latest", err)
		}
	}

	if merged.Domain == "" {
		merged.Domain = merged.Name + ".local"
	}

	return spec.VMSpec{
		Name:   merged.Name,
		Domain: merged.Domain,
		Image:  merged.Image,
		Port:   port,
		OS:     merged.OS,
		MemMiB: mem,
		CPUs:   cpus,
		DiskGB: disk,
		Net:    net,
	}, nil
}

// parseMemMiB accepts either a bare integer (interpreted directly as MiB, for
// backward-compatible plain configs) or a human-readable size with a unit
// suffix ("2G", "512M"), normalized to MiB via docker/go-units' binary
// (1024-based) RAM size parser.
func parseMemMiB(val string) (int, error) {
	if n, err := strconv.Atoi(val); err == nil {
		return n, nil
	}
	bytes, err := units.RAMInBytes(val)
	if err != nil {
		return 0, fmt.Errorf("invalid mem size %q: %w", val, err)
	}
	return int(bytes / units.MiB), nil
}

// parseDiskGB accepts either a bare integer (interpreted directly as GiB) or
// a human-readable size with a unit suffix, normalized to GiB.
func parseDiskGB(val string) (int, error) {
	if n, err := strconv.Atoi(val); err == nil {
		return n, nil
	}
	bytes, err := units.RAMInBytes(val)
	if err != nil {
		return 0, fmt.Errorf("invalid disk size %q: %w", val, err)
	}
	return int(bytes / units.GiB), nil
}

func parseNetSpec(val string) (spec.NetSpec, error) {
	if val == "default" || val == "" {
		return spec.NetSpec{Kind: spec.NetDefault}, nil
	}
	if strings.HasPrefix(val, "bridge=") {
		iface := strings.TrimPrefix(val, "bridge=")
		if iface == "" {
			return spec.NetSpec{}, fmt.Errorf("bridge= requires an interface name")
		}
		return spec.NetSpec{Kind: spec.NetBridge, Interface: iface}, nil
	}
	return spec.NetSpec{}, fmt.Errorf("unrecognized net spec %q", val)
}

// valueOf reads a named field off a possibly-nil *ProjectConfig.
func valueOf(pc *ProjectConfig, field string) string {
	if pc == nil {
		return ""
	}
	switch field {
	case "Name":
		return pc.Name
	case "Domain":
		return pc.Domain
	case "Image":
		return pc.Image
	case "Port":
		return pc.Port
	case "OS":
		return pc.OS
	case "Mem":
		return pc.Mem
	case "CPUs":
		return pc.CPUs
	case "Disk":
		return pc.Disk
	case "Net":
		return pc.Net
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
