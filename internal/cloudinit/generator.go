// Package cloudinit renders the three cloud-init
// documents — user-data, meta-data, network-config — from a resolved
// spec.VMSpec, and bundles them into a NoCloud ISO9660 seed image.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/dockvirt/internal/imageref"
	"github.com/jbweber/dockvirt/internal/spec"
)

// UserData represents the cloud-config user-data structure. Marshaled to
// YAML and prefixed with the "#cloud-config" header.
//
// See https://cloudinit.readthedocs.io/en/latest/explanation/format.html#cloud-config-data
type UserData struct {
	Hostname     string   `yaml:"hostname"`
	FQDN         string   `yaml:"fqdn"`
	SSHPwauth    bool     `yaml:"ssh_pwauth"`
	PackageUpdate bool    `yaml:"package_update"`
	Output       *Output  `yaml:"output,omitempty"`
	WriteFiles   []File   `yaml:"write_files,omitempty"`
	RunCmd       []string `yaml:"runcmd"`
}

// File is one entry of cloud-init's write_files module.
type File struct {
	Path        string `yaml:"path"`
	Content     string `yaml:"content"`
	Permissions string `yaml:"permissions,omitempty"`
	Encoding    string `yaml:"encoding,omitempty"`
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData represents the cloud-init meta-data structure.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// NetworkConfig represents the netplan v2 network configuration. dockvirt's
// guest always acquires its address over DHCP, and the readiness prober
// discovers the resulting lease rather than the config dictating a static
// IP, so this has exactly one interface with dhcp4 enabled.
type NetworkConfig struct {
	Version   int                       `yaml:"version"`
	Ethernets map[string]EthernetConfig `yaml:"ethernets"`
}

// EthernetConfig represents a single ethernet interface configuration.
type EthernetConfig struct {
	DHCP4 bool `yaml:"dhcp4"`
}

// GenerateNetworkConfig always configures a single DHCP-managed interface.
func GenerateNetworkConfig(vm spec.VMSpec) (string, error) {
	cfg := NetworkConfig{
		Version: 2,
		Ethernets: map[string]EthernetConfig{
			"eth0": {DHCP4: true},
		},
	}
	yamlBytes, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", fmt.Errorf("marshal network-config: %w", err)
	}
	return string(yamlBytes), nil
}

// GenerateMetaData sets instance-id to the VM name so cloud-init re-runs
// first-boot modules if the VM is destroyed and recreated under the same
// name (a fresh disk gets a fresh instance-id lifecycle).
func GenerateMetaData(vm spec.VMSpec) (string, error) {
	md := MetaData{
		InstanceID:    vm.Name,
		LocalHostname: vm.Name,
	}
	yamlBytes, err := yaml.Marshal(&md)
	if err != nil {
		return "", fmt.Errorf("marshal meta-data: %w", err)
	}
	return string(yamlBytes), nil
}

// isPullable judges whether image is a remote-resolvable reference. No
// network is dialed to confirm pullability; the choice between "pull and
// run" and "build and run" rests on imageref's static parse judgment plus
// the presence of a Dockerfile.
func isPullable(image string, hasDockerfile bool) bool {
	if hasDockerfile {
		return false
	}
	return imageref.IsPullable(image)
}

// GenerateUserData renders the user-data cloud-config implementing the
// guest contract: install the container runtime, obtain the
// workload image (pull if remote-resolvable, else build the project's
// Dockerfile context), run it publishing the declared port, and front it
// with a reverse proxy terminating the declared domain on 80/443.
//
// hasDockerfile reports whether the project directory being seeded carries
// a Dockerfile; when true the guest builds locally instead of pulling.
func GenerateUserData(vm spec.VMSpec, hasDockerfile bool) (string, error) {
	ud := UserData{
		Hostname:      vm.Name,
		FQDN:          vm.Domain,
		SSHPwauth:     false,
		PackageUpdate: true,
		Output: &Output{
			All: "| tee -a /var/log/cloud-init-output.log",
		},
	}

	ud.WriteFiles = []File{
		{
			Path:        "/etc/caddy/Caddyfile",
			Permissions: "0644",
			Content: fmt.Sprintf("%s {\n\treverse_proxy localhost:%d\n}\n",
				vm.Domain, vm.Port),
		},
	}

	ud.RunCmd = append(ud.RunCmd, containerRuntimeInstallCommands()...)

	if isPullable(vm.Image, hasDockerfile) {
		ud.RunCmd = append(ud.RunCmd,
			fmt.Sprintf("docker pull %s", vm.Image),
			fmt.Sprintf("docker run -d --restart unless-stopped --name workload -p 127.0.0.1:%d:%d %s",
				vm.Port, vm.Port, vm.Image),
		)
	} else {
		ud.RunCmd = append(ud.RunCmd,
			"docker build -t workload:local /opt/dockvirt/context",
			fmt.Sprintf("docker run -d --restart unless-stopped --name workload -p 127.0.0.1:%d:%d workload:local",
				vm.Port, vm.Port),
		)
	}

	ud.RunCmd = append(ud.RunCmd, caddyInstallCommands()...)

	yamlBytes, err := yaml.Marshal(&ud)
	if err != nil {
		return "", fmt.Errorf("marshal user-data: %w", err)
	}
	return "#cloud-config\n" + string(yamlBytes), nil
}

// containerRuntimeInstallCommands installs Docker if it is not already
// present — idempotent across reruns of cloud-init's runcmd module.
func containerRuntimeInstallCommands() []string {
	return []string{
		"command -v docker >/dev/null 2>&1 || curl -fsSL https://get.docker.com | sh",
		"systemctl enable --now docker",
	}
}

// caddyInstallCommands installs and starts the reverse proxy, pointing it at
// the Caddyfile written above. Caddy issues and renews the domain's TLS
// certificate automatically.
func caddyInstallCommands() []string {
	return []string{
		"command -v caddy >/dev/null 2>&1 || (curl -1sLf 'https://dl.cloudsmith.io/public/caddy/stable/gpg.key' | gpg --dearmor -o /usr/share/keyrings/caddy-stable-archive-keyring.gpg && " +
			"curl -1sLf 'https://dl.cloudsmith.io/public/caddy/stable/debian.deb.txt' -o /etc/apt/sources.list.d/caddy-stable.list && " +
			"apt-get update && apt-get install -y caddy)",
		"systemctl enable --now caddy",
		"systemctl reload caddy",
	}
}
