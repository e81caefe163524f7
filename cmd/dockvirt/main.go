// Command dockvirt is the thin CLI entrypoint: it owns flag parsing and the
// logging sink and nothing else. Every subcommand below resolves a
// spec.VMSpec or loads a spec.StackDecl and hands it straight to
// internal/vm, internal/stack, internal/doctor, or internal/probe.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jbweber/dockvirt/internal/config"
	"github.com/jbweber/dockvirt/internal/dockerr"
	"github.com/jbweber/dockvirt/internal/doctor"
	dockvirtlibvirt "github.com/jbweber/dockvirt/internal/libvirt"
	"github.com/jbweber/dockvirt/internal/loader"
	"github.com/jbweber/dockvirt/internal/output"
	"github.com/jbweber/dockvirt/internal/probe"
	"github.com/jbweber/dockvirt/internal/spec"
	"github.com/jbweber/dockvirt/internal/stack"
	"github.com/jbweber/dockvirt/internal/storage"
	"github.com/jbweber/dockvirt/internal/vm"
)

var (
	version = "dev"
	commit  = "unknown"
)

// cliOpts carries every persistent flag, resolved once in PersistentPreRunE
// and read by every subcommand.
type cliOpts struct {
	baseDir      string
	userSocket   string
	systemSocket string
	network      string
	pool         string
	connTimeout  time.Duration

	format    string
	noHeaders bool
	noColor   bool
	logLevel  string
}

var opts cliOpts

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps err to the documented process exit codes, falling back
// to the catch-all Internal code (1) for anything not carrying a
// dockerr.Kind — including the go-errors/errors-wrapped failures from the
// handful of plain stdlib calls below.
func exitCodeFor(err error) int {
	return dockerr.KindOf(err).ExitCode()
}

var rootCmd = &cobra.Command{
	Use:     "dockvirt",
	Short:   "Provision short-lived libvirt VMs running a container workload",
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	// SilenceUsage/SilenceErrors: every subcommand already prints its own
	// error via main()'s os.Stderr write; cobra's default usage dump on
	// error only adds noise to a CLI meant to be scripted.
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(opts.logLevel)
	},
}

func init() {
	defaultBase := os.Getenv("DOCKVIRT_BASE_DIR")
	if defaultBase == "" {
		home, _ := os.UserHomeDir()
		defaultBase = filepath.Join(home, ".dockvirt")
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.baseDir, "base-dir", defaultBase, "per-user base directory (overrides DOCKVIRT_BASE_DIR)")
	flags.StringVar(&opts.userSocket, "user-socket", defaultUserSocket(), "qemu:///session-style libvirt socket path")
	flags.StringVar(&opts.systemSocket, "system-socket", "/var/run/libvirt/libvirt-sock", "qemu:///system-style libvirt socket path")
	flags.StringVar(&opts.network, "network", "default", "hypervisor network name")
	flags.StringVar(&opts.pool, "pool", storage.DefaultPoolName, "hypervisor storage pool name")
	flags.DurationVar(&opts.connTimeout, "connect-timeout", 5*time.Second, "libvirt connection timeout")
	flags.StringVarP(&opts.format, "output", "o", "table", "output format: table, yaml, json")
	flags.BoolVar(&opts.noHeaders, "no-headers", false, "omit table headers")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored table output")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(ipCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(stackCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(healCmd)
	rootCmd.AddCommand(generateImageCmd)

	stackCmd.AddCommand(stackDeployCmd)
	stackCmd.AddCommand(stackDestroyCmd)
}

// defaultUserSocket guesses the per-user libvirt session socket the way
// libvirt itself locates it: under $XDG_RUNTIME_DIR, falling back to a
// per-user cache directory on hosts that don't export it.
func defaultUserSocket() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "libvirt", "libvirt-sock")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "libvirt", "libvirt-sock")
}

func setupLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return dockerr.New(dockerr.ConfigInvalid, level, "use debug, info, warn, or error", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

func newLogEntry(op string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"op": op, "run_id": uuid.NewString()})
}

func formatter() (output.Formatter, error) {
	return output.NewFormatter(output.Options{
		Format:    output.Format(opts.format),
		NoHeaders: opts.noHeaders,
		NoColor:   opts.noColor,
	})
}

// connectDriver selects and connects to the best available libvirt context
// (internal/libvirt.SelectConnection) and wraps it as a Driver. A
// LIBVIRT_DEFAULT_URI naming a known context pins the choice instead of
// auto-selecting. Callers must Close the returned client once done.
func connectDriver(ctx context.Context) (*dockvirtlibvirt.Driver, *dockvirtlibvirt.Client, error) {
	var (
		client *dockvirtlibvirt.Client
		err    error
	)
	switch os.Getenv("LIBVIRT_DEFAULT_URI") {
	case "qemu:///system":
		client, err = dockvirtlibvirt.ConnectWithContext(ctx, opts.systemSocket, opts.connTimeout)
	case "qemu:///session":
		client, err = dockvirtlibvirt.ConnectWithContext(ctx, opts.userSocket, opts.connTimeout)
	default:
		client, err = dockvirtlibvirt.SelectConnection(ctx, opts.userSocket, opts.systemSocket, opts.network, opts.pool, opts.connTimeout)
	}
	if err != nil {
		return nil, nil, err
	}
	return dockvirtlibvirt.NewDriver(client), client, nil
}

// newEnvironment wires a *vm.Environment against the current CLI options:
// loads (or seeds) the global config, connects to the hypervisor, and
// hands both to vm.NewEnvironment, which builds the cache, disk, and prober
// instances itself.
func newEnvironment(ctx context.Context, log *logrus.Entry) (*vm.Environment, *dockvirtlibvirt.Client, error) {
	gc, err := config.EnsureGlobalConfig(opts.baseDir)
	if err != nil {
		return nil, nil, err
	}
	driver, client, err := connectDriver(ctx)
	if err != nil {
		return nil, nil, err
	}
	env, err := vm.NewEnvironment(opts.baseDir, gc, driver, log)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return env, client, nil
}

// hasDockerfile reports whether dir carries a build context, threaded
// through to the seed builder's pull-vs-build branch.
func hasDockerfile(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "Dockerfile"))
	return err == nil
}

// resolveSpec discovers the project config from the current working
// directory and merges it with the given CLI overrides.
func resolveSpec(ov config.Overrides) (spec.VMSpec, error) {
	gc, err := config.EnsureGlobalConfig(opts.baseDir)
	if err != nil {
		return spec.VMSpec{}, err
	}

	var pc *config.ProjectConfig
	cwd, err := os.Getwd()
	if err != nil {
		return spec.VMSpec{}, goerrors.Wrap(err, 0)
	}
	if path, ok := config.DiscoverProjectConfig(cwd); ok {
		pc, err = config.ParseProjectConfig(path)
		if err != nil {
			return spec.VMSpec{}, err
		}
	}

	return config.Resolve(gc, pc, ov)
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Resolve the project config and ensure the VM is Ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		ov := overridesFromFlags(cmd)
		vmSpec, err := resolveSpec(ov)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		log := newLogEntry("up")
		env, client, err := newEnvironment(ctx, log)
		if err != nil {
			return err
		}
		defer client.Close() //nolint:errcheck

		cwd, _ := os.Getwd()
		instance, err := vm.Up(ctx, env, vmSpec, hasDockerfile(cwd))
		if err != nil && !dockerr.Is(err, dockerr.LeaseTimeout) && !dockerr.Is(err, dockerr.HTTPTimeout) {
			return err
		}

		fmt.Printf("VM %q is %s", instance.Spec.Name, instance.Phase)
		if instance.IP != "" {
			fmt.Printf(" (%s)", instance.IP)
		}
		fmt.Println()
		return err
	},
}

func overridesFromFlags(cmd *cobra.Command) config.Overrides {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return config.Overrides{
		Name:   get("name"),
		Domain: get("domain"),
		Image:  get("image"),
		Port:   get("port"),
		OS:     get("os"),
		Mem:    get("mem"),
		CPUs:   get("cpus"),
		Disk:   get("disk"),
		Net:    get("net"),
	}
}

func init() {
	f := upCmd.Flags()
	f.String("name", "", "VM name (overrides project config)")
	f.String("domain", "", "VM domain (overrides project config)")
	f.String("image", "", "container image reference (overrides project config)")
	f.String("port", "", "guest port (overrides project config)")
	f.String("os", "", "OS catalog key (overrides project config)")
	f.String("mem", "", "memory, e.g. 1024 or 2G (overrides project config)")
	f.String("cpus", "", "vCPU count (overrides project config)")
	f.String("disk", "", "disk size, e.g. 10 or 20G (overrides project config)")
	f.String("net", "", "`default` or `bridge=<ifname>` (overrides project config)")
}

var downCmd = &cobra.Command{
	Use:   "down <name>",
	Short: "Idempotently tear down a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := newLogEntry("down")
		env, client, err := newEnvironment(ctx, log)
		if err != nil {
			return err
		}
		defer client.Close() //nolint:errcheck

		if err := vm.Down(env, args[0]); err != nil {
			return err
		}
		fmt.Printf("VM %q torn down\n", args[0])
		return nil
	},
}

var ipCmd = &cobra.Command{
	Use:   "ip <name>",
	Short: "Print the current DHCP lease for a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := newLogEntry("ip")
		env, client, err := newEnvironment(ctx, log)
		if err != nil {
			return err
		}
		defer client.Close() //nolint:errcheck

		ip, err := vm.IP(env, args[0])
		if err != nil {
			return err
		}
		fmt.Println(ip)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List defined domains and their stored specs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := newLogEntry("list")
		env, client, err := newEnvironment(ctx, log)
		if err != nil {
			return err
		}
		defer client.Close() //nolint:errcheck

		infos, err := vm.List(env)
		if err != nil {
			return err
		}

		f, err := formatter()
		if err != nil {
			return err
		}
		rendered, err := f.FormatVMList(infos)
		if err != nil {
			return err
		}
		fmt.Print(rendered)
		return nil
	},
}

var stackCmd = &cobra.Command{
	Use:   "stack",
	Short: "Reconcile a multi-VM stack declaration",
}

var stackDeployCmd = &cobra.Command{
	Use:   "deploy <file>",
	Short: "Bring every node of a stack declaration up",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := newLogEntry("stack-deploy")
		gc, err := config.EnsureGlobalConfig(opts.baseDir)
		if err != nil {
			return err
		}
		decl, err := loader.LoadFromFile(args[0], gc)
		if err != nil {
			return err
		}

		env, client, err := newEnvironment(ctx, log)
		if err != nil {
			return err
		}
		defer client.Close() //nolint:errcheck

		cwd, _ := os.Getwd()
		reconciler := stack.New(env, hasDockerfile(cwd))
		result, deployErr := reconciler.Deploy(ctx, decl)

		f, ferr := formatter()
		if ferr != nil {
			return ferr
		}
		rendered, rerr := f.FormatStackResult(result)
		if rerr != nil {
			return rerr
		}
		fmt.Print(rendered)
		return deployErr
	},
}

var stackDestroyCmd = &cobra.Command{
	Use:   "destroy <file>",
	Short: "Tear every node of a stack declaration down",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := newLogEntry("stack-destroy")
		gc, err := config.EnsureGlobalConfig(opts.baseDir)
		if err != nil {
			return err
		}
		decl, err := loader.LoadFromFile(args[0], gc)
		if err != nil {
			return err
		}

		env, client, err := newEnvironment(ctx, log)
		if err != nil {
			return err
		}
		defer client.Close() //nolint:errcheck

		reconciler := stack.New(env, false)
		result, destroyErr := reconciler.Destroy(ctx, decl)

		f, ferr := formatter()
		if ferr != nil {
			return ferr
		}
		rendered, rerr := f.FormatStackResult(result)
		if rerr != nil {
			return rerr
		}
		fmt.Print(rendered)
		return destroyErr
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the System Probe and report host readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		report := probe.Run(ctx, probe.Options{
			UserSocket:   opts.userSocket,
			SystemSocket: opts.systemSocket,
			Timeout:      opts.connTimeout,
		})

		f, err := formatter()
		if err != nil {
			return err
		}
		rendered, err := f.FormatDoctorReport(report)
		if err != nil {
			return err
		}
		fmt.Print(rendered)

		if report.HasErrors() {
			return dockerr.New(dockerr.ToolMissing, "", "run `dockvirt heal --apply`", fmt.Errorf("one or more required tools are missing"))
		}
		return nil
	},
}

var healApply bool

var healCmd = &cobra.Command{
	Use:   "heal",
	Short: "Run Doctor's checks, optionally applying repairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var (
			driver *dockvirtlibvirt.Driver
			client *dockvirtlibvirt.Client
		)
		if d, c, err := connectDriver(ctx); err == nil {
			driver, client = d, c
			defer client.Close() //nolint:errcheck
		}

		var storageMgr *storage.Manager
		if client != nil {
			storageMgr = storage.NewManager(client.Libvirt())
		}

		dopts := doctor.Options{
			BaseDir:     opts.baseDir,
			NetworkName: opts.network,
			PoolName:    opts.pool,
			Driver:      driver,
			StorageMgr:  storageMgr,
		}

		report := doctor.Run(ctx, dopts)
		if healApply {
			var errs []error
			report, errs = doctor.Apply(ctx, dopts, report)
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "repair failed: %v\n", e)
			}
		}

		f, err := formatter()
		if err != nil {
			return err
		}
		rendered, err := f.FormatDoctorReport(report)
		if err != nil {
			return err
		}
		fmt.Print(rendered)

		if report.HasErrors() {
			return dockerr.New(dockerr.ToolMissing, "", "run `dockvirt heal --apply`", fmt.Errorf("one or more checks failed"))
		}
		return nil
	},
}

func init() {
	healCmd.Flags().BoolVar(&healApply, "apply", false, "perform repairs for every fixable finding")
}

var generateImageOutput string

var generateImageCmd = &cobra.Command{
	Use:   "generate-image",
	Short: "Render an installer ISO bundling the dockvirt binary",
	RunE: func(cmd *cobra.Command, args []string) error {
		self, err := os.Executable()
		if err != nil {
			return goerrors.Wrap(err, 0)
		}

		data, err := buildInstallerImage(self)
		if err != nil {
			return err
		}

		if err := os.WriteFile(generateImageOutput, data, 0o644); err != nil {
			return goerrors.Wrap(fmt.Errorf("write installer image %s: %w", generateImageOutput, err), 0)
		}
		fmt.Printf("installer image written to %s\n", generateImageOutput)
		return nil
	},
}

func init() {
	generateImageCmd.Flags().StringVar(&generateImageOutput, "output", "dockvirt-installer.iso", "output path for the installer image")
}
