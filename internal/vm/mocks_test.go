package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/dockvirt/internal/spec"
)

type fakeDriver struct {
	defined    map[string]bool
	specs      map[string]spec.VMSpec
	defineErr  error
	destroyErr error
	storeErr   error
	states     map[string]string
	leases     map[string]string

	destroyed []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		defined: make(map[string]bool),
		specs:   make(map[string]spec.VMSpec),
		states:  make(map[string]string),
		leases:  make(map[string]string),
	}
}

// setRunning marks name as both defined and carrying the given stored spec,
// the state a domain dockvirt previously created and started is in.
func (f *fakeDriver) setRunning(name string, vm spec.VMSpec) {
	f.defined[name] = true
	f.specs[name] = vm
	f.states[name] = "running"
}

func (f *fakeDriver) Exists(name string) (bool, error) {
	return f.defined[name], nil
}

func (f *fakeDriver) DefineAndStart(vm spec.VMSpec, diskPath, seedISOPath, variant string) error {
	if f.defineErr != nil {
		return f.defineErr
	}
	f.defined[vm.Name] = true
	f.states[vm.Name] = "running"
	return nil
}

func (f *fakeDriver) Destroy(name string) error {
	f.destroyed = append(f.destroyed, name)
	if f.destroyErr != nil {
		return f.destroyErr
	}
	delete(f.defined, name)
	delete(f.specs, name)
	delete(f.states, name)
	return nil
}

func (f *fakeDriver) List() ([]string, error) {
	names := make([]string, 0, len(f.defined))
	for name := range f.defined {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeDriver) State(name string) (string, error) {
	if s, ok := f.states[name]; ok {
		return s, nil
	}
	return "", fmt.Errorf("no such domain %s", name)
}

func (f *fakeDriver) Lease(ctx context.Context, name string, timeout time.Duration) (string, error) {
	if ip, ok := f.leases[name]; ok {
		return ip, nil
	}
	return "", fmt.Errorf("no lease for %s", name)
}

func (f *fakeDriver) CurrentLease(name string) (string, bool, error) {
	ip, ok := f.leases[name]
	return ip, ok, nil
}

func (f *fakeDriver) StoreSpec(name string, vm spec.VMSpec) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.specs[name] = vm
	return nil
}

func (f *fakeDriver) LoadSpec(name string) (spec.VMSpec, error) {
	vm, ok := f.specs[name]
	if !ok {
		return spec.VMSpec{}, fmt.Errorf("no spec stored for %s", name)
	}
	return vm, nil
}

type fakeCache struct {
	path string
	err  error
	ensureCalls int
}

func (f *fakeCache) Ensure(ctx context.Context, img spec.OSImage) (string, error) {
	f.ensureCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.path, nil
}

type fakeDisk struct {
	workDirs   map[string]bool
	diskErr    error
	isoErr     error
	deleted    []string
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{workDirs: make(map[string]bool)}
}

func (f *fakeDisk) WorkDir(vmName string) string     { return "/base/" + vmName }
func (f *fakeDisk) DiskPath(vmName string) string     { return "/base/" + vmName + "/disk.qcow2" }
func (f *fakeDisk) SeedISOPath(vmName string) string  { return "/base/" + vmName + "/seed.iso" }

func (f *fakeDisk) EnsureWorkDir(vmName string) error {
	f.workDirs[vmName] = true
	return nil
}

func (f *fakeDisk) WorkDirExists(vmName string) (bool, error) {
	return f.workDirs[vmName], nil
}

func (f *fakeDisk) CreateBootDisk(vmName, backingImagePath string, sizeGB int) error {
	return f.diskErr
}

func (f *fakeDisk) WriteSeedISO(vmName string, isoData []byte) error {
	return f.isoErr
}

func (f *fakeDisk) DeleteWorkDir(vmName string) error {
	f.deleted = append(f.deleted, vmName)
	delete(f.workDirs, vmName)
	return nil
}

func (f *fakeDisk) CheckDiskSpace(sizeGB int) error { return nil }

type fakeProber struct {
	ip     string
	httpOK bool
	err    error
	calls  int
}

func (f *fakeProber) Wait(ctx context.Context, vm spec.VMSpec) (string, bool, error) {
	f.calls++
	return f.ip, f.httpOK, f.err
}

func testEnv(driver *fakeDriver, c *fakeCache, d *fakeDisk, p *fakeProber) *Environment {
	return &Environment{
		Global: &spec.GlobalConfig{
			DefaultOS: "ubuntu22.04",
			Images: map[string]spec.OSImage{
				"ubuntu22.04": {Key: "ubuntu22.04", URL: "https://example.invalid/ubuntu.img", Variant: "ubuntu22.04"},
			},
		},
		driver: driver,
		cache:  c,
		disk:   d,
		prober: p,
		log:    logrus.NewEntry(logrus.New()),
	}
}

func testSpec(name string) spec.VMSpec {
	return spec.VMSpec{
		Name:   name,
		Domain: name + ".local",
		Image:  "nginx:latest",
		Port:   80,
		OS:     "ubuntu22.04",
		MemMiB: 2048,
		CPUs:   2,
		DiskGB: 10,
		Net:    spec.NetSpec{Kind: spec.NetDefault},
	}
}
