package vm

import (
	"context"
	"time"

	"github.com/jbweber/dockvirt/internal/spec"
)

// hypervisorDriver defines the subset of internal/libvirt.Driver that the
// lifecycle engine needs. Satisfied by *libvirt.Driver in production; tests
// substitute a fake without a running hypervisor.
type hypervisorDriver interface {
	Exists(name string) (bool, error)
	DefineAndStart(vm spec.VMSpec, diskPath, seedISOPath, variant string) error
	Destroy(name string) error
	List() ([]string, error)
	State(name string) (string, error)
	Lease(ctx context.Context, name string, timeout time.Duration) (string, error)
	CurrentLease(name string) (string, bool, error)
	StoreSpec(name string, vm spec.VMSpec) error
	LoadSpec(name string) (spec.VMSpec, error)
}

// imageCache defines the image-cache operation this package needs.
// Satisfied by *cache.Cache.
type imageCache interface {
	Ensure(ctx context.Context, img spec.OSImage) (string, error)
}

// diskBuilder defines the work-dir and disk operations this package needs.
// Satisfied by *disk.Manager.
type diskBuilder interface {
	WorkDir(vmName string) string
	EnsureWorkDir(vmName string) error
	WorkDirExists(vmName string) (bool, error)
	DiskPath(vmName string) string
	SeedISOPath(vmName string) string
	CreateBootDisk(vmName, backingImagePath string, sizeGB int) error
	WriteSeedISO(vmName string, isoData []byte) error
	DeleteWorkDir(vmName string) error
	CheckDiskSpace(sizeGB int) error
}

// readinessProber defines the readiness-probe operation this package
// needs. Satisfied by *ready.Prober.
type readinessProber interface {
	Wait(ctx context.Context, vm spec.VMSpec) (ip string, httpOK bool, err error)
}
