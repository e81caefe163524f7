// Package disk materializes a per-VM
// work directory and creates the boot disk as a copy-on-write overlay backed
// by the cached base image.
package disk

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/jbweber/dockvirt/internal/dockerr"
)

const (
	// DirPermissions are the permissions for a VM's work directory.
	DirPermissions = 0o755

	// FilePermissions are the permissions for files written into a VM's
	// work directory (disk image, seed ISO).
	FilePermissions = 0o644

	// DiskFileName is the fixed name of the boot overlay disk within a
	// VM's work directory.
	DiskFileName = "disk.qcow2"

	// SeedISOFileName is the fixed name of the cloud-init seed ISO within a
	// VM's work directory.
	SeedISOFileName = "seed.iso"
)

// Manager creates and removes per-VM work directories under base. It never
// chowns files to a hypervisor service account: the base directory belongs
// to the invoking user, and hypervisor read access is granted separately
// via POSIX ACLs (see the doctor package), not via file ownership.
type Manager struct {
	base string
}

// NewManager creates a Manager rooted at base (the per-user dockvirt
// directory, e.g. <home>/.dockvirt).
func NewManager(base string) *Manager {
	return &Manager{base: base}
}

// WorkDir returns the work directory path for a VM.
func (m *Manager) WorkDir(vmName string) string {
	return filepath.Join(m.base, vmName)
}

// DiskPath returns the boot disk path for a VM.
func (m *Manager) DiskPath(vmName string) string {
	return filepath.Join(m.WorkDir(vmName), DiskFileName)
}

// SeedISOPath returns the seed ISO path for a VM.
func (m *Manager) SeedISOPath(vmName string) string {
	return filepath.Join(m.WorkDir(vmName), SeedISOFileName)
}

// EnsureWorkDir creates the VM's work directory if it does not already exist.
func (m *Manager) EnsureWorkDir(vmName string) error {
	if err := os.MkdirAll(m.WorkDir(vmName), DirPermissions); err != nil {
		return fmt.Errorf("create work dir for %s: %w", vmName, err)
	}
	return nil
}

// WorkDirExists reports whether the VM's work directory is already present.
func (m *Manager) WorkDirExists(vmName string) (bool, error) {
	info, err := os.Stat(m.WorkDir(vmName))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat work dir for %s: %w", vmName, err)
	}
	return info.IsDir(), nil
}

// CreateBootDisk creates <work_dir>/disk.qcow2 as a copy-on-write overlay
// backed by backingImagePath, resized to sizeGB. Failure is reported as
// dockerr.DiskCreate.
func (m *Manager) CreateBootDisk(vmName, backingImagePath string, sizeGB int) error {
	diskPath := m.DiskPath(vmName)

	cmd := exec.Command(
		"qemu-img", "create",
		"-f", "qcow2",
		"-b", backingImagePath,
		"-F", "qcow2",
		diskPath,
		fmt.Sprintf("%dG", sizeGB),
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return dockerr.New(dockerr.DiskCreate, diskPath, "check disk space and that the base image is a valid qcow2", fmt.Errorf("qemu-img create: %w: %s", err, output))
	}

	if err := os.Chmod(diskPath, FilePermissions); err != nil {
		return dockerr.New(dockerr.DiskCreate, diskPath, "check filesystem permissions", err)
	}
	return nil
}

// WriteSeedISO writes the rendered cloud-init seed ISO to
// <work_dir>/seed.iso.
func (m *Manager) WriteSeedISO(vmName string, isoData []byte) error {
	if len(isoData) == 0 {
		return fmt.Errorf("seed ISO data cannot be empty")
	}
	path := m.SeedISOPath(vmName)
	if err := os.WriteFile(path, isoData, FilePermissions); err != nil {
		return fmt.Errorf("write seed ISO %s: %w", path, err)
	}
	return nil
}

// DeleteWorkDir removes the VM's entire work directory and its contents. A
// missing directory is success, so repeated `down` stays idempotent.
func (m *Manager) DeleteWorkDir(vmName string) error {
	workDir := m.WorkDir(vmName)
	if _, err := os.Stat(workDir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(workDir); err != nil {
		return fmt.Errorf("delete work dir %s: %w", workDir, err)
	}
	return nil
}

// CheckDiskSpace verifies the base directory's filesystem has at least
// sizeGB of available space before CreateBootDisk is attempted.
func (m *Manager) CheckDiskSpace(sizeGB int) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(m.base, &stat); err != nil {
		return fmt.Errorf("statfs %s: %w", m.base, err)
	}
	availableGB := (stat.Bavail * uint64(stat.Bsize)) / (1024 * 1024 * 1024)
	if uint64(sizeGB) > availableGB {
		return dockerr.New(dockerr.DiskCreate, m.base, "free up disk space", fmt.Errorf("insufficient disk space: need %dGB, have %dGB available", sizeGB, availableGB))
	}
	return nil
}
