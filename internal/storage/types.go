// Package storage wraps libvirt storage-pool management. Per-VM disks and
// seed ISOs are plain files in the VM's work directory (see the disk and
// cloudinit packages); this package exists so the doctor/self-heal checks
// have a storage pool to verify and repair, matching what a default
// hypervisor installation expects to find defined.
package storage

// VolumeFormat represents a disk image's on-disk format, as detected by
// DetectImageFormat from its magic bytes.
type VolumeFormat string

const (
	VolumeFormatQCOW2 VolumeFormat = "qcow2"
	VolumeFormatRaw   VolumeFormat = "raw"
)

// PoolType represents the type of storage pool backend. Only directory
// pools are created here; that is what the default hypervisor install
// ships and what the doctor repair recreates.
type PoolType string

const (
	PoolTypeDir PoolType = "dir"
)

// PoolInfo contains information about a storage pool.
type PoolInfo struct {
	Name       string
	Type       PoolType
	Path       string
	UUID       string
	State      string
	Autostart  bool
	Capacity   uint64
	Allocation uint64
	Available  uint64
}

// CapacityGB returns the pool capacity in GB.
func (p *PoolInfo) CapacityGB() float64 {
	return float64(p.Capacity) / (1024 * 1024 * 1024)
}

// Active reports whether the pool is currently running.
func (p *PoolInfo) Active() bool {
	return p.State == "running"
}

// Default pool configuration, the one the doctor checks for and repairs.
const (
	// DefaultPoolName is the storage pool Doctor ensures is defined and active.
	DefaultPoolName = "dockvirt"
	// DefaultPoolPath is the directory backing DefaultPoolName.
	DefaultPoolPath = "/var/lib/libvirt/images/dockvirt"
)
