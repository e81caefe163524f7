// Package storage manages the single libvirt storage pool dockvirt relies
// on, plus the pure-Go image format checks run against files before they're
// used as VM disks.
//
// This package handles:
//   - Default pool lifecycle (ensure defined, built, active, autostarting)
//   - Disk image format detection and validation (QCOW2, RAW)
//   - QEMU process user/group discovery, for ACL/ownership decisions made
//     by internal/doctor
//
// Storage Architecture:
//
// VM disks and cloud-init seed ISOs are plain files in a per-VM work_dir
// under the user's home directory (see internal/disk), not libvirt-managed
// volumes. This package's only libvirt-managed resource is DefaultPoolName,
// a single dir-type pool that the doctor ensures is defined and active; it
// exists for compatibility with tooling that expects a libvirt storage pool
// to be present, not as a container for VM volumes.
//
// Format Validation:
//
// DetectImageFormat performs pure Go magic byte detection, used by
// internal/cache before a downloaded or cached image is handed to a VM:
//   - QCOW2: Magic bytes "QFI\xfb" at offset 0
//   - RAW: MBR signature 0x55aa at offset 510
//   - Rejects anything with neither signature; the file name and extension
//     are not consulted
//
// Consumer-Side Interface:
//
// LibvirtClient is defined by this package for the subset of libvirt
// storage-pool operations it needs; *libvirt.Libvirt satisfies it
// implicitly, so tests can substitute a mock.
//
// Example usage:
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	mgr := storage.NewManager(client.Libvirt())
//	if err := mgr.EnsureDefaultPool(ctx); err != nil {
//	    return err
//	}
package storage
