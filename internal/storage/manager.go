package storage

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
)

// LibvirtClient is the subset of go-libvirt's pool surface the manager
// drives. Tests substitute a mock; production passes *libvirt.Libvirt.
type LibvirtClient interface {
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StoragePoolDefineXML(XML string, Flags uint32) (libvirt.StoragePool, error)
	StoragePoolCreate(Pool libvirt.StoragePool, Flags libvirt.StoragePoolCreateFlags) error
	StoragePoolBuild(Pool libvirt.StoragePool, Flags libvirt.StoragePoolBuildFlags) error
	StoragePoolSetAutostart(Pool libvirt.StoragePool, Autostart int32) error
	StoragePoolUndefine(Pool libvirt.StoragePool) error
	StoragePoolGetInfo(Pool libvirt.StoragePool) (rState uint8, rCapacity uint64, rAllocation uint64, rAvailable uint64, err error)
	StoragePoolGetAutostart(Pool libvirt.StoragePool) (int32, error)
	StoragePoolGetXMLDesc(Pool libvirt.StoragePool, Flags libvirt.StorageXMLFlags) (string, error)
}

// Manager owns the default storage pool the doctor checks verify and
// repair.
type Manager struct {
	client LibvirtClient
}

func NewManager(client LibvirtClient) *Manager {
	return &Manager{client: client}
}

// EnsureDefaultPool ensures the default dockvirt storage pool exists, per
// the doctor's default-pool check and repair.
func (m *Manager) EnsureDefaultPool(ctx context.Context) error {
	if err := m.EnsurePool(ctx, DefaultPoolName, PoolTypeDir, DefaultPoolPath); err != nil {
		return fmt.Errorf("failed to ensure default pool: %w", err)
	}
	return nil
}

// EnsureDefaultPoolActive defines the default pool if absent (via
// EnsureDefaultPool, which also starts and autostarts a freshly-created
// pool), then additionally starts and autostarts it if it was already
// defined but left inactive — the repair behind Doctor's pool check,
// mirroring internal/libvirt.EnsureNetwork's define-then-activate shape.
func (m *Manager) EnsureDefaultPoolActive(ctx context.Context) error {
	if err := m.EnsureDefaultPool(ctx); err != nil {
		return err
	}

	pool, err := m.client.StoragePoolLookupByName(DefaultPoolName)
	if err != nil {
		return fmt.Errorf("default pool vanished after ensure: %w", err)
	}

	info, err := m.GetPoolInfo(ctx, DefaultPoolName)
	if err != nil {
		return fmt.Errorf("failed to get default pool info: %w", err)
	}
	if !info.Active() {
		if err := m.client.StoragePoolCreate(pool, 0); err != nil {
			return fmt.Errorf("failed to start default pool: %w", err)
		}
	}
	if !info.Autostart {
		if err := m.client.StoragePoolSetAutostart(pool, 1); err != nil {
			return fmt.Errorf("failed to set default pool autostart: %w", err)
		}
	}
	return nil
}
