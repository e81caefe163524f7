package storage

import (
	"context"
	"testing"

	"github.com/digitalocean/go-libvirt"
)

func TestManager_EnsurePool(t *testing.T) {
	tests := []struct {
		name     string
		poolName string
		poolType PoolType
		setup    func(*mockLibvirtClient)
		wantErr  bool
		wantPool bool
	}{
		{
			name:     "create new pool",
			poolName: "test-pool",
			poolType: PoolTypeDir,
			setup:    func(m *mockLibvirtClient) {},
			wantPool: true,
		},
		{
			name:     "pool already exists",
			poolName: "existing-pool",
			poolType: PoolTypeDir,
			setup: func(m *mockLibvirtClient) {
				mgr := NewManager(m)
				_ = mgr.EnsurePool(context.Background(), "existing-pool", PoolTypeDir, "/var/lib/libvirt/images/existing")
			},
			wantPool: true,
		},
		{
			name:     "unsupported pool type",
			poolName: "lvm-pool",
			poolType: PoolType("lvm"),
			setup:    func(m *mockLibvirtClient) {},
			wantErr:  true,
		},
		{
			name:     "build failure undefines the pool",
			poolName: "broken-pool",
			poolType: PoolTypeDir,
			setup:    func(m *mockLibvirtClient) { m.failBuild = true },
			wantErr:  true,
		},
		{
			name:     "start failure undefines the pool",
			poolName: "broken-pool",
			poolType: PoolTypeDir,
			setup:    func(m *mockLibvirtClient) { m.failCreate = true },
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := newMockLibvirtClient()
			tt.setup(mockClient)

			mgr := NewManager(mockClient)
			err := mgr.EnsurePool(context.Background(), tt.poolName, tt.poolType, "/var/lib/libvirt/images/test")

			if (err != nil) != tt.wantErr {
				t.Errorf("EnsurePool() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			_, lookupErr := mockClient.StoragePoolLookupByName(tt.poolName)
			if tt.wantPool && lookupErr != nil {
				t.Errorf("pool %s not found after EnsurePool()", tt.poolName)
			}
			if !tt.wantPool && lookupErr == nil {
				t.Errorf("pool %s left defined after failed EnsurePool()", tt.poolName)
			}
		})
	}
}

func TestManager_GetPoolInfo(t *testing.T) {
	tests := []struct {
		name     string
		poolName string
		setup    func(*Manager)
		wantErr  bool
	}{
		{
			name:     "get info for existing pool",
			poolName: "test-pool",
			setup: func(mgr *Manager) {
				_ = mgr.EnsurePool(context.Background(), "test-pool", PoolTypeDir, "/var/lib/libvirt/images/test")
			},
		},
		{
			name:     "pool not found",
			poolName: "nonexistent",
			setup:    func(mgr *Manager) {},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := newMockLibvirtClient()
			mgr := NewManager(mockClient)
			tt.setup(mgr)

			info, err := mgr.GetPoolInfo(context.Background(), tt.poolName)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetPoolInfo() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if info.Name != tt.poolName {
					t.Errorf("GetPoolInfo() name = %v, want %v", info.Name, tt.poolName)
				}
				if info.State != "running" {
					t.Errorf("GetPoolInfo() state = %v, want running", info.State)
				}
				if !info.Autostart {
					t.Errorf("GetPoolInfo() autostart = false, want true after EnsurePool")
				}
				if info.Path != "/var/lib/libvirt/images/test" {
					t.Errorf("GetPoolInfo() path = %v, want /var/lib/libvirt/images/test", info.Path)
				}
			}
		})
	}
}

func TestManager_EnsureDefaultPool(t *testing.T) {
	mockClient := newMockLibvirtClient()
	mgr := NewManager(mockClient)

	if err := mgr.EnsureDefaultPool(context.Background()); err != nil {
		t.Fatalf("EnsureDefaultPool() error = %v", err)
	}

	if _, err := mockClient.StoragePoolLookupByName(DefaultPoolName); err != nil {
		t.Errorf("default pool not found after EnsureDefaultPool()")
	}
}

func TestManager_EnsureDefaultPoolActive(t *testing.T) {
	mockClient := newMockLibvirtClient()
	mgr := NewManager(mockClient)

	// Defined but inactive and not autostarting, the state Doctor repairs.
	if err := mgr.EnsureDefaultPool(context.Background()); err != nil {
		t.Fatalf("EnsureDefaultPool() error = %v", err)
	}
	p := mockClient.pools[DefaultPoolName]
	p.state = libvirt.StoragePoolInactive
	p.autostart = 0

	if err := mgr.EnsureDefaultPoolActive(context.Background()); err != nil {
		t.Fatalf("EnsureDefaultPoolActive() error = %v", err)
	}
	if p.state != libvirt.StoragePoolRunning {
		t.Errorf("default pool state = %v, want running", p.state)
	}
	if p.autostart == 0 {
		t.Errorf("default pool autostart not set")
	}

	// Idempotent on a healthy pool.
	if err := mgr.EnsureDefaultPoolActive(context.Background()); err != nil {
		t.Fatalf("second EnsureDefaultPoolActive() error = %v", err)
	}
}
