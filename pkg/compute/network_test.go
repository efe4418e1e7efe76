package compute

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkStore_ConfigureVPN(t *testing.T) {
	ctx := context.Background()
	store := NewNetworkStore(newTestDB(t))
	require.NoError(t, store.Upsert(ctx, Network{ID: "net-1", ProjectID: "proj-a", Label: "private", CIDR: "10.0.0.0/24"}))
	require.NoError(t, store.Upsert(ctx, Network{ID: "net-2", ProjectID: "proj-a", Label: "db", CIDR: "10.0.1.0/24"}))
	require.NoError(t, store.Upsert(ctx, Network{ID: "net-3", ProjectID: "proj-b", Label: "private", CIDR: "10.1.0.0/24"}))

	require.NoError(t, store.ConfigureVPN(ctx, "proj-a", "203.0.113.7", 1194))

	nets, err := store.ListByProject(ctx, "proj-a")
	require.NoError(t, err)
	require.Len(t, nets, 2)
	for _, n := range nets {
		assert.Equal(t, "203.0.113.7", n.VPNPublicAddress, n.ID)
		assert.Equal(t, 1194, n.VPNPublicPort, n.ID)
	}

	other, err := store.ListByProject(ctx, "proj-b")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Empty(t, other[0].VPNPublicAddress)

	t.Run("same endpoint twice", func(t *testing.T) {
		assert.NoError(t, store.ConfigureVPN(ctx, "proj-a", "203.0.113.7", 1194))
	})
	t.Run("project without networks", func(t *testing.T) {
		assert.NoError(t, store.ConfigureVPN(ctx, "proj-empty", "203.0.113.8", 1195))
	})
}

func TestFloatingIPStore_ListGet(t *testing.T) {
	ctx := context.Background()
	store := NewFloatingIPStore(newTestDB(t))
	require.NoError(t, store.Upsert(ctx, FloatingIP{ID: "fip-2", IP: "198.51.100.20", ProjectID: "proj-a"}))
	require.NoError(t, store.Upsert(ctx, FloatingIP{ID: "fip-1", IP: "198.51.100.10", ProjectID: "proj-a",
		InstanceID: "vm-1", FixedIP: "10.0.0.5", Pool: "public"}))
	require.NoError(t, store.Upsert(ctx, FloatingIP{ID: "fip-3", IP: "198.51.100.30", ProjectID: "proj-b"}))

	ips, err := store.List(ctx, "proj-a")
	require.NoError(t, err)
	require.Len(t, ips, 2)
	assert.Equal(t, "198.51.100.10", ips[0].IP)
	assert.Equal(t, "vm-1", ips[0].InstanceID)
	assert.Equal(t, "198.51.100.20", ips[1].IP)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := store.Get(ctx, "proj-a", "fip-1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", got.FixedIP)

	_, err = store.Get(ctx, "proj-a", "fip-3")
	assert.ErrorIs(t, err, ErrFloatingIPNotFound)
	_, err = store.Get(ctx, "proj-a", "missing")
	assert.ErrorIs(t, err, ErrFloatingIPNotFound)
}

func TestFixtures_ApplyNetworks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
networks:
  - id: net-1
    projectId: proj-a
    label: private
    cidr: 10.0.0.0/24
floatingIps:
  - id: fip-1
    ip: 198.51.100.10
    projectId: proj-a
    instanceId: vm-1
    fixedIp: 10.0.0.5
`), 0o600))

	f, err := LoadFixtures(path)
	require.NoError(t, err)

	ctx := context.Background()
	db := newTestDB(t)
	networks, ips := NewNetworkStore(db), NewFloatingIPStore(db)
	require.NoError(t, f.ApplyNetworks(ctx, networks, ips))
	require.NoError(t, f.ApplyNetworks(ctx, networks, ips))

	nets, err := networks.ListByProject(ctx, "proj-a")
	require.NoError(t, err)
	require.Len(t, nets, 1)
	assert.Equal(t, "10.0.0.0/24", nets[0].CIDR)

	got, err := ips.Get(ctx, "proj-a", "fip-1")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.10", got.IP)
}
