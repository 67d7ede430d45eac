package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs2hvh/cryptocloud/internal/domain"
	"github.com/cs2hvh/cryptocloud/internal/testutil"
)

func testHost(t *testing.T, repo HostRepository) domain.Host {
	t.Helper()

	host, err := repo.Save(context.Background(), domain.Host{
		Name:       "us-east-1",
		HostURL:    "https://pve1.example.com:8006",
		TokenID:    "api@pve!provisioner",
		TokenSecret: "secret",
		Node:       "pve1",
		Storage:    "local",
		Bridge:     "vmbr0",
		GatewayIP:  "10.0.0.1",
		DNSPrimary: "8.8.8.8",
		Active:     true,
	})
	require.NoError(t, err)
	return host
}

func TestServerRepository_Reserve(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestServerRepository_Reserve")
	defer cleanup()

	hosts := NewHostRepository(db)
	repo := NewServerRepository(db)
	ctx := context.Background()
	host := testHost(t, hosts)

	saved, err := repo.Reserve(ctx, domain.Server{
		Node:   "pve1",
		Name:   "vm-test",
		IP:     "10.0.0.5",
		OS:     "Ubuntu 24.04 LTS",
		HostID: host.ID,
	})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, domain.StatusProvisioning, saved.Status)
	assert.Zero(t, saved.VMID)
}

func TestServerRepository_Reserve_DuplicateIP(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestServerRepository_Reserve_DuplicateIP")
	defer cleanup()

	hosts := NewHostRepository(db)
	repo := NewServerRepository(db)
	ctx := context.Background()
	host := testHost(t, hosts)

	_, err := repo.Reserve(ctx, domain.Server{Node: "pve1", Name: "vm-1", IP: "10.0.0.5", HostID: host.ID})
	require.NoError(t, err)

	// Second claim on the same address must lose to the unique constraint.
	_, err = repo.Reserve(ctx, domain.Server{Node: "pve1", Name: "vm-2", IP: "10.0.0.5", HostID: host.ID})
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestServerRepository_UsedIPs(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestServerRepository_UsedIPs")
	defer cleanup()

	hosts := NewHostRepository(db)
	repo := NewServerRepository(db)
	ctx := context.Background()
	host := testHost(t, hosts)

	used, err := repo.UsedIPs(ctx)
	require.NoError(t, err)
	assert.Empty(t, used)

	first, err := repo.Reserve(ctx, domain.Server{Node: "pve1", Name: "vm-1", IP: "10.0.0.5", HostID: host.ID})
	require.NoError(t, err)
	second, err := repo.Reserve(ctx, domain.Server{Node: "pve1", Name: "vm-2", IP: "10.0.0.6", HostID: host.ID})
	require.NoError(t, err)

	// A failed record still occupies its address.
	require.NoError(t, repo.MarkFailed(ctx, second.ID, "clone failed"))

	used, err = repo.UsedIPs(ctx)
	require.NoError(t, err)
	assert.True(t, used["10.0.0.5"])
	assert.True(t, used["10.0.0.6"])
	assert.Len(t, used, 2)

	// Deleting a record releases its address.
	require.NoError(t, repo.DeleteByID(ctx, first.ID))
	used, err = repo.UsedIPs(ctx)
	require.NoError(t, err)
	assert.False(t, used["10.0.0.5"])
}

func TestServerRepository_MarkFailed(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestServerRepository_MarkFailed")
	defer cleanup()

	hosts := NewHostRepository(db)
	repo := NewServerRepository(db)
	ctx := context.Background()
	host := testHost(t, hosts)

	saved, err := repo.Reserve(ctx, domain.Server{Node: "pve1", Name: "vm-1", IP: "10.0.0.5", HostID: host.ID})
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed(ctx, saved.ID, "task failed: ERROR: no space"))

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, found.Status)
	assert.Equal(t, "task failed: ERROR: no space", found.Error)

	err = repo.MarkFailed(ctx, 99999, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServerRepository_Finalize(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestServerRepository_Finalize")
	defer cleanup()

	hosts := NewHostRepository(db)
	repo := NewServerRepository(db)
	ctx := context.Background()
	host := testHost(t, hosts)

	saved, err := repo.Reserve(ctx, domain.Server{Node: "pve1", Name: "vm-1", IP: "10.0.0.5", HostID: host.ID})
	require.NoError(t, err)

	require.NoError(t, repo.Finalize(ctx, saved.ID, 105, "running", `{"status":"running"}`))

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 105, found.VMID)
	assert.Equal(t, "running", found.Status)
	assert.Equal(t, `{"status":"running"}`, found.Details)
	assert.Empty(t, found.Error)
}

func TestServerRepository_FindByOwnerID(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestServerRepository_FindByOwnerID")
	defer cleanup()

	hosts := NewHostRepository(db)
	repo := NewServerRepository(db)
	ctx := context.Background()
	host := testHost(t, hosts)

	_, err := repo.Reserve(ctx, domain.Server{Node: "pve1", Name: "vm-1", IP: "10.0.0.5", HostID: host.ID, OwnerID: "user-1"})
	require.NoError(t, err)
	_, err = repo.Reserve(ctx, domain.Server{Node: "pve1", Name: "vm-2", IP: "10.0.0.6", HostID: host.ID, OwnerID: "user-2"})
	require.NoError(t, err)

	servers, err := repo.FindByOwnerID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "vm-1", servers[0].Name)
}

func TestServerRepository_FindByIP(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestServerRepository_FindByIP")
	defer cleanup()

	hosts := NewHostRepository(db)
	repo := NewServerRepository(db)
	ctx := context.Background()
	host := testHost(t, hosts)

	_, err := repo.Reserve(ctx, domain.Server{Node: "pve1", Name: "vm-1", IP: "10.0.0.5", HostID: host.ID})
	require.NoError(t, err)

	found, err := repo.FindByIP(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "vm-1", found.Name)

	_, err = repo.FindByIP(ctx, "10.0.0.99")
	assert.ErrorIs(t, err, ErrNotFound)
}
