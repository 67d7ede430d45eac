package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs2hvh/cryptocloud/internal/domain"
	"github.com/cs2hvh/cryptocloud/internal/testutil"
)

func TestHostRepository_Save(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestHostRepository_Save")
	defer cleanup()

	repo := NewHostRepository(db)
	ctx := context.Background()

	host := domain.Host{
		Name:        "us-east-1",
		HostURL:     "https://pve1.example.com:8006",
		TokenID:     "api@pve!provisioner",
		TokenSecret: "secret",
		Node:        "pve1",
		Storage:     "local",
		Bridge:      "vmbr0",
		GatewayIP:   "10.0.0.1",
		Active:      true,
	}

	saved, err := repo.Save(ctx, host)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "us-east-1", saved.Name)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)
	assert.Equal(t, "https://pve1.example.com:8006", found.HostURL)
	assert.Equal(t, "pve1", found.Node)
	assert.True(t, found.Active)
}

func TestHostRepository_Save_RequiresCredentials(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestHostRepository_Save_RequiresCredentials")
	defer cleanup()

	repo := NewHostRepository(db)
	ctx := context.Background()

	_, err := repo.Save(ctx, domain.Host{
		Name:    "no-creds",
		HostURL: "https://pve1.example.com:8006",
		Node:    "pve1",
	})
	assert.ErrorIs(t, err, ErrInvalidEntity)

	// A bare token id without its secret is not a usable credential either.
	_, err = repo.Save(ctx, domain.Host{
		Name:    "half-token",
		HostURL: "https://pve1.example.com:8006",
		Node:    "pve1",
		TokenID: "api@pve!provisioner",
	})
	assert.ErrorIs(t, err, ErrInvalidEntity)

	// Username/password alone is fine.
	_, err = repo.Save(ctx, domain.Host{
		Name:     "password-only",
		HostURL:  "https://pve1.example.com:8006",
		Node:     "pve1",
		Username: "root@pam",
		Password: "hunter2",
	})
	assert.NoError(t, err)
}

func TestHostRepository_Update(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestHostRepository_Update")
	defer cleanup()

	repo := NewHostRepository(db)
	ctx := context.Background()

	saved, err := repo.Save(ctx, domain.Host{
		Name:        "us-east-1",
		HostURL:     "https://pve1.example.com:8006",
		TokenID:     "api@pve!provisioner",
		TokenSecret: "secret",
		Node:        "pve1",
		Active:      true,
	})
	require.NoError(t, err)

	saved.Name = "us-east-1b"
	saved.Active = false
	updated, err := repo.Save(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1b", updated.Name)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1b", found.Name)
	assert.False(t, found.Active)
}

func TestHostRepository_FindActive(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestHostRepository_FindActive")
	defer cleanup()

	repo := NewHostRepository(db)
	ctx := context.Background()

	active, err := repo.Save(ctx, domain.Host{
		Name: "active", HostURL: "https://a.example.com:8006", Node: "pve1",
		TokenID: "t", TokenSecret: "s", Active: true,
	})
	require.NoError(t, err)

	inactive, err := repo.Save(ctx, domain.Host{
		Name: "inactive", HostURL: "https://b.example.com:8006", Node: "pve2",
		TokenID: "t", TokenSecret: "s", Active: false,
	})
	require.NoError(t, err)

	hosts, err := repo.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, active.ID, hosts[0].ID)

	// A deactivated host must be unselectable for provisioning.
	_, err = repo.FindActiveByID(ctx, inactive.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := repo.FindActiveByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", found.Name)
}

func TestHostRepository_DeleteByID(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestHostRepository_DeleteByID")
	defer cleanup()

	repo := NewHostRepository(db)
	ctx := context.Background()

	saved, err := repo.Save(ctx, domain.Host{
		Name: "doomed", HostURL: "https://a.example.com:8006", Node: "pve1",
		TokenID: "t", TokenSecret: "s", Active: true,
	})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByID(ctx, saved.ID))

	_, err = repo.FindByID(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.DeleteByID(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}
