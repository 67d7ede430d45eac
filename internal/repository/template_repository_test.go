package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs2hvh/cryptocloud/internal/domain"
	"github.com/cs2hvh/cryptocloud/internal/testutil"
)

func TestTemplateRepository_Save(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestTemplateRepository_Save")
	defer cleanup()

	hosts := NewHostRepository(db)
	repo := NewTemplateRepository(db)
	ctx := context.Background()
	host := testHost(t, hosts)

	saved, err := repo.Save(ctx, domain.Template{
		HostID: host.ID,
		Name:   "Ubuntu 24.04 LTS",
		VMID:   9000,
		Active: true,
	})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ubuntu 24.04 LTS", found.Name)
	assert.Equal(t, 9000, found.VMID)
}

func TestTemplateRepository_FindActiveByName(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestTemplateRepository_FindActiveByName")
	defer cleanup()

	hosts := NewHostRepository(db)
	repo := NewTemplateRepository(db)
	ctx := context.Background()
	host := testHost(t, hosts)

	_, err := repo.Save(ctx, domain.Template{HostID: host.ID, Name: "Ubuntu 24.04 LTS", VMID: 9000, Active: true})
	require.NoError(t, err)

	// The OS label match is case-insensitive.
	found, err := repo.FindActiveByName(ctx, host.ID, "ubuntu 24.04 lts")
	require.NoError(t, err)
	assert.Equal(t, 9000, found.VMID)

	_, err = repo.FindActiveByName(ctx, host.ID, "Debian 12")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTemplateRepository_FindActiveByName_SkipsInactive(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestTemplateRepository_FindActiveByName_SkipsInactive")
	defer cleanup()

	hosts := NewHostRepository(db)
	repo := NewTemplateRepository(db)
	ctx := context.Background()
	host := testHost(t, hosts)

	_, err := repo.Save(ctx, domain.Template{HostID: host.ID, Name: "Ubuntu 24.04 LTS", VMID: 9000, Active: false})
	require.NoError(t, err)

	_, err = repo.FindActiveByName(ctx, host.ID, "Ubuntu 24.04 LTS")
	assert.ErrorIs(t, err, ErrNotFound)

	// Reactivating makes it resolvable again.
	_, err = repo.Save(ctx, domain.Template{ID: 1, HostID: host.ID, Name: "Ubuntu 24.04 LTS", VMID: 9000, Active: true})
	require.NoError(t, err)

	found, err := repo.FindActiveByName(ctx, host.ID, "Ubuntu 24.04 LTS")
	require.NoError(t, err)
	assert.Equal(t, 9000, found.VMID)
}

func TestTemplateRepository_FindByHostID(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestTemplateRepository_FindByHostID")
	defer cleanup()

	hosts := NewHostRepository(db)
	repo := NewTemplateRepository(db)
	ctx := context.Background()
	host := testHost(t, hosts)

	_, err := repo.Save(ctx, domain.Template{HostID: host.ID, Name: "Ubuntu 24.04 LTS", VMID: 9000, Active: true})
	require.NoError(t, err)
	_, err = repo.Save(ctx, domain.Template{HostID: host.ID, Name: "Debian 12", VMID: 9001, Active: true})
	require.NoError(t, err)

	templates, err := repo.FindByHostID(ctx, host.ID)
	require.NoError(t, err)
	assert.Len(t, templates, 2)
}

func TestTemplateRepository_DeleteByID(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestTemplateRepository_DeleteByID")
	defer cleanup()

	hosts := NewHostRepository(db)
	repo := NewTemplateRepository(db)
	ctx := context.Background()
	host := testHost(t, hosts)

	saved, err := repo.Save(ctx, domain.Template{HostID: host.ID, Name: "Ubuntu 24.04 LTS", VMID: 9000, Active: true})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByID(ctx, saved.ID))
	_, err = repo.FindByID(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.DeleteByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}
