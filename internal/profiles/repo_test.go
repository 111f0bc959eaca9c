package profiles

import (
	"context"
	"fmt"
	"testing"

	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupProfilesTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, conn.Exec(`
CREATE TABLE profiles (
  id TEXT PRIMARY KEY,
  email TEXT,
  name TEXT,
  phone TEXT,
  date_of_birth TEXT,
  gender TEXT,
  avatar_url TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	require.NoError(t, conn.Exec(`
CREATE TABLE admin_users (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL,
  created_at DATETIME
);`).Error)
	return conn
}

func TestRepositoryFindAndUpsert(t *testing.T) {
	ctx := context.Background()
	repository := NewRepository(setupProfilesTestDB(t))
	id := uuid.New()

	_, err := repository.Find(ctx, id)
	require.Error(t, err)
	assert.True(t, db.IsNotFound(err))

	require.NoError(t, repository.Upsert(ctx, &models.Profile{ID: id, Name: strPtr("First")}))
	require.NoError(t, repository.Upsert(ctx, &models.Profile{ID: id, Name: strPtr("Second"), Phone: strPtr("555")}))

	found, err := repository.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Second", *found.Name)
	assert.Equal(t, "555", *found.Phone)

	count, err := repository.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRoleStoreGrantRevoke(t *testing.T) {
	ctx := context.Background()
	roles := NewRoleStore(setupProfilesTestDB(t), false)
	userID := uuid.New()

	admin, err := roles.IsAdmin(ctx, userID)
	require.NoError(t, err)
	assert.False(t, admin)

	require.NoError(t, roles.Grant(ctx, userID, " Admin@Example.com "))
	require.NoError(t, roles.Grant(ctx, userID, "admin@example.com"))

	admin, err = roles.IsAdmin(ctx, userID)
	require.NoError(t, err)
	assert.True(t, admin)

	require.NoError(t, roles.Revoke(ctx, userID))
	admin, err = roles.IsAdmin(ctx, userID)
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestResolverOverSQLite(t *testing.T) {
	ctx := context.Background()
	conn := setupProfilesTestDB(t)
	repository := NewRepository(conn)
	roles := NewRoleStore(conn, false)

	resolver, err := NewResolver(ResolverParams{Profiles: repository, Writer: repository, Roles: roles})
	require.NoError(t, err)

	user := newTestUser()
	require.NoError(t, roles.Grant(ctx, user.ID, user.Email))
	user.Metadata.Name = strPtr("Jane Doe")
	require.NoError(t, resolver.Save(ctx, user))

	res, err := resolver.Resolve(ctx, user)
	require.NoError(t, err)
	assert.True(t, res.IsAdmin)
	assert.Equal(t, "Jane Doe", res.Profile.Name)
	assert.False(t, res.Profile.Synthesized)
}
