package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestValidateDirRejectsBadFilenames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, ValidateDir(dir))
}

func TestValidateDirRejectsEmptyDir(t *testing.T) {
	assert.Error(t, ValidateDir(t.TempDir()))
	assert.Error(t, ValidateDir(""))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Order Notes!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_order_notes.sql"))

	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestRunRequiresDB(t *testing.T) {
	assert.Error(t, Run(context.Background(), nil, DefaultDir, "up"))
	assert.Error(t, MigrateToVersion(context.Background(), nil, DefaultDir, "20260105090000"))
}

func TestSchemaCarriesStorefrontConstraints(t *testing.T) {
	checks := map[string][]string{
		"*_create_user_addresses.sql": {
			"CREATE TABLE IF NOT EXISTS user_addresses",
			"CHECK (type IN ('shipping', 'billing'))",
			"ON user_addresses (user_id, type)",
			"WHERE is_default",
		},
		"*_create_orders.sql": {
			"CHECK (status IN ('processing', 'shipped', 'delivered', 'cancelled'))",
			"total NUMERIC(12,2) NOT NULL",
		},
		"*_create_admin_users.sql": {
			"CREATE OR REPLACE FUNCTION is_admin(user_id UUID)",
			"-- +goose StatementBegin",
		},
		"*_create_products.sql": {
			"CHECK (price >= 0)",
		},
	}

	for pattern, subs := range checks {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		require.NoError(t, err)
		require.Len(t, matches, 1, pattern)

		data, err := os.ReadFile(matches[0])
		require.NoError(t, err)
		for _, sub := range subs {
			assert.Contains(t, string(data), sub, pattern)
		}
	}
}
