package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL)`).Error)
	return conn
}

func TestBaseDBBindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)
	require.NotNil(t, withCtx.Statement)
	assert.Equal(t, ctx, withCtx.Statement.Context)

	//nolint:staticcheck
	assert.Same(t, db, base.DB(nil))
}

func TestBaseTransactionRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := base.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(`INSERT INTO notes (body) VALUES ('discarded')`).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, base.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Exec(`INSERT INTO notes (body) VALUES ('kept')`).Error
	}))

	var bodies []string
	require.NoError(t, db.Raw(`SELECT body FROM notes`).Scan(&bodies).Error)
	assert.Equal(t, []string{"kept"}, bodies)
}
