package addresses

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupAddressTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, conn.Exec(`
CREATE TABLE user_addresses (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  full_name TEXT NOT NULL,
  street_address TEXT NOT NULL,
  city TEXT NOT NULL,
  state TEXT NOT NULL,
  postal_code TEXT NOT NULL,
  country TEXT NOT NULL,
  phone TEXT,
  is_default BOOLEAN NOT NULL DEFAULT false,
  type TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	require.NoError(t, conn.Exec(`
CREATE UNIQUE INDEX user_addresses_default_per_type_key
  ON user_addresses (user_id, type) WHERE is_default;`).Error)
	return conn
}

type countingTx struct {
	inner *db.Client
	calls int
}

func (c *countingTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	c.calls++
	return c.inner.WithTx(ctx, fn)
}

type flakyRepo struct {
	Repository
	failList bool
}

func (r *flakyRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error) {
	if r.failList {
		return nil, errors.New("connection reset by peer")
	}
	return r.Repository.ListByUser(ctx, userID)
}

type managerFixture struct {
	manager *Manager
	repo    *flakyRepo
	tx      *countingTx
}

func newManagerFixture(t *testing.T) managerFixture {
	t.Helper()
	conn := setupAddressTestDB(t)
	repo := &flakyRepo{Repository: NewRepository(conn)}
	tx := &countingTx{inner: db.Wrap(conn)}
	manager, err := NewManager(repo, tx, nil, nil)
	require.NoError(t, err)
	return managerFixture{manager: manager, repo: repo, tx: tx}
}

func input(name string, typ enums.AddressType, isDefault *bool) AddressInput {
	return AddressInput{
		FullName:      name,
		StreetAddress: "1 Main St",
		City:          "Springfield",
		State:         "IL",
		PostalCode:    "62701",
		Country:       "US",
		IsDefault:     isDefault,
		Type:          typ,
	}
}

func boolPtr(v bool) *bool { return &v }

func defaultsByType(list []Address) map[enums.AddressType]int {
	out := map[enums.AddressType]int{}
	for _, addr := range list {
		if addr.IsDefault {
			out[addr.Type]++
		}
	}
	return out
}

func countByType(list []Address) map[enums.AddressType]int {
	out := map[enums.AddressType]int{}
	for _, addr := range list {
		out[addr.Type]++
	}
	return out
}

// assertSingleDefaultPerType checks that every type with addresses has exactly one default.
// Types in orphaned lost their default through removal and may have none.
func assertSingleDefaultPerType(t *testing.T, list []Address, orphaned map[enums.AddressType]bool) {
	t.Helper()
	defaults := defaultsByType(list)
	for typ, n := range countByType(list) {
		if orphaned[typ] {
			assert.LessOrEqual(t, defaults[typ], 1, "type %s has %d defaults", typ, defaults[typ])
			continue
		}
		assert.Equal(t, 1, defaults[typ], "type %s has %d addresses and %d defaults", typ, n, defaults[typ])
	}
}

func findByID(list []Address, id uuid.UUID) Address {
	for _, addr := range list {
		if addr.ID == id {
			return addr
		}
	}
	return Address{}
}

func TestAddFirstOfTypeBecomesDefault(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := fx.manager.Add(ctx, userID, input("Home", enums.AddressTypeShipping, nil))
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	billing, err := fx.manager.Add(ctx, userID, input("Office", enums.AddressTypeBilling, boolPtr(false)))
	require.NoError(t, err)
	assert.True(t, billing.IsDefault, "first billing address is forced default even when false was requested")

	second, err := fx.manager.Add(ctx, userID, input("Cabin", enums.AddressTypeShipping, nil))
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	cached, ok := fx.manager.Cached(userID)
	require.True(t, ok)
	require.Len(t, cached, 3)
	assert.Equal(t, map[enums.AddressType]int{enums.AddressTypeShipping: 1, enums.AddressTypeBilling: 1}, defaultsByType(cached))
}

func TestAddExplicitDefaultSwitchesDefault(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	a, err := fx.manager.Add(ctx, userID, input("A", enums.AddressTypeShipping, nil))
	require.NoError(t, err)
	b, err := fx.manager.Add(ctx, userID, input("B", enums.AddressTypeShipping, boolPtr(true)))
	require.NoError(t, err)
	assert.True(t, b.IsDefault)

	list, err := fx.manager.List(ctx, userID)
	require.NoError(t, err)
	assert.False(t, findByID(list, a.ID).IsDefault)
	assert.True(t, findByID(list, b.ID).IsDefault)
	assert.Equal(t, b.ID, list[0].ID, "default is listed first")
}

func TestUpdateSetDefaultClearsPrevious(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	a, err := fx.manager.Add(ctx, userID, input("A", enums.AddressTypeShipping, nil))
	require.NoError(t, err)
	b, err := fx.manager.Add(ctx, userID, input("B", enums.AddressTypeShipping, nil))
	require.NoError(t, err)
	require.False(t, b.IsDefault)

	updated, err := fx.manager.Update(ctx, userID, b.ID, AddressPatch{IsDefault: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)

	cached, _ := fx.manager.Cached(userID)
	assert.False(t, findByID(cached, a.ID).IsDefault)
	assert.True(t, findByID(cached, b.ID).IsDefault)
}

func TestUpdateUnsettingDefaultIsRejected(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	a, err := fx.manager.Add(ctx, userID, input("A", enums.AddressTypeShipping, nil))
	require.NoError(t, err)

	_, err = fx.manager.Update(ctx, userID, a.ID, AddressPatch{IsDefault: boolPtr(false)})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	list, err := fx.manager.List(ctx, userID)
	require.NoError(t, err)
	assert.True(t, findByID(list, a.ID).IsDefault)
}

func TestUpdateTypeChangeCompetesInNewGroup(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	ship, err := fx.manager.Add(ctx, userID, input("Ship", enums.AddressTypeShipping, nil))
	require.NoError(t, err)
	bill, err := fx.manager.Add(ctx, userID, input("Bill", enums.AddressTypeBilling, nil))
	require.NoError(t, err)

	billing := enums.AddressTypeBilling
	moved, err := fx.manager.Update(ctx, userID, ship.ID, AddressPatch{Type: &billing})
	require.NoError(t, err)
	assert.Equal(t, enums.AddressTypeBilling, moved.Type)
	assert.False(t, moved.IsDefault, "the billing group already has a default")

	cached, _ := fx.manager.Cached(userID)
	assert.True(t, findByID(cached, bill.ID).IsDefault)
	assert.Zero(t, countByType(cached)[enums.AddressTypeShipping])
	assertSingleDefaultPerType(t, cached, nil)

	shipping := enums.AddressTypeShipping
	back, err := fx.manager.Update(ctx, userID, moved.ID, AddressPatch{Type: &shipping})
	require.NoError(t, err)
	assert.True(t, back.IsDefault, "an empty group makes the moved address its default")
}

func TestUpdateDefaultCannotLeaveTypeWithOtherAddresses(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := fx.manager.Add(ctx, userID, input("Ship 1", enums.AddressTypeShipping, nil))
	require.NoError(t, err)
	require.True(t, first.IsDefault)
	_, err = fx.manager.Add(ctx, userID, input("Ship 2", enums.AddressTypeShipping, nil))
	require.NoError(t, err)

	billing := enums.AddressTypeBilling
	_, err = fx.manager.Update(ctx, userID, first.ID, AddressPatch{Type: &billing})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	list, err := fx.manager.List(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, map[enums.AddressType]int{enums.AddressTypeShipping: 2}, countByType(list))
	assertSingleDefaultPerType(t, list, nil)

	def, err := fx.manager.Default(ctx, userID, enums.AddressTypeShipping)
	require.NoError(t, err)
	assert.Equal(t, first.ID, def.ID)
}

func TestUpdateTypeChangeWithExplicitDefault(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := fx.manager.Add(ctx, userID, input("Ship", enums.AddressTypeShipping, nil))
	require.NoError(t, err)
	second, err := fx.manager.Add(ctx, userID, input("Ship 2", enums.AddressTypeShipping, nil))
	require.NoError(t, err)
	bill, err := fx.manager.Add(ctx, userID, input("Bill", enums.AddressTypeBilling, nil))
	require.NoError(t, err)

	billing := enums.AddressTypeBilling
	moved, err := fx.manager.Update(ctx, userID, second.ID, AddressPatch{Type: &billing, IsDefault: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, moved.IsDefault)

	cached, _ := fx.manager.Cached(userID)
	assert.False(t, findByID(cached, bill.ID).IsDefault)
	assert.Equal(t, map[enums.AddressType]int{enums.AddressTypeShipping: 1, enums.AddressTypeBilling: 1}, defaultsByType(cached))
}

func TestUpdatePlainFieldsPatchesCache(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	a, err := fx.manager.Add(ctx, userID, input("A", enums.AddressTypeShipping, nil))
	require.NoError(t, err)

	fx.repo.failList = true
	city := "Shelbyville"
	updated, err := fx.manager.Update(ctx, userID, a.ID, AddressPatch{City: &city})
	require.NoError(t, err)
	assert.Equal(t, "Shelbyville", updated.City)

	cached, ok := fx.manager.Cached(userID)
	require.True(t, ok)
	assert.Equal(t, "Shelbyville", findByID(cached, a.ID).City)
}

func TestRemoveDefaultDoesNotPromote(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	a, err := fx.manager.Add(ctx, userID, input("A", enums.AddressTypeShipping, nil))
	require.NoError(t, err)
	b, err := fx.manager.Add(ctx, userID, input("B", enums.AddressTypeShipping, nil))
	require.NoError(t, err)

	require.NoError(t, fx.manager.Remove(ctx, userID, a.ID))

	cached, _ := fx.manager.Cached(userID)
	require.Len(t, cached, 1)
	assert.Equal(t, b.ID, cached[0].ID)
	assert.False(t, cached[0].IsDefault)

	_, err = fx.manager.Default(ctx, userID, enums.AddressTypeShipping)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestNotFoundForMissingOrForeignAddress(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	stranger := uuid.New()

	a, err := fx.manager.Add(ctx, owner, input("A", enums.AddressTypeShipping, nil))
	require.NoError(t, err)

	city := "Elsewhere"
	_, err = fx.manager.Update(ctx, stranger, a.ID, AddressPatch{City: &city})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	err = fx.manager.Remove(ctx, stranger, a.ID)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	err = fx.manager.Remove(ctx, owner, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestValidationHappensBeforeAnyWrite(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	bad := input("  ", enums.AddressType("warehouse"), nil)
	_, err := fx.manager.Add(ctx, userID, bad)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "fullName")
	assert.Contains(t, details, "type")

	blank := ""
	_, err = fx.manager.Update(ctx, userID, uuid.New(), AddressPatch{City: &blank})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.Zero(t, fx.tx.calls)
}

func TestListFailureLeavesCacheUntouched(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := fx.manager.Add(ctx, userID, input("A", enums.AddressTypeShipping, nil))
	require.NoError(t, err)
	before, _ := fx.manager.Cached(userID)

	fx.repo.failList = true
	_, err = fx.manager.List(ctx, userID)
	assert.Equal(t, pkgerrors.CodeRemoteUnavailable, pkgerrors.CodeOf(err))

	after, ok := fx.manager.Cached(userID)
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestDefaultHelper(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	a, err := fx.manager.Add(ctx, userID, input("A", enums.AddressTypeShipping, nil))
	require.NoError(t, err)

	def, err := fx.manager.Default(ctx, userID, enums.AddressTypeShipping)
	require.NoError(t, err)
	assert.Equal(t, a.ID, def.ID)

	_, err = fx.manager.Default(ctx, userID, enums.AddressTypeBilling)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = fx.manager.Default(ctx, userID, enums.AddressType("bogus"))
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestRandomSequencesKeepSingleDefaultPerType(t *testing.T) {
	fx := newManagerFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	rng := rand.New(rand.NewSource(42))
	types := []enums.AddressType{enums.AddressTypeShipping, enums.AddressTypeBilling}

	var (
		ids      []uuid.UUID
		current  []Address
		orphaned = map[enums.AddressType]bool{}
	)
	for step := 0; step < 60; step++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(ids) == 0:
			var isDefault *bool
			if rng.Intn(2) == 0 {
				isDefault = boolPtr(rng.Intn(2) == 0)
			}
			addr, err := fx.manager.Add(ctx, userID, input(fmt.Sprintf("addr-%d", step), types[rng.Intn(2)], isDefault))
			require.NoError(t, err)
			ids = append(ids, addr.ID)
		case op == 1:
			id := ids[rng.Intn(len(ids))]
			before := findByID(current, id)
			patch := AddressPatch{}
			if rng.Intn(2) == 0 {
				typ := types[rng.Intn(2)]
				patch.Type = &typ
			}
			if rng.Intn(2) == 0 {
				patch.IsDefault = boolPtr(true)
			}
			_, err := fx.manager.Update(ctx, userID, id, patch)
			leavesType := patch.Type != nil && *patch.Type != before.Type
			if before.IsDefault && leavesType && countByType(current)[before.Type] > 1 {
				require.Error(t, err)
				assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
			} else {
				require.NoError(t, err)
			}
		default:
			idx := rng.Intn(len(ids))
			removed := findByID(current, ids[idx])
			require.NoError(t, fx.manager.Remove(ctx, userID, ids[idx]))
			ids = append(ids[:idx], ids[idx+1:]...)
			if removed.IsDefault {
				orphaned[removed.Type] = true
			}
		}

		list, err := fx.manager.List(ctx, userID)
		require.NoError(t, err)
		defaults, counts := defaultsByType(list), countByType(list)
		for _, typ := range types {
			if counts[typ] == 0 || defaults[typ] == 1 {
				orphaned[typ] = false
			}
		}
		assertSingleDefaultPerType(t, list, orphaned)
		current = list
	}
}
