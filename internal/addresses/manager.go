package addresses

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/validate"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultPerTypeConstraint = "user_addresses_default_per_type_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type mutationObserver interface {
	IncAddressMutation(op string)
	IncRemoteFailure(op string)
}

// Manager owns each user's address list and keeps one default address per type.
type Manager struct {
	repo    Repository
	tx      txRunner
	metrics mutationObserver
	logg    *logger.Logger

	mu    sync.RWMutex
	cache map[uuid.UUID][]Address
}

// NewManager builds an address manager. metrics and logg may be nil.
func NewManager(repo Repository, tx txRunner, metrics mutationObserver, logg *logger.Logger) (*Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Manager{
		repo:    repo,
		tx:      tx,
		metrics: metrics,
		logg:    logg,
		cache:   make(map[uuid.UUID][]Address),
	}, nil
}

// List fetches the user's addresses, default first, and refreshes the cache.
func (m *Manager) List(ctx context.Context, userID uuid.UUID) ([]Address, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to manage addresses")
	}
	return m.refresh(ctx, userID)
}

// Cached returns the last confirmed list for the user.
func (m *Manager) Cached(userID uuid.UUID) ([]Address, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list, ok := m.cache[userID]
	if !ok {
		return nil, false
	}
	return append([]Address(nil), list...), true
}

// Default returns the user's default address of the given type.
func (m *Manager) Default(ctx context.Context, userID uuid.UUID, typ enums.AddressType) (*Address, error) {
	if !typ.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid address type")
	}
	list, ok := m.Cached(userID)
	if !ok {
		var err error
		if list, err = m.List(ctx, userID); err != nil {
			return nil, err
		}
	}
	for _, addr := range list {
		if addr.Type == typ && addr.IsDefault {
			found := addr
			return &found, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no default %s address", typ))
}

// Add stores a new address. The first address of a type always becomes its default, and an
// explicit default clears the previous one before the insert.
func (m *Manager) Add(ctx context.Context, userID uuid.UUID, input AddressInput) (*Address, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to manage addresses")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	row := &models.UserAddress{
		ID:            uuid.New(),
		UserID:        userID,
		FullName:      input.FullName,
		StreetAddress: input.StreetAddress,
		City:          input.City,
		State:         input.State,
		PostalCode:    input.PostalCode,
		Country:       input.Country,
		Phone:         input.Phone,
		Type:          input.Type,
		IsDefault:     input.IsDefault != nil && *input.IsDefault,
	}

	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		count, err := repo.CountByType(ctx, userID, row.Type, uuid.Nil)
		if err != nil {
			return err
		}
		if count == 0 {
			row.IsDefault = true
		}
		if row.IsDefault {
			if err := repo.ClearDefaults(ctx, userID, row.Type, uuid.Nil); err != nil {
				return err
			}
		}
		return repo.Create(ctx, row)
	})
	if err != nil {
		return nil, m.writeFailure(ctx, "add", err)
	}
	m.mutated("add")

	created := fromModel(*row)
	if row.IsDefault {
		m.refreshAfterWrite(ctx, userID)
	} else {
		m.patchCache(userID, created)
	}
	return &created, nil
}

// Update applies patch to an address the user owns. Setting the default clears the other
// defaults of the (possibly new) type first; moving to another type competes under the add rule.
// A default address may only leave its type when it is the last address of that type.
func (m *Manager) Update(ctx context.Context, userID, id uuid.UUID, patch AddressPatch) (*Address, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to manage addresses")
	}
	if err := validate.Struct(patch); err != nil {
		return nil, err
	}

	var (
		row             *models.UserAddress
		defaultAffected bool
	)
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		existing, err := repo.Find(ctx, userID, id)
		if err != nil {
			return err
		}

		targetType := existing.Type
		if patch.Type != nil {
			targetType = *patch.Type
		}
		typeChanged := targetType != existing.Type

		wantDefault := existing.IsDefault
		if patch.IsDefault != nil {
			wantDefault = *patch.IsDefault
		}
		if !typeChanged && existing.IsDefault && !wantDefault {
			return pkgerrors.New(pkgerrors.CodeValidation, "the default address cannot be unset; choose another default instead").
				WithDetails(map[string]string{"isDefault": "set another address as default instead"})
		}
		if typeChanged && existing.IsDefault {
			left, err := repo.CountByType(ctx, userID, existing.Type, existing.ID)
			if err != nil {
				return err
			}
			if left > 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("the default %s address cannot change type; choose another default first", existing.Type)).
					WithDetails(map[string]string{"type": "set another " + existing.Type.String() + " address as default first"})
			}
		}
		if typeChanged {
			others, err := repo.CountByType(ctx, userID, targetType, existing.ID)
			if err != nil {
				return err
			}
			switch {
			case others == 0:
				wantDefault = true
			case patch.IsDefault == nil:
				wantDefault = false
			}
		}

		if wantDefault {
			if err := repo.ClearDefaults(ctx, userID, targetType, existing.ID); err != nil {
				return err
			}
		}

		defaultAffected = typeChanged || wantDefault != existing.IsDefault
		patch.apply(existing)
		existing.Type = targetType
		existing.IsDefault = wantDefault
		if err := repo.Save(ctx, existing); err != nil {
			return err
		}
		row = existing
		return nil
	})
	if err != nil {
		return nil, m.writeFailure(ctx, "update", err)
	}
	m.mutated("update")

	updated := fromModel(*row)
	if defaultAffected {
		m.refreshAfterWrite(ctx, userID)
	} else {
		m.patchCache(userID, updated)
	}
	return &updated, nil
}

// Remove deletes an address. Removing a default leaves its type without one; no other address is
// promoted.
func (m *Manager) Remove(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to manage addresses")
	}
	affected, err := m.repo.Delete(ctx, userID, id)
	if err != nil {
		return m.writeFailure(ctx, "remove", err)
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	m.mutated("remove")
	m.refreshAfterWrite(ctx, userID)
	return nil
}

func (m *Manager) refresh(ctx context.Context, userID uuid.UUID) ([]Address, error) {
	rows, err := m.repo.ListByUser(ctx, userID)
	if err != nil {
		m.failure("list")
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "list addresses")
	}
	list := fromModels(rows)
	m.mu.Lock()
	m.cache[userID] = list
	m.mu.Unlock()
	return append([]Address(nil), list...), nil
}

// refreshAfterWrite re-reads the list after a committed write. A failed read keeps the previous
// cache; the next List call repairs it.
func (m *Manager) refreshAfterWrite(ctx context.Context, userID uuid.UUID) {
	if _, err := m.refresh(ctx, userID); err != nil {
		m.logg.Warn(m.logg.WithFields(ctx, map[string]any{
			"user_id": userID.String(),
			"error":   err.Error(),
		}), "address list refresh failed after write")
	}
}

func (m *Manager) patchCache(userID uuid.UUID, addr Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.cache[userID]
	if !ok {
		return
	}
	for i := range list {
		if list[i].ID == addr.ID {
			list[i] = addr
			return
		}
	}
	m.cache[userID] = append(list, addr)
}

func (m *Manager) writeFailure(ctx context.Context, op string, err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	if db.IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "address not found")
	}
	if db.IsUniqueViolation(err, defaultPerTypeConstraint) || db.IsUniqueViolation(err, "user_addresses.user_id") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "another default address was saved concurrently")
	}
	m.failure(op)
	m.logg.Error(ctx, "address write failed", err)
	return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, op+" address")
}

func (m *Manager) mutated(op string) {
	if m.metrics != nil {
		m.metrics.IncAddressMutation(op)
	}
}

func (m *Manager) failure(op string) {
	if m.metrics != nil {
		m.metrics.IncRemoteFailure(op + "_address")
	}
}
