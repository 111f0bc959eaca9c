package wishlist

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront/internal/products"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/pagination"
	"github.com/google/uuid"
)

type productLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*products.Product, error)
}

// ServiceParams groups dependencies for the wishlist service.
type ServiceParams struct {
	Repo     *Repository
	Products productLookup
}

// Service exposes the per-user liked products.
type Service struct {
	repo     *Repository
	products productLookup
}

// NewService builds a wishlist service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("wishlist repo is required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product lookup is required")
	}
	return &Service{repo: params.Repo, products: params.Products}, nil
}

// Add likes a product. Adding twice is a no-op.
func (s *Service) Add(ctx context.Context, userID, productID uuid.UUID) error {
	if err := s.check(ctx, userID, productID); err != nil {
		return err
	}
	if err := s.repo.AddItem(ctx, userID, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "add wishlist item")
	}
	return nil
}

// Remove drops the like regardless of prior state.
func (s *Service) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to use the wishlist")
	}
	if _, err := s.repo.RemoveItem(ctx, userID, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "remove wishlist item")
	}
	return nil
}

// Toggle flips the like and returns whether the product is now liked.
func (s *Service) Toggle(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to use the wishlist")
	}
	removed, err := s.repo.RemoveItem(ctx, userID, productID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "toggle wishlist item")
	}
	if removed {
		return false, nil
	}
	if err := s.Add(ctx, userID, productID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Contains(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	ok, err := s.repo.Contains(ctx, userID, productID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "load wishlist")
	}
	return ok, nil
}

// IDs returns every liked product id, most recent first.
func (s *Service) IDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to use the wishlist")
	}
	ids, err := s.repo.ListAllIDs(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "load wishlist")
	}
	return ids, nil
}

func (s *Service) Page(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[uuid.UUID], error) {
	if userID == uuid.Nil {
		return pagination.Page[uuid.UUID]{}, pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to use the wishlist")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[uuid.UUID]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	page, err := s.repo.ListItemIDs(ctx, userID, params)
	if err != nil {
		return pagination.Page[uuid.UUID]{}, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "load wishlist")
	}
	return page, nil
}

func (s *Service) check(ctx context.Context, userID, productID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to use the wishlist")
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if _, err := s.products.Get(ctx, productID); err != nil {
		return err
	}
	return nil
}
