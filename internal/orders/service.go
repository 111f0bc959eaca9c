package orders

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/notify"
	"github.com/angelmondragon/storefront/pkg/pagination"
	"github.com/angelmondragon/storefront/pkg/validate"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type statusObserver interface {
	IncOrderStatusChange(from, to string)
	IncRemoteFailure(op string)
}

// ServiceParams wires the order projector. Metrics, Notifier and Logger are optional; Policy
// defaults to the strict transition graph.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Policy   TransitionPolicy
	Metrics  statusObserver
	Notifier notify.Notifier
	Logger   *logger.Logger
}

// Service places orders, moves them through their statuses and keeps every loaded view of an
// order consistent with the last confirmed write.
type Service struct {
	repo     Repository
	tx       txRunner
	policy   TransitionPolicy
	metrics  statusObserver
	notifier notify.Notifier
	logg     *logger.Logger

	mu        sync.RWMutex
	byUser    map[uuid.UUID][]Order
	all       []Order
	allLoaded bool
	details   map[uuid.UUID]Order
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Policy == nil {
		p.Policy = StrictPolicy()
	}
	if p.Notifier == nil {
		p.Notifier = notify.Discard{}
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	return &Service{
		repo:     p.Repo,
		tx:       p.Tx,
		policy:   p.Policy,
		metrics:  p.Metrics,
		notifier: p.Notifier,
		logg:     p.Logger,
		byUser:   make(map[uuid.UUID][]Order),
		details:  make(map[uuid.UUID]Order),
	}, nil
}

// Create records a new order in the processing status. The total is stored exactly as
// submitted.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to place an order")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	row := input.toModel()
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, s.failure(ctx, "create", err)
	}
	order := fromModel(*row)

	s.mu.Lock()
	s.details[order.ID] = order
	if list, ok := s.byUser[order.UserID]; ok {
		s.byUser[order.UserID] = append([]Order{order}, list...)
	}
	if s.allLoaded {
		s.all = append([]Order{order}, s.all...)
	}
	s.mu.Unlock()

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"user_id":  order.UserID.String(),
		"items":    len(order.Items),
	}), "order placed")
	return &order, nil
}

// ListForUser loads the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to view orders")
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.failure(ctx, "list", err)
	}
	list := fromModels(rows)

	s.mu.Lock()
	s.byUser[userID] = list
	for _, o := range list {
		s.details[o.ID] = o
	}
	s.mu.Unlock()
	return append([]Order(nil), list...), nil
}

// ListAll loads every order for the admin view.
func (s *Service) ListAll(ctx context.Context) ([]Order, error) {
	rows, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, s.failure(ctx, "list_all", err)
	}
	list := fromModels(rows)

	s.mu.Lock()
	s.all = list
	s.allLoaded = true
	for _, o := range list {
		s.details[o.ID] = o
	}
	s.mu.Unlock()
	return append([]Order(nil), list...), nil
}

// ListPage returns one keyset page of all orders, newest first.
func (s *Service) ListPage(ctx context.Context, params pagination.Params) (pagination.Page[Order], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	page, err := s.repo.ListPage(ctx, params)
	if err != nil {
		return pagination.Page[Order]{}, s.failure(ctx, "list_page", err)
	}
	return pagination.Page[Order]{Items: fromModels(page.Items), NextCursor: page.NextCursor}, nil
}

// Get loads one order and refreshes any cached view of it.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	row, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, s.failure(ctx, "get", err)
	}
	order := fromModel(*row)
	s.patchViews(order)
	return &order, nil
}

// SetStatus moves an order to status once the backend confirms the write, then patches every
// cached list and detail holding it.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (*Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]string{"status": "must be one of processing, shipped, delivered, cancelled"})
	}

	var (
		order Order
		from  enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.Find(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		if from == status {
			order = fromModel(*current)
			return nil
		}
		if !s.policy.Allow(from, status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order cannot move from %s to %s", from, status)).
				WithDetails(map[string]string{"from": from.String(), "to": status.String()})
		}

		affected, err := repo.UpdateStatus(ctx, id, from, status)
		if err != nil {
			return err
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently; reload and retry")
		}
		updated, err := repo.Find(ctx, id)
		if err != nil {
			return err
		}
		order = fromModel(*updated)
		return nil
	})
	if err != nil {
		return nil, s.failure(ctx, "set_status", err)
	}

	s.patchViews(order)
	if from == status {
		return &order, nil
	}

	if s.metrics != nil {
		s.metrics.IncOrderStatusChange(from.String(), status.String())
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"from":     from.String(),
		"to":       status.String(),
	}), "order status updated")
	s.notifier.Notify(ctx, notify.Success("Order updated",
		fmt.Sprintf("Order %s is now %s", shortID(order.ID), Display(status).Label)))
	return &order, nil
}

// CachedForUser returns the user's last loaded order list.
func (s *Service) CachedForUser(userID uuid.UUID) ([]Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.byUser[userID]
	if !ok {
		return nil, false
	}
	return append([]Order(nil), list...), true
}

// CachedAll returns the last loaded admin list.
func (s *Service) CachedAll() ([]Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.allLoaded {
		return nil, false
	}
	return append([]Order(nil), s.all...), true
}

// CachedDetail returns the last loaded copy of one order.
func (s *Service) CachedDetail(id uuid.UUID) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.details[id]
	return o, ok
}

func (s *Service) patchViews(order Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[order.ID] = order
	if list, ok := s.byUser[order.UserID]; ok {
		replaceOrder(list, order)
	}
	if s.allLoaded {
		replaceOrder(s.all, order)
	}
}

func replaceOrder(list []Order, order Order) {
	for i := range list {
		if list[i].ID == order.ID {
			list[i] = order
			return
		}
	}
}

func (s *Service) failure(ctx context.Context, op string, err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	if db.IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
	}
	if s.metrics != nil {
		s.metrics.IncRemoteFailure(op + "_order")
	}
	s.logg.Error(ctx, "order operation failed", err)
	return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, strings.ReplaceAll(op, "_", " ")+" order")
}

func shortID(id uuid.UUID) string {
	return "#" + strings.ToUpper(id.String()[:8])
}
