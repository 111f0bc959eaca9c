package dashboard

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type orderLister interface {
	ListAll(ctx context.Context) ([]orders.Order, error)
}

type productCounter interface {
	Counts(ctx context.Context) (total, featured int, err error)
}

type customerCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Stats is the admin overview.
type Stats struct {
	TotalOrders    int                       `json:"totalOrders"`
	OrdersByStatus map[enums.OrderStatus]int `json:"ordersByStatus"`
	Revenue        decimal.Decimal           `json:"revenue"`
	Products       int                       `json:"products"`
	Featured       int                       `json:"featured"`
	Customers      int64                     `json:"customers"`
	RecentOrders   []orders.Order            `json:"recentOrders"`
}

const recentOrders = 5

type Service struct {
	orders    orderLister
	products  productCounter
	customers customerCounter
}

func NewService(ordersSvc orderLister, products productCounter, customers customerCounter) (*Service, error) {
	if ordersSvc == nil || products == nil || customers == nil {
		return nil, fmt.Errorf("dashboard requires orders, products and customers sources")
	}
	return &Service{orders: ordersSvc, products: products, customers: customers}, nil
}

// Stats gathers the three sources concurrently. Revenue counts every order that was not
// cancelled, using each order's stored total.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var (
		list               []orders.Order
		products, featured int
		customers          int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = s.orders.ListAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		products, featured, err = s.products.Counts(gctx)
		return err
	})
	g.Go(func() error {
		n, err := s.customers.Count(gctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "count customers")
		}
		customers = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalOrders:    len(list),
		OrdersByStatus: make(map[enums.OrderStatus]int, len(enums.OrderStatuses())),
		Revenue:        decimal.Zero,
		Products:       products,
		Featured:       featured,
		Customers:      customers,
	}
	for _, status := range enums.OrderStatuses() {
		stats.OrdersByStatus[status] = 0
	}
	for _, o := range list {
		stats.OrdersByStatus[o.Status]++
		if o.Status != enums.OrderStatusCancelled {
			stats.Revenue = stats.Revenue.Add(o.Total)
		}
	}
	n := min(recentOrders, len(list))
	stats.RecentOrders = append([]orders.Order(nil), list[:n]...)
	return stats, nil
}
