package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const (
	authRequestsPerSecond = 2
	authBurst             = 10
)

// Deps are the services the HTTP bridge exposes. Pingers may be nil.
type Deps struct {
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Gatherer prometheus.Gatherer

	Session       controllers.SessionStore
	Confirmer     controllers.EmailConfirmer
	Addresses     controllers.AddressBook
	Orders        controllers.OrderReader
	OrdersAdmin   controllers.OrderAdmin
	Products      controllers.ProductReader
	ProductsAdmin controllers.ProductWriter
	Cart          controllers.CartService
	Wishlist      controllers.Wishlist
	Dashboard     controllers.DashboardStats
	Notifications controllers.NotificationFeed
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	authLimiter := middleware.NewIPRateLimiter(authRequestsPerSecond, authBurst)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", controllers.SessionState(deps.Session))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(authLimiter, logg))
				r.Post("/login", controllers.SessionLogin(deps.Session, logg))
				r.Post("/signup", controllers.SessionSignup(deps.Session, logg))
				r.Post("/confirm", controllers.SessionConfirm(deps.Confirmer, logg))
			})
			r.Post("/logout", controllers.SessionLogout(deps.Session, logg))
			r.With(middleware.RequireSession(deps.Session, logg)).Patch("/profile", controllers.SessionUpdateProfile(deps.Session, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(deps.Products, logg))
			r.Get("/{productId}", controllers.ProductDetail(deps.Products, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(deps.Session, logg))

			r.Get("/notifications", controllers.Notifications(deps.Notifications))

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", controllers.AddressList(deps.Addresses, logg))
				r.Post("/", controllers.AddressCreate(deps.Addresses, logg))
				r.Patch("/{addressId}", controllers.AddressUpdate(deps.Addresses, logg))
				r.Delete("/{addressId}", controllers.AddressDelete(deps.Addresses, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.OrderList(deps.Orders, logg))
				r.Get("/{orderId}", controllers.OrderDetail(deps.Orders, logg))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(deps.Cart))
				r.Post("/", controllers.CartAdd(deps.Cart, logg))
				r.Delete("/", controllers.CartClear(deps.Cart))
				r.Patch("/{productId}", controllers.CartUpdate(deps.Cart, logg))
				r.Delete("/{productId}", controllers.CartRemove(deps.Cart, logg))
			})
			r.Post("/checkout", controllers.Checkout(deps.Cart, deps.Session, logg))

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", controllers.WishlistList(deps.Wishlist, logg))
				r.Post("/", controllers.WishlistAdd(deps.Wishlist, logg))
				r.Delete("/{productId}", controllers.WishlistRemove(deps.Wishlist, logg))
				r.Post("/{productId}/toggle", controllers.WishlistToggle(deps.Wishlist, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(deps.Session, logg))

		r.Get("/dashboard", controllers.AdminDashboard(deps.Dashboard, logg))
		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.AdminProductCreate(deps.ProductsAdmin, logg))
			r.Patch("/{productId}", controllers.AdminProductUpdate(deps.ProductsAdmin, logg))
			r.Delete("/{productId}", controllers.AdminProductDelete(deps.ProductsAdmin, logg))
		})
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminOrderList(deps.OrdersAdmin, logg))
			r.Get("/{orderId}", controllers.OrderDetail(deps.Orders, logg))
			r.Patch("/{orderId}/status", controllers.AdminOrderStatus(deps.OrdersAdmin, logg))
		})
	})

	return r
}
