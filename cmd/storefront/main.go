package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront/api/routes"
	"github.com/angelmondragon/storefront/internal/addresses"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/dashboard"
	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/internal/profiles"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/internal/wishlist"
	authsession "github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/instance"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/angelmondragon/storefront/pkg/notify"
	"github.com/angelmondragon/storefront/pkg/realtime"
	"github.com/angelmondragon/storefront/pkg/redis"
)

const (
	serviceName     = "storefront"
	shutdownTimeout = 10 * time.Second
	noticeCapacity  = 50
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "storefront stopped with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	storeMetrics := metrics.NewStorefront(reg)
	notices := notify.NewFeed(logg, noticeCapacity)

	sessions, err := authsession.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}
	provider, err := identity.NewProvider(identity.ProviderParams{
		Users:          identity.NewRepository(dbClient.DB()),
		Sessions:       sessions,
		Confirmations:  redisClient,
		Sender:         identity.LogSender{Logg: logg},
		Limiter:        redisClient,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		AuthConfig:     cfg.Auth,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	profileRepo := profiles.NewRepository(dbClient.DB())
	resolver, err := profiles.NewResolver(profiles.ResolverParams{
		Profiles: profileRepo,
		Writer:   profileRepo,
		Roles:    profiles.NewRoleStore(dbClient.DB(), cfg.DB.Driver == "postgres"),
		Metrics:  storeMetrics,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	store, err := session.New(session.Params{
		Auth:           provider,
		Resolver:       resolver,
		Notifier:       notices,
		Metrics:        storeMetrics,
		Logger:         logg,
		ResolveTimeout: cfg.Auth.ResolveTimeout,
	})
	if err != nil {
		return err
	}
	if err := store.Start(ctx); err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	addressBook, err := addresses.NewManager(addresses.NewRepository(dbClient.DB()), dbClient, storeMetrics, logg)
	if err != nil {
		return err
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Policy:   orders.PolicyFor(cfg.Orders.PermissiveStatus),
		Metrics:  storeMetrics,
		Notifier: notices,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	feed, err := realtime.NewProductFeed(redisClient, cfg.Realtime.ProductsChannel, logg)
	if err != nil {
		return err
	}
	catalog, err := products.NewCatalog(products.NewRepository(dbClient.DB()), feed, storeMetrics, logg)
	if err != nil {
		return err
	}

	wishlistSvc, err := wishlist.NewService(wishlist.ServiceParams{
		Repo:     wishlist.NewRepository(dbClient.DB()),
		Products: catalog,
	})
	if err != nil {
		return err
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Cart:      checkout.NewCart(),
		Products:  catalog,
		Addresses: addressBook,
		Orders:    orderSvc,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	dashboardSvc, err := dashboard.NewService(orderSvc, catalog, profileRepo)
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			DB:            dbClient,
			Redis:         redisClient,
			Gatherer:      reg,
			Session:       store,
			Confirmer:     provider,
			Addresses:     addressBook,
			Orders:        orderSvc,
			OrdersAdmin:   orderSvc,
			Products:      catalog,
			ProductsAdmin: catalog,
			Cart:          checkoutSvc,
			Wishlist:      wishlistSvc,
			Dashboard:     dashboardSvc,
			Notifications: notices,
		}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return catalog.Watch(gctx)
	})
	g.Go(func() error {
		watchSession(gctx, store, logg)
		return nil
	})
	g.Go(func() error {
		logg.Info(logg.WithFields(gctx, map[string]any{
			"env":      cfg.App.Env,
			"addr":     addr,
			"instance": instance.GetID(),
		}), "starting storefront bridge")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(shutdownCtx, "shutting down storefront bridge")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// watchSession logs every published session state until ctx ends.
func watchSession(ctx context.Context, store *session.Store, logg *logger.Logger) {
	states, unsubscribe := store.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			fields := map[string]any{"phase": st.Phase.String(), "is_admin": st.IsAdmin}
			if st.User != nil {
				fields["user_id"] = st.User.ID.String()
			}
			logg.Info(logg.WithFields(ctx, fields), "session state changed")
		}
	}
}
