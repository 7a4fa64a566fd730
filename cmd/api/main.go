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
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/api/routes"
	"github.com/angelmondragon/marketplace-backend/internal/auth"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/categories"
	"github.com/angelmondragon/marketplace-backend/internal/coupons"
	"github.com/angelmondragon/marketplace-backend/internal/notifications"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/reviews"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	"github.com/angelmondragon/marketplace-backend/pkg/auth/session"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/env"
	"github.com/angelmondragon/marketplace-backend/pkg/events"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
	"github.com/angelmondragon/marketplace-backend/pkg/security"
	"github.com/angelmondragon/marketplace-backend/pkg/storage"
	"github.com/angelmondragon/marketplace-backend/pkg/storage/gcs"
	"github.com/angelmondragon/marketplace-backend/pkg/storage/local"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}

	store, uploadsDir, err := newObjectStore(ctx, cfg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap object storage", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bus := events.NewBus(logg, metrics.NewBusMetrics(registry))

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	hasher := security.NewHasher(cfg.Password)
	userRepo := users.NewRepository(conn)
	productRepo := product.NewRepository(conn)
	categoryRepo := categories.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	var productCache product.ListCache
	if cfg.FeatureFlags.ProductCache {
		productCache = product.NewRedisListCache(redisClient, cfg.Cache.ProductListTTL, logg)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Users:     userRepo,
		Hasher:    hasher,
		Sessions:  sessionManager,
		JWTConfig: cfg.JWT,
		Logger:    logg,
	})
	exitOnErr(ctx, logg, "failed to create auth service", err)

	userService, err := users.NewService(users.ServiceParams{Repo: userRepo, Hasher: hasher})
	exitOnErr(ctx, logg, "failed to create user service", err)

	categoryService, err := categories.NewService(categoryRepo)
	exitOnErr(ctx, logg, "failed to create category service", err)

	productService, err := product.NewService(product.ServiceParams{
		Repo:         productRepo,
		Categories:   categoryRepo,
		TxRunner:     dbClient,
		Store:        store,
		ImageBaseURL: imageBaseURL(cfg, store),
		MaxImages:    cfg.Storage.MaxImages,
		Cache:        productCache,
		Events:       bus,
		Outbox:       outboxSvc,
		Logger:       logg,
	})
	exitOnErr(ctx, logg, "failed to create product service", err)

	cartService, err := cart.NewService(cart.ServiceParams{
		Repo:     cartRepo,
		TxRunner: dbClient,
		Products: func(tx *gorm.DB) cart.ProductReader { return product.NewRepository(tx) },
	})
	exitOnErr(ctx, logg, "failed to create cart service", err)

	couponService, err := coupons.NewService(coupons.NewRepository(conn))
	exitOnErr(ctx, logg, "failed to create coupon service", err)

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:         orderRepo,
		Carts:        cartRepo,
		Coupons:      couponService,
		TxRunner:     dbClient,
		Stock:        func(tx *gorm.DB) orders.StockWriter { return product.NewRepository(tx) },
		Gateway:      payments.NewSimulator(cfg.Payment.SimulatedDelay),
		Outbox:       outboxSvc,
		Events:       bus,
		ProductCache: productCache,
		Metrics:      metrics.NewOrderMetrics(registry),
		Logger:       logg,
	})
	exitOnErr(ctx, logg, "failed to create order service", err)

	reviewService, err := reviews.NewService(reviews.ServiceParams{
		Repo:         reviews.NewRepository(conn),
		Products:     productRepo,
		Purchases:    orderRepo,
		TxRunner:     dbClient,
		Events:       bus,
		ProductCache: productCache,
	})
	exitOnErr(ctx, logg, "failed to create review service", err)

	notificationService, err := notifications.NewService(notifications.NewRepository(conn))
	exitOnErr(ctx, logg, "failed to create notification service", err)
	notifications.RegisterListeners(bus, notificationService, logg)

	handler := routes.NewRouter(routes.Params{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		RedisPinger:   redisClient,
		Sessions:      sessionManager,
		HTTPMetrics:   metrics.NewHTTPMetrics(registry),
		Gatherer:      registry,
		UploadsDir:    uploadsDir,
		Auth:          authService,
		Users:         userService,
		Products:      productService,
		Categories:    categoryService,
		Cart:          cartService,
		Orders:        orderService,
		Reviews:       reviewService,
		Notifications: notificationService,
		Coupons:       couponService,
	})

	addr := ":" + env.Get("PORT", cfg.App.Port)
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"storage": cfg.Storage.Driver,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(logg.Detach(logCtx), shutdownTimeout)
	defer cancel()
	err = multierr.Combine(
		server.Shutdown(shutdownCtx),
		bus.Close(shutdownCtx),
		redisClient.Close(),
		dbClient.Close(),
	)
	if err != nil {
		logg.Error(shutdownCtx, "shutdown finished with errors", err)
		exitCode = 1
	} else {
		logg.Info(shutdownCtx, "api server stopped")
	}
	os.Exit(exitCode)
}

// newObjectStore returns the image store and, for local storage, the directory to serve.
func newObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, string, error) {
	if cfg.Storage.UsesGCS() {
		client, err := gcs.New(ctx, cfg.Storage, cfg.GCP)
		if err != nil {
			return nil, "", err
		}
		return client, "", nil
	}
	store, err := local.New(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		return nil, "", err
	}
	return store, store.Root(), nil
}

func imageBaseURL(cfg *config.Config, store storage.ObjectStore) string {
	if client, ok := store.(*gcs.Client); ok {
		return client.PublicURL("")
	}
	return cfg.Storage.PublicBaseURL
}

func exitOnErr(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err != nil {
		logg.Error(ctx, msg, err)
		os.Exit(1)
	}
}
