package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/betadomot/storefront/api/routes"
	"github.com/betadomot/storefront/internal/cart"
	"github.com/betadomot/storefront/internal/checkout"
	"github.com/betadomot/storefront/internal/orders"
	"github.com/betadomot/storefront/internal/pricing"
	product "github.com/betadomot/storefront/internal/products"
	"github.com/betadomot/storefront/internal/wishlist"
	"github.com/betadomot/storefront/pkg/backend"
	"github.com/betadomot/storefront/pkg/config"
	"github.com/betadomot/storefront/pkg/events"
	"github.com/betadomot/storefront/pkg/kv"
	"github.com/betadomot/storefront/pkg/logger"
	"github.com/betadomot/storefront/pkg/metrics"
)

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
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.close())
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cartMetrics := metrics.NewCartMetrics(reg)
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)

	backendClient, err := backend.NewClient(cfg.Backend, backend.WithLogger(logg))
	if err != nil {
		return err
	}
	products, err := product.NewService(backendClient, cfg.Backend)
	if err != nil {
		return err
	}
	rules, err := pricing.RulesFromConfig(cfg.Pricing)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	locks := kv.NewLocks()

	cartStore, err := cart.NewStore(store.kv, hub, cfg.Storage.CacheSize, logg, cartMetrics)
	if err != nil {
		return err
	}
	wishlistStore, err := wishlist.NewStore(store.kv, hub, cfg.Storage.CacheSize, logg, cartMetrics)
	if err != nil {
		return err
	}

	cartService, err := cart.NewService(cart.Deps{
		Store:    cartStore,
		Wishlist: wishlistStore,
		Backing:  store.kv,
		Products: products,
		Locks:    locks,
		Rules:    rules,
		Logger:   logg,
		Metrics:  cartMetrics,
	})
	if err != nil {
		return err
	}
	wishlistService, err := wishlist.NewService(wishlistStore, products, locks, cartMetrics)
	if err != nil {
		return err
	}

	submitter, err := orders.NewSubmitter(cfg.Checkout, backendClient)
	if err != nil {
		return err
	}
	checkoutService, err := checkout.NewService(checkout.Deps{
		Cart:      cartService,
		Submitter: submitter,
		Config:    cfg.Checkout,
		Logger:    logg,
		Metrics:   checkoutMetrics,
	})
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":            cfg.App.Env,
		"addr":           addr,
		"storage_driver": cfg.Storage.Driver,
		"submit_mode":    cfg.Checkout.SubmitMode,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Cart:        cartService,
			Wishlist:    wishlistService,
			Checkout:    checkoutService,
			Idempotency: store.idempotency,
			Ready:       store.ready,
			Metrics:     reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return multierr.Append(err, server.Close())
	}
	return nil
}
