package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/muhammadshahms/shoe-shop/internal/cache"
	"github.com/muhammadshahms/shoe-shop/internal/checkout"
	"github.com/muhammadshahms/shoe-shop/internal/config"
	"github.com/muhammadshahms/shoe-shop/internal/db"
	"github.com/muhammadshahms/shoe-shop/internal/events"
	"github.com/muhammadshahms/shoe-shop/internal/httpserver"
	"github.com/muhammadshahms/shoe-shop/internal/inventory"
	"github.com/muhammadshahms/shoe-shop/internal/logging"
	"github.com/muhammadshahms/shoe-shop/internal/metrics"
	loggingmw "github.com/muhammadshahms/shoe-shop/internal/middleware/logging"
	"github.com/muhammadshahms/shoe-shop/internal/repo"
	"github.com/muhammadshahms/shoe-shop/internal/search"
	"github.com/muhammadshahms/shoe-shop/internal/service"
)

func main() {
	cfg := config.Load()
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmptyBytes(cfg.JWTAccessSecret, "JWT_SECRET")

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)
	ctx := logging.IntoContext(context.Background(), logger)

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	gdb, err := db.Open(openCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	var (
		orderEvents   events.Publisher = events.Nop{}
		productEvents events.Publisher = events.Nop{}
		closers       []func() error
	)
	if len(cfg.KafkaBrokers) > 0 {
		op := events.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		pp := events.NewProducer(cfg.KafkaBrokers, cfg.ProductTopic)
		orderEvents, productEvents = op, pp
		closers = append(closers, op.Close, pp.Close)
	} else {
		logger.Warn("kafka_disabled", "reason", "KAFKA_BROKERS is empty")
	}

	var statuses cache.StatusCache = cache.Nop{}
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedis(cfg.RedisAddr)
		statuses = cache.NewRedisStatus(rdb)
		closers = append(closers, rdb.Close)
	} else {
		logger.Warn("redis_disabled", "reason", "REDIS_ADDR is empty")
	}

	m := metrics.New()
	r := repo.New(gdb)
	ledger := inventory.NewLedger()

	catalog := &service.CatalogService{Repo: r, Events: productEvents}
	if cfg.ESURL != "" {
		esClient, err := search.NewClient(ctx, search.ClientConfig{URL: cfg.ESURL, Username: cfg.ESUser, Password: cfg.ESPassword})
		if err != nil {
			logger.Error("es_unavailable", "error", err)
		} else {
			catalog.Index = search.NewIndex(esClient, cfg.ESIndex)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.CORS())

	httpserver.Register(e, &httpserver.Deps{
		DB:              gdb,
		CheckoutHandler: &httpserver.CheckoutHTTP{Coordinator: checkout.NewCoordinator(gdb, ledger, orderEvents, m)},
		OrderHandler:    &httpserver.OrderHTTP{Svc: service.NewOrderService(r, ledger, statuses, orderEvents, m)},
		CatalogHandler:  &httpserver.CatalogHTTP{Svc: catalog},
		AuthHandler:     &httpserver.AuthHTTP{Svc: &service.AuthService{Repo: r, JWTSecret: cfg.JWTAccessSecret}},
		JWTSecret:       cfg.JWTAccessSecret,
		Metrics:         m,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close_error", "error", err)
		}
	}
	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db_close_error", "error", err)
		}
	}

	logger.Info("shutdown_complete")
}
