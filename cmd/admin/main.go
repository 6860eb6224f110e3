package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/primeuro-storefront/internal/cache"
	"github.com/joao-fontenele/primeuro-storefront/internal/catalog"
	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
	"github.com/joao-fontenele/primeuro-storefront/internal/config"
	"github.com/joao-fontenele/primeuro-storefront/internal/docstore"
	"github.com/joao-fontenele/primeuro-storefront/internal/health"
	"github.com/joao-fontenele/primeuro-storefront/internal/messaging"
	"github.com/joao-fontenele/primeuro-storefront/internal/orderform"
	"github.com/joao-fontenele/primeuro-storefront/internal/orders"
	"github.com/joao-fontenele/primeuro-storefront/internal/posts"
	"github.com/joao-fontenele/primeuro-storefront/internal/reviews"
	"github.com/joao-fontenele/primeuro-storefront/internal/telemetry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("8082")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "admin", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("admin", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			logger.Error("failed to load catalog", "error", err, "path", cfg.CatalogPath)
			os.Exit(1)
		}
	}

	store, err := docstore.Open(cfg.StoreBackend, cfg.PostgresURL, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ready := collection.Init(ctx, cfg.StoreReady, store.Ping, logger)

	var publisher orders.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = producer.Close() }()
		publisher = producer
	}

	var statsCache orders.StatsCache
	redisClient, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("stats cache disabled", "error", err)
	} else if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		statsCache = cache.New(redisClient, "admin:", cfg.StatsCacheTTL)
	}

	vocab := cfg.Vocabulary()
	validator := orderform.NewValidator(cat)

	orderRepo := orders.NewOrderRepository(store, ready, vocab, logger)
	postRepo := posts.NewPostRepository(store, ready, cfg.CounterWrites, logger)
	reviewRepo := reviews.NewReviewRepository(store, ready, cat, cfg.CounterWrites, logger)

	orderHandler := orders.NewHandler(orderRepo, publisher, statsCache, vocab, cfg.Location, logger)
	postHandler := posts.NewHandler(postRepo, validator, logger)
	reviewHandler := reviews.NewHandler(reviewRepo, validator, logger)
	healthHandler := health.NewHandler(ready, store, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(orderHandler.HandleList))
	mux.HandleFunc("GET /orders/stats", telemetry.WithHTTPRoute(orderHandler.HandleStats))
	mux.HandleFunc("GET /orders/vocabulary", telemetry.WithHTTPRoute(orderHandler.HandleVocabulary))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(orderHandler.HandleUpdateStatus))
	mux.HandleFunc("GET /posts", telemetry.WithHTTPRoute(postHandler.HandleList))
	mux.HandleFunc("POST /posts", telemetry.WithHTTPRoute(postHandler.HandleCreate))
	mux.HandleFunc("PUT /posts/{id}", telemetry.WithHTTPRoute(postHandler.HandleUpdate))
	mux.HandleFunc("DELETE /posts/{id}", telemetry.WithHTTPRoute(postHandler.HandleDelete))
	mux.HandleFunc("GET /reviews", telemetry.WithHTTPRoute(reviewHandler.HandleList))
	mux.HandleFunc("POST /reviews", telemetry.WithHTTPRoute(reviewHandler.HandleCompose))
	mux.HandleFunc("PATCH /reviews/{id}/approval", telemetry.WithHTTPRoute(reviewHandler.HandleSetApproval))
	mux.HandleFunc("DELETE /reviews/{id}", telemetry.WithHTTPRoute(reviewHandler.HandleDelete))
	mux.HandleFunc("GET /healthz", healthHandler.HandleHealth)
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.NewHTTPHandler(mux, "admin"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting admin service", "port", cfg.Port, "store", cfg.StoreBackend, "status_schema", cfg.StatusSchema.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		if err := ready.Wait(ctx); err != nil {
			logger.Error("store never became ready", "error", err)
			os.Exit(1)
		}
		watches := []func(context.Context) (docstore.Unsubscribe, error){
			orderRepo.Watch,
			postRepo.Watch,
			reviewRepo.Watch,
		}
		for _, watch := range watches {
			unsubscribe, err := watch(ctx)
			if err != nil {
				logger.Error("failed to watch collection", "error", err)
				continue
			}
			defer unsubscribe()
		}
		<-ctx.Done()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
