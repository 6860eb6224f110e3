package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	"github.com/joao-fontenele/primeuro-storefront/internal/storefront"
	"github.com/joao-fontenele/primeuro-storefront/internal/telemetry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("8081")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront", cfg.ServiceVersion)
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

	vocab := cfg.Vocabulary()
	validator := orderform.NewValidator(cat)

	orderRepo := orders.NewOrderRepository(store, ready, vocab, logger)
	postRepo := posts.NewPostRepository(store, ready, cfg.CounterWrites, logger)
	reviewRepo := reviews.NewReviewRepository(store, ready, cat, cfg.CounterWrites, logger)

	handler := storefront.NewHandler(validator, orderRepo, publisher, vocab, logger)
	postHandler := posts.NewHandler(postRepo, validator, logger)
	reviewHandler := reviews.NewHandler(reviewRepo, validator, logger)
	healthHandler := health.NewHandler(ready, store, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /catalog", telemetry.WithHTTPRoute(handler.HandleCatalog))
	mux.HandleFunc("POST /quote", telemetry.WithHTTPRoute(handler.HandleQuote))
	mux.HandleFunc("POST /orders/steps/{step}/validate", telemetry.WithHTTPRoute(handler.HandleValidateStep))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(handler.HandleCreateOrder))
	mux.HandleFunc("GET /posts", telemetry.WithHTTPRoute(postHandler.HandlePublished))
	mux.HandleFunc("POST /posts/{id}/like", telemetry.WithHTTPRoute(postHandler.HandleLike))
	mux.HandleFunc("POST /posts/{id}/view", telemetry.WithHTTPRoute(postHandler.HandleView))
	mux.HandleFunc("GET /reviews", telemetry.WithHTTPRoute(reviewHandler.HandleApproved))
	mux.HandleFunc("GET /reviews/stats", telemetry.WithHTTPRoute(reviewHandler.HandleStats))
	mux.HandleFunc("POST /reviews", telemetry.WithHTTPRoute(reviewHandler.HandleSubmit))
	mux.HandleFunc("POST /reviews/{id}/helpful", telemetry.WithHTTPRoute(reviewHandler.HandleHelpful))
	mux.HandleFunc("GET /healthz", healthHandler.HandleHealth)
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.NewHTTPHandler(mux, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting storefront service", "port", cfg.Port, "store", cfg.StoreBackend, "status_schema", cfg.StatusSchema.String())
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
		unsubscribePosts, err := postRepo.Watch(ctx)
		if err != nil {
			logger.Error("failed to watch posts", "error", err)
			return
		}
		defer unsubscribePosts()
		unsubscribeReviews, err := reviewRepo.WatchApproved(ctx)
		if err != nil {
			logger.Error("failed to watch reviews", "error", err)
			return
		}
		defer unsubscribeReviews()
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
