package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/primeuro-storefront/internal/config"
	"github.com/joao-fontenele/primeuro-storefront/internal/messaging"
	"github.com/joao-fontenele/primeuro-storefront/internal/notifier"
	"github.com/joao-fontenele/primeuro-storefront/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("8085")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	kafkaBrokers := ""
	if len(cfg.KafkaBrokers) > 0 {
		kafkaBrokers = cfg.KafkaBrokers[0]
	}
	if err := config.Require(map[string]string{
		"KAFKA_BROKERS":     kafkaBrokers,
		"EMAIL_SERVICE_URL": cfg.EmailServiceURL,
	}); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "notifier", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("notifier", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, "order-notifier")
	defer func() { _ = consumer.Close() }()

	notificationHandler := notifier.NewNotificationHandler(cfg.EmailServiceURL, telemetry.NewHTTPClient(10*time.Second), logger)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() { _ = metricsServer.Close() }()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification worker", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)

	if err := consumer.Consume(ctx, notificationHandler.Handle); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
