package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/primeuro-storefront/internal/config"
	"github.com/joao-fontenele/primeuro-storefront/internal/gateway"
	"github.com/joao-fontenele/primeuro-storefront/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("8080")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := config.Require(map[string]string{
		"STOREFRONT_SERVICE_URL": cfg.StorefrontServiceURL,
		"ADMIN_SERVICE_URL":      cfg.AdminServiceURL,
	}); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "gateway", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("gateway", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	httpClient := telemetry.NewHTTPClient(10 * time.Second)

	storefrontProxy := gateway.NewServiceProxy(cfg.StorefrontServiceURL, httpClient)
	adminProxy := gateway.NewServiceProxy(cfg.AdminServiceURL, httpClient)
	handler := gateway.NewHandler(storefrontProxy, adminProxy, logger)

	mux := http.NewServeMux()
	mux.HandleFunc(gateway.StorefrontPrefix+"/", telemetry.WithHTTPRoute(handler.HandleStorefront))
	mux.HandleFunc(gateway.AdminPrefix+"/", telemetry.WithHTTPRoute(handler.HandleAdmin))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.NewHTTPHandler(mux, "gateway"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting gateway service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
