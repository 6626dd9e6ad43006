package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-appstatus/internal/ansible"
	"github.com/kubilitics/kubilitics-appstatus/internal/api/middleware"
	"github.com/kubilitics/kubilitics-appstatus/internal/api/rest"
	"github.com/kubilitics/kubilitics-appstatus/internal/api/websocket"
	"github.com/kubilitics/kubilitics-appstatus/internal/config"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/logger"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/statuscache"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/tracing"
	"github.com/kubilitics/kubilitics-appstatus/internal/search"
	"github.com/kubilitics/kubilitics-appstatus/internal/service"
	"github.com/kubilitics/kubilitics-appstatus/internal/topology"
)

const serviceName = "kubilitics-appstatus"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	shutdownTracing, err := tracing.Init(context.Background(), tracing.Options{
		ServiceName:  serviceName,
		Endpoint:     cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing()

	searchClient, err := search.NewClient(search.ClientConfig{
		URL:             cfg.SearchURL,
		Token:           cfg.SearchToken,
		Timeout:         time.Duration(cfg.SearchTimeoutSec) * time.Second,
		RateLimitPerSec: cfg.SearchRateLimitPerSec,
		RateLimitBurst:  cfg.SearchRateLimitBurst,
		RetryAttempts:   cfg.SearchRetryAttempts,
	}, log)
	if err != nil {
		return fmt.Errorf("search client: %w", err)
	}

	var jobs ansible.JobLookup
	if cfg.AnsibleLookupEnabled {
		dyn, err := ansible.NewDynamicClient(cfg.KubeconfigPath, "")
		if err != nil {
			log.Warn("ansiblejob lookup disabled: no hub client", zap.Error(err))
		} else {
			jobs = ansible.NewLookup(dyn, log)
		}
	}

	engine := topology.NewEngine(searchClient, jobs, topology.Options{
		Hub:      cfg.HubClusterName,
		MaxItems: cfg.SearchMaxItems,
	}, log)
	cache := statuscache.New(cfg.StatusCacheSize, time.Duration(cfg.StatusCacheTTLSec)*time.Second)
	statusService := service.NewAppStatusService(engine, cache, cfg.HubClusterName, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := mux.NewRouter()
	router.Use(middleware.Tracing, middleware.RequestID, middleware.StructuredLog(log.Named("http")), middleware.MaxBodySize(middleware.DefaultMaxBodyBytes))
	rest.SetupRoutes(router, rest.NewHandler(statusService, log))
	wsHandler := websocket.NewHandler(ctx, statusService, time.Duration(cfg.PollIntervalSec)*time.Second, cfg.AllowedOrigins, log)
	router.HandleFunc("/ws/topology/status", wsHandler.ServeWS)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "traceparent", middleware.ResponseRequestIDHeader},
		ExposedHeaders:   []string{middleware.ResponseRequestIDHeader, middleware.TraceIDHeader},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.Int("port", cfg.Port),
			zap.String("hub", cfg.HubClusterName),
			zap.String("search_url", cfg.SearchURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
	return nil
}
