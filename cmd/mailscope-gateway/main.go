package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/adapters/intake"
	"github.com/mailscope/mailscope/internal/config"
	"github.com/mailscope/mailscope/internal/core"
	"github.com/mailscope/mailscope/internal/di"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	smtpIntake *intake.SMTPIntake,
	client core.AnalysisClient,
	cacheRepo core.CacheRepository,
	registry *prometheus.Registry,
) error {
	defer logger.Sync()

	// Probe the analysis service before accepting mail
	probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := client.Health(probeCtx); err != nil {
		logger.Warn("Analysis service health probe failed", zap.Error(err))
	} else {
		logger.Info("Analysis service is healthy")
	}
	cancel()

	if smtpIntake == nil {
		logger.Fatal("SMTP intake is disabled; nothing to serve")
	}
	if err := smtpIntake.Start(); err != nil {
		logger.Fatal("Failed to start SMTP intake", zap.Error(err))
		return err
	}

	// Expose pipeline metrics
	var metricsServer *http.Server
	metricsCfg := cfg.GetMetrics()
	if metricsCfg.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: metricsCfg.ListenAddress, Handler: mux}
		go func() {
			logger.Info("Metrics endpoint starting", zap.String("address", metricsCfg.ListenAddress))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if err := smtpIntake.Stop(); err != nil {
		logger.Error("Failed to stop SMTP intake", zap.Error(err))
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
		cancel()
	}

	// Stop the cache cleanup task if needed
	if stopper, ok := cacheRepo.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	logger.Info("Shutdown complete")
	return nil
}
