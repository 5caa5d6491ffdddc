package di

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/adapters/intake"
	"github.com/mailscope/mailscope/internal/config"
	"github.com/mailscope/mailscope/internal/core"
	"github.com/mailscope/mailscope/internal/factory"
	"github.com/mailscope/mailscope/internal/logging"
	"github.com/mailscope/mailscope/internal/metrics"
	"github.com/mailscope/mailscope/internal/normalize"
	"github.com/mailscope/mailscope/internal/session"
	"github.com/mailscope/mailscope/internal/theme"
	"github.com/mailscope/mailscope/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register text processor and normalizer
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}
	if err := container.Provide(func(logger *zap.Logger, tp *utils.TextProcessor) core.ReportNormalizer {
		return normalize.New(logger, tp)
	}); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewAnalysisFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewIntakeFactory); err != nil {
		return nil, err
	}

	// Register analysis client
	if err := container.Provide(func(f *factory.AnalysisFactory) (core.AnalysisClient, error) {
		return f.CreateAnalysisClient()
	}); err != nil {
		return nil, err
	}

	// Register cache repository
	if err := container.Provide(func(f *factory.CacheFactory) (core.CacheRepository, error) {
		return f.CreateCacheRepository()
	}); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(prometheus.NewRegistry); err != nil {
		return nil, err
	}
	if err := container.Provide(func(reg *prometheus.Registry) core.PipelineMetrics {
		return metrics.NewPipeline(reg)
	}); err != nil {
		return nil, err
	}

	// Register validator and retry policy
	if err := container.Provide(core.NewFileValidator); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewRetryPolicy); err != nil {
		return nil, err
	}

	// Register controller factory; each delivery surface builds its own
	// controller so the one-live-request rule holds per surface.
	if err := container.Provide(func(
		cfg *config.Config,
		client core.AnalysisClient,
		normalizer core.ReportNormalizer,
		cacheRepo core.CacheRepository,
		retry *core.RetryPolicy,
		pipelineMetrics core.PipelineMetrics,
		logger *zap.Logger,
		cacheFactory *factory.CacheFactory,
	) (intake.ControllerFactory, error) {
		timeout, err := cfg.GetDuration("submission.timeout")
		if err != nil {
			return nil, fmt.Errorf("invalid submission timeout: %w", err)
		}
		cacheTTL, err := cacheFactory.GetCacheTTL()
		if err != nil {
			return nil, fmt.Errorf("invalid cache ttl: %w", err)
		}
		return func() *core.SubmissionController {
			return core.NewSubmissionController(
				client, normalizer, cacheRepo, retry, pipelineMetrics, logger, timeout, cacheTTL)
		}, nil
	}); err != nil {
		return nil, err
	}

	// Register the session controller
	if err := container.Provide(func(newController intake.ControllerFactory) *core.SubmissionController {
		return newController()
	}); err != nil {
		return nil, err
	}

	// Register theme collaborator
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *theme.Manager {
		themeCfg := cfg.GetTheme()
		return theme.NewManager(themeCfg.StatePath, themeCfg.DefaultDark, logger)
	}); err != nil {
		return nil, err
	}

	// Register session
	if err := container.Provide(session.New); err != nil {
		return nil, err
	}

	// Register SMTP intake
	if err := container.Provide(func(
		f *factory.IntakeFactory,
		newController intake.ControllerFactory,
		validator *core.FileValidator,
	) (*intake.SMTPIntake, error) {
		return f.CreateIntake(newController, validator)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
