package factory

import (
	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/adapters/analysis"
	"github.com/mailscope/mailscope/internal/config"
	"github.com/mailscope/mailscope/internal/core"
)

// AnalysisFactory creates analysis service clients
type AnalysisFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewAnalysisFactory creates a new analysis factory
func NewAnalysisFactory(cfg *config.Config, logger *zap.Logger) *AnalysisFactory {
	return &AnalysisFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateAnalysisClient creates a client for the configured endpoint
func (f *AnalysisFactory) CreateAnalysisClient() (core.AnalysisClient, error) {
	analysisCfg := f.cfg.GetAnalysis()
	return analysis.NewClient(analysisCfg.Endpoint, analysisCfg.HealthEndpoint, f.logger), nil
}
