package factory

import (
	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/adapters/intake"
	"github.com/mailscope/mailscope/internal/config"
	"github.com/mailscope/mailscope/internal/core"
)

// IntakeFactory creates the SMTP intake surface
type IntakeFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewIntakeFactory creates a new intake factory
func NewIntakeFactory(cfg *config.Config, logger *zap.Logger) *IntakeFactory {
	return &IntakeFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateIntake creates the SMTP intake listener. Returns nil when the
// intake surface is disabled.
func (f *IntakeFactory) CreateIntake(
	newController intake.ControllerFactory,
	validator *core.FileValidator,
) (*intake.SMTPIntake, error) {
	intakeCfg := f.cfg.GetIntake()
	if !intakeCfg.Enabled {
		return nil, nil
	}

	return intake.NewSMTPIntake(
		newController,
		validator,
		f.logger,
		intakeCfg.ListenAddress,
		intakeCfg.Domain,
		intakeCfg.BlockHighRisk,
		int64(intakeCfg.MaxMessageBytes),
	), nil
}
