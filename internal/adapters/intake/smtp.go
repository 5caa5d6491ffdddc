// Package intake provides an SMTP delivery surface: every message received
// is treated as a file selection plus analyze action, and delivery can be
// refused when the normalized report comes back high risk.
package intake

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/core"
)

// ControllerFactory builds a fresh submission controller. Each message gets
// its own controller so the one-live-request rule holds per delivery.
type ControllerFactory func() *core.SubmissionController

// SMTPIntake accepts messages over SMTP and runs them through the
// submission pipeline.
type SMTPIntake struct {
	newController   ControllerFactory
	validator       *core.FileValidator
	logger          *zap.Logger
	listenAddr      string
	domain          string
	blockHighRisk   bool
	maxMessageBytes int64
	server          *smtp.Server
}

// NewSMTPIntake creates a new SMTP intake listener.
func NewSMTPIntake(
	newController ControllerFactory,
	validator *core.FileValidator,
	logger *zap.Logger,
	listenAddr string,
	domain string,
	blockHighRisk bool,
	maxMessageBytes int64,
) *SMTPIntake {
	return &SMTPIntake{
		newController:   newController,
		validator:       validator,
		logger:          logger,
		listenAddr:      listenAddr,
		domain:          domain,
		blockHighRisk:   blockHighRisk,
		maxMessageBytes: maxMessageBytes,
	}
}

// Start starts the SMTP listener.
func (i *SMTPIntake) Start() error {
	i.server = smtp.NewServer(&smtpBackend{intake: i})

	i.server.Addr = i.listenAddr
	i.server.Domain = i.domain
	i.server.ReadTimeout = 30 * time.Second
	i.server.WriteTimeout = 30 * time.Second
	i.server.MaxMessageBytes = i.maxMessageBytes
	i.server.MaxRecipients = 50
	i.server.AllowInsecureAuth = true

	i.logger.Info("SMTP intake starting", zap.String("address", i.listenAddr))

	go func() {
		if err := i.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				i.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the SMTP listener.
func (i *SMTPIntake) Stop() error {
	if i.server != nil {
		return i.server.Close()
	}
	return nil
}

// analyzeMessage runs one received message through the pipeline and returns
// the terminal snapshot.
func (i *SMTPIntake) analyzeMessage(data []byte) (core.Snapshot, error) {
	file := &core.SelectedFile{
		Name:        fmt.Sprintf("smtp-%s.eml", uuid.NewString()),
		Size:        int64(len(data)),
		ContentType: core.AcceptedContentType,
		Data:        data,
	}
	if err := i.validator.Validate(file); err != nil {
		return core.Snapshot{}, err
	}

	ctrl := i.newController()
	defer ctrl.Close()

	if _, err := ctrl.Submit(file); err != nil {
		return core.Snapshot{}, err
	}
	return ctrl.AwaitTerminal(context.Background())
}

type smtpBackend struct {
	intake *SMTPIntake
}

func (b *smtpBackend) NewSession(conn *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{intake: b.intake}, nil
}

type smtpSession struct {
	intake *SMTPIntake
	from   string
}

func (s *smtpSession) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *smtpSession) Rcpt(to string, opts *smtp.RcptOptions) error {
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read message data: %w", err)
	}

	snap, err := s.intake.analyzeMessage(data)
	if err != nil {
		s.intake.logger.Error("Failed to analyze received message",
			zap.String("sender", s.from),
			zap.Error(err))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 7, 1},
			Message:      "Analysis unavailable, try again later",
		}
	}

	switch snap.State {
	case core.StateCompleted:
		report := snap.Report
		if report.IsError() {
			s.intake.logger.Warn("Analysis service answered with an error",
				zap.String("sender", s.from),
				zap.String("message", report.ErrorMessage))
			return nil
		}
		s.intake.logger.Info("Message analyzed",
			zap.String("sender", s.from),
			zap.Int("overall_score", report.OverallScore),
			zap.String("risk_level", string(report.RiskLevel)),
			zap.Any("auth_results", report.AuthResults))
		if s.intake.blockHighRisk && report.RiskLevel == core.RiskHigh {
			return &smtp.SMTPError{
				Code:         554,
				EnhancedCode: smtp.EnhancedCode{5, 7, 1},
				Message:      "Message rejected as high phishing risk",
			}
		}
		return nil

	case core.StateTimedOut:
		s.intake.logger.Warn("Analysis timed out for received message",
			zap.String("sender", s.from))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 4, 1},
			Message:      "Analysis timed out, try again later",
		}

	default:
		s.intake.logger.Error("Analysis failed for received message",
			zap.String("sender", s.from),
			zap.String("message", snap.ErrorMessage))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 7, 1},
			Message:      "Analysis failed, try again later",
		}
	}
}

func (s *smtpSession) Reset() {
	s.from = ""
}

func (s *smtpSession) Logout() error {
	return nil
}
