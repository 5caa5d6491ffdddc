// Package session exposes the contract consumed by the presentation layer:
// a view of the pipeline state plus the handlers it may invoke. Rendering
// itself lives outside this repository.
package session

import (
	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/core"
	"github.com/mailscope/mailscope/internal/theme"
)

// ViewState is what the presentation layer reads.
type ViewState struct {
	SelectedFile *core.SelectedFile
	IsLoading    bool
	ErrorMessage string
	RiskReport   *core.RiskReport
	CanRetry     bool
	DarkMode     bool
}

// Session binds the validator, the submission controller and the theme
// collaborator behind the presentation contract. One session exists per
// user.
type Session struct {
	validator  *core.FileValidator
	controller *core.SubmissionController
	theme      *theme.Manager
	logger     *zap.Logger
}

// New creates a new session.
func New(
	validator *core.FileValidator,
	controller *core.SubmissionController,
	themeManager *theme.Manager,
	logger *zap.Logger,
) *Session {
	return &Session{
		validator:  validator,
		controller: controller,
		theme:      themeManager,
		logger:     logger,
	}
}

// OnFileSelect validates the picked file and makes it the selection. A
// validation failure is returned inline and leaves the controller state
// untouched.
func (s *Session) OnFileSelect(file *core.SelectedFile) error {
	if err := s.validator.Validate(file); err != nil {
		s.logger.Debug("Rejected file selection", zap.Error(err))
		return err
	}
	s.controller.SelectFile(file)
	return nil
}

// OnAnalyze submits the selected file for analysis.
func (s *Session) OnAnalyze() error {
	_, err := s.controller.Submit(nil)
	return err
}

// OnRetry re-submits the selected file after a timeout.
func (s *Session) OnRetry() error {
	_, err := s.controller.Retry()
	return err
}

// OnDismissError clears the error banner.
func (s *Session) OnDismissError() {
	s.controller.DismissError()
}

// OnToggleTheme flips the dark-mode flag and returns the new value.
func (s *Session) OnToggleTheme() bool {
	return s.theme.Toggle()
}

// View returns the current view state.
func (s *Session) View() ViewState {
	snap := s.controller.Snapshot()
	return ViewState{
		SelectedFile: snap.SelectedFile,
		IsLoading:    snap.IsLoading,
		ErrorMessage: snap.ErrorMessage,
		RiskReport:   snap.Report,
		CanRetry:     snap.CanRetry,
		DarkMode:     s.theme.DarkMode(),
	}
}

// Updates exposes the controller's transition channel so the presentation
// layer can re-read the view after each change.
func (s *Session) Updates() <-chan struct{} {
	return s.controller.Updates()
}
