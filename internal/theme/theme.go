// Package theme holds the process-wide dark-mode preference. It is
// initialized once from a persisted preference file (falling back to the
// configured default) and mutated only through Toggle; consumers receive the
// manager by injection instead of reading ambient state.
package theme

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

type preference struct {
	DarkMode bool `json:"dark_mode"`
}

// Manager owns the dark-mode flag and its persistence.
type Manager struct {
	mu        sync.RWMutex
	dark      bool
	statePath string
	logger    *zap.Logger
}

// NewManager loads the persisted preference from statePath, or uses
// defaultDark when no preference has been stored yet.
func NewManager(statePath string, defaultDark bool, logger *zap.Logger) *Manager {
	m := &Manager{
		dark:      defaultDark,
		statePath: statePath,
		logger:    logger,
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read theme preference", zap.Error(err))
		}
		return m
	}

	var pref preference
	if err := json.Unmarshal(data, &pref); err != nil {
		logger.Warn("Ignoring corrupt theme preference", zap.Error(err))
		return m
	}
	m.dark = pref.DarkMode
	return m
}

// DarkMode returns the current flag.
func (m *Manager) DarkMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dark
}

// Toggle flips the flag, persists it, and returns the new value.
func (m *Manager) Toggle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dark = !m.dark
	m.persistLocked()
	return m.dark
}

func (m *Manager) persistLocked() {
	data, err := json.Marshal(preference{DarkMode: m.dark})
	if err != nil {
		m.logger.Error("Failed to encode theme preference", zap.Error(err))
		return
	}
	if dir := filepath.Dir(m.statePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			m.logger.Error("Failed to create theme state directory", zap.Error(err))
			return
		}
	}
	if err := os.WriteFile(m.statePath, data, 0o644); err != nil {
		m.logger.Error("Failed to persist theme preference", zap.Error(err))
	}
}
