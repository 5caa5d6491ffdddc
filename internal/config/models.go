package config

import "os"

// AnalysisConfig represents the configuration for the analysis service
type AnalysisConfig struct {
	Endpoint       string
	HealthEndpoint string
}

// SubmissionConfig represents the configuration for the submission pipeline
type SubmissionConfig struct {
	Timeout string
}

// CacheConfig represents the configuration for the result cache
type CacheConfig struct {
	Type             string
	Enabled          bool
	TTL              string
	CleanupFrequency string
}

// IntakeConfig represents the configuration for the SMTP intake surface
type IntakeConfig struct {
	Enabled         bool
	ListenAddress   string
	Domain          string
	BlockHighRisk   bool
	MaxMessageBytes int
}

// MetricsConfig represents the configuration for the metrics endpoint
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
}

// ThemeConfig represents the configuration for the theme collaborator
type ThemeConfig struct {
	DefaultDark bool
	StatePath   string
}

// GetAnalysis returns the analysis service configuration
func (c *Config) GetAnalysis() AnalysisConfig {
	return AnalysisConfig{
		Endpoint:       c.GetString("analysis.endpoint"),
		HealthEndpoint: c.GetString("analysis.health_endpoint"),
	}
}

// GetSubmission returns the submission pipeline configuration
func (c *Config) GetSubmission() SubmissionConfig {
	return SubmissionConfig{
		Timeout: c.GetString("submission.timeout"),
	}
}

// GetCache returns the result cache configuration
func (c *Config) GetCache() CacheConfig {
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		Enabled:          c.GetBool("cache.enabled"),
		TTL:              c.GetString("cache.ttl"),
		CleanupFrequency: c.GetString("cache.cleanup_frequency"),
	}
}

// GetIntake returns the SMTP intake configuration
func (c *Config) GetIntake() IntakeConfig {
	return IntakeConfig{
		Enabled:         c.GetBool("intake.enabled"),
		ListenAddress:   c.GetString("intake.listen_address"),
		Domain:          c.GetString("intake.domain"),
		BlockHighRisk:   c.GetBool("intake.block_high_risk"),
		MaxMessageBytes: c.GetInt("intake.max_message_bytes"),
	}
}

// GetMetrics returns the metrics endpoint configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		Enabled:       c.GetBool("metrics.enabled"),
		ListenAddress: c.GetString("metrics.listen_address"),
	}
}

// GetTheme returns the theme configuration with the state path expanded
func (c *Config) GetTheme() ThemeConfig {
	return ThemeConfig{
		DefaultDark: c.GetBool("theme.default_dark"),
		StatePath:   os.ExpandEnv(c.GetString("theme.state_path")),
	}
}
