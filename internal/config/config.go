// Package config loads and validates the attendctl configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Portal      PortalConfig      `yaml:"portal"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Session     SessionConfig     `yaml:"session"`
	COA         COAConfig         `yaml:"coa"`
	Listen      ListenConfig      `yaml:"listen"`
	Log         LogConfig         `yaml:"log"`
}

// PortalConfig defines how to reach the HR portal and its identity provider
type PortalConfig struct {
	BaseURL         string  `yaml:"base_url"`         // Portal entry URL (e.g., "https://engie.hrhub.ph/")
	SSOHost         string  `yaml:"sso_host"`         // Identity provider host the entry URL must redirect to
	DashboardPath   string  `yaml:"dashboard_path"`   // Authenticated landing page path
	DashboardMarker string  `yaml:"dashboard_marker"` // Text present only on the authenticated dashboard
	LoginFormID     string  `yaml:"login_form_id"`    // Element id of the provider's login form
	FeedbackClass   string  `yaml:"feedback_class"`   // CSS class of the provider's error feedback element
	UserAgent       string  `yaml:"user_agent"`       // User-Agent sent on every request
	TimeoutSeconds  int     `yaml:"timeout_seconds"`  // Per-request HTTP timeout
	RequestsPerSec  float64 `yaml:"requests_per_sec"` // Outbound pacing toward the portal
}

// CredentialsConfig holds the portal principal. The secret should normally
// come from the environment override rather than the file.
type CredentialsConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SessionConfig defines where session tokens are persisted between runs
type SessionConfig struct {
	File string `yaml:"file"` // Path of the persisted session file
}

// COAConfig defines the certificate-of-attendance endpoints and defaults
type COAConfig struct {
	ValidatePath    string `yaml:"validate_path"`    // Validation (duplicate-check) endpoint path
	SavePath        string `yaml:"save_path"`        // Commit endpoint path
	DefaultReason   string `yaml:"default_reason"`   // Remarks when none is given
	DefaultCategory string `yaml:"default_category"` // "Others" category label when none is given
}

// ListenConfig defines where the serve-mode daemon listens
type ListenConfig struct {
	Socket string `yaml:"socket"` // Unix socket path for tool dispatch
	HTTP   string `yaml:"http"`   // Optional HTTP status address ("" disables it)
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load when the file exists, and otherwise falls
// back to the defaults with environment overrides applied. Missing files are
// routine for CLI use where everything comes from the environment.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			BaseURL:         "https://engie.hrhub.ph/",
			SSOHost:         "sso.sprout.ph",
			DashboardPath:   "EmployeeDashboard.aspx",
			DashboardMarker: "Employee Dashboard",
			LoginFormID:     "kc-form-login",
			FeedbackClass:   "kc-feedback-text",
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
				"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			TimeoutSeconds: 30,
			RequestsPerSec: 2,
		},
		Session: SessionConfig{
			File: "attendctl-session.json",
		},
		COA: COAConfig{
			ValidatePath:    "CertificateOfAttendance.aspx/ValidateSameFiling",
			SavePath:        "CertificateOfAttendance.aspx/Save",
			DefaultReason:   "forgot to in/out",
			DefaultCategory: "forgot to in/out",
		},
		Listen: ListenConfig{
			Socket: "/run/attendctl/tools.sock",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	// Credential overrides (preferred over storing the secret in the file)
	if v := os.Getenv("ATTENDCTL_USERNAME"); v != "" {
		c.Credentials.Username = v
	}
	if v := os.Getenv("ATTENDCTL_PASSWORD"); v != "" {
		c.Credentials.Password = v
	}

	// Portal overrides
	if v := os.Getenv("ATTENDCTL_PORTAL_URL"); v != "" {
		c.Portal.BaseURL = v
	}
	if v := os.Getenv("ATTENDCTL_SSO_HOST"); v != "" {
		c.Portal.SSOHost = v
	}

	// Session file override
	if v := os.Getenv("ATTENDCTL_SESSION_FILE"); v != "" {
		c.Session.File = v
	}

	// Log overrides
	if v := os.Getenv("ATTENDCTL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ATTENDCTL_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	// Listen overrides
	if v := os.Getenv("ATTENDCTL_LISTEN_SOCKET"); v != "" {
		c.Listen.Socket = v
	}
	if v := os.Getenv("ATTENDCTL_LISTEN_HTTP"); v != "" {
		c.Listen.HTTP = v
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Validate portal config
	u, err := url.Parse(c.Portal.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("portal.base_url must be a valid HTTP(S) URL")
	}
	if !strings.HasPrefix(c.Portal.BaseURL, "http://") && !strings.HasPrefix(c.Portal.BaseURL, "https://") {
		return fmt.Errorf("portal.base_url must be a valid HTTP(S) URL")
	}

	if c.Portal.SSOHost == "" {
		return fmt.Errorf("portal.sso_host is required")
	}
	if strings.Contains(c.Portal.SSOHost, "/") {
		return fmt.Errorf("portal.sso_host must be a bare host, not a URL")
	}

	if c.Portal.DashboardPath == "" {
		return fmt.Errorf("portal.dashboard_path is required")
	}
	if c.Portal.DashboardMarker == "" {
		return fmt.Errorf("portal.dashboard_marker is required")
	}
	if c.Portal.LoginFormID == "" {
		return fmt.Errorf("portal.login_form_id is required")
	}

	if c.Portal.TimeoutSeconds <= 0 {
		return fmt.Errorf("portal.timeout_seconds must be positive")
	}
	if c.Portal.RequestsPerSec <= 0 {
		return fmt.Errorf("portal.requests_per_sec must be positive")
	}

	// Validate session config
	if c.Session.File == "" {
		return fmt.Errorf("session.file is required")
	}

	// Validate COA config
	if c.COA.ValidatePath == "" {
		return fmt.Errorf("coa.validate_path is required")
	}
	if c.COA.SavePath == "" {
		return fmt.Errorf("coa.save_path is required")
	}

	// Validate log config
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: json, text")
	}

	return nil
}

// PortalHost returns the host of the portal base URL.
func (c *Config) PortalHost() string {
	u, err := url.Parse(c.Portal.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// SetupLogging configures the global slog logger based on the LogConfig.
func SetupLogging(cfg *LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Redact returns a copy of the config with secrets redacted for safe logging
func (c *Config) Redact() *Config {
	redacted := *c
	if redacted.Credentials.Password != "" {
		redacted.Credentials.Password = "[REDACTED]"
	}
	return &redacted
}
