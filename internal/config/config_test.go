package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
portal:
  base_url: https://hr.example.test/
  sso_host: sso.example.test
credentials:
  username: jdoe
  password: hunter2
session:
  file: /tmp/attendctl-test-session.json
`

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Portal.BaseURL != "https://hr.example.test/" {
		t.Errorf("BaseURL = %s", cfg.Portal.BaseURL)
	}
	if cfg.Portal.SSOHost != "sso.example.test" {
		t.Errorf("SSOHost = %s", cfg.Portal.SSOHost)
	}

	// Defaults fill the unspecified sections
	if cfg.Portal.LoginFormID != "kc-form-login" {
		t.Errorf("LoginFormID default = %s", cfg.Portal.LoginFormID)
	}
	if cfg.COA.ValidatePath != "CertificateOfAttendance.aspx/ValidateSameFiling" {
		t.Errorf("ValidatePath default = %s", cfg.COA.ValidatePath)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults = %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load should fail for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "portal: [not a mapping")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load should fail for invalid YAML")
	}
}

func TestLoadOrDefault(t *testing.T) {
	// Missing file falls back to defaults with env overrides
	t.Setenv("ATTENDCTL_USERNAME", "env-user")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.Portal.BaseURL != DefaultConfig().Portal.BaseURL {
		t.Errorf("BaseURL = %s, want default", cfg.Portal.BaseURL)
	}
	if cfg.Credentials.Username != "env-user" {
		t.Errorf("Username = %s, want env-user", cfg.Credentials.Username)
	}

	// Present file behaves like Load
	path := writeConfig(t, minimalConfig)
	cfg, err = LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.Portal.BaseURL != "https://hr.example.test/" {
		t.Errorf("BaseURL = %s", cfg.Portal.BaseURL)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	t.Setenv("ATTENDCTL_USERNAME", "override-user")
	t.Setenv("ATTENDCTL_PASSWORD", "override-pass")
	t.Setenv("ATTENDCTL_SESSION_FILE", "/tmp/override-session.json")
	t.Setenv("ATTENDCTL_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Credentials.Username != "override-user" {
		t.Errorf("Username = %s, want override-user", cfg.Credentials.Username)
	}
	if cfg.Credentials.Password != "override-pass" {
		t.Errorf("Password not overridden")
	}
	if cfg.Session.File != "/tmp/override-session.json" {
		t.Errorf("Session.File = %s", cfg.Session.File)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad base url",
			mutate:  func(c *Config) { c.Portal.BaseURL = "not-a-url" },
			wantErr: "portal.base_url",
		},
		{
			name:    "missing sso host",
			mutate:  func(c *Config) { c.Portal.SSOHost = "" },
			wantErr: "portal.sso_host",
		},
		{
			name:    "sso host is a url",
			mutate:  func(c *Config) { c.Portal.SSOHost = "https://sso.example.test/" },
			wantErr: "portal.sso_host",
		},
		{
			name:    "missing dashboard path",
			mutate:  func(c *Config) { c.Portal.DashboardPath = "" },
			wantErr: "portal.dashboard_path",
		},
		{
			name:    "missing dashboard marker",
			mutate:  func(c *Config) { c.Portal.DashboardMarker = "" },
			wantErr: "portal.dashboard_marker",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Portal.TimeoutSeconds = 0 },
			wantErr: "portal.timeout_seconds",
		},
		{
			name:    "zero rate",
			mutate:  func(c *Config) { c.Portal.RequestsPerSec = 0 },
			wantErr: "portal.requests_per_sec",
		},
		{
			name:    "missing session file",
			mutate:  func(c *Config) { c.Session.File = "" },
			wantErr: "session.file",
		},
		{
			name:    "missing validate path",
			mutate:  func(c *Config) { c.COA.ValidatePath = "" },
			wantErr: "coa.validate_path",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "log.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate should fail with %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestPortalHost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Portal.BaseURL = "https://hr.example.test:8443/"
	if got := cfg.PortalHost(); got != "hr.example.test:8443" {
		t.Errorf("PortalHost() = %s", got)
	}
}

func TestRedact(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Credentials.Username = "jdoe"
	cfg.Credentials.Password = "hunter2"

	redacted := cfg.Redact()

	if redacted.Credentials.Password != "[REDACTED]" {
		t.Errorf("password not redacted: %s", redacted.Credentials.Password)
	}
	if cfg.Credentials.Password != "hunter2" {
		t.Error("original config was mutated")
	}
	if redacted.Credentials.Username != "jdoe" {
		t.Error("username should not be redacted")
	}
}
