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
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig_Success(t *testing.T) {
	path := writeConfig(t, `
http_port: 9090
log_level: "debug"
api_timeout: 60
shutdown_timeout: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %v, want 9090", cfg.HTTPPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.APITimeout != 60 {
		t.Errorf("APITimeout = %v, want 60", cfg.APITimeout)
	}
	if cfg.ShutdownTimeout != 5 {
		t.Errorf("ShutdownTimeout = %v, want 5", cfg.ShutdownTimeout)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.HTTPPort != DefaultHTTPPort {
		t.Errorf("HTTPPort = %v, want default %v", cfg.HTTPPort, DefaultHTTPPort)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %v, want default %v", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.APITimeout != DefaultAPITimeout {
		t.Errorf("APITimeout = %v, want default %v", cfg.APITimeout, DefaultAPITimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
http_port: 8080
log_level: "info"
`)

	t.Setenv("BILLING_HTTP_PORT", "3000")
	t.Setenv("BILLING_LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %v, want env override 3000", cfg.HTTPPort)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %v, want env override error", cfg.LogLevel)
	}
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	path := writeConfig(t, `{}`)
	t.Setenv("BILLING_HTTP_PORT", "not-a-port")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "BILLING_HTTP_PORT") {
		t.Fatalf("Load() error = %v, want BILLING_HTTP_PORT complaint", err)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"port too large", "http_port: 70000", "http_port"},
		{"negative port", "http_port: -1", "http_port"},
		{"bad log level", `log_level: "verbose"`, "log_level"},
		{"negative timeout", "api_timeout: -5", "api_timeout"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load() error = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Error("Load() with a missing file must fail")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.HTTPPort != DefaultHTTPPort || cfg.LogLevel != DefaultLogLevel {
		t.Errorf("Default() = %+v", cfg)
	}
}
