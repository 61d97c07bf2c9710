package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validEngineYAML is the minimal engine section every loadable config
// needs to pass validation.
const validEngineYAML = `
engine:
  config_path: "./rules.yaml"
  upstream_url: "http://origin.internal:8080"
`

func TestLoadConfig_ValidFile(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
proxy:
  listen_address: "0.0.0.0:8080"
  read_timeout: "60s"

engine:
  config_path: "./rules.yaml"
  upstream_url: "http://origin.internal:8080"
  max_concurrent: 64
  blocking: true

buffering:
  request_mode: "flush_part"
  request_limit: 65536

policy:
  mode: "file"
  file_path: "./policies.yaml"

evidence:
  enabled: true
  backend: "sqlite"
  sqlite:
    path: "./test-evidence.db"

telemetry:
  logging:
    level: "debug"
    format: "text"
  metrics:
    enabled: true
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Load the config
	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Verify loaded values
	if cfg.Proxy.ListenAddress != "0.0.0.0:8080" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:8080", cfg.Proxy.ListenAddress)
	}
	if cfg.Proxy.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout %v, got %v", 60*time.Second, cfg.Proxy.ReadTimeout)
	}

	if cfg.Engine.ConfigPath != "./rules.yaml" {
		t.Errorf("expected engine config path %q, got %q", "./rules.yaml", cfg.Engine.ConfigPath)
	}
	if cfg.Engine.MaxConcurrent != 64 {
		t.Errorf("expected max concurrent %d, got %d", 64, cfg.Engine.MaxConcurrent)
	}
	if cfg.Buffering.RequestMode != "flush_part" {
		t.Errorf("expected request mode %q, got %q", "flush_part", cfg.Buffering.RequestMode)
	}
	if cfg.Buffering.RequestLimit != 65536 {
		t.Errorf("expected request limit %d, got %d", 65536, cfg.Buffering.RequestLimit)
	}

	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level %q, got %q", "debug", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
	// Check if error contains file not found message
	if !strings.Contains(err.Error(), "no such file or directory") {
		t.Errorf("expected file not found error, got: %v", err)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	malformedContent := `
proxy:
  listen_address: "0.0.0.0:8080"
  invalid yaml here: [
`

	if err := os.WriteFile(configPath, []byte(malformedContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Config with validation errors (no engine section, invalid logging level)
	invalidContent := `
proxy:
  listen_address: "0.0.0.0:8080"

telemetry:
  logging:
    level: "invalid"
    format: "json"
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}

	// Check if the error chain contains a ValidationError
	var validationErr ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("expected ValidationError in error chain, got %T: %v", err, err)
	}
}

func TestLoadConfigWithEnvOverrides_BasicOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
proxy:
  listen_address: "127.0.0.1:8080"
` + validEngineYAML + `
telemetry:
  logging:
    level: "info"
    format: "json"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Set environment variables
	os.Setenv("WARDEN_PROXY_LISTEN_ADDRESS", "0.0.0.0:9090")
	os.Setenv("WARDEN_ENGINE_CONFIG_PATH", "/etc/warden/rules-env.yaml")
	os.Setenv("WARDEN_TELEMETRY_LOGGING_LEVEL", "debug")
	defer func() {
		os.Unsetenv("WARDEN_PROXY_LISTEN_ADDRESS")
		os.Unsetenv("WARDEN_ENGINE_CONFIG_PATH")
		os.Unsetenv("WARDEN_TELEMETRY_LOGGING_LEVEL")
	}()

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Verify environment overrides took effect
	if cfg.Proxy.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("expected listen address %q from env, got %q", "0.0.0.0:9090", cfg.Proxy.ListenAddress)
	}

	if cfg.Engine.ConfigPath != "/etc/warden/rules-env.yaml" {
		t.Errorf("expected engine config path %q from env, got %q", "/etc/warden/rules-env.yaml", cfg.Engine.ConfigPath)
	}

	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level %q from env, got %q", "debug", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_DurationParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
proxy:
  listen_address: "127.0.0.1:8080"
  read_timeout: "30s"
` + validEngineYAML

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("WARDEN_PROXY_READ_TIMEOUT", "120s")
	os.Setenv("WARDEN_DISPATCH_RENDEZVOUS_TIMEOUT", "45s")
	defer func() {
		os.Unsetenv("WARDEN_PROXY_READ_TIMEOUT")
		os.Unsetenv("WARDEN_DISPATCH_RENDEZVOUS_TIMEOUT")
	}()

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Proxy.ReadTimeout != 120*time.Second {
		t.Errorf("expected read timeout %v, got %v", 120*time.Second, cfg.Proxy.ReadTimeout)
	}

	if cfg.Dispatch.RendezvousTimeout != 45*time.Second {
		t.Errorf("expected rendezvous timeout %v, got %v", 45*time.Second, cfg.Dispatch.RendezvousTimeout)
	}
}

func TestLoadConfigWithEnvOverrides_IntegerParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
proxy:
  listen_address: "127.0.0.1:8080"
` + validEngineYAML + `
evidence:
  enabled: true
  backend: "sqlite"
  retention_days: 90
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("WARDEN_PROXY_MAX_HEADER_BYTES", "2097152")
	os.Setenv("WARDEN_DISPATCH_WORKERS", "8")
	os.Setenv("WARDEN_EVIDENCE_RETENTION_DAYS", "30")
	defer func() {
		os.Unsetenv("WARDEN_PROXY_MAX_HEADER_BYTES")
		os.Unsetenv("WARDEN_DISPATCH_WORKERS")
		os.Unsetenv("WARDEN_EVIDENCE_RETENTION_DAYS")
	}()

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Proxy.MaxHeaderBytes != 2097152 {
		t.Errorf("expected max header bytes %d, got %d", 2097152, cfg.Proxy.MaxHeaderBytes)
	}

	if cfg.Dispatch.Workers != 8 {
		t.Errorf("expected dispatch workers %d, got %d", 8, cfg.Dispatch.Workers)
	}

	if cfg.Evidence.Retention.Days != 30 {
		t.Errorf("expected retention days %d, got %d", 30, cfg.Evidence.Retention.Days)
	}
}

func TestLoadConfigWithEnvOverrides_BooleanParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
proxy:
  listen_address: "127.0.0.1:8080"
` + validEngineYAML + `
policy:
  mode: "file"
  file_path: "./policies.yaml"
  watch: false

evidence:
  enabled: false
  backend: "sqlite"

telemetry:
  metrics:
    enabled: false
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("WARDEN_POLICY_WATCH", "true")
	os.Setenv("WARDEN_EVIDENCE_ENABLED", "true")
	os.Setenv("WARDEN_ENGINE_BLOCKING", "true")
	defer func() {
		os.Unsetenv("WARDEN_POLICY_WATCH")
		os.Unsetenv("WARDEN_EVIDENCE_ENABLED")
		os.Unsetenv("WARDEN_ENGINE_BLOCKING")
	}()

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !cfg.Policy.Watch {
		t.Error("expected policy watch to be true from env")
	}

	if !cfg.Evidence.Enabled {
		t.Error("expected evidence enabled to be true from env")
	}

	if !cfg.Engine.Blocking {
		t.Error("expected engine blocking to be true from env")
	}
}

func TestLoadConfigWithEnvOverrides_InvalidEnvValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
proxy:
  listen_address: "127.0.0.1:8080"
` + validEngineYAML + `
telemetry:
  logging:
    level: "info"
    format: "json"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Set invalid environment variables (they should be ignored or cause validation to fail)
	os.Setenv("WARDEN_PROXY_MAX_HEADER_BYTES", "not-a-number")
	os.Setenv("WARDEN_TELEMETRY_LOGGING_LEVEL", "invalid-level")
	defer func() {
		os.Unsetenv("WARDEN_PROXY_MAX_HEADER_BYTES")
		os.Unsetenv("WARDEN_TELEMETRY_LOGGING_LEVEL")
	}()

	_, err := LoadConfigWithEnvOverrides(configPath)
	// Should fail validation due to invalid logging level
	if err == nil {
		t.Error("expected validation error for invalid env values")
	}
}

func TestLoadConfigWithEnvOverrides_BufferingModes(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
proxy:
  listen_address: "127.0.0.1:8080"
` + validEngineYAML

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("WARDEN_BUFFERING_REQUEST_MODE", "all")
	os.Setenv("WARDEN_BUFFERING_RESPONSE_MODE", "none")
	os.Setenv("WARDEN_BUFFERING_REQUEST_LIMIT", "8192")
	defer func() {
		os.Unsetenv("WARDEN_BUFFERING_REQUEST_MODE")
		os.Unsetenv("WARDEN_BUFFERING_RESPONSE_MODE")
		os.Unsetenv("WARDEN_BUFFERING_REQUEST_LIMIT")
	}()

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Buffering.RequestMode != "all" {
		t.Errorf("expected request mode %q, got %q", "all", cfg.Buffering.RequestMode)
	}
	if cfg.Buffering.ResponseMode != "none" {
		t.Errorf("expected response mode %q, got %q", "none", cfg.Buffering.ResponseMode)
	}
	if cfg.Buffering.RequestLimit != 8192 {
		t.Errorf("expected request limit %d, got %d", 8192, cfg.Buffering.RequestLimit)
	}
}
