// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Create a temporary directory for the test
	tempDir, err := os.MkdirTemp("", "config-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	// Create a test config file
	configPath := filepath.Join(tempDir, "config.yaml")
	testConfig := `
server:
  port: 9090
  host: "127.0.0.1"

upstream:
  baseUrl: "https://example.test/api/v1"
  requestsPerSecond: 5

retry:
  maxAttempts: 6
  baseDelay: "250ms"
  maxDelay: "4s"

batch:
  concurrency: 3

cache:
  devices: "90s"
  maxEntries: 250

database:
  path: "` + filepath.Join(tempDir, "data", "test.db") + `"
`
	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg := Default()
	if err := cfg.LoadConfig(configPath); err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Upstream.BaseURL != "https://example.test/api/v1" {
		t.Errorf("Expected base URL to be loaded, got %s", cfg.Upstream.BaseURL)
	}
	if cfg.Retry.MaxAttempts != 6 {
		t.Errorf("Expected 6 attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Batch.Concurrency != 3 {
		t.Errorf("Expected concurrency 3, got %d", cfg.Batch.Concurrency)
	}

	base, max := cfg.GetRetryDelays()
	if base != 250*time.Millisecond || max != 4*time.Second {
		t.Errorf("Expected delays 250ms/4s, got %v/%v", base, max)
	}

	ttls := cfg.GetCacheTTLs()
	if ttls["devices"] != 90*time.Second {
		t.Errorf("Expected devices TTL 90s, got %v", ttls["devices"])
	}
	if ttls["networks"] != 10*time.Minute {
		t.Errorf("Expected default networks TTL, got %v", ttls["networks"])
	}

	if cfg.Cache.MaxEntries != 250 {
		t.Errorf("Expected 250 cache entries, got %d", cfg.Cache.MaxEntries)
	}

	// Database directory is created on load
	if _, err := os.Stat(filepath.Join(tempDir, "data")); err != nil {
		t.Errorf("Expected database directory to be created: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config-env-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	t.Setenv(EnvAPIKey, "secret-from-env")
	t.Setenv(EnvNeighborCacheTTL, "45s")

	configPath := filepath.Join(tempDir, "config.yaml")
	testConfig := `
upstream:
  apiKey: "from-file"
database:
  path: "` + filepath.Join(tempDir, "test.db") + `"
`
	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg := Default()
	if err := cfg.LoadConfig(configPath); err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Upstream.APIKey != "secret-from-env" {
		t.Errorf("Expected API key from environment, got %s", cfg.Upstream.APIKey)
	}
	if ttl := cfg.GetCacheTTLs()["neighbor-discovery"]; ttl != 45*time.Second {
		t.Errorf("Expected neighbor TTL 45s, got %v", ttl)
	}
}

func TestReload(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config-reload-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "test.db")
	configPath := filepath.Join(tempDir, "config.yaml")
	initialConfig := `
server:
  port: 9090
database:
  path: "` + dbPath + `"
`
	if err := os.WriteFile(configPath, []byte(initialConfig), 0644); err != nil {
		t.Fatalf("Failed to write initial config: %v", err)
	}

	cfg := Default()
	if err := cfg.Reload(); err == nil {
		t.Errorf("Expected error reloading a config that was never loaded")
	}
	if err := cfg.LoadConfig(configPath); err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected initial port 9090, got %d", cfg.Server.Port)
	}

	updatedConfig := `
server:
  port: 8080
database:
  path: "` + dbPath + `"
`
	if err := os.WriteFile(configPath, []byte(updatedConfig), 0644); err != nil {
		t.Fatalf("Failed to write updated config: %v", err)
	}

	if err := cfg.Reload(); err != nil {
		t.Errorf("Reload returned error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected updated port 8080, got %d", cfg.Server.Port)
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := Default()

	cfg.Upstream.Timeout = "1500"
	if d := cfg.GetUpstreamTimeout(); d != 1500*time.Millisecond {
		t.Errorf("Expected bare integer as milliseconds, got %v", d)
	}

	cfg.Upstream.Timeout = "invalid"
	if d := cfg.GetUpstreamTimeout(); d != 30*time.Second {
		t.Errorf("Expected fallback timeout, got %v", d)
	}

	cfg.Database.OptimizeFrequency = "2h30m"
	if d := cfg.GetOptimizeFrequency(); d != 150*time.Minute {
		t.Errorf("Expected 2h30m, got %v", d)
	}

	if d := cfg.GetSweepInterval(); d != time.Minute {
		t.Errorf("Expected default sweep interval, got %v", d)
	}

	if d := cfg.GetRefreshFrequency(); d != 5*time.Minute {
		t.Errorf("Expected default refresh frequency, got %v", d)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate returned error for default config: %v", err)
	}

	// Test invalid port
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected error for invalid port, got nil")
	}
	cfg.Server.Port = 8080

	// Test invalid duration
	cfg.Retry.MaxDelay = "forever"
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected error for invalid max delay, got nil")
	}
	cfg.Retry.MaxDelay = "8s"

	// Test invalid concurrency
	cfg.Batch.Concurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected error for invalid concurrency, got nil")
	}
	cfg.Batch.Concurrency = 5

	// Test negative cache cap
	cfg.Cache.MaxEntries = -1
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected error for negative cache max entries, got nil")
	}
	cfg.Cache.MaxEntries = 1000

	// Test missing base URL
	cfg.Upstream.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected error for missing base URL, got nil")
	}
	cfg.Upstream.BaseURL = "https://example.test"

	// Test missing database path
	cfg.Database.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected error for missing database path, got nil")
	}
}

func TestSaveConfig(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config-save-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	cfg := Default()
	cfg.Database.Path = filepath.Join(tempDir, "test.db")
	cfg.Server.Port = 9999
	cfg.Batch.Concurrency = 7

	savePath := filepath.Join(tempDir, "saved-config.yaml")
	if err := cfg.SaveConfig(savePath); err != nil {
		t.Fatalf("SaveConfig returned error: %v", err)
	}

	newCfg := Default()
	if err := newCfg.LoadConfig(savePath); err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if newCfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", newCfg.Server.Port)
	}
	if newCfg.Batch.Concurrency != 7 {
		t.Errorf("Expected concurrency 7, got %d", newCfg.Batch.Concurrency)
	}
}

func TestGetConfigSingleton(t *testing.T) {
	if GetConfig() != GetConfig() {
		t.Errorf("Expected GetConfig to return the same instance")
	}
}
