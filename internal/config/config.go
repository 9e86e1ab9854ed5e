// Package config manages the network summary service configuration.
// It handles loading, validating, and providing access to configuration settings
// from YAML files, applies environment overrides for secrets and the neighbor
// discovery cache lifetime, and implements thread-safe access to configuration values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Environment overrides
const (
	EnvAPIKey           = "UPSTREAM_API_KEY"
	EnvNeighborCacheTTL = "NEIGHBOR_CACHE_TTL"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port            int      `yaml:"port"`
		Host            string   `yaml:"host"`
		AllowedOrigins  []string `yaml:"allowedOrigins"`
		ReadTimeout     int      `yaml:"readTimeout"`
		WriteTimeout    int      `yaml:"writeTimeout"`
		ShutdownTimeout int      `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Upstream struct {
		BaseURL           string  `yaml:"baseUrl"`
		APIKey            string  `yaml:"apiKey"`
		RequestsPerSecond float64 `yaml:"requestsPerSecond"`
		Burst             int     `yaml:"burst"`
		Timeout           string  `yaml:"timeout"`
	} `yaml:"upstream"`

	Retry struct {
		MaxAttempts int    `yaml:"maxAttempts"`
		BaseDelay   string `yaml:"baseDelay"`
		MaxDelay    string `yaml:"maxDelay"`
	} `yaml:"retry"`

	Batch struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"batch"`

	Cache struct {
		Networks          string `yaml:"networks"`
		Devices           string `yaml:"devices"`
		Appliance         string `yaml:"appliance"`
		NeighborDiscovery string `yaml:"neighborDiscovery"`
		Ports             string `yaml:"ports"`
		SweepInterval     string `yaml:"sweepInterval"`
		MaxEntries        int    `yaml:"maxEntries"` // per category
	} `yaml:"cache"`

	Database struct {
		Path                  string `yaml:"path"`
		SnapshotRetentionDays int    `yaml:"snapshotRetentionDays"`
		RunRetentionDays      int    `yaml:"runRetentionDays"`
		OptimizeFrequency     string `yaml:"optimizeFrequency"`
	} `yaml:"database"`

	Refresh struct {
		Enabled   bool     `yaml:"enabled"`
		Frequency string   `yaml:"frequency"`
		Networks  []string `yaml:"networks"`
	} `yaml:"refresh"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console, json
	} `yaml:"logging"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`

	path string
	mu   sync.RWMutex
}

var (
	instance *Config
	once     sync.Once
)

// GetConfig returns the singleton configuration instance
func GetConfig() *Config {
	once.Do(func() {
		instance = Default()
	})
	return instance
}

// Default returns a configuration populated with default values
func Default() *Config {
	c := &Config{}
	setDefaults(c)
	return c
}

// LoadConfig loads configuration from a YAML file
func (c *Config) LoadConfig(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Save path for potential reloading
	c.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("configuration file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse configuration file: %w", err)
	}

	c.applyEnv()

	if dir := filepath.Dir(c.Database.Path); c.Database.Path != "" && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info().Str("path", path).Msg("Configuration loaded successfully")
	return nil
}

// Reload reloads the configuration from the file
func (c *Config) Reload() error {
	if c.path == "" {
		return errors.New("configuration was not loaded from a file")
	}
	return c.LoadConfig(c.path)
}

// SaveConfig writes the configuration to a YAML file
func (c *Config) SaveConfig(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	log.Info().Str("path", path).Msg("Configuration saved successfully")
	return nil
}

// applyEnv applies environment overrides
func (c *Config) applyEnv() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.Upstream.APIKey = key
	}
	if ttl := os.Getenv(EnvNeighborCacheTTL); ttl != "" {
		c.Cache.NeighborDiscovery = ttl
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validate()
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Upstream.BaseURL == "" {
		return errors.New("upstream base URL is required")
	}

	if c.Upstream.RequestsPerSecond <= 0 {
		return fmt.Errorf("invalid upstream request rate: %v", c.Upstream.RequestsPerSecond)
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("invalid retry attempts: %d", c.Retry.MaxAttempts)
	}

	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("invalid batch concurrency: %d", c.Batch.Concurrency)
	}

	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("invalid cache max entries: %d", c.Cache.MaxEntries)
	}

	durations := map[string]string{
		"upstream timeout":           c.Upstream.Timeout,
		"retry base delay":           c.Retry.BaseDelay,
		"retry max delay":            c.Retry.MaxDelay,
		"networks cache TTL":         c.Cache.Networks,
		"devices cache TTL":          c.Cache.Devices,
		"appliance cache TTL":        c.Cache.Appliance,
		"neighbor cache TTL":         c.Cache.NeighborDiscovery,
		"ports cache TTL":            c.Cache.Ports,
		"cache sweep interval":       c.Cache.SweepInterval,
		"database optimize interval": c.Database.OptimizeFrequency,
		"refresh frequency":          c.Refresh.Frequency,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	return nil
}

// parseDuration accepts Go durations and bare integers as milliseconds
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	var ms int64
	if _, err := fmt.Sscanf(s, "%d", &ms); err == nil && fmt.Sprint(ms) == s {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}

func (c *Config) duration(value string, fallback time.Duration) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if value == "" {
		return fallback
	}
	d, err := parseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetUpstreamTimeout returns the per-request HTTP timeout
func (c *Config) GetUpstreamTimeout() time.Duration {
	return c.duration(c.Upstream.Timeout, 30*time.Second)
}

// GetRetryDelays returns the base and maximum backoff delays
func (c *Config) GetRetryDelays() (base, max time.Duration) {
	return c.duration(c.Retry.BaseDelay, 500*time.Millisecond), c.duration(c.Retry.MaxDelay, 8*time.Second)
}

// GetCacheTTLs returns the time-to-live of every cache category
func (c *Config) GetCacheTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		"networks":           c.duration(c.Cache.Networks, 10*time.Minute),
		"devices":            c.duration(c.Cache.Devices, 3*time.Minute),
		"appliance":          c.duration(c.Cache.Appliance, time.Minute),
		"neighbor-discovery": c.duration(c.Cache.NeighborDiscovery, 10*time.Minute),
		"ports":              c.duration(c.Cache.Ports, 2*time.Minute),
	}
}

// GetSweepInterval returns how often expired cache entries are purged
func (c *Config) GetSweepInterval() time.Duration {
	return c.duration(c.Cache.SweepInterval, time.Minute)
}

// GetOptimizeFrequency returns the database maintenance interval
func (c *Config) GetOptimizeFrequency() time.Duration {
	return c.duration(c.Database.OptimizeFrequency, 24*time.Hour)
}

// GetRefreshFrequency returns how often configured networks are pre-built
func (c *Config) GetRefreshFrequency() time.Duration {
	return c.duration(c.Refresh.Frequency, 5*time.Minute)
}

// setDefaults initializes the configuration with default values
func setDefaults(c *Config) {
	// Server defaults
	c.Server.Port = 8080
	c.Server.Host = "127.0.0.1"
	c.Server.AllowedOrigins = []string{"*"}
	c.Server.ReadTimeout = 30
	c.Server.WriteTimeout = 120
	c.Server.ShutdownTimeout = 10

	// Upstream defaults
	c.Upstream.BaseURL = "https://api.meraki.com/api/v1"
	c.Upstream.RequestsPerSecond = 8 // vendor allows 10/s per organization
	c.Upstream.Burst = 4
	c.Upstream.Timeout = "30s"

	// Retry defaults
	c.Retry.MaxAttempts = 4
	c.Retry.BaseDelay = "500ms"
	c.Retry.MaxDelay = "8s"

	// Batch defaults
	c.Batch.Concurrency = 5

	// Cache defaults
	c.Cache.Networks = "10m"
	c.Cache.Devices = "3m"
	c.Cache.Appliance = "1m"
	c.Cache.NeighborDiscovery = "10m"
	c.Cache.Ports = "2m"
	c.Cache.SweepInterval = "1m"
	c.Cache.MaxEntries = 1000

	// Database defaults
	c.Database.Path = "./data/netsummary.db"
	c.Database.SnapshotRetentionDays = 7
	c.Database.RunRetentionDays = 30
	c.Database.OptimizeFrequency = "24h"

	// Refresh defaults
	c.Refresh.Enabled = false
	c.Refresh.Frequency = "5m"

	// Logging defaults
	c.Logging.Level = "info"
	c.Logging.Format = "console"

	// Metrics defaults
	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"
}
