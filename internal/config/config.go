package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Live    LiveConfig    `yaml:"live"`
	Extract ExtractConfig `yaml:"extract"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// LiveConfig contains voice session endpoint configuration
type LiveConfig struct {
	Endpoint          string `yaml:"endpoint"`
	APIKey            string `yaml:"api_key"`
	Model             string `yaml:"model"`
	SystemInstruction string `yaml:"system_instruction"`
	DialTimeout       int    `yaml:"dial_timeout"`  // seconds
	SetupTimeout      int    `yaml:"setup_timeout"` // seconds
	MaxRetries        int    `yaml:"max_retries"`
	RetryBackoff      int    `yaml:"retry_backoff"` // seconds
}

// ExtractConfig contains bulk extraction API configuration
type ExtractConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// LedgerConfig contains ledger storage configuration
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. The GEMINI_API_KEY
// environment variable, when set, overrides the api_key of both the live
// and extract sections so keys can stay out of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Live.APIKey = key
		config.Extract.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Live.Validate(); err != nil {
		return fmt.Errorf("live config: %w", err)
	}

	if err := c.Extract.Validate(); err != nil {
		return fmt.Errorf("extract config: %w", err)
	}

	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates live session configuration
func (l *LiveConfig) Validate() error {
	if l.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if l.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set it or GEMINI_API_KEY)")
	}

	if l.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if l.DialTimeout < 1 {
		return fmt.Errorf("dial_timeout must be at least 1 second, got %d", l.DialTimeout)
	}

	if l.SetupTimeout < 1 {
		return fmt.Errorf("setup_timeout must be at least 1 second, got %d", l.SetupTimeout)
	}

	if l.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", l.MaxRetries)
	}

	if l.RetryBackoff < 1 {
		return fmt.Errorf("retry_backoff must be at least 1 second, got %d", l.RetryBackoff)
	}

	return nil
}

// Validate validates extraction configuration
func (e *ExtractConfig) Validate() error {
	if e.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if e.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set it or GEMINI_API_KEY)")
	}

	if e.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", e.Timeout)
	}

	if e.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", e.MaxRetries)
	}

	if e.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", e.MaxConcurrent)
	}

	return nil
}

// Validate validates ledger configuration
func (l *LedgerConfig) Validate() error {
	if l.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetDialTimeout returns the dial timeout as a time.Duration
func (l *LiveConfig) GetDialTimeout() time.Duration {
	return time.Duration(l.DialTimeout) * time.Second
}

// GetSetupTimeout returns the setup timeout as a time.Duration
func (l *LiveConfig) GetSetupTimeout() time.Duration {
	return time.Duration(l.SetupTimeout) * time.Second
}

// GetRetryBackoff returns the retry backoff as a time.Duration
func (l *LiveConfig) GetRetryBackoff() time.Duration {
	return time.Duration(l.RetryBackoff) * time.Second
}

// GetTimeout returns the extraction timeout as a time.Duration
func (e *ExtractConfig) GetTimeout() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}
