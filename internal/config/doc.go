// Package config provides configuration loading and validation for the
// voice expense service. It handles YAML-based configuration with
// per-section validation and environment overrides for API credentials.
package config
