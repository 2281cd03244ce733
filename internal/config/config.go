// Package config provides YAML-based configuration with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/data-intelligence/backend/internal/validation"
)

// AppConfig is the root configuration structure.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Limits   LimitsConfig   `yaml:"limits"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
	Advanced AdvancedConfig `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int     `yaml:"port"`
	BindAddress  string  `yaml:"bind_address"`
	ReadTimeout  int     `yaml:"read_timeout_seconds"`
	WriteTimeout int     `yaml:"write_timeout_seconds"`
	IdleTimeout  int     `yaml:"idle_timeout_seconds"`
	BodyLimit    string  `yaml:"body_limit"`
	RateLimit    float64 `yaml:"rate_limit_per_second"`
}

// StorageConfig contains file storage settings.
type StorageConfig struct {
	DataDirectory    string `yaml:"data_directory"`
	UploadsDirectory string `yaml:"uploads_directory"`
	TempDirectory    string `yaml:"temp_directory"`
}

// LimitsConfig feeds the upload validation service. Zero/empty fields
// keep the validator's built-in defaults.
type LimitsConfig struct {
	MaxFileSize       int64    `yaml:"max_file_size"`
	AllowedTypes      []string `yaml:"allowed_types"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxNameLength     int      `yaml:"max_name_length"`
}

// CleanupConfig controls the background maintenance loops.
type CleanupConfig struct {
	IntervalMinutes       int `yaml:"interval_minutes"`
	SessionTimeoutMinutes int `yaml:"session_timeout_minutes"`
	JobRetentionMinutes   int `yaml:"job_retention_minutes"`
}

// AdvancedConfig contains tuning options.
type AdvancedConfig struct {
	LogLevel             string `yaml:"log_level"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "600M",
			RateLimit:    50,
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			TempDirectory:    "./data/temp",
		},
		Cleanup: CleanupConfig{
			IntervalMinutes:       5,
			SessionTimeoutMinutes: 30,
			JobRetentionMinutes:   60,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is
// not an error: the defaults are written out so operators have a
// template to edit.
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Data Intelligence Platform configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override
// config values.
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.TempDirectory = filepath.Join(dataDir, "temp")
	}

	if maxSize := os.Getenv("MAX_FILE_SIZE"); maxSize != "" {
		if n, err := strconv.ParseInt(maxSize, 10, 64); err == nil {
			c.Limits.MaxFileSize = n
		}
	}

	if rate := os.Getenv("RATE_LIMIT"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			c.Server.RateLimit = r
		}
	}
}

// resolvePaths converts relative paths to absolute based on config
// file location.
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
	if !filepath.IsAbs(c.Storage.TempDirectory) {
		c.Storage.TempDirectory = filepath.Join(configDir, c.Storage.TempDirectory)
	}
}

// ValidationOverrides converts the limits section into the partial
// config consumed by the upload validator. Unset fields keep the
// validator's defaults.
func (c *AppConfig) ValidationOverrides() validation.Overrides {
	var o validation.Overrides
	if c.Limits.MaxFileSize > 0 {
		size := c.Limits.MaxFileSize
		o.MaxFileSize = &size
	}
	if len(c.Limits.AllowedTypes) > 0 {
		o.AllowedTypes = c.Limits.AllowedTypes
	}
	if len(c.Limits.AllowedExtensions) > 0 {
		o.AllowedExtensions = c.Limits.AllowedExtensions
	}
	if c.Limits.MaxNameLength > 0 {
		length := c.Limits.MaxNameLength
		o.MaxNameLength = &length
	}
	return o
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories.
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.TempDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
