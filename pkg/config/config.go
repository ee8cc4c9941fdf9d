// Package config loads and validates the banklink configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError reports required configuration that is absent. It is fatal to
// the operation that needed the value and not retryable without operator
// action.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Field)
}

// ProviderConfig identifies this deployment to the open-banking provider.
type ProviderConfig struct {
	ClientID     string `json:"client_id" yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string `json:"redirect_uri" yaml:"redirect_uri" mapstructure:"redirect_uri"`
	// Environment selects the provider base URLs: "sandbox" or "production".
	Environment string `json:"environment" yaml:"environment" mapstructure:"environment"`
	Scope       string `json:"scope" yaml:"scope" mapstructure:"scope"`
	// AuthBaseURL and APIBaseURL override the environment-selected URLs.
	// Used by tests; leave empty otherwise.
	AuthBaseURL string `json:"auth_base_url,omitempty" yaml:"auth_base_url,omitempty" mapstructure:"auth_base_url"`
	APIBaseURL  string `json:"api_base_url,omitempty" yaml:"api_base_url,omitempty" mapstructure:"api_base_url"`
}

// StorageConfig selects the slot store backing for the daemon mode. The
// HTTP server always uses cookie-backed slots regardless of this setting.
type StorageConfig struct {
	Type     string `json:"type" yaml:"type" mapstructure:"type"` // "memory" or "file"
	FilePath string `json:"file_path,omitempty" yaml:"file_path,omitempty" mapstructure:"file_path"`
}

// SyncConfig drives the periodic synchronization loop.
type SyncConfig struct {
	// Schedule is a cron spec; empty disables the scheduler.
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty" mapstructure:"schedule"`
}

// Config is the full banklink configuration.
type Config struct {
	Port     int            `json:"port" yaml:"port" mapstructure:"port"`
	Provider ProviderConfig `json:"provider" yaml:"provider" mapstructure:"provider"`
	Storage  StorageConfig  `json:"storage" yaml:"storage" mapstructure:"storage"`
	Sync     SyncConfig     `json:"sync" yaml:"sync" mapstructure:"sync"`
	LogDir   string         `json:"log_dir,omitempty" yaml:"log_dir,omitempty" mapstructure:"log_dir"`

	// EncryptionSecret seeds the sealed-box key. Loaded from the
	// BANKLINK_ENCRYPTION_SECRET environment variable, never from the
	// config file.
	EncryptionSecret string `json:"-" yaml:"-" mapstructure:"-"`
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() *Config {
	return &Config{
		Port: 8080,
		Provider: ProviderConfig{
			Environment: "sandbox",
			Scope:       "info accounts balance transactions offline_access",
		},
		Storage: StorageConfig{Type: "memory"},
	}
}

// LoadConfig reads a JSON or YAML config file (by extension), applies
// defaults and environment overrides, and returns the result. The file's
// absence is an error; env-only setups should start from DefaultConfig and
// call ApplyEnv.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
		}
	}

	config.ApplyEnv()
	return config, nil
}

// ApplyEnv overlays environment variables onto the config. Environment
// values win over file values so secrets can stay out of files entirely.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("BANKLINK_CLIENT_ID"); v != "" {
		c.Provider.ClientID = v
	}
	if v := os.Getenv("BANKLINK_CLIENT_SECRET"); v != "" {
		c.Provider.ClientSecret = v
	}
	if v := os.Getenv("BANKLINK_REDIRECT_URI"); v != "" {
		c.Provider.RedirectURI = v
	}
	if v := os.Getenv("BANKLINK_ENVIRONMENT"); v != "" {
		c.Provider.Environment = v
	}
	c.EncryptionSecret = os.Getenv("BANKLINK_ENCRYPTION_SECRET")
}

// Validate checks for the configuration the credential flow cannot run
// without. It reports the first missing field.
func (c *Config) Validate() error {
	if c.Provider.ClientID == "" {
		return &ConfigError{Field: "provider.client_id"}
	}
	if c.Provider.ClientSecret == "" {
		return &ConfigError{Field: "provider.client_secret"}
	}
	if c.EncryptionSecret == "" {
		return &ConfigError{Field: "BANKLINK_ENCRYPTION_SECRET"}
	}
	return nil
}
