// Package config provides configuration management.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"usage-billing/adapters/gateway"
	httpadapter "usage-billing/adapters/http"
	"usage-billing/core/checkout"
	apperrors "usage-billing/internal/errors"
	"usage-billing/internal/logging"
)

// EnvPrefix prefixes environment overrides, e.g. USAGE_BILLING_GATEWAY_BASE_URL
const EnvPrefix = "USAGE_BILLING"

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version" mapstructure:"version"`

	// Server contains HTTP API configuration
	Server httpadapter.Config `json:"server" mapstructure:"server"`

	// Gateway contains payment gateway configuration
	Gateway gateway.Config `json:"gateway" mapstructure:"gateway"`

	// Checkout contains status lookup settings
	Checkout checkout.Config `json:"checkout" mapstructure:"checkout"`

	// Pricing contains pricing configuration
	Pricing PricingConfig `json:"pricing" mapstructure:"pricing"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging" mapstructure:"logging"`
}

// PricingConfig contains pricing-related settings
type PricingConfig struct {
	// CatalogPath is an optional HCL catalog overriding the built-in one. The
	// catalog's currency is the only currency checkout charges in.
	CatalogPath string `json:"catalog_path,omitempty" mapstructure:"catalog_path"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Version:  "1.0",
		Server:   *httpadapter.DefaultConfig(),
		Gateway:  gateway.DefaultConfig(),
		Checkout: checkout.DefaultConfig(),
		Logging:  logging.DefaultConfig(),
	}
}

// Load loads configuration from a file and the environment. A missing file
// yields the defaults with environment overrides applied. The format follows
// the file extension (json, yaml, toml, hcl).
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, apperrors.Config("failed to read config "+path, err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, apperrors.Config("failed to decode config", err)
	}
	return config, nil
}

// newViper returns a viper instance with every key defaulted, so that
// AutomaticEnv can override keys the file does not mention.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("version", d.Version)

	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.enable_cors", d.Server.EnableCORS)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.enable_metrics", d.Server.EnableMetrics)

	v.SetDefault("gateway.base_url", d.Gateway.BaseURL)
	v.SetDefault("gateway.api_key", d.Gateway.APIKey)
	v.SetDefault("gateway.timeout", d.Gateway.Timeout)

	v.SetDefault("checkout.status_attempts", d.Checkout.StatusAttempts)
	v.SetDefault("checkout.status_backoff", d.Checkout.StatusBackoff)
	v.SetDefault("checkout.status_timeout", d.Checkout.StatusTimeout)
	v.SetDefault("checkout.status_cache_size", d.Checkout.StatusCacheSize)
	v.SetDefault("checkout.status_cache_ttl", d.Checkout.StatusCacheTTL)

	v.SetDefault("pricing.catalog_path", d.Pricing.CatalogPath)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.development", d.Logging.Development)

	return v
}

// Save saves configuration to a file as JSON
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Global configuration instance
var (
	globalMu     sync.RWMutex
	globalConfig = Default()
)

// Get returns the global configuration
func Get() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = config
}
