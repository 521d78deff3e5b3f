package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Source is a local directory, "s3://..." or "minio://..."
	Source  string        `yaml:"source" envconfig:"SOURCE"`
	S3      S3Config      `yaml:"s3"`
	MinIO   MinIOConfig   `yaml:"minio"`
	Loader  LoaderConfig  `yaml:"loader"`
	Logger  LoggerConfig  `yaml:"logger"`
	Metrics MetricsConfig `yaml:"metrics"`
	Vault   VaultConfig   `yaml:"vault"`
}

// S3Config represents S3 origin configuration
type S3Config struct {
	Bucket          string `yaml:"bucket" envconfig:"S3_BUCKET"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"S3_SECRET_ACCESS_KEY"`
	Region          string `yaml:"region" envconfig:"S3_REGION"`
	Endpoint        string `yaml:"endpoint" envconfig:"S3_ENDPOINT"`
	Prefix          string `yaml:"prefix" envconfig:"S3_PREFIX"`

	// Vault path for credentials (optional)
	VaultPath string `yaml:"vault_path" envconfig:"S3_VAULT_PATH"`
}

// IsSet reports whether any S3 setting was supplied
func (c S3Config) IsSet() bool {
	return c.Bucket != "" || c.AccessKeyID != "" || c.SecretAccessKey != "" ||
		c.Region != "" || c.Endpoint != "" || c.Prefix != "" || c.VaultPath != ""
}

// MinIOConfig represents MinIO origin configuration
type MinIOConfig struct {
	Endpoint        string `yaml:"endpoint" envconfig:"MINIO_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"MINIO_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"MINIO_SECRET_ACCESS_KEY"`
	Bucket          string `yaml:"bucket" envconfig:"MINIO_BUCKET"`
	Secure          bool   `yaml:"secure" envconfig:"MINIO_SECURE"`
	Prefix          string `yaml:"prefix" envconfig:"MINIO_PREFIX"`

	// Vault path for credentials (optional)
	VaultPath string `yaml:"vault_path" envconfig:"MINIO_VAULT_PATH"`
}

// IsSet reports whether any MinIO setting was supplied. Secure alone does not count.
func (c MinIOConfig) IsSet() bool {
	return c.Endpoint != "" || c.AccessKeyID != "" || c.SecretAccessKey != "" ||
		c.Bucket != "" || c.Prefix != "" || c.VaultPath != ""
}

// LoaderConfig tunes how objects are fetched
type LoaderConfig struct {
	Concurrency    int           `yaml:"concurrency" envconfig:"LOADER_CONCURRENCY"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"LOADER_REQUEST_TIMEOUT"`
	StrictScheme   bool          `yaml:"strict_scheme" envconfig:"LOADER_STRICT_SCHEME"`
}

// LoggerConfig represents logger configuration
type LoggerConfig struct {
	Level      string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format     string `yaml:"format" envconfig:"LOG_FORMAT"` // json or console
	OutputPath string `yaml:"output_path" envconfig:"LOG_OUTPUT_PATH"`
}

// MetricsConfig controls the prometheus textfile written after a load
type MetricsConfig struct {
	Namespace    string `yaml:"namespace" envconfig:"METRICS_NAMESPACE"`
	TextfilePath string `yaml:"textfile_path" envconfig:"METRICS_TEXTFILE_PATH"`
}

// VaultConfig represents HashiCorp Vault configuration
type VaultConfig struct {
	Enabled   bool   `yaml:"enabled" envconfig:"VAULT_ENABLED"`
	Address   string `yaml:"address" envconfig:"VAULT_ADDR"`
	Token     string `yaml:"token" envconfig:"VAULT_TOKEN"`
	TokenPath string `yaml:"token_path" envconfig:"VAULT_TOKEN_PATH"`
	Namespace string `yaml:"namespace" envconfig:"VAULT_NAMESPACE"`
	Mount     string `yaml:"mount" envconfig:"VAULT_KV_MOUNT"`
}

// Default returns the configuration used before file and environment are applied
func Default() *Config {
	return &Config{
		Loader: LoaderConfig{
			Concurrency:    1,
			RequestTimeout: 60 * time.Second,
		},
		Logger: LoggerConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
		Metrics: MetricsConfig{
			Namespace: "vizscout",
		},
		Vault: VaultConfig{
			Address: "http://localhost:8200",
			Mount:   "secret",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file (if any),
// then environment variables. Later sources win.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// No default tags on purpose: envconfig only touches variables that are set.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true) // Strict parsing

	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks loader, logger and vault settings. Backend sections are not
// checked here: they only matter for the origin a load actually selects.
func (c *Config) Validate() error {
	if c.Loader.Concurrency < 1 {
		return fmt.Errorf("loader concurrency must be at least 1, got %d", c.Loader.Concurrency)
	}

	if c.Loader.RequestTimeout < 0 {
		return fmt.Errorf("loader request timeout cannot be negative: %s", c.Loader.RequestTimeout)
	}

	if _, err := zapcore.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("invalid log level: %q", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %q", c.Logger.Format)
	}

	if c.Vault.Enabled && c.Vault.Address == "" {
		return fmt.Errorf("vault address is required when vault is enabled")
	}

	return nil
}

// GetVaultToken returns the Vault token from config or file
func (c *VaultConfig) GetVaultToken() (string, error) {
	if c.Token != "" {
		return c.Token, nil
	}

	if c.TokenPath != "" {
		token, err := os.ReadFile(c.TokenPath)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token from file: %w", err)
		}
		return strings.TrimSpace(string(token)), nil
	}

	return "", fmt.Errorf("vault token not configured")
}
