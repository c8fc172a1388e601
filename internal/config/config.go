// Package config loads the locus command configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (LOCUS_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// LOCUS_S3_REGION=eu-west-1.
const EnvPrefix = "LOCUS"

// Config is the complete locus configuration.
type Config struct {
	// Logging controls log output.
	Logging LoggingConfig `mapstructure:"logging"`

	// Handle holds defaults for every opened handle.
	Handle HandleConfig `mapstructure:"handle"`

	// HTTP configures the transport shared by http(s) Locations and the
	// S3 http backend.
	HTTP HTTPConfig `mapstructure:"http"`

	// S3 configures s3:// Locations.
	S3 S3Config `mapstructure:"s3"`

	// Registry maps virtual ids to real paths.
	Registry map[string]string `mapstructure:"registry" validate:"dive,keys,required,endkeys,required"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum level: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// HandleConfig holds handle defaults.
type HandleConfig struct {
	// BufferSize is the buffer window size in bytes.
	BufferSize int `mapstructure:"buffer_size" validate:"gt=0"`
}

// HTTPConfig configures outbound HTTP requests.
type HTTPConfig struct {
	// Timeout bounds each request. Zero disables the timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`

	// RateLimit is the sustained request rate per second. Zero disables
	// limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`

	// Burst is the number of requests allowed above RateLimit.
	Burst int `mapstructure:"burst" validate:"gte=0"`

	// MaxInFlight bounds concurrent requests. Zero means unbounded.
	MaxInFlight int `mapstructure:"max_in_flight" validate:"gte=0"`

	// LogRequests logs every request at debug level.
	LogRequests bool `mapstructure:"log_requests"`
}

// S3Config selects and configures the S3 backend.
//
// Backend-specific settings live in the section named after the backend
// and only that section is used.
type S3Config struct {
	// Backend is aws, minio or http.
	Backend string `mapstructure:"backend" validate:"required,oneof=aws minio http"`

	// DefaultServer is the server used for non-local URIs.
	DefaultServer string `mapstructure:"default_server" validate:"omitempty,url"`

	// Server overrides the server for every URI.
	Server string `mapstructure:"server"`

	// Region is the signing region.
	Region string `mapstructure:"region" validate:"required"`

	// AWS contains aws-sdk backend options. Only used when Backend = "aws".
	AWS map[string]any `mapstructure:"aws"`

	// Minio contains minio-go backend options. Only used when
	// Backend = "minio".
	Minio map[string]any `mapstructure:"minio"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath searches the default location; a missing default
// file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	// LOCUS_S3_REGION overrides s3.region.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only consults the environment for keys viper knows about.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"handle.buffer_size",
		"http.timeout", "http.rate_limit", "http.burst", "http.max_in_flight", "http.log_requests",
		"s3.backend", "s3.default_server", "s3.server", "s3.region",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", configPath, err)
	}
	return nil
}

// ConfigDir returns $XDG_CONFIG_HOME/locus, ~/.config/locus, or "." when
// no home directory can be determined.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "locus")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "locus")
}
