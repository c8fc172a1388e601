package config

import (
	"strings"

	"github.com/pithecene-io/locus/locus"
	"github.com/pithecene-io/locus/locus/s3"
)

// ApplyDefaults fills zero-valued fields. Explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)

	if cfg.Handle.BufferSize == 0 {
		cfg.Handle.BufferSize = locus.DefaultBufferSize
	}

	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.Burst == 0 {
		cfg.HTTP.Burst = 1
	}

	applyS3Defaults(&cfg.S3)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyS3Defaults(cfg *S3Config) {
	if cfg.Backend == "" {
		cfg.Backend = s3.BackendAWS
	}
	cfg.Backend = strings.ToLower(cfg.Backend)

	if cfg.DefaultServer == "" {
		cfg.DefaultServer = s3.DefaultServer
	}
	if cfg.Region == "" {
		cfg.Region = s3.DefaultRegion
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}
