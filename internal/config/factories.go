package config

import (
	"fmt"
	"log/slog"

	"github.com/mitchellh/mapstructure"

	"github.com/pithecene-io/locus/internal/transport"
	"github.com/pithecene-io/locus/locus"
	"github.com/pithecene-io/locus/locus/location"
	"github.com/pithecene-io/locus/locus/s3"
)

// awsOptions are the options accepted in the s3.aws section.
type awsOptions struct {
	Anonymous      bool `mapstructure:"anonymous"`
	ForcePathStyle bool `mapstructure:"force_path_style"`
}

// minioOptions are the options accepted in the s3.minio section.
type minioOptions struct {
	Anonymous bool `mapstructure:"anonymous"`
}

// NewS3Config builds the s3 handle configuration. The backend-specific
// section is decoded into the option struct of the selected backend;
// unknown keys are rejected.
func NewS3Config(cfg *Config, doer locus.Doer, logger *slog.Logger) (s3.Config, error) {
	out := s3.Config{
		Resolver:   s3.NewResolver(cfg.S3.DefaultServer),
		Server:     cfg.S3.Server,
		Region:     cfg.S3.Region,
		Backend:    cfg.S3.Backend,
		Doer:       doer,
		BufferSize: cfg.Handle.BufferSize,
		Logger:     logger,
	}

	switch cfg.S3.Backend {
	case s3.BackendAWS:
		var opts awsOptions
		if err := decodeOptions(cfg.S3.AWS, &opts); err != nil {
			return s3.Config{}, fmt.Errorf("config: s3.aws: %w", err)
		}
		out.Anonymous = opts.Anonymous
		out.ForcePathStyle = opts.ForcePathStyle
	case s3.BackendMinio:
		var opts minioOptions
		if err := decodeOptions(cfg.S3.Minio, &opts); err != nil {
			return s3.Config{}, fmt.Errorf("config: s3.minio: %w", err)
		}
		out.Anonymous = opts.Anonymous
	case s3.BackendHTTP:
	default:
		return s3.Config{}, fmt.Errorf("config: unknown s3 backend %q", cfg.S3.Backend)
	}
	return out, nil
}

func decodeOptions(options map[string]any, result any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           result,
	})
	if err != nil {
		return err
	}
	return dec.Decode(options)
}

// NewDoer builds the HTTP capability from the http section. Requests are
// logged to logger only when log_requests is set.
func NewDoer(cfg *Config, logger *slog.Logger) locus.Doer {
	tc := transport.Config{
		Timeout:           cfg.HTTP.Timeout,
		RequestsPerSecond: cfg.HTTP.RateLimit,
		Burst:             cfg.HTTP.Burst,
		MaxInFlight:       cfg.HTTP.MaxInFlight,
	}
	if cfg.HTTP.LogRequests {
		tc.Logger = logger
	}
	return transport.New(tc)
}

// NewRegistry builds the id registry from the registry section.
func NewRegistry(cfg *Config) *location.Registry {
	reg := location.NewRegistry()
	for id, path := range cfg.Registry {
		reg.MapID(id, path)
	}
	return reg
}
