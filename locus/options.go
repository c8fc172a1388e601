package locus

import (
	"errors"
	"log/slog"
)

// handleConfig holds the resolved configuration for a handle.
type handleConfig struct {
	bufferSize int
	logger     *slog.Logger
	doer       Doer
	name       string
}

func defaultHandleConfig() handleConfig {
	return handleConfig{
		bufferSize: DefaultBufferSize,
		logger:     slog.New(slog.DiscardHandler),
	}
}

func resolveOptions(opts []Option) (handleConfig, error) {
	cfg := defaultHandleConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyHandle(&cfg); err != nil {
			return handleConfig{}, err
		}
	}
	return cfg, nil
}

// Option configures handle construction.
type Option interface {
	applyHandle(*handleConfig) error
}

// bufferSizeOption implements Option for WithBufferSize.
type bufferSizeOption struct {
	size int
}

// WithBufferSize sets the size of the buffer window in bytes.
// The size must be positive. Default: DefaultBufferSize.
func WithBufferSize(n int) Option {
	return &bufferSizeOption{size: n}
}

func (o *bufferSizeOption) applyHandle(cfg *handleConfig) error {
	if o.size <= 0 {
		return errors.New("locus: buffer size must be positive")
	}
	cfg.bufferSize = o.size
	return nil
}

// loggerOption implements Option for WithLogger.
type loggerOption struct {
	logger *slog.Logger
}

// WithLogger sets the logger that receives debug records for backend
// fetches. Default: a logger that discards everything.
func WithLogger(l *slog.Logger) Option {
	return &loggerOption{logger: l}
}

func (o *loggerOption) applyHandle(cfg *handleConfig) error {
	if o.logger == nil {
		return errors.New("locus: logger must not be nil")
	}
	cfg.logger = o.logger
	return nil
}

// doerOption implements Option for WithDoer.
type doerOption struct {
	doer Doer
}

// WithDoer sets the HTTP capability used by OpenURL.
// Default: http.DefaultClient. Other constructors ignore it.
func WithDoer(d Doer) Option {
	return &doerOption{doer: d}
}

func (o *doerOption) applyHandle(cfg *handleConfig) error {
	if o.doer == nil {
		return errors.New("locus: doer must not be nil")
	}
	cfg.doer = o.doer
	return nil
}

// nameOption implements Option for WithName.
type nameOption struct {
	name string
}

// WithName overrides the name reported by the handle.
// Default: the path or URL for file and HTTP handles, "memory" for
// OpenBytes.
func WithName(name string) Option {
	return &nameOption{name: name}
}

func (o *nameOption) applyHandle(cfg *handleConfig) error {
	cfg.name = o.name
	return nil
}
