// Package transport builds the HTTP capability handed to http(s) handles
// and the S3 backends.
//
// The core packages make no policy decisions about timeouts or request
// rates; those are layered here around a plain *http.Client.
package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/pithecene-io/locus/locus"
)

// Config configures a Doer.
type Config struct {
	// Timeout bounds each request. Zero disables the timeout.
	Timeout time.Duration

	// RequestsPerSecond is the sustained request rate. Zero disables
	// limiting.
	RequestsPerSecond float64

	// Burst is the number of requests allowed above the sustained rate.
	// Default: 1.
	Burst int

	// MaxInFlight bounds concurrent requests. Zero means unbounded.
	MaxInFlight int

	// Logger receives one debug record per request when set.
	Logger *slog.Logger

	// Base is the innermost Doer. Default: an *http.Client with Timeout.
	Base locus.Doer
}

// New builds a Doer from cfg. Layers apply outermost first: logging, then
// the in-flight bound, then the rate limit.
func New(cfg Config) locus.Doer {
	var d locus.Doer = cfg.Base
	if d == nil {
		d = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.RequestsPerSecond > 0 {
		d = RateLimited(d, cfg.RequestsPerSecond, cfg.Burst)
	}
	if cfg.MaxInFlight > 0 {
		d = Bounded(d, cfg.MaxInFlight)
	}
	if cfg.Logger != nil {
		d = Logged(d, cfg.Logger)
	}
	return d
}

// -----------------------------------------------------------------------------
// Rate limiting
// -----------------------------------------------------------------------------

type rateLimited struct {
	next    locus.Doer
	limiter *rate.Limiter
}

// RateLimited wraps next so requests start at most rps times per second,
// with the given burst. Waiting honors the request context.
func RateLimited(next locus.Doer, rps float64, burst int) locus.Doer {
	if burst <= 0 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimited) Do(req *http.Request) (*http.Response, error) {
	if err := r.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("transport: rate limit: %w", err)
	}
	return r.next.Do(req)
}

// -----------------------------------------------------------------------------
// In-flight bound
// -----------------------------------------------------------------------------

type bounded struct {
	next locus.Doer
	sem  *semaphore.Weighted
}

// Bounded wraps next so at most n requests run at once. A slot is held
// until the response body is closed.
func Bounded(next locus.Doer, n int) locus.Doer {
	return &bounded{next: next, sem: semaphore.NewWeighted(int64(n))}
}

func (b *bounded) Do(req *http.Request) (*http.Response, error) {
	if err := b.sem.Acquire(req.Context(), 1); err != nil {
		return nil, fmt.Errorf("transport: acquire slot: %w", err)
	}
	resp, err := b.next.Do(req)
	if err != nil {
		b.sem.Release(1)
		return nil, err
	}
	resp.Body = &releaseBody{ReadCloser: resp.Body, release: func() { b.sem.Release(1) }}
	return resp, nil
}

// -----------------------------------------------------------------------------
// Logging
// -----------------------------------------------------------------------------

type logged struct {
	next   locus.Doer
	logger *slog.Logger
}

// Logged wraps next so every request is logged at debug level with its
// method, URL, range, status and duration.
func Logged(next locus.Doer, logger *slog.Logger) locus.Doer {
	return &logged{next: next, logger: logger}
}

func (l *logged) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := l.next.Do(req)
	attrs := []any{
		"method", req.Method,
		"url", req.URL.Redacted(),
		"duration", time.Since(start),
	}
	if r := req.Header.Get("Range"); r != "" {
		attrs = append(attrs, "range", r)
	}
	if err != nil {
		l.logger.DebugContext(req.Context(), "http request failed", append(attrs, "error", err)...)
		return nil, err
	}
	l.logger.DebugContext(req.Context(), "http request", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
