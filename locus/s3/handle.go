// Package s3 provides random-access handles over objects in S3-compatible
// object stores.
//
// An s3:// URI is decomposed into an Endpoint by a Resolver without any
// network access. Bytes are then fetched with ranged requests through one
// of three backends:
//
//   - "aws": aws-sdk-go-v2 GetObject/HeadObject (default)
//   - "minio": minio-go GetObject/StatObject
//   - "http": unsigned ranged GETs against the path-style object URL
//
// Handles are read-only.
package s3

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/pithecene-io/locus/locus"
)

// Backend names accepted by Config.Backend.
const (
	BackendAWS   = "aws"
	BackendMinio = "minio"
	BackendHTTP  = "http"
)

// Config holds configuration for S3 handles.
type Config struct {
	// Resolver parses URIs. The zero value resolves against DefaultServer.
	Resolver Resolver

	// Server overrides the resolved server (virtual-host resolution).
	Server string

	// Region is the signing region. Default: DefaultRegion.
	Region string

	// Backend selects the object client: BackendAWS (default),
	// BackendMinio, or BackendHTTP.
	Backend string

	// Anonymous disables request signing when the URI has no credentials.
	Anonymous bool

	// ForcePathStyle uses path-style addressing against the default server.
	ForcePathStyle bool

	// Client replaces the aws-sdk client. Only used by BackendAWS.
	Client API

	// Doer carries HTTP requests for BackendHTTP and BackendAWS.
	Doer locus.Doer

	// BufferSize is the handle buffer window size. Default:
	// locus.DefaultBufferSize.
	BufferSize int

	// Logger receives handle debug records. Default: discard.
	Logger *slog.Logger
}

func (c Config) region() string {
	if c.Region == "" {
		return DefaultRegion
	}
	return c.Region
}

func (c Config) backend() string {
	if c.Backend == "" {
		return BackendAWS
	}
	return c.Backend
}

// Parse resolves uri with the configured resolver and server override.
func (c Config) Parse(uri string) (Endpoint, error) {
	return NewResolver(c.Resolver.DefaultServer).Parse(uri, c.Server)
}

func (c Config) handleOptions(name string) []locus.Option {
	opts := []locus.Option{locus.WithName(name)}
	if c.BufferSize != 0 {
		opts = append(opts, locus.WithBufferSize(c.BufferSize))
	}
	if c.Logger != nil {
		opts = append(opts, locus.WithLogger(c.Logger))
	}
	if c.Doer != nil {
		opts = append(opts, locus.WithDoer(c.Doer))
	}
	return opts
}

// -----------------------------------------------------------------------------
// Handle
// -----------------------------------------------------------------------------

// Handle is a read-only locus.Handle over one S3 object.
//
// The endpoint accessors never perform I/O.
type Handle struct {
	*locus.BufferedHandle
	ep Endpoint
}

var _ locus.Handle = (*Handle)(nil)

// New parses uri and returns a handle over the object it names. No network
// request is made until the first read or length query.
func New(uri string, cfg Config) (*Handle, error) {
	return Open(context.Background(), uri, cfg)
}

// Open is New with a context used for every backend request made through
// the handle.
func Open(ctx context.Context, uri string, cfg Config) (*Handle, error) {
	ep, err := cfg.Parse(uri)
	if err != nil {
		return nil, err
	}
	return OpenEndpoint(ctx, ep, cfg)
}

// OpenEndpoint returns a handle over an already resolved endpoint.
func OpenEndpoint(ctx context.Context, ep Endpoint, cfg Config) (*Handle, error) {
	name := ep.String()
	opts := cfg.handleOptions(name)

	if cfg.backend() == BackendHTTP {
		h, err := locus.OpenURL(ctx, ObjectURL(ep), opts...)
		if err != nil {
			return nil, err
		}
		return &Handle{BufferedHandle: h, ep: ep}, nil
	}

	src, err := newSource(ep, cfg)
	if err != nil {
		return nil, err
	}
	h, err := locus.NewHandle(ctx, src, name, locus.KindS3, locus.ModeRead, opts...)
	if err != nil {
		return nil, err
	}
	return &Handle{BufferedHandle: h, ep: ep}, nil
}

// Kind returns locus.KindS3 regardless of the backend.
func (h *Handle) Kind() locus.Kind { return locus.KindS3 }

// Server returns the resolved server, without port.
func (h *Handle) Server() string { return h.ep.Server }

// Port returns the explicit port, or 0.
func (h *Handle) Port() int { return h.ep.Port }

// Bucket returns the bucket name.
func (h *Handle) Bucket() string { return h.ep.Bucket }

// Path returns the object key.
func (h *Handle) Path() string { return h.ep.Key }

// Endpoint returns the full endpoint.
func (h *Handle) Endpoint() Endpoint { return h.ep }

// -----------------------------------------------------------------------------
// Metadata
// -----------------------------------------------------------------------------

// Stat reports the metadata of the object at ep. A missing bucket or key
// is reported as Exists == false with a nil error; any other failure is
// returned.
func Stat(ctx context.Context, ep Endpoint, cfg Config) (locus.ResourceInfo, error) {
	if cfg.backend() == BackendHTTP {
		return locus.StatURL(ctx, ObjectURL(ep), cfg.handleOptions(ep.String())...)
	}
	src, err := newSource(ep, cfg)
	if err != nil {
		return locus.ResourceInfo{}, err
	}
	info, err := src.stat(ctx)
	if err != nil {
		return locus.ResourceInfo{}, &locus.BackendIOError{Op: "stat", Name: ep.String(), Err: err}
	}
	return info, nil
}

// ObjectURL returns the path-style HTTP URL of the object.
func ObjectURL(ep Endpoint) string {
	segments := strings.Split(ep.Key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := ep.BaseURL() + "/" + url.PathEscape(ep.Bucket)
	if ep.Key != "" {
		u += "/" + strings.Join(segments, "/")
	}
	return u
}

func newSource(ep Endpoint, cfg Config) (objectSource, error) {
	switch cfg.backend() {
	case BackendAWS:
		return &awsSource{ep: ep, cfg: cfg, client: cfg.Client}, nil
	case BackendMinio:
		return &minioSource{ep: ep, cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("s3: unknown backend %q", cfg.Backend)
	}
}
