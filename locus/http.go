package locus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Doer issues one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResourceInfo is the metadata of a remote resource.
type ResourceInfo struct {
	// Exists is false when the backend reported the resource missing.
	Exists bool

	// Size is the resource length in bytes.
	Size int64

	// ModTime is the last modification time, zero when unknown.
	ModTime time.Time
}

// -----------------------------------------------------------------------------
// HTTP(S) backend
// -----------------------------------------------------------------------------

// httpSource implements Source with ranged GET requests.
//
// The first strong ETag the server reports is remembered and sent as
// If-Range on later fetches, so a resource replaced mid-read fails with
// ErrChanged instead of mixing bytes from two versions.
type httpSource struct {
	url  string
	doer Doer
	etag string
}

func (s *httpSource) do(ctx context.Context, method string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return s.doer.Do(req)
}

func (s *httpSource) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1))
	if s.etag != "" {
		header.Set("If-Range", s.etag)
	}

	resp, err := s.do(ctx, http.MethodGet, header)
	if err != nil {
		return 0, err
	}
	defer closer(resp.Body)()

	switch resp.StatusCode {
	case http.StatusPartialContent, http.StatusOK:
		if err := s.checkVersion(resp.Header); err != nil {
			return 0, err
		}
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		start, err := rangeStart(resp.Header.Get("Content-Range"))
		if err != nil {
			return 0, fmt.Errorf("http: get %s: %w", s.url, err)
		}
		if start != off {
			return 0, fmt.Errorf("http: get %s: response range starts at %d, requested %d", s.url, start, off)
		}
		return readBody(resp.Body, p)
	case http.StatusOK:
		// Server ignored the Range header; skip to the offset.
		if _, err := io.CopyN(io.Discard, resp.Body, off); err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, err
		}
		return readBody(resp.Body, p)
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	case http.StatusNotFound, http.StatusGone:
		return 0, fmt.Errorf("http: get %s: %w", s.url, ErrNotFound)
	default:
		return 0, fmt.Errorf("http: get %s: unexpected status %s", s.url, resp.Status)
	}
}

// checkVersion remembers the first strong ETag and fails with ErrChanged
// when a later response carries a different one.
func (s *httpSource) checkVersion(h http.Header) error {
	etag := strongETag(h)
	switch {
	case etag == "":
		return nil
	case s.etag == "":
		s.etag = etag
		return nil
	case etag != s.etag:
		return fmt.Errorf("http: get %s: etag %s, expected %s: %w", s.url, etag, s.etag, ErrChanged)
	default:
		return nil
	}
}

// strongETag returns the ETag header unless it is missing or weak. Weak
// validators cannot be used with If-Range.
func strongETag(h http.Header) string {
	etag := h.Get("ETag")
	if strings.HasPrefix(etag, "W/") {
		return ""
	}
	return etag
}

// rangeStart parses the first byte position of a Content-Range header
// such as "bytes 10-19/100".
func rangeStart(v string) (int64, error) {
	spec, ok := strings.CutPrefix(v, "bytes ")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", v)
	}
	first, _, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", v)
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Range %q", v)
	}
	return start, nil
}

func readBody(r io.Reader, p []byte) (int, error) {
	n, err := io.ReadFull(r, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return n, io.EOF
	}
	return n, err
}

func (s *httpSource) Size(ctx context.Context) (int64, error) {
	info, err := s.stat(ctx)
	if err != nil {
		return 0, err
	}
	if !info.Exists {
		return 0, fmt.Errorf("http: size %s: %w", s.url, ErrNotFound)
	}
	return info.Size, nil
}

// stat issues a HEAD request, falling back to a full GET when HEAD is
// refused or carries no Content-Length.
func (s *httpSource) stat(ctx context.Context) (ResourceInfo, error) {
	resp, err := s.do(ctx, http.MethodHead, nil)
	if err != nil {
		return ResourceInfo{}, err
	}
	closer(resp.Body)()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ResourceInfo{}, nil
	case resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented:
		return s.statByGet(ctx)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if resp.ContentLength < 0 {
			return s.statByGet(ctx)
		}
		// A length probe adopts the current version, so Refresh recovers
		// from ErrChanged.
		s.etag = strongETag(resp.Header)
		return ResourceInfo{
			Exists:  true,
			Size:    resp.ContentLength,
			ModTime: lastModified(resp.Header),
		}, nil
	default:
		return ResourceInfo{}, fmt.Errorf("http: head %s: unexpected status %s", s.url, resp.Status)
	}
}

func (s *httpSource) statByGet(ctx context.Context) (ResourceInfo, error) {
	resp, err := s.do(ctx, http.MethodGet, nil)
	if err != nil {
		return ResourceInfo{}, err
	}
	defer closer(resp.Body)()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ResourceInfo{}, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return ResourceInfo{}, fmt.Errorf("http: get %s: unexpected status %s", s.url, resp.Status)
	}

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return ResourceInfo{}, fmt.Errorf("http: get %s: %w", s.url, err)
	}
	s.etag = strongETag(resp.Header)
	return ResourceInfo{Exists: true, Size: n, ModTime: lastModified(resp.Header)}, nil
}

func (s *httpSource) Close() error {
	return nil
}

func lastModified(h http.Header) time.Time {
	v := h.Get("Last-Modified")
	if v == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func newHTTPSource(rawURL string, cfg handleConfig) (*httpSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURI, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an http(s) url", ErrMalformedURI, rawURL)
	}
	doer := cfg.doer
	if doer == nil {
		doer = http.DefaultClient
	}
	return &httpSource{url: rawURL, doer: doer}, nil
}

// OpenURL opens an HTTP(S) resource as a read-only Handle.
//
// No request is made until the first read or length query. The length is
// learned with a HEAD request and memoized.
func OpenURL(ctx context.Context, rawURL string, opts ...Option) (*BufferedHandle, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	src, err := newHTTPSource(rawURL, cfg)
	if err != nil {
		return nil, err
	}
	return NewHandle(ctx, src, rawURL, KindHTTP, ModeRead, opts...)
}

// StatURL reports the metadata of an HTTP(S) resource. A 404 or 410 is
// reported as Exists == false with a nil error.
func StatURL(ctx context.Context, rawURL string, opts ...Option) (ResourceInfo, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return ResourceInfo{}, err
	}
	src, err := newHTTPSource(rawURL, cfg)
	if err != nil {
		return ResourceInfo{}, err
	}
	info, err := src.stat(ctx)
	if err != nil {
		return ResourceInfo{}, &BackendIOError{Op: "stat", Name: rawURL, Err: err}
	}
	return info, nil
}
