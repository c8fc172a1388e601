// Package location addresses local files, in-memory buffers, HTTP(S)
// resources and S3 objects by string and answers metadata queries about
// them uniformly.
//
// Local metadata is read live from the filesystem. Remote metadata is
// fetched at most once per Location and kept until Refresh is called.
package location

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pithecene-io/locus/internal/compress"
	"github.com/pithecene-io/locus/locus"
	"github.com/pithecene-io/locus/locus/s3"
)

// Scheme identifies how a Location is addressed.
type Scheme string

const (
	SchemeLocal  Scheme = "local"
	SchemeMemory Scheme = "memory"
	SchemeHTTP   Scheme = "http"
	SchemeHTTPS  Scheme = "https"
	SchemeS3     Scheme = "s3"
)

// Remote reports whether the scheme is served over the network.
func (s Scheme) Remote() bool {
	return s == SchemeHTTP || s == SchemeHTTPS || s == SchemeS3
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type options struct {
	registry   *Registry
	doer       locus.Doer
	s3         s3.Config
	handleOpts []locus.Option
}

// Option configures a Location. Locations derived with Child,
// ParentLocation and CanonicalLocation inherit the options, registry
// included.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithRegistry resolves ids through r before scheme detection.
func WithRegistry(r *Registry) Option {
	return optionFunc(func(o *options) { o.registry = r })
}

// WithDoer sets the HTTP capability for http(s) Locations.
func WithDoer(d locus.Doer) Option {
	return optionFunc(func(o *options) { o.doer = d })
}

// WithS3Config sets the configuration for s3 Locations.
func WithS3Config(cfg s3.Config) Option {
	return optionFunc(func(o *options) { o.s3 = cfg })
}

// WithHandleOptions sets options passed to every handle opened from the
// Location.
func WithHandleOptions(opts ...locus.Option) Option {
	return optionFunc(func(o *options) { o.handleOpts = append(o.handleOpts, opts...) })
}

// -----------------------------------------------------------------------------
// Location
// -----------------------------------------------------------------------------

// metaCell memoizes remote metadata. It is populated by the first
// successful probe and emptied only by Refresh.
type metaCell struct {
	mu        sync.Mutex
	populated bool
	info      locus.ResourceInfo
}

// Location is one addressable resource. It holds no open resources and is
// safe for concurrent use.
type Location struct {
	raw    string
	scheme Scheme
	abs    string
	data   []byte
	ep     s3.Endpoint
	opts   options
	meta   *metaCell
}

// New creates a Location from a path, URL, or registered id.
//
// Ids registered with WithRegistry are resolved first. Then "s3://"
// selects S3, "http://" and "https://" select HTTP(S), and a string
// without "://" is a local path. Any other scheme is ErrMalformedURI.
func New(path string, opts ...Option) (*Location, error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&o)
		}
	}
	return newLocation(path, o)
}

func newLocation(path string, o options) (*Location, error) {
	id := path
	seen := map[string]bool{}
	for {
		m, ok := o.registry.Lookup(path)
		if !ok {
			break
		}
		if m.InMemory() {
			return &Location{raw: path, scheme: SchemeMemory, abs: path, data: m.Data, opts: o, meta: &metaCell{}}, nil
		}
		if seen[path] {
			return nil, fmt.Errorf("location: id %q resolves in a cycle: %w", id, locus.ErrMalformedURI)
		}
		seen[path] = true
		path = m.Path
	}

	l := &Location{raw: path, opts: o, meta: &metaCell{}}
	lower := strings.ToLower(path)
	switch {
	case strings.HasPrefix(lower, "s3://"):
		// The endpoint comes from the trimmed form so that Equal Locations
		// address the same object.
		l.abs = trimRemote(path)
		ep, err := o.s3.Parse(l.abs)
		if err != nil {
			return nil, err
		}
		l.scheme = SchemeS3
		l.ep = ep
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(path)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("location: %q: %w", path, locus.ErrMalformedURI)
		}
		l.scheme = SchemeHTTP
		if strings.HasPrefix(lower, "https://") {
			l.scheme = SchemeHTTPS
		}
		l.abs = trimRemote(path)
	case strings.Contains(path, "://"):
		return nil, fmt.Errorf("location: unsupported scheme in %q: %w", path, locus.ErrMalformedURI)
	default:
		if path == "" {
			return nil, fmt.Errorf("location: empty path: %w", locus.ErrMalformedURI)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("location: %q: %w", path, err)
		}
		l.scheme = SchemeLocal
		l.abs = abs
	}
	return l, nil
}

// NewChild creates the Location named name inside parent.
func NewChild(parent *Location, name string) (*Location, error) {
	return parent.Child(name)
}

// Child creates the Location named name inside l.
func (l *Location) Child(name string) (*Location, error) {
	switch {
	case l.scheme == SchemeMemory:
		return nil, fmt.Errorf("location: in-memory %q has no children: %w", l.abs, locus.ErrMalformedURI)
	case l.scheme.Remote():
		return newLocation(l.abs+"/"+strings.TrimPrefix(name, "/"), l.opts)
	default:
		return newLocation(filepath.Join(l.abs, name), l.opts)
	}
}

// Scheme returns how the Location is addressed.
func (l *Location) Scheme() Scheme { return l.scheme }

// Raw returns the string the Location was created from.
func (l *Location) Raw() string { return l.raw }

// -----------------------------------------------------------------------------
// Path operations
// -----------------------------------------------------------------------------

// AbsolutePath returns the absolute form of the Location: an absolute
// filesystem path, a URL without trailing slash, or the registered id.
func (l *Location) AbsolutePath() string { return l.abs }

// String returns AbsolutePath.
func (l *Location) String() string { return l.abs }

// Name returns the last element of the path. The root of a remote host
// is named after the host.
func (l *Location) Name() string {
	switch {
	case l.scheme == SchemeMemory:
		return l.abs
	case l.scheme.Remote():
		root, rest := splitRemote(l.abs)
		if rest == "" {
			return root[strings.Index(root, "://")+3:]
		}
		return rest[strings.LastIndex(rest, "/")+1:]
	default:
		if l.abs == filepath.Dir(l.abs) {
			return ""
		}
		return filepath.Base(l.abs)
	}
}

// Parent returns the absolute path of the enclosing Location, or "" when
// there is none. For every Location with a non-root parent,
// AbsolutePath() == Parent() + separator + Name().
func (l *Location) Parent() string {
	switch {
	case l.scheme == SchemeMemory:
		return ""
	case l.scheme.Remote():
		root, rest := splitRemote(l.abs)
		if rest == "" {
			return ""
		}
		i := strings.LastIndex(rest, "/")
		if i < 0 {
			return root
		}
		return root + "/" + rest[:i]
	default:
		dir := filepath.Dir(l.abs)
		if dir == l.abs {
			return ""
		}
		return dir
	}
}

// ParentLocation returns the enclosing Location, or nil when there is none.
func (l *Location) ParentLocation() *Location {
	p := l.Parent()
	if p == "" {
		return nil
	}
	parent, err := newLocation(p, l.opts)
	if err != nil {
		return nil
	}
	return parent
}

// CanonicalPath returns the absolute path with symbolic links resolved.
// When the path cannot be resolved (for example it does not exist, or the
// Location is remote) the absolute path is returned.
func (l *Location) CanonicalPath() string {
	if l.scheme != SchemeLocal {
		return l.abs
	}
	resolved, err := filepath.EvalSymlinks(l.abs)
	if err != nil {
		return l.abs
	}
	return resolved
}

// CanonicalLocation returns the Location at CanonicalPath.
func (l *Location) CanonicalLocation() *Location {
	c := l.CanonicalPath()
	if c == l.abs {
		return l
	}
	canon, err := newLocation(c, l.opts)
	if err != nil {
		return l
	}
	return canon
}

// URL returns the Location as a URL. Local paths use the file scheme and
// directories end in a slash.
func (l *Location) URL(ctx context.Context) (*url.URL, error) {
	switch l.scheme {
	case SchemeLocal:
		p := filepath.ToSlash(l.abs)
		dir, err := l.IsDirectory(ctx)
		if err != nil {
			return nil, err
		}
		if dir && !strings.HasSuffix(p, "/") {
			p += "/"
		}
		return &url.URL{Scheme: "file", Path: p}, nil
	case SchemeMemory:
		return &url.URL{Scheme: "memory", Opaque: l.abs}, nil
	default:
		u, err := url.Parse(l.abs)
		if err != nil {
			return nil, fmt.Errorf("location: %q: %w", l.abs, locus.ErrMalformedURI)
		}
		return u, nil
	}
}

// Equal reports whether both Locations have the same scheme and
// absolute path.
func (l *Location) Equal(other *Location) bool {
	if other == nil {
		return false
	}
	return l.scheme == other.scheme && l.abs == other.abs
}

// IsHidden reports whether the name starts with a dot.
func (l *Location) IsHidden() bool {
	return strings.HasPrefix(l.Name(), ".")
}

// -----------------------------------------------------------------------------
// Metadata
// -----------------------------------------------------------------------------

// Exists reports whether the resource exists. A missing remote resource
// is (false, nil); any other probe failure is returned.
func (l *Location) Exists(ctx context.Context) (bool, error) {
	switch l.scheme {
	case SchemeMemory:
		return true, nil
	case SchemeLocal:
		_, err := os.Stat(l.abs)
		if err == nil {
			return true, nil
		}
		if isNotExist(err) {
			return false, nil
		}
		return false, err
	default:
		info, err := l.remoteInfo(ctx)
		return info.Exists, err
	}
}

// IsDirectory reports whether the Location is an existing directory.
// Remote and in-memory Locations are never directories.
func (l *Location) IsDirectory(_ context.Context) (bool, error) {
	if l.scheme != SchemeLocal {
		return false, nil
	}
	info, err := os.Stat(l.abs)
	if err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// IsFile reports whether the Location exists and is not a directory.
func (l *Location) IsFile(ctx context.Context) (bool, error) {
	if l.scheme != SchemeLocal {
		return l.Exists(ctx)
	}
	info, err := os.Stat(l.abs)
	if err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// CanRead reports whether the resource can be read. Local paths use an
// access check; HTTP(S) resources are readable when reachable; S3
// objects are never reported readable.
func (l *Location) CanRead(ctx context.Context) (bool, error) {
	switch l.scheme {
	case SchemeLocal:
		return access(l.abs, false)
	case SchemeMemory:
		return true, nil
	case SchemeHTTP, SchemeHTTPS:
		return l.Exists(ctx)
	default:
		return false, nil
	}
}

// CanWrite reports whether the resource can be written. Only local paths
// and in-memory content are ever writable.
func (l *Location) CanWrite(_ context.Context) (bool, error) {
	switch l.scheme {
	case SchemeLocal:
		return access(l.abs, true)
	case SchemeMemory:
		return true, nil
	default:
		return false, nil
	}
}

// Length returns the resource size in bytes. Returns ErrNotFound when the
// resource does not exist.
func (l *Location) Length(ctx context.Context) (int64, error) {
	switch l.scheme {
	case SchemeMemory:
		return int64(len(l.data)), nil
	case SchemeLocal:
		info, err := os.Stat(l.abs)
		if err != nil {
			return 0, localErr(l.abs, err)
		}
		return info.Size(), nil
	default:
		info, err := l.remoteInfo(ctx)
		if err != nil {
			return 0, err
		}
		if !info.Exists {
			return 0, fmt.Errorf("location: %s: %w", l.abs, locus.ErrNotFound)
		}
		return info.Size, nil
	}
}

// LastModified returns the modification time, or the zero time when the
// backend does not report one.
func (l *Location) LastModified(ctx context.Context) (time.Time, error) {
	switch l.scheme {
	case SchemeMemory:
		return time.Time{}, nil
	case SchemeLocal:
		info, err := os.Stat(l.abs)
		if err != nil {
			return time.Time{}, localErr(l.abs, err)
		}
		return info.ModTime(), nil
	default:
		info, err := l.remoteInfo(ctx)
		if err != nil {
			return time.Time{}, err
		}
		if !info.Exists {
			return time.Time{}, fmt.Errorf("location: %s: %w", l.abs, locus.ErrNotFound)
		}
		return info.ModTime, nil
	}
}

// Refresh drops memoized remote metadata.
func (l *Location) Refresh() {
	l.meta.mu.Lock()
	defer l.meta.mu.Unlock()
	l.meta.populated = false
	l.meta.info = locus.ResourceInfo{}
}

// remoteInfo returns memoized metadata, probing the backend on first use.
// Failed probes are not memoized.
func (l *Location) remoteInfo(ctx context.Context) (locus.ResourceInfo, error) {
	l.meta.mu.Lock()
	defer l.meta.mu.Unlock()
	if l.meta.populated {
		return l.meta.info, nil
	}

	var (
		info locus.ResourceInfo
		err  error
	)
	switch l.scheme {
	case SchemeS3:
		info, err = s3.Stat(ctx, l.ep, l.opts.s3)
	default:
		info, err = locus.StatURL(ctx, l.abs, l.httpOptions()...)
	}
	if err != nil {
		return locus.ResourceInfo{}, err
	}
	l.meta.info = info
	l.meta.populated = true
	return info, nil
}

func (l *Location) httpOptions() []locus.Option {
	opts := append([]locus.Option(nil), l.opts.handleOpts...)
	if l.opts.doer != nil {
		opts = append(opts, locus.WithDoer(l.opts.doer))
	}
	return opts
}

// -----------------------------------------------------------------------------
// Listing
// -----------------------------------------------------------------------------

// List returns the names of the entries of a local directory, sorted.
// Anything that is not a listable directory yields nil without error.
func (l *Location) List(ctx context.Context, skipHidden bool) ([]string, error) {
	dir, err := l.IsDirectory(ctx)
	if err != nil || !dir {
		return nil, err
	}
	entries, err := os.ReadDir(l.abs)
	if err != nil {
		if isNotExist(err) || errors.Is(err, fs.ErrPermission) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if skipHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// ListFiles returns the entries of a local directory as Locations, in the
// same order as List(ctx, false).
func (l *Location) ListFiles(ctx context.Context) ([]*Location, error) {
	names, err := l.List(ctx, false)
	if err != nil || names == nil {
		return nil, err
	}
	out := make([]*Location, 0, len(names))
	for _, name := range names {
		child, err := l.Child(name)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Handles and mutation
// -----------------------------------------------------------------------------

// Open opens a fresh handle on the resource. Remote resources only
// support locus.ModeRead.
func (l *Location) Open(ctx context.Context, mode locus.Mode) (locus.Handle, error) {
	if _, err := locus.ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if l.scheme.Remote() && mode.Writable() {
		return nil, fmt.Errorf("location: open %s: %w", l.abs, locus.ErrReadOnly)
	}

	switch l.scheme {
	case SchemeLocal:
		return handle(locus.OpenFile(ctx, l.abs, mode, l.opts.handleOpts...))
	case SchemeMemory:
		opts := append([]locus.Option{locus.WithName(l.abs)}, l.opts.handleOpts...)
		return handle(locus.OpenBytes(l.data, mode, opts...))
	case SchemeS3:
		return handle(s3.OpenEndpoint(ctx, l.ep, l.opts.s3))
	default:
		return handle(locus.OpenURL(ctx, l.abs, l.httpOptions()...))
	}
}

// handle converts a concrete handle result into an interface result
// without wrapping a nil pointer.
func handle[H locus.Handle](h H, err error) (locus.Handle, error) {
	if err != nil {
		return nil, err
	}
	return h, nil
}

// OpenDecompressed opens the resource read-only and, when its name ends
// in a known compression extension (.gz, .bz2, .zst, .lz4), returns a handle
// over the inflated content instead.
func (l *Location) OpenDecompressed(ctx context.Context) (locus.Handle, error) {
	h, err := l.Open(ctx, locus.ModeRead)
	if err != nil {
		return nil, err
	}
	codec := compress.ForPath(l.abs)
	if codec.Extension() == "" {
		return h, nil
	}
	defer func() { _ = h.Close() }()
	return handle(locus.Decompress(ctx, h, codec.Name(), l.opts.handleOpts...))
}

// Mkdir creates the directory. Only local Locations can be created.
func (l *Location) Mkdir() error {
	if l.scheme != SchemeLocal {
		return fmt.Errorf("location: mkdir %s: %w", l.abs, locus.ErrReadOnly)
	}
	return os.Mkdir(l.abs, 0o755)
}

// MkdirAll creates the directory and any missing parents.
func (l *Location) MkdirAll() error {
	if l.scheme != SchemeLocal {
		return fmt.Errorf("location: mkdir %s: %w", l.abs, locus.ErrReadOnly)
	}
	return os.MkdirAll(l.abs, 0o755)
}

// Delete removes a file or empty directory. Only local Locations can be
// deleted.
func (l *Location) Delete() error {
	if l.scheme != SchemeLocal {
		return fmt.Errorf("location: delete %s: %w", l.abs, locus.ErrReadOnly)
	}
	if err := os.Remove(l.abs); err != nil {
		return localErr(l.abs, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// trimRemote strips trailing slashes after the authority.
func trimRemote(u string) string {
	root, rest := splitRemote(u)
	if rest == "" {
		return root
	}
	return root + "/" + rest
}

// splitRemote splits "scheme://authority/a/b/" into "scheme://authority"
// and "a/b".
func splitRemote(u string) (root, rest string) {
	i := strings.Index(u, "://")
	if i < 0 {
		return u, ""
	}
	after := u[i+3:]
	j := strings.Index(after, "/")
	if j < 0 {
		return u, ""
	}
	return u[:i+3+j], strings.Trim(after[j+1:], "/")
}

// isNotExist reports whether err means the path is missing, including a
// path that descends through a regular file.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func localErr(path string, err error) error {
	if isNotExist(err) {
		return fmt.Errorf("location: %s: %w", path, locus.ErrNotFound)
	}
	return err
}
