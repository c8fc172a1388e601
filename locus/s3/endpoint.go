package s3

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pithecene-io/locus/locus"
)

// DefaultServer is the server used for URIs that do not name a local
// endpoint and are parsed without an override.
const DefaultServer = "https://s3.amazonaws.com"

const (
	scheme          = "s3://"
	localhost       = "localhost"
	localhostSuffix = ".localhost"
)

// Endpoint is the decomposition of an s3:// URI.
//
// It is produced by parsing alone; no field requires network access.
type Endpoint struct {
	// Server is the scheme and host of the object store, without port.
	Server string

	// Port is the explicit port, or 0 for the scheme default.
	Port int

	// Bucket is the bucket name.
	Bucket string

	// Key is the object key within the bucket. It may be empty.
	Key string

	// AccessKey and SecretKey are credentials taken from the URI userinfo.
	AccessKey string
	SecretKey string
}

// BaseURL returns the server URL including the port when one is set.
func (e Endpoint) BaseURL() string {
	if e.Port == 0 {
		return e.Server
	}
	return e.Server + ":" + strconv.Itoa(e.Port)
}

// HostPort returns the server host with its port, as expected by clients
// that take a bare endpoint address. The scheme default port is used when
// Port is 0.
func (e Endpoint) HostPort() string {
	host := e.Server
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if e.Port != 0 {
		return net.JoinHostPort(host, strconv.Itoa(e.Port))
	}
	return host
}

// Secure reports whether the server uses https.
func (e Endpoint) Secure() bool {
	return strings.HasPrefix(strings.ToLower(e.Server), "https://")
}

// HasCredentials reports whether the URI carried an access key.
func (e Endpoint) HasCredentials() bool {
	return e.AccessKey != ""
}

// IsDefault reports whether the endpoint resolved to DefaultServer.
func (e Endpoint) IsDefault() bool {
	return e.Server == DefaultServer && e.Port == 0
}

// String returns the endpoint as an s3:// URI against its server, with
// the secret key redacted.
func (e Endpoint) String() string {
	var b strings.Builder
	b.WriteString(scheme)
	if e.HasCredentials() {
		b.WriteString(e.AccessKey)
		if e.SecretKey != "" {
			b.WriteString(":***")
		}
		b.WriteByte('@')
	}
	b.WriteString(e.Bucket)
	if e.Key != "" {
		b.WriteByte('/')
		b.WriteString(e.Key)
	}
	b.WriteString(" (")
	b.WriteString(e.BaseURL())
	b.WriteByte(')')
	return b.String()
}

// -----------------------------------------------------------------------------
// Resolver
// -----------------------------------------------------------------------------

// Resolver parses s3:// URIs into Endpoints.
type Resolver struct {
	// DefaultServer is used when the URI names neither a local endpoint nor
	// is parsed with an override.
	DefaultServer string
}

// NewResolver returns a Resolver with the given default server. An empty
// server selects DefaultServer.
func NewResolver(defaultServer string) Resolver {
	if defaultServer == "" {
		defaultServer = DefaultServer
	}
	return Resolver{DefaultServer: defaultServer}
}

// Parse parses uri with the package DefaultServer.
func Parse(uri, serverOverride string) (Endpoint, error) {
	return NewResolver(DefaultServer).Parse(uri, serverOverride)
}

// Parse decomposes uri into an Endpoint.
//
// A host of "localhost", a host ending in ".localhost", or a non-empty
// serverOverride selects virtual-host resolution: the bucket is the host
// without ".localhost" (the first path segment for bare "localhost") and
// the server is http://localhost or the override. Any other host is the
// bucket on the default server.
func (r Resolver) Parse(uri, serverOverride string) (Endpoint, error) {
	if !strings.HasPrefix(uri, scheme) {
		return Endpoint{}, malformed(uri, "missing s3:// scheme")
	}
	rest := uri[len(scheme):]

	var ep Endpoint
	authority, path, _ := strings.Cut(rest, "/")
	if i := strings.LastIndex(authority, "@"); i >= 0 {
		userinfo := authority[:i]
		authority = authority[i+1:]
		ep.AccessKey, ep.SecretKey, _ = strings.Cut(userinfo, ":")
	}

	host, port, err := splitPort(authority)
	if err != nil {
		return Endpoint{}, malformed(uri, err.Error())
	}

	virtual := serverOverride != "" || host == localhost || strings.HasSuffix(host, localhostSuffix)
	if !virtual {
		if port != 0 {
			return Endpoint{}, malformed(uri, "a port needs a .localhost host or a server override")
		}
		server := r.DefaultServer
		if server == "" {
			server = DefaultServer
		}
		ep.Server = server
		ep.Bucket = host
		ep.Key = path
	} else {
		server, overridePort, err := resolveServer(serverOverride)
		if err != nil {
			return Endpoint{}, malformed(uri, err.Error())
		}
		ep.Server = server
		ep.Port = port
		if ep.Port == 0 {
			ep.Port = overridePort
		}
		if host == localhost {
			ep.Bucket, ep.Key, _ = strings.Cut(path, "/")
		} else {
			ep.Bucket = strings.TrimSuffix(host, localhostSuffix)
			ep.Key = path
		}
	}

	if ep.Bucket == "" {
		return Endpoint{}, malformed(uri, "empty bucket")
	}
	return ep, nil
}

// resolveServer returns the server and port for virtual-host resolution.
func resolveServer(override string) (string, int, error) {
	if override == "" {
		return "http://" + localhost, 0, nil
	}
	prefix := "http://"
	rest := override
	if i := strings.Index(override, "://"); i >= 0 {
		prefix = override[:i+3]
		rest = override[i+3:]
	}
	rest = strings.TrimSuffix(rest, "/")
	host, port, err := splitPort(rest)
	if err != nil {
		return "", 0, fmt.Errorf("server override: %w", err)
	}
	if host == "" {
		return "", 0, fmt.Errorf("server override %q has no host", override)
	}
	return prefix + host, port, nil
}

// splitPort splits "host[:port]". A missing port is 0.
func splitPort(hostport string) (string, int, error) {
	i := strings.LastIndex(hostport, ":")
	if i < 0 {
		return hostport, 0, nil
	}
	host, portStr := hostport[:i], hostport[i+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

func malformed(uri, reason string) error {
	return fmt.Errorf("s3: parse %q: %w: %s", redact(uri), locus.ErrMalformedURI, reason)
}

// redact hides the secret key of a URI for error messages.
func redact(uri string) string {
	rest, ok := strings.CutPrefix(uri, scheme)
	if !ok {
		return uri
	}
	authority, path, hasPath := strings.Cut(rest, "/")
	i := strings.LastIndex(authority, "@")
	if i < 0 {
		return uri
	}
	user, _, hasSecret := strings.Cut(authority[:i], ":")
	if hasSecret {
		user += ":***"
	}
	out := scheme + user + authority[i:]
	if hasPath {
		out += "/" + path
	}
	return out
}
