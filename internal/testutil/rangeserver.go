package testutil

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// RangeServer is an httptest server that serves in-memory files with
// Range support and counts the requests it receives. Every file carries a
// strong ETag derived from its content, so If-Range requests against a
// replaced file receive the full new body.
type RangeServer struct {
	*httptest.Server

	// DisableHead makes HEAD requests fail with 405.
	DisableHead atomic.Bool

	// IgnoreRange makes GET requests return the full body with 200.
	IgnoreRange atomic.Bool

	mu      sync.Mutex
	files   map[string][]byte
	modTime time.Time

	gets  atomic.Int64
	heads atomic.Int64
}

// NewRangeServer starts a RangeServer that is closed when the test ends.
func NewRangeServer(t testing.TB) *RangeServer {
	t.Helper()
	s := &RangeServer{
		files:   make(map[string][]byte),
		modTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Put registers data under name (leading slash optional).
func (s *RangeServer) Put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files["/"+strings.TrimPrefix(name, "/")] = data
}

// FileURL returns the URL that serves name.
func (s *RangeServer) FileURL(name string) string {
	return s.URL + "/" + strings.TrimPrefix(name, "/")
}

// ModTime returns the Last-Modified time reported for every file.
func (s *RangeServer) ModTime() time.Time {
	return s.modTime
}

// Gets returns the number of GET requests served.
func (s *RangeServer) Gets() int64 { return s.gets.Load() }

// Heads returns the number of HEAD requests served.
func (s *RangeServer) Heads() int64 { return s.heads.Load() }

// ResetCounts zeroes the request counters.
func (s *RangeServer) ResetCounts() {
	s.gets.Store(0)
	s.heads.Store(0)
}

func (s *RangeServer) serve(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.gets.Add(1)
	case http.MethodHead:
		s.heads.Add(1)
		if s.DisableHead.Load() {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	data, ok := s.files[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	if r.Method == http.MethodGet && s.IgnoreRange.Load() {
		w.Header().Set("Last-Modified", s.modTime.Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	w.Header().Set("ETag", fmt.Sprintf(`"%08x"`, crc32.ChecksumIEEE(data)))
	http.ServeContent(w, r, r.URL.Path, s.modTime, bytes.NewReader(data))
}
