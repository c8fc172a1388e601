// Package testutil provides helpers for examples and tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// RemoveAll removes the path and any children. Errors are ignored.
// Use for defer cleanup in examples and tests.
//
// Usage:
//
//	defer testutil.RemoveAll(tmpDir)
func RemoveAll(path string) { _ = os.RemoveAll(path) }

// WriteFile writes data to name under dir, creating parent directories,
// and returns the full path. It fails the test on error.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// UTF16Letters returns n UTF-16BE code units spelling 'a', 'b', 'c', ...
// wrapping after 'z'.
func UTF16Letters(n int) []byte {
	out := make([]byte, 0, 2*n)
	for i := range n {
		out = append(out, 0, byte('a'+i%26))
	}
	return out
}
