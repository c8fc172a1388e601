package locus_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/pithecene-io/locus/internal/compress"
	"github.com/pithecene-io/locus/locus"
)

func compressed(t *testing.T, c compress.Codec, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := c.Compress(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecompress(t *testing.T) {
	plain := []byte("line one\nline two\n")

	for _, name := range []string{"gzip", "zstd", "lz4", ""} {
		t.Run(name, func(t *testing.T) {
			codec, err := compress.ForName(name)
			if err != nil {
				t.Fatal(err)
			}
			src, err := locus.OpenBytes(compressed(t, codec, plain), locus.ModeRead, locus.WithName("data"+codec.Extension()))
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = src.Close() }()

			h, err := locus.Decompress(t.Context(), src, name)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			defer func() { _ = h.Close() }()

			if h.Name() != src.Name() {
				t.Errorf("Name = %q, want %q", h.Name(), src.Name())
			}
			got, err := io.ReadAll(h)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, plain) {
				t.Errorf("content = %q", got)
			}
		})
	}
}

func TestDecompress_UnknownFormat(t *testing.T) {
	src, err := locus.OpenBytes([]byte("x"), locus.ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := locus.Decompress(t.Context(), src, "rar"); err == nil {
		t.Error("expected error for unknown format")
	}
}
