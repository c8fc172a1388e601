// Package compress provides the stream codecs used to inflate compressed
// resources.
package compress

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses and decompresses one stream format.
type Codec interface {
	// Name returns the codec identifier ("gzip", "bzip2", "zstd", "lz4",
	// "noop").
	Name() string

	// Extension returns the file extension including the dot, or "" for noop.
	Extension() string

	// Compress wraps w so that written bytes are compressed.
	Compress(w io.Writer) (io.WriteCloser, error)

	// Decompress wraps r so that read bytes are decompressed.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// ErrUnknownCodec indicates a codec name that is not registered.
var ErrUnknownCodec = errors.New("unknown codec")

// -----------------------------------------------------------------------------
// Gzip
// -----------------------------------------------------------------------------

// Gzip implements Codec using gzip.
type Gzip struct{}

// NewGzip creates a gzip codec.
func NewGzip() *Gzip {
	return &Gzip{}
}

// Name returns the codec identifier.
func (g *Gzip) Name() string {
	return "gzip"
}

// Extension returns the file extension for gzip.
func (g *Gzip) Extension() string {
	return ".gz"
}

// Compress wraps a writer with gzip compression.
func (g *Gzip) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

// Decompress wraps a reader with gzip decompression.
func (g *Gzip) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// -----------------------------------------------------------------------------
// Bzip2
// -----------------------------------------------------------------------------

// Bzip2 implements Codec using bzip2.
type Bzip2 struct{}

// NewBzip2 creates a bzip2 codec.
func NewBzip2() *Bzip2 {
	return &Bzip2{}
}

// Name returns the codec identifier.
func (b *Bzip2) Name() string {
	return "bzip2"
}

// Extension returns the file extension for bzip2.
func (b *Bzip2) Extension() string {
	return ".bz2"
}

// Compress wraps a writer with bzip2 compression.
func (b *Bzip2) Compress(w io.Writer) (io.WriteCloser, error) {
	return bzip2.NewWriter(w, nil)
}

// Decompress wraps a reader with bzip2 decompression.
func (b *Bzip2) Decompress(r io.Reader) (io.ReadCloser, error) {
	return bzip2.NewReader(r, nil)
}

// -----------------------------------------------------------------------------
// Zstd
// -----------------------------------------------------------------------------

// Zstd implements Codec using Zstandard.
type Zstd struct{}

// NewZstd creates a zstd codec.
func NewZstd() *Zstd {
	return &Zstd{}
}

// Name returns the codec identifier.
func (z *Zstd) Name() string {
	return "zstd"
}

// Extension returns the file extension for zstd.
func (z *Zstd) Extension() string {
	return ".zst"
}

// Compress wraps a writer with zstd compression.
func (z *Zstd) Compress(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

// Decompress wraps a reader with zstd decompression.
func (z *Zstd) Decompress(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &zstdReadCloser{dec: dec}, nil
}

// zstdReadCloser adapts *zstd.Decoder, whose Close returns nothing.
type zstdReadCloser struct {
	dec *zstd.Decoder
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return nil
}

// -----------------------------------------------------------------------------
// LZ4
// -----------------------------------------------------------------------------

// LZ4 implements Codec using the LZ4 frame format.
type LZ4 struct{}

// NewLZ4 creates an lz4 codec.
func NewLZ4() *LZ4 {
	return &LZ4{}
}

// Name returns the codec identifier.
func (l *LZ4) Name() string {
	return "lz4"
}

// Extension returns the file extension for lz4.
func (l *LZ4) Extension() string {
	return ".lz4"
}

// Compress wraps a writer with lz4 frame compression.
func (l *LZ4) Compress(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

// Decompress wraps a reader with lz4 frame decompression.
func (l *LZ4) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

// -----------------------------------------------------------------------------
// Noop
// -----------------------------------------------------------------------------

// Noop implements Codec with no compression.
type Noop struct{}

// NewNoop creates a noop codec.
func NewNoop() *Noop {
	return &Noop{}
}

// Name returns the codec identifier.
func (n *Noop) Name() string {
	return "noop"
}

// Extension returns an empty extension (no compression).
func (n *Noop) Extension() string {
	return ""
}

// Compress returns a writer that passes through unchanged.
func (n *Noop) Compress(w io.Writer) (io.WriteCloser, error) {
	return &noopWriteCloser{w}, nil
}

// Decompress returns a reader that passes through unchanged.
func (n *Noop) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

// noopWriteCloser wraps a writer to implement WriteCloser.
type noopWriteCloser struct {
	io.Writer
}

func (n *noopWriteCloser) Close() error {
	return nil
}

// -----------------------------------------------------------------------------
// Lookup
// -----------------------------------------------------------------------------

// ForName returns the codec registered under name. The empty string and
// "none" select Noop.
func ForName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "none", "noop":
		return NewNoop(), nil
	case "gzip", "gz":
		return NewGzip(), nil
	case "bzip2", "bz2":
		return NewBzip2(), nil
	case "zstd", "zst":
		return NewZstd(), nil
	case "lz4":
		return NewLZ4(), nil
	default:
		return nil, fmt.Errorf("compress: %w: %q", ErrUnknownCodec, name)
	}
}

// ForPath picks a codec from the extension of p, falling back to Noop.
// Query strings and fragments of URLs are ignored.
func ForPath(p string) Codec {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".gz", ".gzip":
		return NewGzip()
	case ".bz2", ".bzip2":
		return NewBzip2()
	case ".zst", ".zstd":
		return NewZstd()
	case ".lz4":
		return NewLZ4()
	default:
		return NewNoop()
	}
}

// Ensure all codecs implement Codec.
var (
	_ Codec = (*Gzip)(nil)
	_ Codec = (*Bzip2)(nil)
	_ Codec = (*Zstd)(nil)
	_ Codec = (*LZ4)(nil)
	_ Codec = (*Noop)(nil)
)
