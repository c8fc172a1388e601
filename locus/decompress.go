package locus

import (
	"context"
	"fmt"
	"io"

	"github.com/pithecene-io/locus/internal/compress"
)

// Decompress inflates the whole content of h with the named codec
// ("gzip", "bzip2", "zstd", "lz4", or "" for none) and returns a read-only memory
// handle over the result, named after h. h is read from offset 0; its
// offset afterwards is unspecified and it stays open.
func Decompress(ctx context.Context, h Handle, format string, opts ...Option) (*BufferedHandle, error) {
	codec, err := compress.ForName(format)
	if err != nil {
		return nil, fmt.Errorf("locus: decompress: %w", err)
	}
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("locus: decompress: %w", err)
	}

	r, err := codec.Decompress(&contextReader{ctx: ctx, r: h})
	if err != nil {
		return nil, fmt.Errorf("locus: decompress %s: %w", h.Name(), err)
	}
	defer closer(r)()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("locus: decompress %s: %w", h.Name(), err)
	}

	opts = append([]Option{WithName(h.Name())}, opts...)
	return OpenBytes(data, ModeRead, opts...)
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
