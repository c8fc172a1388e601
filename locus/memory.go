package locus

import (
	"bytes"
	"context"
	"io"
)

// -----------------------------------------------------------------------------
// Memory backend
// -----------------------------------------------------------------------------

// memorySource implements WriterSource over a byte slice.
type memorySource struct {
	data []byte
}

func (s *memorySource) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *memorySource) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(s.data) {
		if end > cap(s.data) {
			grown := make([]byte, end, max(end, 2*cap(s.data)))
			copy(grown, s.data)
			s.data = grown
		} else {
			s.data = s.data[:end]
		}
	}
	return copy(s.data[off:end], p), nil
}

func (s *memorySource) Size(_ context.Context) (int64, error) {
	return int64(len(s.data)), nil
}

func (s *memorySource) Close() error {
	return nil
}

// OpenBytes opens an in-memory buffer as a Handle.
//
// In ModeRead the handle reads data directly and the caller must not
// modify it while the handle is open. In ModeReadWrite the handle works on
// a private copy; writes may overwrite bytes in place or append past the
// end.
func OpenBytes(data []byte, mode Mode, opts ...Option) (*BufferedHandle, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if mode.Writable() {
		data = bytes.Clone(data)
	}
	h, err := NewHandle(context.Background(), &memorySource{data: data}, "memory", KindMemory, mode, opts...)
	if err != nil {
		return nil, err
	}
	h.length = int64(len(data))
	return h, nil
}
