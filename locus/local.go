package locus

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// -----------------------------------------------------------------------------
// Local file backend
// -----------------------------------------------------------------------------

// fileSource implements WriterSource over an *os.File.
type fileSource struct {
	f *os.File
}

func (s *fileSource) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *fileSource) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	return s.f.WriteAt(p, off)
}

func (s *fileSource) Size(_ context.Context) (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *fileSource) Close() error {
	return s.f.Close()
}

// OpenFile opens a local file as a Handle.
//
// ModeRead opens the file read-only; ModeReadWrite opens it for reading and
// writing, creating it when missing. The length is the file size at open
// time until Refresh is called.
func OpenFile(ctx context.Context, path string, mode Mode, opts ...Option) (*BufferedHandle, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	flag := os.O_RDONLY
	if mode.Writable() {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("locus: open %s: %w", path, ErrNotFound)
		}
		return nil, &BackendIOError{Op: "open", Name: path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &BackendIOError{Op: "open", Name: path, Err: err}
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, &BackendIOError{Op: "open", Name: path, Err: errors.New("is a directory")}
	}

	h, err := NewHandle(ctx, &fileSource{f: f}, path, KindLocal, mode, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	h.length = info.Size()
	return h, nil
}
