package locus

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
)

// BufferedHandle implements Handle over any Source.
//
// It keeps one contiguous window [bufStart, bufStart+bufLen) of the
// resource in memory. A read that is fully inside the window performs no
// backend I/O. A read that misses it replaces the window with exactly one
// Source.ReadAt call starting at the read offset. Reads larger than the
// buffer are fetched directly into the caller's slice, also in one call.
type BufferedHandle struct {
	ctx    context.Context
	src    Source
	name   string
	kind   Kind
	mode   Mode
	logger *slog.Logger

	offset int64
	length int64 // -1 until probed

	bufferSize int
	buf        []byte
	spare      []byte
	bufStart   int64
	bufLen     int // 0 means no window
	filled     bool

	failed error
	closed bool
}

var _ Handle = (*BufferedHandle)(nil)

// NewHandle wraps src in a BufferedHandle.
//
// The context is used for every backend call made through the handle; it
// is not consulted between calls. Writable modes require src to implement
// WriterSource, otherwise NewHandle returns ErrReadOnly.
func NewHandle(ctx context.Context, src Source, name string, kind Kind, mode Mode, opts ...Option) (*BufferedHandle, error) {
	if src == nil {
		return nil, errors.New("locus: source is required")
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if mode.Writable() {
		if _, ok := src.(WriterSource); !ok {
			return nil, fmt.Errorf("%w: %s backend does not accept writes", ErrReadOnly, kind)
		}
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.name != "" {
		name = cfg.name
	}
	return &BufferedHandle{
		ctx:        ctx,
		src:        src,
		name:       name,
		kind:       kind,
		mode:       mode,
		logger:     cfg.logger,
		length:     -1,
		bufferSize: cfg.bufferSize,
	}, nil
}

// Name returns the resource name.
func (h *BufferedHandle) Name() string { return h.name }

// Kind returns the backend kind.
func (h *BufferedHandle) Kind() Kind { return h.kind }

// Mode returns the access mode.
func (h *BufferedHandle) Mode() Mode { return h.mode }

// Offset returns the current logical position.
func (h *BufferedHandle) Offset() int64 { return h.offset }

// BufferSize returns the capacity of the buffer window.
func (h *BufferedHandle) BufferSize() int { return h.bufferSize }

// Length returns the total resource size, probing the source on first use.
func (h *BufferedHandle) Length() (int64, error) {
	if h.closed {
		return 0, ErrClosed
	}
	if h.length >= 0 {
		return h.length, nil
	}
	n, err := h.src.Size(h.ctx)
	if err != nil {
		return 0, h.backendErr("size", err)
	}
	h.length = n
	return n, nil
}

// Refresh forgets the memoized length and the buffer window, then probes
// the length again.
func (h *BufferedHandle) Refresh() error {
	if h.closed {
		return ErrClosed
	}
	h.length = -1
	h.bufLen = 0
	h.failed = nil
	length, err := h.Length()
	if err != nil {
		return err
	}
	if h.offset > length {
		h.offset = length
	}
	return nil
}

// Seek sets the offset for the next read or write. It never fetches data;
// resolving the target against the length may probe the length once.
// Returns ErrOutOfRange for targets before 0 or past the end.
func (h *BufferedHandle) Seek(offset int64, whence int) (int64, error) {
	if err := h.checkOpen(); err != nil {
		return h.offset, err
	}

	length, err := h.Length()
	if err != nil {
		return h.offset, err
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = h.offset + offset
	case io.SeekEnd:
		target = length + offset
	default:
		return h.offset, fmt.Errorf("locus: invalid whence %d", whence)
	}

	if target < 0 || target > length {
		return h.offset, fmt.Errorf("%w: seek to %d (length %d)", ErrOutOfRange, target, length)
	}
	h.offset = target
	return target, nil
}

// Read implements io.Reader. It returns io.EOF once the offset reaches
// the end of the resource.
func (h *BufferedHandle) Read(p []byte) (int, error) {
	if err := h.checkOpen(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	length, err := h.Length()
	if err != nil {
		return 0, err
	}
	remaining := length - h.offset
	if remaining <= 0 {
		return 0, io.EOF
	}
	n := len(p)
	if int64(n) > remaining {
		n = int(remaining)
	}
	if err := h.readInto(p[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

// ReadFully reads exactly len(p) bytes.
func (h *BufferedHandle) ReadFully(p []byte) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	if err := h.checkRemaining(len(p)); err != nil {
		return err
	}
	return h.readInto(p)
}

// ReadByte reads a single byte.
func (h *BufferedHandle) ReadByte() (byte, error) {
	b, err := h.fixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadChar reads a 16-bit code unit. A nil order means big-endian.
func (h *BufferedHandle) ReadChar(order binary.ByteOrder) (uint16, error) {
	b, err := h.fixed(2)
	if err != nil {
		return 0, err
	}
	return orderOrDefault(order).Uint16(b), nil
}

// ReadShort reads a signed 16-bit integer. A nil order means big-endian.
func (h *BufferedHandle) ReadShort(order binary.ByteOrder) (int16, error) {
	b, err := h.fixed(2)
	if err != nil {
		return 0, err
	}
	return int16(orderOrDefault(order).Uint16(b)), nil
}

// ReadInt reads a signed 32-bit integer. A nil order means big-endian.
func (h *BufferedHandle) ReadInt(order binary.ByteOrder) (int32, error) {
	b, err := h.fixed(4)
	if err != nil {
		return 0, err
	}
	return int32(orderOrDefault(order).Uint32(b)), nil
}

// ReadLong reads a signed 64-bit integer. A nil order means big-endian.
func (h *BufferedHandle) ReadLong(order binary.ByteOrder) (int64, error) {
	b, err := h.fixed(8)
	if err != nil {
		return 0, err
	}
	return int64(orderOrDefault(order).Uint64(b)), nil
}

// ReadFloat reads a single-precision float. A nil order means big-endian.
func (h *BufferedHandle) ReadFloat(order binary.ByteOrder) (float32, error) {
	b, err := h.fixed(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(orderOrDefault(order).Uint32(b)), nil
}

// ReadDouble reads a double-precision float. A nil order means big-endian.
func (h *BufferedHandle) ReadDouble(order binary.ByteOrder) (float64, error) {
	b, err := h.fixed(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(orderOrDefault(order).Uint64(b)), nil
}

// ReadLine reads bytes up to and including the next '\n' and returns them
// without the terminator (a trailing '\r' is dropped as well). At the end
// of the resource the remaining bytes are returned; once nothing remains
// it returns io.EOF.
func (h *BufferedHandle) ReadLine() (string, error) {
	if err := h.checkOpen(); err != nil {
		return "", err
	}
	length, err := h.Length()
	if err != nil {
		return "", err
	}
	if h.offset >= length {
		return "", io.EOF
	}

	start := h.offset
	var line []byte
	for h.offset < length {
		avail, err := h.available(length)
		if err != nil {
			h.offset = start
			return "", err
		}
		if i := bytes.IndexByte(avail, '\n'); i >= 0 {
			line = append(line, avail[:i]...)
			h.offset += int64(i + 1)
			return string(bytes.TrimSuffix(line, []byte{'\r'})), nil
		}
		line = append(line, avail...)
		h.offset += int64(len(avail))
	}
	return string(line), nil
}

// Write writes p at the current offset and advances it. The handle must
// have been opened in ModeReadWrite.
func (h *BufferedHandle) Write(p []byte) (int, error) {
	if err := h.checkOpen(); err != nil {
		return 0, err
	}
	if !h.mode.Writable() {
		return 0, ErrReadOnly
	}
	ws, ok := h.src.(WriterSource)
	if !ok {
		return 0, ErrReadOnly
	}
	if len(p) == 0 {
		return 0, nil
	}
	length, err := h.Length()
	if err != nil {
		return 0, err
	}

	n, err := ws.WriteAt(h.ctx, p, h.offset)
	if err != nil {
		// The backend may hold a partial write; the window can no longer
		// be trusted.
		h.bufLen = 0
		return n, h.backendErr("write", err)
	}

	h.patchWindow(p[:n], h.offset)
	end := h.offset + int64(n)
	if end > length {
		h.length = end
	}
	h.offset = end
	return n, nil
}

// Close releases the backend. Calling Close more than once is a no-op.
func (h *BufferedHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.buf = nil
	h.spare = nil
	h.bufLen = 0
	return h.src.Close()
}

// -----------------------------------------------------------------------------
// Window management
// -----------------------------------------------------------------------------

func (h *BufferedHandle) checkOpen() error {
	if h.closed {
		return ErrClosed
	}
	return h.failed
}

func (h *BufferedHandle) checkRemaining(n int) error {
	length, err := h.Length()
	if err != nil {
		return err
	}
	if int64(n) > length-h.offset {
		return fmt.Errorf("%w: need %d bytes at offset %d (length %d)", ErrEndOfResource, n, h.offset, length)
	}
	return nil
}

// fixed returns the next n bytes and advances the offset. The returned
// slice is only valid until the next read.
func (h *BufferedHandle) fixed(n int) ([]byte, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	if err := h.checkRemaining(n); err != nil {
		return nil, err
	}
	if n > h.bufferSize {
		p := make([]byte, n)
		if err := h.readInto(p); err != nil {
			return nil, err
		}
		return p, nil
	}
	w, err := h.window(n)
	if err != nil {
		return nil, err
	}
	h.offset += int64(n)
	return w, nil
}

// readInto fills p from the current offset and advances it. Bounds must
// already be checked.
func (h *BufferedHandle) readInto(p []byte) error {
	if len(p) > h.bufferSize {
		if err := h.fetch(p, h.offset); err != nil {
			return err
		}
		h.logger.Debug("direct fetch", "name", h.name, "offset", h.offset, "size", len(p))
		h.offset += int64(len(p))
		return nil
	}
	w, err := h.window(len(p))
	if err != nil {
		return err
	}
	copy(p, w)
	h.offset += int64(len(p))
	return nil
}

// window returns the n bytes at the current offset, refilling the window
// when they are not all inside it.
func (h *BufferedHandle) window(n int) ([]byte, error) {
	if !h.inWindow(h.offset, n) {
		length, err := h.Length()
		if err != nil {
			return nil, err
		}
		if err := h.refill(h.offset, length); err != nil {
			return nil, err
		}
	}
	start := int(h.offset - h.bufStart)
	return h.buf[start : start+n], nil
}

// available returns the buffered bytes from the current offset to the end
// of the window, refilling first when the offset is outside it.
func (h *BufferedHandle) available(length int64) ([]byte, error) {
	if !h.inWindow(h.offset, 1) {
		if err := h.refill(h.offset, length); err != nil {
			return nil, err
		}
	}
	return h.buf[int(h.offset-h.bufStart):h.bufLen], nil
}

func (h *BufferedHandle) inWindow(off int64, n int) bool {
	return h.bufLen > 0 && off >= h.bufStart && off+int64(n) <= h.bufStart+int64(h.bufLen)
}

// refill replaces the window with one fetch starting at off. On failure
// the previous window is kept.
func (h *BufferedHandle) refill(off, length int64) error {
	size := int64(h.bufferSize)
	if rem := length - off; rem < size {
		size = rem
	}
	if size <= 0 {
		return fmt.Errorf("%w: offset %d (length %d)", ErrEndOfResource, off, length)
	}
	if h.spare == nil {
		h.spare = make([]byte, h.bufferSize)
	}
	dst := h.spare[:size]
	if err := h.fetch(dst, off); err != nil {
		return err
	}
	h.logger.Debug("window refill", "name", h.name, "offset", off, "size", size)

	h.buf, h.spare = h.spare, h.buf
	h.bufStart = off
	h.bufLen = int(size)
	h.filled = true
	return nil
}

// fetch performs a single Source.ReadAt that must fill p.
func (h *BufferedHandle) fetch(p []byte, off int64) error {
	n, err := h.src.ReadAt(h.ctx, p, off)
	if n == len(p) && (err == nil || errors.Is(err, io.EOF)) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = fmt.Errorf("short read: got %d of %d bytes at offset %d: %w", n, len(p), off, io.ErrUnexpectedEOF)
	}
	wrapped := h.backendErr("fetch", err)
	if !h.filled {
		h.failed = wrapped
	}
	return wrapped
}

// patchWindow copies freshly written bytes into the overlapping part of
// the window so later reads see them.
func (h *BufferedHandle) patchWindow(p []byte, off int64) {
	if h.bufLen == 0 {
		return
	}
	winEnd := h.bufStart + int64(h.bufLen)
	start := max(off, h.bufStart)
	end := min(off+int64(len(p)), winEnd)
	if start >= end {
		return
	}
	copy(h.buf[start-h.bufStart:end-h.bufStart], p[start-off:end-off])
}

func (h *BufferedHandle) backendErr(op string, err error) error {
	var be *BackendIOError
	if errors.As(err, &be) {
		return err
	}
	return &BackendIOError{Op: op, Name: h.name, Err: err}
}

func orderOrDefault(order binary.ByteOrder) binary.ByteOrder {
	if order == nil {
		return binary.BigEndian
	}
	return order
}
