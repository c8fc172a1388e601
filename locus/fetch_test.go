package locus_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/pithecene-io/locus/locus"
)

// countingSource is an in-memory Source that records backend calls.
type countingSource struct {
	data    []byte
	reads   int
	sizes   int
	lastLen int
	lastOff int64
	fail    error
}

func (s *countingSource) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	s.reads++
	s.lastLen = len(p)
	s.lastOff = off
	if s.fail != nil {
		return 0, s.fail
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *countingSource) Size(_ context.Context) (int64, error) {
	s.sizes++
	return int64(len(s.data)), nil
}

func (s *countingSource) Close() error { return nil }

// readOnlySource hides any WriteAt method of the wrapped Source.
type readOnlySource struct {
	locus.Source
}

func newCounted(t *testing.T, n int, opts ...locus.Option) (*locus.BufferedHandle, *countingSource) {
	t.Helper()
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	src := &countingSource{data: data}
	h, err := locus.NewHandle(t.Context(), src, "counted", locus.KindMemory, locus.ModeRead, opts...)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	return h, src
}

func mustSeek(t *testing.T, h locus.Handle, off int64) {
	t.Helper()
	if _, err := h.Seek(off, io.SeekStart); err != nil {
		t.Fatalf("Seek(%d): %v", off, err)
	}
}

func mustByte(t *testing.T, h locus.Handle, want byte) {
	t.Helper()
	b, err := h.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if b != want {
		t.Errorf("ReadByte = %d, want %d", b, want)
	}
}

// -----------------------------------------------------------------------------
// Fetch accounting
// -----------------------------------------------------------------------------

func TestBufferedHandle_OneFetchPerMiss(t *testing.T) {
	h, src := newCounted(t, 64, locus.WithBufferSize(8))
	defer func() { _ = h.Close() }()

	for i := range 8 {
		mustByte(t, h, byte(i))
	}
	if src.reads != 1 {
		t.Fatalf("reads after first window = %d, want 1", src.reads)
	}

	mustSeek(t, h, 40)
	if src.reads != 1 {
		t.Errorf("Seek fetched data: reads = %d", src.reads)
	}
	mustByte(t, h, 40)
	if src.reads != 2 {
		t.Errorf("reads after forward miss = %d, want 2", src.reads)
	}

	mustSeek(t, h, 10)
	mustByte(t, h, 10)
	if src.reads != 3 {
		t.Errorf("reads after backward miss = %d, want 3", src.reads)
	}
	for i := 11; i < 18; i++ {
		mustByte(t, h, byte(i))
	}
	if src.reads != 3 {
		t.Errorf("reads inside window = %d, want 3", src.reads)
	}
	if src.sizes != 1 {
		t.Errorf("Size probes = %d, want 1", src.sizes)
	}
}

func TestBufferedHandle_FetchSize(t *testing.T) {
	h, src := newCounted(t, 64, locus.WithBufferSize(8))
	defer func() { _ = h.Close() }()

	mustSeek(t, h, 20)
	mustByte(t, h, 20)
	if src.lastOff != 20 || src.lastLen != 8 {
		t.Errorf("fetch = [%d, +%d), want [20, +8)", src.lastOff, src.lastLen)
	}

	mustSeek(t, h, 60)
	mustByte(t, h, 60)
	if src.lastOff != 60 || src.lastLen != 4 {
		t.Errorf("fetch near end = [%d, +%d), want [60, +4)", src.lastOff, src.lastLen)
	}
}

func TestBufferedHandle_LargeReadIsDirect(t *testing.T) {
	h, src := newCounted(t, 64, locus.WithBufferSize(8))
	defer func() { _ = h.Close() }()

	buf := make([]byte, 30)
	if err := h.ReadFully(buf); err != nil {
		t.Fatal(err)
	}
	if src.reads != 1 || src.lastLen != 30 {
		t.Errorf("reads = %d, last len = %d; want one fetch of 30", src.reads, src.lastLen)
	}
	if buf[29] != 29 {
		t.Errorf("buf[29] = %d", buf[29])
	}
}

func TestBufferedHandle_PastEndDoesNotFetch(t *testing.T) {
	h, src := newCounted(t, 4, locus.WithBufferSize(8))
	defer func() { _ = h.Close() }()

	mustSeek(t, h, 2)
	if _, err := h.ReadInt(nil); !errors.Is(err, locus.ErrEndOfResource) {
		t.Fatalf("expected ErrEndOfResource, got %v", err)
	}
	if src.reads != 0 {
		t.Errorf("reads = %d, want 0", src.reads)
	}
	if h.Offset() != 2 {
		t.Errorf("Offset = %d, want 2", h.Offset())
	}
}

// -----------------------------------------------------------------------------
// Failure handling
// -----------------------------------------------------------------------------

func TestBufferedHandle_FailureKeepsWindow(t *testing.T) {
	h, src := newCounted(t, 64, locus.WithBufferSize(8))
	defer func() { _ = h.Close() }()

	mustByte(t, h, 0)

	src.fail = errors.New("connection reset")
	mustSeek(t, h, 32)
	_, err := h.ReadByte()
	if !errors.Is(err, locus.ErrBackendIO) {
		t.Fatalf("expected ErrBackendIO, got %v", err)
	}
	var be *locus.BackendIOError
	if !errors.As(err, &be) || be.Op != "fetch" || be.Name != "counted" {
		t.Errorf("unexpected error detail: %#v", err)
	}
	if h.Offset() != 32 {
		t.Errorf("Offset after failure = %d, want 32", h.Offset())
	}

	mustSeek(t, h, 3)
	mustByte(t, h, 3)
}

func TestBufferedHandle_FailureWithoutWindowIsSticky(t *testing.T) {
	h, src := newCounted(t, 64, locus.WithBufferSize(8))
	defer func() { _ = h.Close() }()

	src.fail = errors.New("unreachable")
	if _, err := h.ReadByte(); !errors.Is(err, locus.ErrBackendIO) {
		t.Fatalf("expected ErrBackendIO, got %v", err)
	}

	src.fail = nil
	if _, err := h.ReadByte(); !errors.Is(err, locus.ErrBackendIO) {
		t.Errorf("expected sticky ErrBackendIO, got %v", err)
	}
	if src.reads != 1 {
		t.Errorf("reads = %d, want 1", src.reads)
	}

	if err := h.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	mustByte(t, h, 0)
}

func TestBufferedHandle_ShortReadIsBackendError(t *testing.T) {
	h, src := newCounted(t, 16, locus.WithBufferSize(8))
	defer func() { _ = h.Close() }()

	if _, err := h.Length(); err != nil {
		t.Fatal(err)
	}
	src.data = src.data[:4]

	mustSeek(t, h, 8)
	if _, err := h.ReadByte(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

// -----------------------------------------------------------------------------
// Logging
// -----------------------------------------------------------------------------

func TestBufferedHandle_LogsRefills(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h, _ := newCounted(t, 32, locus.WithBufferSize(8), locus.WithLogger(logger))
	defer func() { _ = h.Close() }()

	mustByte(t, h, 0)
	if err := h.ReadFully(make([]byte, 16)); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if !strings.Contains(out, "window refill") || !strings.Contains(out, "name=counted") {
		t.Errorf("missing refill record:\n%s", out)
	}
	if !strings.Contains(out, "direct fetch") {
		t.Errorf("missing direct fetch record:\n%s", out)
	}
}
