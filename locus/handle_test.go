package locus_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/locus/internal/testutil"
	"github.com/pithecene-io/locus/locus"
)

// -----------------------------------------------------------------------------
// Backend parity harness
// -----------------------------------------------------------------------------

// provider opens a read-only handle over data using one backend.
type provider struct {
	name string
	open func(t *testing.T, data []byte, opts ...locus.Option) locus.Handle
}

func providers() []provider {
	return []provider{
		{
			name: "memory",
			open: func(t *testing.T, data []byte, opts ...locus.Option) locus.Handle {
				h, err := locus.OpenBytes(data, locus.ModeRead, opts...)
				if err != nil {
					t.Fatalf("OpenBytes: %v", err)
				}
				return h
			},
		},
		{
			name: "local",
			open: func(t *testing.T, data []byte, opts ...locus.Option) locus.Handle {
				p := testutil.WriteFile(t, t.TempDir(), "page.bin", data)
				h, err := locus.OpenFile(t.Context(), p, locus.ModeRead, opts...)
				if err != nil {
					t.Fatalf("OpenFile: %v", err)
				}
				return h
			},
		},
		{
			name: "http",
			open: func(t *testing.T, data []byte, opts ...locus.Option) locus.Handle {
				srv := testutil.NewRangeServer(t)
				srv.Put("page.bin", data)
				h, err := locus.OpenURL(t.Context(), srv.FileURL("page.bin"), opts...)
				if err != nil {
					t.Fatalf("OpenURL: %v", err)
				}
				return h
			},
		},
	}
}

func forEachProvider(t *testing.T, fn func(t *testing.T, p provider)) {
	for _, p := range providers() {
		t.Run(p.name, func(t *testing.T) {
			fn(t, p)
		})
	}
}

// -----------------------------------------------------------------------------
// Parity tests
// -----------------------------------------------------------------------------

func TestHandle_ReadCharSequence(t *testing.T) {
	page := testutil.UTF16Letters(16)

	for _, size := range []int{1024, 5, 2} {
		forEachProvider(t, func(t *testing.T, p provider) {
			h := p.open(t, page, locus.WithBufferSize(size))
			defer func() { _ = h.Close() }()

			for i := range 16 {
				c, err := h.ReadChar(binary.BigEndian)
				if err != nil {
					t.Fatalf("ReadChar %d (buffer %d): %v", i, size, err)
				}
				if want := uint16('a' + i); c != want {
					t.Errorf("ReadChar %d (buffer %d) = %q, want %q", i, size, rune(c), rune(want))
				}
			}

			if _, err := h.ReadChar(binary.BigEndian); !errors.Is(err, locus.ErrEndOfResource) {
				t.Errorf("ReadChar past end: expected ErrEndOfResource, got %v", err)
			}
			if h.Offset() != 32 {
				t.Errorf("Offset after failed read = %d, want 32", h.Offset())
			}
		})
	}
}

func TestHandle_Length(t *testing.T) {
	forEachProvider(t, func(t *testing.T, p provider) {
		h := p.open(t, make([]byte, 1000))
		defer func() { _ = h.Close() }()

		n, err := h.Length()
		if err != nil {
			t.Fatalf("Length: %v", err)
		}
		if n != 1000 {
			t.Errorf("Length = %d, want 1000", n)
		}
	})
}

func TestHandle_SeekIsIdempotent(t *testing.T) {
	page := testutil.UTF16Letters(16)

	forEachProvider(t, func(t *testing.T, p provider) {
		h := p.open(t, page, locus.WithBufferSize(4))
		defer func() { _ = h.Close() }()

		for range 3 {
			if _, err := h.Seek(20, io.SeekStart); err != nil {
				t.Fatalf("Seek: %v", err)
			}
			c, err := h.ReadChar(nil)
			if err != nil {
				t.Fatalf("ReadChar: %v", err)
			}
			if c != 'k' {
				t.Errorf("ReadChar after seek = %q, want 'k'", rune(c))
			}
		}

		// Backwards across the window.
		if _, err := h.Seek(-22, io.SeekCurrent); err != nil {
			t.Fatalf("Seek backwards: %v", err)
		}
		c, err := h.ReadChar(nil)
		if err != nil {
			t.Fatalf("ReadChar: %v", err)
		}
		if c != 'a' {
			t.Errorf("ReadChar after backwards seek = %q, want 'a'", rune(c))
		}

		pos, err := h.Seek(-2, io.SeekEnd)
		if err != nil {
			t.Fatalf("Seek from end: %v", err)
		}
		if pos != 30 {
			t.Errorf("Seek from end = %d, want 30", pos)
		}
	})
}

func TestHandle_SeekOutOfRange(t *testing.T) {
	forEachProvider(t, func(t *testing.T, p provider) {
		h := p.open(t, []byte("0123456789"))
		defer func() { _ = h.Close() }()

		if _, err := h.Seek(4, io.SeekStart); err != nil {
			t.Fatal(err)
		}
		if _, err := h.Seek(-1, io.SeekStart); !errors.Is(err, locus.ErrOutOfRange) {
			t.Errorf("negative seek: expected ErrOutOfRange, got %v", err)
		}
		if _, err := h.Seek(11, io.SeekStart); !errors.Is(err, locus.ErrOutOfRange) {
			t.Errorf("seek past end: expected ErrOutOfRange, got %v", err)
		}
		if h.Offset() != 4 {
			t.Errorf("Offset after failed seeks = %d, want 4", h.Offset())
		}
		if _, err := h.Seek(10, io.SeekStart); err != nil {
			t.Errorf("seek to length: %v", err)
		}
	})
}

func TestHandle_ReadFully(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	forEachProvider(t, func(t *testing.T, p provider) {
		h := p.open(t, data, locus.WithBufferSize(8))
		defer func() { _ = h.Close() }()

		// Larger than the buffer: served directly.
		buf := make([]byte, 19)
		if err := h.ReadFully(buf); err != nil {
			t.Fatalf("ReadFully: %v", err)
		}
		if string(buf) != "the quick brown fox" {
			t.Errorf("ReadFully = %q", buf)
		}

		rest := make([]byte, 100)
		if err := h.ReadFully(rest); !errors.Is(err, locus.ErrEndOfResource) {
			t.Errorf("ReadFully past end: expected ErrEndOfResource, got %v", err)
		}
		if h.Offset() != 19 {
			t.Errorf("Offset after failed ReadFully = %d, want 19", h.Offset())
		}

		all, err := io.ReadAll(h)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if string(all) != " jumps over the lazy dog" {
			t.Errorf("ReadAll = %q", all)
		}
	})
}

func TestHandle_ReadLine(t *testing.T) {
	data := []byte("first line\r\nsecond\n\nlast without newline")

	forEachProvider(t, func(t *testing.T, p provider) {
		h := p.open(t, data, locus.WithBufferSize(4))
		defer func() { _ = h.Close() }()

		want := []string{"first line", "second", "", "last without newline"}
		for i, w := range want {
			line, err := h.ReadLine()
			if err != nil {
				t.Fatalf("ReadLine %d: %v", i, err)
			}
			if line != w {
				t.Errorf("ReadLine %d = %q, want %q", i, line, w)
			}
		}
		if _, err := h.ReadLine(); !errors.Is(err, io.EOF) {
			t.Errorf("ReadLine at end: expected io.EOF, got %v", err)
		}
	})
}

func TestHandle_Primitives(t *testing.T) {
	buf := make([]byte, 0, 64)
	buf = binary.BigEndian.AppendUint16(buf, 0xBEEF)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(0xFFFE)) // -2
	buf = binary.BigEndian.AppendUint32(buf, uint32(0xFFFFFF85)) // -123
	buf = binary.LittleEndian.AppendUint64(buf, 1<<40+7)
	buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(1.5))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(-2.25))
	buf = append(buf, 0x7F)

	forEachProvider(t, func(t *testing.T, p provider) {
		h := p.open(t, buf, locus.WithBufferSize(3))
		defer func() { _ = h.Close() }()

		if c, err := h.ReadChar(binary.BigEndian); err != nil || c != 0xBEEF {
			t.Errorf("ReadChar = %#x, %v", c, err)
		}
		if s, err := h.ReadShort(binary.LittleEndian); err != nil || s != -2 {
			t.Errorf("ReadShort = %d, %v", s, err)
		}
		if i, err := h.ReadInt(binary.BigEndian); err != nil || i != -123 {
			t.Errorf("ReadInt = %d, %v", i, err)
		}
		if l, err := h.ReadLong(binary.LittleEndian); err != nil || l != 1<<40+7 {
			t.Errorf("ReadLong = %d, %v", l, err)
		}
		if f, err := h.ReadFloat(binary.BigEndian); err != nil || f != 1.5 {
			t.Errorf("ReadFloat = %v, %v", f, err)
		}
		if d, err := h.ReadDouble(binary.LittleEndian); err != nil || d != -2.25 {
			t.Errorf("ReadDouble = %v, %v", d, err)
		}
		if b, err := h.ReadByte(); err != nil || b != 0x7F {
			t.Errorf("ReadByte = %#x, %v", b, err)
		}
		if _, err := h.ReadByte(); !errors.Is(err, locus.ErrEndOfResource) {
			t.Errorf("ReadByte past end: expected ErrEndOfResource, got %v", err)
		}
	})
}

func TestHandle_ByteReaderEOF(t *testing.T) {
	var data []byte
	for _, v := range []uint64{1, 300, 1 << 40} {
		data = binary.AppendUvarint(data, v)
	}
	forEachProvider(t, func(t *testing.T, p provider) {
		h := p.open(t, data, locus.WithBufferSize(4))
		defer func() { _ = h.Close() }()

		var got []uint64
		for {
			v, err := binary.ReadUvarint(h)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("ReadUvarint: %v", err)
			}
			got = append(got, v)
		}
		if len(got) != 3 || got[0] != 1 || got[1] != 300 || got[2] != 1<<40 {
			t.Errorf("values = %v", got)
		}
	})
}

func TestHandle_Closed(t *testing.T) {
	forEachProvider(t, func(t *testing.T, p provider) {
		h := p.open(t, []byte("abc"))

		if err := h.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := h.Close(); err != nil {
			t.Errorf("second Close: %v", err)
		}

		if _, err := h.ReadByte(); !errors.Is(err, locus.ErrClosed) {
			t.Errorf("ReadByte: expected ErrClosed, got %v", err)
		}
		if _, err := h.Read(make([]byte, 1)); !errors.Is(err, locus.ErrClosed) {
			t.Errorf("Read: expected ErrClosed, got %v", err)
		}
		if _, err := h.Seek(0, io.SeekStart); !errors.Is(err, locus.ErrClosed) {
			t.Errorf("Seek: expected ErrClosed, got %v", err)
		}
		if _, err := h.Length(); !errors.Is(err, locus.ErrClosed) {
			t.Errorf("Length: expected ErrClosed, got %v", err)
		}
		if _, err := h.ReadLine(); !errors.Is(err, locus.ErrClosed) {
			t.Errorf("ReadLine: expected ErrClosed, got %v", err)
		}
	})
}

func TestHandle_WriteReadOnly(t *testing.T) {
	forEachProvider(t, func(t *testing.T, p provider) {
		h := p.open(t, []byte("abc"))
		defer func() { _ = h.Close() }()

		if _, err := h.Write([]byte("x")); !errors.Is(err, locus.ErrReadOnly) {
			t.Errorf("Write: expected ErrReadOnly, got %v", err)
		}
	})
}

// -----------------------------------------------------------------------------
// Writes
// -----------------------------------------------------------------------------

func TestOpenBytes_ReadWrite(t *testing.T) {
	orig := []byte("hello world")
	h, err := locus.OpenBytes(orig, locus.ModeReadWrite, locus.WithBufferSize(4))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = h.Close() }()

	// Load a window, then overwrite inside it.
	if _, err := h.ReadByte(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Write([]byte("J")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Append past the end.
	if _, err := h.Seek(0, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Write([]byte("!!")); err != nil {
		t.Fatalf("Write append: %v", err)
	}

	n, err := h.Length()
	if err != nil || n != 13 {
		t.Errorf("Length = %d, %v; want 13", n, err)
	}

	if _, err := h.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	all, err := io.ReadAll(h)
	if err != nil {
		t.Fatal(err)
	}
	if string(all) != "Jello world!!" {
		t.Errorf("content = %q", all)
	}
	if string(orig) != "hello world" {
		t.Errorf("caller slice modified: %q", orig)
	}
}

func TestOpenFile_ReadWrite(t *testing.T) {
	ctx := t.Context()
	p := filepath.Join(t.TempDir(), "new.bin")

	h, err := locus.OpenFile(ctx, p, locus.ModeReadWrite)
	if err != nil {
		t.Fatalf("OpenFile rw: %v", err)
	}
	if _, err := h.Write([]byte("persisted")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := locus.OpenFile(ctx, p, locus.ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "persisted" {
		t.Errorf("content = %q", got)
	}
}

func TestOpenFile_NotFound(t *testing.T) {
	_, err := locus.OpenFile(t.Context(), filepath.Join(t.TempDir(), "missing"), locus.ModeRead)
	if !errors.Is(err, locus.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenFile_Directory(t *testing.T) {
	_, err := locus.OpenFile(t.Context(), t.TempDir(), locus.ModeRead)
	if !errors.Is(err, locus.ErrBackendIO) {
		t.Errorf("expected ErrBackendIO, got %v", err)
	}
}

func TestOpenFile_Refresh(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "grow.txt", []byte("abc"))

	h, err := locus.OpenFile(ctx, p, locus.ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = h.Close() }()

	testutil.WriteFile(t, dir, "grow.txt", []byte("abcdef"))
	if n, _ := h.Length(); n != 3 {
		t.Errorf("Length before Refresh = %d, want 3", n)
	}
	if err := h.Refresh(); err != nil {
		t.Fatal(err)
	}
	if n, _ := h.Length(); n != 6 {
		t.Errorf("Length after Refresh = %d, want 6", n)
	}
}

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

func TestParseMode(t *testing.T) {
	for _, s := range []string{"r", "rw"} {
		if _, err := locus.ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q): %v", s, err)
		}
	}
	for _, s := range []string{"", "w", "rws", "R"} {
		if _, err := locus.ParseMode(s); !errors.Is(err, locus.ErrInvalidMode) {
			t.Errorf("ParseMode(%q): expected ErrInvalidMode, got %v", s, err)
		}
	}
}

func TestWithBufferSize_Invalid(t *testing.T) {
	if _, err := locus.OpenBytes([]byte("x"), locus.ModeRead, locus.WithBufferSize(0)); err == nil {
		t.Error("expected error for zero buffer size")
	}
}

func TestNewHandle_WritableRequiresWriterSource(t *testing.T) {
	src := &countingSource{data: []byte("abc")}
	_, err := locus.NewHandle(context.Background(), readOnlySource{src}, "ro", locus.KindHTTP, locus.ModeReadWrite)
	if !errors.Is(err, locus.ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}
