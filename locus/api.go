// Package locus provides random-access reads over local files, in-memory
// buffers, HTTP(S) resources, and S3-compatible objects through one
// seek/read contract.
//
// Every backend is exposed as a Handle. A Handle keeps a single buffer
// window over the resource; reads inside the window are served from memory
// and a read that misses the window costs exactly one backend fetch,
// whichever direction the caller seeked in.
package locus

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// Kind identifies the backend behind a Handle.
//
// The set of kinds is closed: local files, memory buffers, HTTP(S)
// resources, and S3 objects.
type Kind string

const (
	// KindLocal is a file on the local filesystem.
	KindLocal Kind = "local"

	// KindMemory is a fixed in-memory byte buffer.
	KindMemory Kind = "memory"

	// KindHTTP is a resource served over HTTP or HTTPS.
	KindHTTP Kind = "http"

	// KindS3 is an object in an S3-compatible object store.
	KindS3 Kind = "s3"
)

// Mode is the access mode a Handle was opened with.
type Mode string

const (
	// ModeRead opens a resource read-only.
	ModeRead Mode = "r"

	// ModeReadWrite opens a resource for reading and writing.
	// Only local and memory backends support it.
	ModeReadWrite Mode = "rw"
)

// ParseMode converts a mode string ("r" or "rw") into a Mode.
// Returns ErrInvalidMode for anything else.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRead, ModeReadWrite:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Writable reports whether the mode permits writes.
func (m Mode) Writable() bool {
	return m == ModeReadWrite
}

// DefaultBufferSize is the buffer window size used when no WithBufferSize
// option is given.
const DefaultBufferSize = 256 * 1024

// -----------------------------------------------------------------------------
// Handle interface
// -----------------------------------------------------------------------------

// Handle is an open, positioned, buffered view over one resource's bytes.
//
// A Handle is single-owner: it is not safe for concurrent use. Independent
// handles over the same resource never share buffer state.
//
// The offset is always within [0, Length]. Reads that need bytes past the
// end fail with ErrEndOfResource and leave the offset unchanged. After
// Close, every operation except Close fails with ErrClosed.
type Handle interface {
	io.Reader
	io.Writer
	io.Seeker
	io.ByteReader
	io.Closer

	// Name returns the path, URL, or identifier the handle was opened on.
	Name() string

	// Kind returns the backend kind.
	Kind() Kind

	// Mode returns the access mode.
	Mode() Mode

	// Offset returns the current logical position.
	Offset() int64

	// Length returns the total size of the resource in bytes.
	// Remote backends may need a metadata round trip; the result is memoized.
	Length() (int64, error)

	// Refresh re-probes the resource length and drops the buffer window.
	Refresh() error

	// ReadChar reads a 16-bit code unit.
	ReadChar(order binary.ByteOrder) (uint16, error)

	// ReadShort reads a signed 16-bit integer.
	ReadShort(order binary.ByteOrder) (int16, error)

	// ReadInt reads a signed 32-bit integer.
	ReadInt(order binary.ByteOrder) (int32, error)

	// ReadLong reads a signed 64-bit integer.
	ReadLong(order binary.ByteOrder) (int64, error)

	// ReadFloat reads an IEEE 754 single-precision value.
	ReadFloat(order binary.ByteOrder) (float32, error)

	// ReadDouble reads an IEEE 754 double-precision value.
	ReadDouble(order binary.ByteOrder) (float64, error)

	// ReadFully fills p or fails with ErrEndOfResource.
	ReadFully(p []byte) error

	// ReadLine reads up to the next newline or the end of the resource.
	// The line terminator is not included. Returns io.EOF when no bytes
	// remain.
	ReadLine() (string, error)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrMalformedURI indicates a location or S3 URI that cannot be parsed.
	ErrMalformedURI = errMalformedURI{}

	// ErrOutOfRange indicates a seek target outside [0, length].
	ErrOutOfRange = errOutOfRange{}

	// ErrEndOfResource indicates a read that needs more bytes than remain.
	// It also matches io.EOF, so io.ByteReader consumers stop cleanly.
	ErrEndOfResource = errEndOfResource{}

	// ErrBackendIO matches every *BackendIOError.
	ErrBackendIO = errBackendIO{}

	// ErrNotFound indicates the resource does not exist.
	ErrNotFound = errNotFound{}

	// ErrClosed indicates an operation on a closed handle.
	ErrClosed = errClosed{}

	// ErrReadOnly indicates a write through a read-only handle or backend.
	ErrReadOnly = errReadOnly{}

	// ErrInvalidMode indicates an unknown access mode string.
	ErrInvalidMode = errInvalidMode{}

	// ErrChanged indicates a remote resource that was replaced while a
	// handle was reading it.
	ErrChanged = errChanged{}
)

type errMalformedURI struct{}

func (errMalformedURI) Error() string { return "malformed uri" }

type errOutOfRange struct{}

func (errOutOfRange) Error() string { return "offset out of range" }

type errEndOfResource struct{}

func (errEndOfResource) Error() string { return "end of resource" }

func (errEndOfResource) Is(target error) bool { return target == io.EOF }

type errBackendIO struct{}

func (errBackendIO) Error() string { return "backend i/o error" }

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errClosed struct{}

func (errClosed) Error() string { return "handle closed" }

type errReadOnly struct{}

func (errReadOnly) Error() string { return "read-only" }

type errInvalidMode struct{}

func (errInvalidMode) Error() string { return "invalid mode" }

type errChanged struct{}

func (errChanged) Error() string { return "resource changed" }

// BackendIOError reports a failure of the underlying transport or
// filesystem. The originating error is available through errors.Unwrap.
type BackendIOError struct {
	// Op is the backend operation that failed ("fetch", "size", "write", ...).
	Op string

	// Name identifies the resource.
	Name string

	// Err is the underlying cause.
	Err error
}

func (e *BackendIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *BackendIOError) Unwrap() error { return e.Err }

// Is reports whether target is ErrBackendIO.
func (e *BackendIOError) Is(target error) bool {
	return target == ErrBackendIO
}

// -----------------------------------------------------------------------------
// Source interface
// -----------------------------------------------------------------------------

// Source is the capability a backend provides to a BufferedHandle.
//
// ReadAt has io.ReaderAt semantics plus a context: it returns n < len(p)
// only together with a non-nil error. Size returns the total resource
// length. Implementations return ErrNotFound (possibly wrapped) when the
// resource does not exist.
type Source interface {
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	Size(ctx context.Context) (int64, error)
	Close() error
}

// WriterSource is implemented by sources that accept writes.
type WriterSource interface {
	Source
	WriteAt(ctx context.Context, p []byte, off int64) (int, error)
}
