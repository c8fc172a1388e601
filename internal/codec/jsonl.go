// Package codec provides the JSON Lines encoding used for command output.
package codec

import (
	"bufio"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in replacement for encoding/json with better performance.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONL encodes records in JSON Lines format.
// Each record is serialized as a single line of JSON.
type JSONL struct{}

// NewJSONL creates a JSONL codec.
func NewJSONL() *JSONL {
	return &JSONL{}
}

// Name returns the codec identifier.
func (j *JSONL) Name() string {
	return "jsonl"
}

// Encode writes records as JSON Lines to the given writer.
func (j *JSONL) Encode(w io.Writer, records []any) error {
	enc := json.NewEncoder(w)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads JSON Lines from the given reader. Blank lines are skipped.
func (j *JSONL) Decode(r io.Reader) ([]any, error) {
	var records []any
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record any
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Writer streams records as JSON Lines. It is safe for concurrent use;
// each record is written as one uninterrupted line.
type Writer struct {
	mu  sync.Mutex
	enc *jsoniter.Encoder
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write encodes one record followed by a newline.
func (w *Writer) Write(record any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(record)
}
