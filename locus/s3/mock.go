package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

type mockObject struct {
	data    []byte
	modTime time.Time
}

// MockClient is an in-memory test double for API. Objects are keyed by
// bucket and key.
type MockClient struct {
	mu      sync.RWMutex
	objects map[string]mockObject
	buckets map[string]bool

	// Err, when set, is returned by every call.
	Err error

	// Call counters for test assertions
	GetObjectCalls  int
	HeadObjectCalls int
}

// NewMockClient creates a new mock S3 client for testing.
func NewMockClient() *MockClient {
	return &MockClient{
		objects: make(map[string]mockObject),
		buckets: make(map[string]bool),
	}
}

// Put stores data under bucket/key, creating the bucket.
func (m *MockClient) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = true
	m.objects[bucket+"/"+key] = mockObject{data: bytes.Clone(data), modTime: time.Unix(1700000000, 0).UTC()}
}

// ResetCounts resets call counters for test isolation.
func (m *MockClient) ResetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetObjectCalls = 0
	m.HeadObjectCalls = 0
}

func (m *MockClient) lookup(params bucketKey) (mockObject, error) {
	bucket := aws.ToString(params.bucket())
	key := aws.ToString(params.key())
	if !m.buckets[bucket] {
		return mockObject{}, &types.NoSuchBucket{}
	}
	obj, ok := m.objects[bucket+"/"+key]
	if !ok {
		return mockObject{}, &types.NoSuchKey{}
	}
	return obj, nil
}

// GetObject implements API.GetObject for testing.
func (m *MockClient) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	m.GetObjectCalls++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	m.mu.RLock()
	obj, err := m.lookup(getInput{params})
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	data := obj.data

	// Handle range requests
	if params.Range != nil {
		rangeStr := aws.ToString(params.Range)
		var start, end int64
		if _, err := fmt.Sscanf(rangeStr, "bytes=%d-%d", &start, &end); err != nil {
			return nil, &smithyAPIError{code: "InvalidArgument", message: "bad range " + rangeStr}
		}

		if start >= int64(len(data)) {
			return nil, &smithyAPIError{code: "InvalidRange", message: "range not satisfiable"}
		}

		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}

		data = data[start : end+1]
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(obj.modTime),
	}, nil
}

// HeadObject implements API.HeadObject for testing.
func (m *MockClient) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	m.HeadObjectCalls++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	m.mu.RLock()
	obj, err := m.lookup(headInput{params})
	m.mu.RUnlock()
	if err != nil {
		// HeadObject has no body, so S3 reports a bare NotFound.
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.modTime),
	}, nil
}

var _ API = (*MockClient)(nil)

// bucketKey abstracts over request inputs that name an object.
type bucketKey interface {
	bucket() *string
	key() *string
}

type getInput struct{ in *s3.GetObjectInput }

func (g getInput) bucket() *string { return g.in.Bucket }
func (g getInput) key() *string    { return g.in.Key }

type headInput struct{ in *s3.HeadObjectInput }

func (h headInput) bucket() *string { return h.in.Bucket }
func (h headInput) key() *string    { return h.in.Key }

// NewAPIError returns an error implementing smithy.APIError with the given
// code, for injecting service failures into MockClient.
func NewAPIError(code, message string) error {
	return &smithyAPIError{code: code, message: message}
}

// smithyAPIError implements smithy.APIError for testing.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string {
	return e.code + ": " + e.message
}

func (e *smithyAPIError) ErrorCode() string {
	return e.code
}

func (e *smithyAPIError) ErrorMessage() string {
	return e.message
}

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}
