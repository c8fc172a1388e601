package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"

	"github.com/pithecene-io/locus/locus"
)

// objectSource is a locus.Source over one object that can also report
// metadata without failing on a missing object.
type objectSource interface {
	locus.Source
	stat(ctx context.Context) (locus.ResourceInfo, error)
}

// -----------------------------------------------------------------------------
// aws-sdk-go-v2 backend
// -----------------------------------------------------------------------------

// awsSource reads an object with ranged GetObject calls. The client is
// built on first use unless one was supplied.
type awsSource struct {
	ep     Endpoint
	cfg    Config
	client API
}

func (s *awsSource) api(ctx context.Context) (API, error) {
	if s.client != nil {
		return s.client, nil
	}
	client, err := NewClient(ctx, clientConfigFor(s.ep, s.cfg))
	if err != nil {
		return nil, fmt.Errorf("s3: client: %w", err)
	}
	s.client = client
	return client, nil
}

func (s *awsSource) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	api, err := s.api(ctx)
	if err != nil {
		return 0, err
	}

	// S3 Range header format: "bytes=start-end" (inclusive)
	rangeHeader := fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1)
	out, err := api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.ep.Bucket),
		Key:    aws.String(s.ep.Key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("s3: get %s/%s: %w", s.ep.Bucket, s.ep.Key, locus.ErrNotFound)
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("s3: range read: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	return readFull(out.Body, p)
}

func (s *awsSource) Size(ctx context.Context) (int64, error) {
	info, err := s.stat(ctx)
	if err != nil {
		return 0, err
	}
	if !info.Exists {
		return 0, fmt.Errorf("s3: head %s/%s: %w", s.ep.Bucket, s.ep.Key, locus.ErrNotFound)
	}
	return info.Size, nil
}

func (s *awsSource) stat(ctx context.Context) (locus.ResourceInfo, error) {
	api, err := s.api(ctx)
	if err != nil {
		return locus.ResourceInfo{}, err
	}
	out, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.ep.Bucket),
		Key:    aws.String(s.ep.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return locus.ResourceInfo{}, nil
		}
		return locus.ResourceInfo{}, fmt.Errorf("s3: head object: %w", err)
	}
	return locus.ResourceInfo{
		Exists:  true,
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

func (s *awsSource) Close() error {
	return nil
}

// isNotFound checks if an error indicates the object or bucket was not found.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket", "404":
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// minio-go backend
// -----------------------------------------------------------------------------

// minioSource reads an object with minio-go ranged GetObject calls.
type minioSource struct {
	ep     Endpoint
	cfg    Config
	client *minio.Client
}

func (s *minioSource) getClient() (*minio.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	client, err := newMinioClient(s.ep, s.cfg)
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

func (s *minioSource) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	client, err := s.getClient()
	if err != nil {
		return 0, err
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, off+int64(len(p))-1); err != nil {
		return 0, err
	}
	obj, err := client.GetObject(ctx, s.ep.Bucket, s.ep.Key, opts)
	if err != nil {
		return 0, s.mapErr(err)
	}
	defer func() { _ = obj.Close() }()

	n, err := readFull(obj, p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, s.mapErr(err)
	}
	return n, err
}

func (s *minioSource) Size(ctx context.Context) (int64, error) {
	info, err := s.stat(ctx)
	if err != nil {
		return 0, err
	}
	if !info.Exists {
		return 0, fmt.Errorf("s3: stat %s/%s: %w", s.ep.Bucket, s.ep.Key, locus.ErrNotFound)
	}
	return info.Size, nil
}

func (s *minioSource) stat(ctx context.Context) (locus.ResourceInfo, error) {
	client, err := s.getClient()
	if err != nil {
		return locus.ResourceInfo{}, err
	}
	info, err := client.StatObject(ctx, s.ep.Bucket, s.ep.Key, minio.StatObjectOptions{})
	if err != nil {
		if minioNotFound(err) {
			return locus.ResourceInfo{}, nil
		}
		return locus.ResourceInfo{}, fmt.Errorf("s3: stat object: %w", err)
	}
	return locus.ResourceInfo{Exists: true, Size: info.Size, ModTime: info.LastModified}, nil
}

func (s *minioSource) Close() error {
	return nil
}

func (s *minioSource) mapErr(err error) error {
	if minioNotFound(err) {
		return fmt.Errorf("s3: get %s/%s: %w", s.ep.Bucket, s.ep.Key, locus.ErrNotFound)
	}
	if minio.ToErrorResponse(err).Code == "InvalidRange" {
		return io.EOF
	}
	return fmt.Errorf("s3: range read: %w", err)
}

func minioNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}

// readFull fills p from r, reporting a short body as io.EOF.
func readFull(r io.Reader, p []byte) (int, error) {
	n, err := io.ReadFull(r, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// Partial read (requested range extends beyond EOF)
		err = io.EOF
	}
	return n, err
}
