package s3

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/locus/internal/testutil"
	"github.com/pithecene-io/locus/locus"
)

// flagIntegration gates integration tests that require running S3 services.
// Pass -integration to enable.
var flagIntegration = flag.Bool("integration", false, "run integration tests (requires LocalStack and MinIO)")

// Integration tests for S3-compatible services.
//
// To run:
//
//	docker run -d -p 4566:4566 localstack/localstack
//	docker run -d -p 9000:9000 minio/minio server /data
//	go test -v ./locus/s3/... -integration
func skipIfNoS3(t *testing.T) {
	t.Helper()
	if !*flagIntegration {
		t.Skip("skipping integration test; use -integration to enable")
	}
}

// s3Service describes an S3-compatible service for table-driven tests.
type s3Service struct {
	name      string
	server    string
	accessKey string
	secretKey string
}

var s3Services = []s3Service{
	{"LocalStack", "http://localhost:4566", "test", "test"},
	{"MinIO", "http://localhost:9000", "minioadmin", "minioadmin"},
}

// setupTestBucket creates a unique bucket holding the given objects and
// registers cleanup via t.Cleanup.
func setupTestBucket(t *testing.T, svc s3Service, objects map[string][]byte) string {
	t.Helper()
	skipIfNoS3(t)

	ctx := t.Context()
	client, err := NewClient(ctx, ClientConfig{
		Region:       DefaultRegion,
		Endpoint:     svc.server,
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider(svc.accessKey, svc.secretKey, ""),
	})
	require.NoError(t, err)

	bucket := fmt.Sprintf("locus-test-%d", time.Now().UnixNano())
	_, err = client.CreateBucket(ctx, &awss3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err)

	for key, data := range objects {
		_, err := client.PutObject(ctx, &awss3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   strings.NewReader(string(data)),
		})
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		cleanupCtx := context.Background()
		for key := range objects {
			_, _ = client.DeleteObject(cleanupCtx, &awss3.DeleteObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
			})
		}
		_, _ = client.DeleteBucket(cleanupCtx, &awss3.DeleteBucketInput{Bucket: aws.String(bucket)})
	})

	return bucket
}

func TestIntegration_ReadCharSequence(t *testing.T) {
	for _, svc := range s3Services {
		for _, backend := range []string{BackendAWS, BackendMinio} {
			t.Run(svc.name+"/"+backend, func(t *testing.T) {
				bucket := setupTestBucket(t, svc, map[string][]byte{
					"key/page.bin": testutil.UTF16Letters(16),
				})

				uri := fmt.Sprintf("s3://%s:%s@%s/key/page.bin", svc.accessKey, svc.secretKey, bucket)
				h, err := Open(t.Context(), uri, Config{Server: svc.server, Backend: backend, BufferSize: 6})
				require.NoError(t, err)
				defer func() { _ = h.Close() }()

				n, err := h.Length()
				require.NoError(t, err)
				assert.Equal(t, int64(32), n)

				for i := range 16 {
					c, err := h.ReadChar(binary.BigEndian)
					require.NoError(t, err)
					assert.Equal(t, uint16('a'+i), c)
				}
				_, err = h.ReadByte()
				assert.ErrorIs(t, err, locus.ErrEndOfResource)
			})
		}
	}
}

func TestIntegration_Stat(t *testing.T) {
	for _, svc := range s3Services {
		t.Run(svc.name, func(t *testing.T) {
			bucket := setupTestBucket(t, svc, map[string][]byte{"present": []byte("12345")})
			cfg := Config{Server: svc.server}

			ep, err := cfg.Parse(fmt.Sprintf("s3://%s:%s@%s/present", svc.accessKey, svc.secretKey, bucket))
			require.NoError(t, err)
			info, err := Stat(t.Context(), ep, cfg)
			require.NoError(t, err)
			assert.True(t, info.Exists)
			assert.Equal(t, int64(5), info.Size)

			ep.Key = "absent"
			info, err = Stat(t.Context(), ep, cfg)
			require.NoError(t, err)
			assert.False(t, info.Exists)
		})
	}
}

func TestIntegration_NotFound(t *testing.T) {
	for _, svc := range s3Services {
		t.Run(svc.name, func(t *testing.T) {
			bucket := setupTestBucket(t, svc, nil)
			uri := fmt.Sprintf("s3://%s:%s@%s/absent", svc.accessKey, svc.secretKey, bucket)

			h, err := Open(t.Context(), uri, Config{Server: svc.server})
			require.NoError(t, err)
			defer func() { _ = h.Close() }()

			_, err = h.ReadByte()
			assert.ErrorIs(t, err, locus.ErrNotFound)
		})
	}
}
