package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pithecene-io/locus/locus"
)

// DefaultRegion is used when Config.Region is empty.
const DefaultRegion = "us-east-1"

// API defines the subset of the S3 client interface used by the aws
// backend. *s3.Client satisfies it; MockClient is a test double.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// ClientConfig holds configuration for creating an S3 client.
type ClientConfig struct {
	// Region is the AWS region (required).
	Region string

	// Endpoint is an optional custom endpoint URL, for S3-compatible
	// services (MinIO, LocalStack, R2).
	Endpoint string

	// UsePathStyle enables path-style addressing instead of virtual-hosted style.
	UsePathStyle bool

	// Credentials are the AWS credentials to use.
	// If nil, uses the default credential chain.
	Credentials aws.CredentialsProvider

	// HTTPClient replaces the SDK's HTTP client when set.
	HTTPClient locus.Doer
}

// NewClient creates a new S3 client with the given configuration.
//
// For AWS S3:
//
//	client, err := s3.NewClient(ctx, s3.ClientConfig{
//	    Region: "us-east-1",
//	})
//
// For MinIO:
//
//	client, err := s3.NewClient(ctx, s3.ClientConfig{
//	    Region:       "us-east-1",
//	    Endpoint:     "http://localhost:9000",
//	    UsePathStyle: true,
//	    Credentials:  credentials.NewStaticCredentialsProvider("minioadmin", "minioadmin", ""),
//	})
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if cfg.Credentials != nil {
		opts = append(opts, config.WithCredentialsProvider(cfg.Credentials))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, config.WithHTTPClient(cfg.HTTPClient))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Opts := []func(*s3.Options){}

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// clientConfigFor derives the SDK client configuration for an endpoint.
// Custom servers get path-style addressing; URI credentials take
// precedence over the default chain.
func clientConfigFor(ep Endpoint, cfg Config) ClientConfig {
	cc := ClientConfig{
		Region:       cfg.region(),
		UsePathStyle: cfg.ForcePathStyle,
		HTTPClient:   cfg.Doer,
	}
	if !ep.IsDefault() {
		cc.Endpoint = ep.BaseURL()
		cc.UsePathStyle = true
	}
	switch {
	case ep.HasCredentials():
		cc.Credentials = credentials.NewStaticCredentialsProvider(ep.AccessKey, ep.SecretKey, "")
	case cfg.Anonymous:
		cc.Credentials = aws.AnonymousCredentials{}
	}
	return cc
}

// newMinioClient creates a minio-go client for an endpoint.
func newMinioClient(ep Endpoint, cfg Config) (*minio.Client, error) {
	creds := miniocreds.NewStaticV4(ep.AccessKey, ep.SecretKey, "")
	if !ep.HasCredentials() && !cfg.Anonymous {
		creds = miniocreds.NewChainCredentials([]miniocreds.Provider{
			&miniocreds.EnvAWS{},
			&miniocreds.EnvMinio{},
		})
	}

	opts := &minio.Options{
		Creds:  creds,
		Secure: ep.Secure(),
		Region: cfg.region(),
	}
	if !ep.IsDefault() || cfg.ForcePathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(ep.HostPort(), opts)
	if err != nil {
		return nil, fmt.Errorf("s3: minio client: %w", err)
	}
	return client, nil
}
