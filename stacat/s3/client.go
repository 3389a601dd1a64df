package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds configuration for creating an S3 client.
type ClientConfig struct {
	// Region is the AWS region.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible services, such as
	// "http://localhost:9000" for MinIO.
	Endpoint string

	// UsePathStyle selects path-style addressing, needed by LocalStack and
	// MinIO in their default setup.
	UsePathStyle bool

	// Anonymous sends unsigned requests, for public buckets of open data.
	Anonymous bool

	// AccessKeyID and SecretAccessKey, when set, are used as static
	// credentials.
	AccessKeyID     string
	SecretAccessKey string

	// Credentials overrides the credential chain. Ignored when Anonymous or
	// static keys are set.
	Credentials aws.CredentialsProvider
}

// NewClient creates an S3 client.
//
// For a public bucket:
//
//	client, err := s3.NewClient(ctx, s3.ClientConfig{Region: "us-west-2", Anonymous: true})
//
// For MinIO:
//
//	client, err := s3.NewClient(ctx, s3.ClientConfig{
//	    Region:          "us-east-1",
//	    Endpoint:        "http://localhost:9000",
//	    UsePathStyle:    true,
//	    AccessKeyID:     "minioadmin",
//	    SecretAccessKey: "minioadmin",
//	})
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	switch {
	case cfg.Anonymous:
		opts = append(opts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	case cfg.AccessKeyID != "":
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	case cfg.Credentials != nil:
		opts = append(opts, config.WithCredentialsProvider(cfg.Credentials))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}
