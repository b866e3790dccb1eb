package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Open returns the FileStore named by uri:
//
//	/var/lib/speakerid/archive     local directory
//	file:///var/lib/speakerid      local directory
//	s3://bucket/prefix             S3, configured from AWS_* environment
//	gs://bucket/prefix             GCS, application default credentials
func Open(ctx context.Context, uri string) (FileStore, error) {
	u, err := url.Parse(uri)
	if err != nil || len(u.Scheme) <= 1 {
		return NewLocal(uri)
	}
	prefix := strings.Trim(u.Path, "/")
	switch u.Scheme {
	case "file":
		return NewLocal(u.Path)
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("storage: %q has no bucket", uri)
		}
		return NewS3(NewS3ClientFromEnv(), u.Host, prefix), nil
	case "gs":
		if u.Host == "" {
			return nil, fmt.Errorf("storage: %q has no bucket", uri)
		}
		return NewGCS(ctx, u.Host, prefix)
	}
	return nil, fmt.Errorf("storage: unsupported scheme %q", u.Scheme)
}

// NewS3ClientFromEnv builds an S3 client from the standard AWS_REGION,
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN variables.
// AWS_ENDPOINT_URL_S3 (or AWS_ENDPOINT_URL) selects an S3-compatible service
// and switches to path-style addressing.
func NewS3ClientFromEnv() *s3.Client {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := os.Getenv("AWS_ENDPOINT_URL_S3")
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT_URL")
	}

	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, fmt.Errorf("storage: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required")
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}, nil
	})

	opts := s3.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}
