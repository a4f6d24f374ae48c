// Package filetransfer is the external collaborator that uploads a
// local archive to a remote URI. It wraps AWS S3 via the default
// credential chain, using client construction and a PutObject call.
package filetransfer

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Service is the file-transfer collaborator's contract: upload a local
// file to a remote URI.
type Service interface {
	PutFile(ctx context.Context, localPath, remoteURI string) error
}

// S3Service implements Service against AWS S3 (or an S3-compatible
// endpoint). remoteURI is expected in s3://bucket/key form, matching the
// archiveLocation values the persistence service hands back.
type S3Service struct {
	client *s3.Client
}

// New builds an S3Service using the AWS SDK's default credential chain
// (region/profile resolved from the environment unless overridden).
func New(ctx context.Context, region, endpoint string, forcePathStyle bool) (*S3Service, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("filetransfer: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if forcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	if endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}

	return &S3Service{client: s3.NewFromConfig(cfg, s3Opts...)}, nil
}

// PutFile uploads the file at localPath to remoteURI (s3://bucket/key).
func (s *S3Service) PutFile(ctx context.Context, localPath, remoteURI string) error {
	bucket, key, err := parseS3URI(remoteURI)
	if err != nil {
		return fmt.Errorf("filetransfer: %w", err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("filetransfer: open %q: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("filetransfer: stat %q: %w", localPath, err)
	}
	size := info.Size()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: &size,
	})
	if err != nil {
		return fmt.Errorf("filetransfer: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func parseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse archive location %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("archive location %q is not an s3:// URI", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
