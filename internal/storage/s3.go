package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/reportsvc/go-report-pipeline/internal/aws"
	"github.com/reportsvc/go-report-pipeline/internal/config"
)

// ErrNotFound indicates no artifact exists under the requested key.
var ErrNotFound = errors.New("artifact not found")

// Presigner issues time-limited download references. *s3.PresignClient
// satisfies it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ArtifactKey returns the object key for a report's finished artifact.
// Keys are namespaced by report id to avoid collision.
func ArtifactKey(reportID string) string {
	return fmt.Sprintf("reports/%s/artifact", reportID)
}

// Gateway stores and retrieves report artifacts in S3.
type Gateway struct {
	client    aws.S3API
	presigner Presigner
	bucket    string
}

// NewGateway creates a Gateway from config, building its own S3 client
// so a custom endpoint (MinIO) can be used.
func NewGateway(cfg *config.S3Config) (*Gateway, error) {
	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = sdkaws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &Gateway{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
	}, nil
}

// NewGatewayWithClients builds a Gateway around preconstructed clients.
func NewGatewayWithClients(client aws.S3API, presigner Presigner, bucket string) *Gateway {
	return &Gateway{client: client, presigner: presigner, bucket: bucket}
}

// Put stores an artifact under key. Overwrites are permitted: content is
// deterministic per report, so a retried completion writes the same
// bytes.
func (g *Gateway) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &g.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// Get retrieves an artifact. Returns ErrNotFound if the key is absent.
func (g *Gateway) Get(ctx context.Context, key string) ([]byte, string, error) {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &g.bucket,
		Key:    &key,
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read object body: %w", err)
	}

	contentType := "application/octet-stream"
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return body, contentType, nil
}

// SignedDownloadURL issues a presigned GET URL valid for ttl.
func (g *Gateway) SignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := g.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &g.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return req.URL, nil
}
