// Package audio stores session recordings in S3-compatible object storage,
// content-addressed by owner and session id.
package audio

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store implements service.ArtifactStore using AWS S3. Objects are keyed
// `{prefix}{owner_id}/{session_id}`.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Prefix   string // Optional key prefix
}

// NewS3Store creates a new S3-backed audio artifact store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("audio bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	}

	client := s3.NewFromConfig(awsCfg, clientOpts)

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
	}, nil
}

func (s *S3Store) key(ownerID, sessionID string) string {
	return fmt.Sprintf("%s%s/%s", s.prefix, ownerID, sessionID)
}

// Put uploads session audio and returns its object key.
func (s *S3Store) Put(ctx context.Context, ownerID, sessionID string, body io.Reader, contentType string) (string, error) {
	key := s.key(ownerID, sessionID)

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("s3 put failed for %s: %w", key, err)
	}

	return key, nil
}

// PresignGet returns a time-limited download URL for the session audio,
// suitable to hand to the batch transcription service.
func (s *S3Store) PresignGet(ctx context.Context, ownerID, sessionID string, expiry time.Duration) (string, error) {
	key := s.key(ownerID, sessionID)

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("s3 presign failed for %s: %w", key, err)
	}

	return req.URL, nil
}

// Delete removes the session audio. S3 deletes are idempotent: deleting a
// missing key succeeds, which the compensating-delete sequence relies on.
func (s *S3Store) Delete(ctx context.Context, ownerID, sessionID string) error {
	key := s.key(ownerID, sessionID)

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 delete failed for %s: %w", key, err)
	}

	return nil
}
