package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ExpiryTagKey is the object tag a bucket lifecycle rule matches to delete captures.
const ExpiryTagKey = "mealagent-expires"

type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Image implements ImageSource backed by S3
type S3Image struct {
	bucket string
	key    string
	s3     s3API
}

func NewS3Image(s3Client s3API, bucket, key string) *S3Image {
	return &S3Image{
		bucket: bucket,
		key:    key,
		s3:     s3Client,
	}
}

func (s *S3Image) Load(ctx context.Context) ([]byte, error) {
	resp, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get image object from S3: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// S3ImageStore uploads captures under a prefix with an expiry time and tag.
type S3ImageStore struct {
	bucket string
	prefix string
	ttl    time.Duration
	s3     s3API
	now    func() time.Time
}

func NewS3ImageStore(s3Client s3API, bucket, prefix string, ttl time.Duration) *S3ImageStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &S3ImageStore{
		bucket: bucket,
		prefix: prefix,
		ttl:    ttl,
		s3:     s3Client,
		now:    time.Now,
	}
}

func (s *S3ImageStore) Put(ctx context.Context, data []byte, contentType string) (Location, error) {
	if contentType == "" {
		contentType = DetectMIME(data)
	}

	expires := s.now().Add(s.ttl).UTC()
	loc := Location{
		Bucket:    s.bucket,
		Key:       path.Join(s.prefix, uuid.NewString()),
		ExpiresAt: expires,
	}

	tags := url.Values{}
	tags.Set(ExpiryTagKey, expires.Format(time.RFC3339))

	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(loc.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Expires:     aws.Time(expires),
		Tagging:     aws.String(tags.Encode()),
	})
	if err != nil {
		return Location{}, fmt.Errorf("failed to put image object to S3: %w", err)
	}

	slog.Info("STORAGE: Uploaded capture", "uri", loc.URI(), "bytes", len(data), "expires_at", expires)
	return loc, nil
}
