// Package storage moves meal images in and out of files and S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ImageSource loads the bytes of one image.
type ImageSource interface {
	Load(ctx context.Context) ([]byte, error)
}

// ImageStore uploads images to a transient location that expires on its own.
type ImageStore interface {
	Put(ctx context.Context, data []byte, contentType string) (Location, error)
}

// Location identifies an uploaded image.
type Location struct {
	Bucket    string
	Key       string
	ExpiresAt time.Time
}

// URI returns the s3:// form of the location.
func (l Location) URI() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// ParseS3URI splits s3://bucket/key into its parts.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri needs a bucket and key: %q", uri)
	}
	return bucket, key, nil
}

// DetectMIME sniffs the image type, defaulting to JPEG for unrecognized data.
func DetectMIME(data []byte) string {
	ct := http.DetectContentType(data)
	switch ct {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return ct
	default:
		return "image/jpeg"
	}
}

// TestImageSource is a simple in-memory implementation for testing
type TestImageSource struct {
	data []byte
	err  error
}

func NewTestImageSource(data []byte) *TestImageSource {
	return &TestImageSource{data: data}
}

func NewTestImageSourceWithError() *TestImageSource {
	return &TestImageSource{err: errors.New("not found")}
}

func (t *TestImageSource) Load(ctx context.Context) ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.data, nil
}

// TestImageStore keeps uploads in memory
type TestImageStore struct {
	Bucket  string
	Objects map[string][]byte
	err     error
}

func NewTestImageStore(bucket string) *TestImageStore {
	return &TestImageStore{Bucket: bucket, Objects: map[string][]byte{}}
}

func NewTestImageStoreWithError() *TestImageStore {
	return &TestImageStore{err: errors.New("upload failed")}
}

func (t *TestImageStore) Put(ctx context.Context, data []byte, contentType string) (Location, error) {
	if t.err != nil {
		return Location{}, t.err
	}
	key := fmt.Sprintf("captures/%d", len(t.Objects))
	t.Objects[key] = data
	return Location{Bucket: t.Bucket, Key: key}, nil
}
