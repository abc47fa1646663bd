package storage

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

type mockS3 struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	err     error
}

func newMockS3() *mockS3 { return &mockS3{objects: map[string][]byte{}} }

func (m *mockS3) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, assert.AnError
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, _ := io.ReadAll(in.Body)
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	m.puts = append(m.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func TestFileImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lunch.jpg")
	require.NoError(t, os.WriteFile(path, jpegHeader, 0644))

	data, err := NewFileImage(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jpegHeader, data)

	_, err = NewFileImage(filepath.Join(dir, "missing.jpg")).Load(context.Background())
	assert.Error(t, err)
}

func TestS3ImageStorePut(t *testing.T) {
	client := newMockS3()
	store := NewS3ImageStore(client, "captures-bucket", "captures/", time.Hour)
	fixed := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	loc, err := store.Put(context.Background(), jpegHeader, "")
	require.NoError(t, err)

	assert.Equal(t, "captures-bucket", loc.Bucket)
	assert.True(t, strings.HasPrefix(loc.Key, "captures/"))
	assert.Equal(t, fixed.Add(time.Hour), loc.ExpiresAt)
	assert.Equal(t, "s3://captures-bucket/"+loc.Key, loc.URI())

	require.Len(t, client.puts, 1)
	put := client.puts[0]
	assert.Equal(t, "image/jpeg", aws.ToString(put.ContentType))
	assert.Equal(t, fixed.Add(time.Hour), aws.ToTime(put.Expires))

	tags, err := url.ParseQuery(aws.ToString(put.Tagging))
	require.NoError(t, err)
	assert.Equal(t, "2025-05-01T09:00:00Z", tags.Get(ExpiryTagKey))

	// uploaded bytes can be read back through the source
	data, err := NewS3Image(client, loc.Bucket, loc.Key).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jpegHeader, data)
}

func TestS3ImageStorePutError(t *testing.T) {
	client := newMockS3()
	client.err = assert.AnError
	_, err := NewS3ImageStore(client, "b", "p", 0).Put(context.Background(), jpegHeader, "image/png")
	assert.ErrorContains(t, err, "failed to put image object to S3")
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{uri: "s3://bucket/a/b.jpg", wantBucket: "bucket", wantKey: "a/b.jpg"},
		{uri: "s3://bucket", wantErr: true},
		{uri: "s3:///key", wantErr: true},
		{uri: "https://bucket/key", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestOpen(t *testing.T) {
	src, err := Open("/tmp/meal.jpg", nil)
	require.NoError(t, err)
	assert.IsType(t, &FileImage{}, src)

	src, err = Open("s3://bucket/meal.jpg", newMockS3())
	require.NoError(t, err)
	assert.IsType(t, &S3Image{}, src)

	_, err = Open("s3://bucket/meal.jpg", nil)
	assert.Error(t, err)
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "image/jpeg", DetectMIME(jpegHeader))
	assert.Equal(t, "image/png", DetectMIME([]byte("\x89PNG\r\n\x1a\n0000")))
	assert.Equal(t, "image/jpeg", DetectMIME([]byte("plain text")))
}

func TestTestImageStore(t *testing.T) {
	store := NewTestImageStore("bucket")
	loc, err := store.Put(context.Background(), jpegHeader, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, jpegHeader, store.Objects[loc.Key])

	_, err = NewTestImageStoreWithError().Put(context.Background(), jpegHeader, "")
	assert.Error(t, err)
}
