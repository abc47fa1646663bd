package storage

import (
	"errors"
	"strings"
)

// Open resolves an image reference to a source: s3://bucket/key goes through S3,
// anything else is a local path.
func Open(ref string, s3Client s3API) (ImageSource, error) {
	if strings.HasPrefix(ref, "s3://") {
		bucket, key, err := ParseS3URI(ref)
		if err != nil {
			return nil, err
		}
		if s3Client == nil {
			return nil, errors.New("s3 image reference needs an S3 client")
		}
		return NewS3Image(s3Client, bucket, key), nil
	}
	return NewFileImage(ref), nil
}
