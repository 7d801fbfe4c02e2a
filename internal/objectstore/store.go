// Package objectstore reads and writes job packages addressed by s3:// URIs.
package objectstore

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"aurora/internal/pkg/errors"
)

type PutObjectInput struct {
	Bucket      string
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

// Store: implementaciones (s3 via minio, localfs)
type Store interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) error
	GetObject(ctx context.Context, bucket, objectKey string) (rc io.ReadCloser, size int64, err error)
}

// Location is a parsed s3://bucket/key URI.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string { return "s3://" + l.Bucket + "/" + l.Key }

// ParseS3URI accepts only s3://bucket/key with a non-empty bucket and key.
func ParseS3URI(uri string) (Location, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return Location{}, errors.WrapWithCode(err, errors.CodeValidation, "objectstore.parse", "invalid artifact uri").
			WithField("uri", uri)
	}
	if u.Scheme != "s3" {
		return Location{}, errors.ValidationField("jobpackage", "invalid S3 file URI, it must start with 's3://'")
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, errors.ValidationField("jobpackage", "S3 file URI needs a bucket and an object key")
	}
	return Location{Bucket: u.Host, Key: key}, nil
}

// Download copies the object at uri into destDir, keeping the key's base name.
// It returns the local path.
func Download(ctx context.Context, store Store, uri, destDir string) (string, error) {
	const op = "objectstore.download"

	loc, err := ParseS3URI(uri)
	if err != nil {
		return "", err
	}

	rc, _, err := store.GetObject(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.Wrap(err, op, "failed to create destination directory")
	}

	dst := filepath.Join(destDir, path.Base(loc.Key))
	part := dst + ".part"
	out, err := os.Create(part)
	if err != nil {
		return "", errors.Wrap(err, op, "failed to create local file")
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		_ = os.Remove(part)
		return "", errors.Transport(err, op, "failed to read object").WithField("uri", uri)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(part)
		return "", errors.Wrap(err, op, "failed to flush local file")
	}
	if err := os.Rename(part, dst); err != nil {
		_ = os.Remove(part)
		return "", errors.Wrap(err, op, "failed to move object into place")
	}
	return dst, nil
}
