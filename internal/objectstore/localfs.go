package objectstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"aurora/internal/pkg/errors"
)

// LocalFS stores objects as root/bucket/key on the local filesystem.
type LocalFS struct {
	root string
}

func NewLocalFS(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

func (l *LocalFS) path(bucket, key string) (string, error) {
	p := filepath.Join(l.root, bucket, filepath.FromSlash(key))
	rel, err := filepath.Rel(l.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.ValidationField("object_key", "object key escapes the store root")
	}
	return p, nil
}

func (l *LocalFS) PutObject(ctx context.Context, in PutObjectInput) error {
	if in.ObjectKey == "" {
		return errors.ValidationField("object_key", "object_key is required")
	}
	dst, err := l.path(in.Bucket, in.ObjectKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "objectstore.put", "failed to create directory")
	}

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "objectstore.put", "failed to create object")
	}
	defer out.Close()

	if _, err := io.Copy(out, in.Reader); err != nil {
		return errors.Wrap(err, "objectstore.put", "failed to write object")
	}
	return nil
}

func (l *LocalFS) GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, int64, error) {
	p, err := l.path(bucket, objectKey)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, errors.NotFound("object", bucket+"/"+objectKey)
		}
		return nil, 0, errors.Wrap(err, "objectstore.get", "failed to open object")
	}

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	return f, size, nil
}
