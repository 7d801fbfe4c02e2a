package objectstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"aurora/internal/pkg/errors"
)

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri     string
		want    Location
		wantErr bool
	}{
		{uri: "s3://bucket/key.zip", want: Location{Bucket: "bucket", Key: "key.zip"}},
		{uri: "s3://bucket/nested/path/scene.zip", want: Location{Bucket: "bucket", Key: "nested/path/scene.zip"}},
		{uri: "http://bucket/key", wantErr: true},
		{uri: "s3://bucket/", wantErr: true},
		{uri: "s3:///key", wantErr: true},
		{uri: "bucket/key", wantErr: true},
		{uri: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseS3URI(tt.uri)
			if tt.wantErr {
				if !errors.IsValidation(err) {
					t.Errorf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
			if got.String() != tt.uri {
				t.Errorf("expected round trip to %s, got %s", tt.uri, got.String())
			}
		})
	}
}

func TestLocalFSDownload(t *testing.T) {
	ctx := context.Background()
	store := NewLocalFS(t.TempDir())

	payload := []byte("PK\x03\x04 scene")
	err := store.PutObject(ctx, PutObjectInput{Bucket: "jobs", ObjectKey: "in/scene.zip", Reader: bytes.NewReader(payload)})
	if err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	path, err := Download(ctx, store, "s3://jobs/in/scene.zip", dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != filepath.Join(dest, "scene.zip") {
		t.Errorf("unexpected path %s", path)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, payload) {
		t.Error("downloaded content differs")
	}

	if _, err := Download(ctx, store, "s3://jobs/missing.zip", dest); !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, _, err := store.GetObject(ctx, "jobs", "../../etc/passwd"); !errors.IsValidation(err) {
		t.Errorf("expected traversal to be rejected, got %v", err)
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("OBJECT_STORE_PROVIDER", "localfs")
	t.Setenv("OBJECT_STORE_LOCAL_ROOT", t.TempDir())

	s, err := NewFromEnv("us-west-2")
	if err != nil || s.Provider() != "localfs" {
		t.Errorf("expected localfs store, got %v, %v", s, err)
	}

	t.Setenv("OBJECT_STORE_PROVIDER", "gcs")
	if _, err := NewFromEnv("us-west-2"); !errors.IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}

	t.Setenv("OBJECT_STORE_PROVIDER", "s3")
	s, err = NewFromEnv("us-west-2")
	if err != nil || s.Provider() != "s3" {
		t.Errorf("expected s3 store, got %v, %v", s, err)
	}
}
