package objectstore

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"aurora/internal/pkg/errors"
)

const DefaultS3Endpoint = "s3.amazonaws.com"

type S3Config struct {
	Endpoint string
	Region   string
	// AccessKey and SecretKey are optional; without them credentials come
	// from the environment, the shared credentials file or the instance role.
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type S3 struct {
	client *minio.Client
}

func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultS3Endpoint
	}

	var creds *credentials.Credentials
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		})
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     creds,
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "objectstore.s3", "invalid object store configuration")
	}
	return &S3{client: client}, nil
}

func (s *S3) Provider() string { return "s3" }

func (s *S3) PutObject(ctx context.Context, in PutObjectInput) error {
	size := in.Size
	if size <= 0 {
		size = -1
	}
	_, err := s.client.PutObject(ctx, in.Bucket, in.ObjectKey, in.Reader, size, minio.PutObjectOptions{ContentType: in.ContentType})
	if err != nil {
		return errors.Transport(err, "objectstore.put", "failed to upload object").
			WithField("bucket", in.Bucket).
			WithField("key", in.ObjectKey)
	}
	return nil
}

func (s *S3) GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, int64, error) {
	const op = "objectstore.get"

	obj, err := s.client.GetObject(ctx, bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, errors.Transport(err, op, "failed to open object")
	}
	// GetObject is lazy; Stat surfaces missing keys before streaming starts.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, 0, errors.NotFound("object", bucket+"/"+objectKey)
		}
		return nil, 0, errors.Transport(err, op, "failed to stat object").
			WithField("bucket", bucket).
			WithField("key", objectKey)
	}
	return obj, info.Size, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
