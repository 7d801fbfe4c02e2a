package objectstore

import (
	"fmt"

	"aurora/internal/config"
	"aurora/internal/pkg/errors"
)

// NewFromEnv picks the store from OBJECT_STORE_PROVIDER (s3 by default).
func NewFromEnv(region string) (Store, error) {
	provider := config.Env("OBJECT_STORE_PROVIDER", "s3")

	switch provider {
	case "s3":
		s3, err := NewS3(S3Config{
			Endpoint:  config.Env("S3_ENDPOINT", DefaultS3Endpoint),
			Region:    region,
			AccessKey: config.Env("S3_ACCESS_KEY", ""),
			SecretKey: config.Env("S3_SECRET_KEY", ""),
			UseSSL:    config.BoolEnv("S3_USE_SSL", true),
		})
		if err != nil {
			return nil, err
		}
		return s3, nil

	case "localfs":
		root, err := config.MustEnv("OBJECT_STORE_LOCAL_ROOT")
		if err != nil {
			return nil, err
		}
		return NewLocalFS(root), nil

	default:
		return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("unknown object store provider: %s", provider))
	}
}
