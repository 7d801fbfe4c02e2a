// Package awsutil loads the shared AWS configuration for every binary.
package awsutil

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"

	"aurora/internal/pkg/errors"
)

const imdsTimeout = 2 * time.Second

// RegionSource resolves the region of the host instance.
type RegionSource interface {
	GetRegion(ctx context.Context, params *imds.GetRegionInput, optFns ...func(*imds.Options)) (*imds.GetRegionOutput, error)
}

// LoadConfig returns an aws.Config. The region is taken from region, then from
// the usual AWS_REGION/profile chain, and finally from instance metadata.
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	return loadConfig(ctx, region, imds.New(imds.Options{}))
}

func loadConfig(ctx context.Context, region string, meta RegionSource) (aws.Config, error) {
	const op = "awsutil.config"

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.WrapWithCode(err, errors.CodeConfiguration, op, "failed to load AWS configuration")
	}

	if cfg.Region == "" {
		r, err := RegionFromMetadata(ctx, meta)
		if err != nil {
			return aws.Config{}, err
		}
		cfg.Region = r
	}
	return cfg, nil
}

// RegionFromMetadata asks the instance metadata service for the region.
func RegionFromMetadata(ctx context.Context, meta RegionSource) (string, error) {
	if v := os.Getenv("AWS_REGION"); v != "" {
		return v, nil
	}

	ctx, cancel := context.WithTimeout(ctx, imdsTimeout)
	defer cancel()

	out, err := meta.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeConfiguration, "awsutil.region", "AWS region not configured and instance metadata unavailable")
	}
	return out.Region, nil
}
