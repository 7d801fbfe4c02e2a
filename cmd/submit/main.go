// Command submit places one job request on the request queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/redis/go-redis/v9"

	"aurora/internal/awsutil"
	"aurora/internal/config"
	"aurora/internal/objectstore"
	"aurora/internal/pkg/cli"
	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
	"aurora/internal/submitter"
)

func main() {
	cli.Main("aurora-submit", run)
}

func run(ctx context.Context, log *logger.Logger) error {
	var uri, outputsPath, upload string
	defaultOutputs := ""
	if root := config.Env("AURORA_TOOLING_ROOT", ""); root != "" {
		defaultOutputs = filepath.Join(root, "samples", "tf_outputs.json")
	}

	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.StringVar(&uri, "s3-file-uri", "", "s3:// URI of the job package")
	fs.StringVar(&outputsPath, "outputs", config.Env("AURORA_OUTPUTS", defaultOutputs), "provisioning outputs JSON")
	fs.StringVar(&upload, "upload", "", "local job package to upload to --s3-file-uri before submitting")
	if err := fs.Parse(cli.Args()); err != nil {
		return cli.FlagError(err)
	}

	if _, err := objectstore.ParseS3URI(uri); err != nil {
		return err
	}
	if outputsPath == "" {
		return errors.Configuration("AURORA_OUTPUTS")
	}
	outputs, err := config.LoadOutputs(outputsPath)
	if err != nil {
		return err
	}
	if err := outputs.Require(config.OutputAWSRegion); err != nil {
		return err
	}
	region := outputs[config.OutputAWSRegion]

	if upload != "" {
		if err := uploadPackage(ctx, region, upload, uri); err != nil {
			return err
		}
		log.Info("job package uploaded", "path", upload, "jobpackage", uri)
	}

	pub, err := submitter.NewPublisherFromEnv(
		func() (aws.Config, error) { return awsutil.LoadConfig(ctx, region) },
		func() (redis.Cmdable, error) {
			return redis.NewClient(&redis.Options{Addr: config.Env("REDIS_ADDR", "localhost:6379")}), nil
		},
	)
	if err != nil {
		return err
	}

	receipt, jobID, err := submitter.New(pub, outputs, log).Submit(ctx, uri)
	if err != nil {
		return err
	}
	fmt.Printf("jobid=%s message_id=%s\n", jobID, receipt.MessageID)
	return nil
}

func uploadPackage(ctx context.Context, region, path, uri string) error {
	loc, err := objectstore.ParseS3URI(uri)
	if err != nil {
		return err
	}
	store, err := objectstore.NewFromEnv(region)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "submit.upload", "failed to open job package")
	}
	defer f.Close()

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	return store.PutObject(ctx, objectstore.PutObjectInput{
		Bucket:      loc.Bucket,
		ObjectKey:   loc.Key,
		ContentType: "application/zip",
		Reader:      f,
		Size:        size,
	})
}
