// Command runner executes one job on the compute instance.
package main

import (
	"context"
	"flag"

	"aurora/internal/awsutil"
	"aurora/internal/config"
	"aurora/internal/container"
	"aurora/internal/objectstore"
	"aurora/internal/pkg/cli"
	"aurora/internal/pkg/logger"
	"aurora/internal/runner"
	"aurora/internal/secrets"
	"aurora/internal/submitter"
)

func main() {
	cli.Main("aurora-runner", run)
}

func run(ctx context.Context, log *logger.Logger) error {
	toolingRoot, err := config.MustEnv("AURORA_TOOLING_ROOT")
	if err != nil {
		return err
	}

	var opts runner.Options
	var profilePath string
	fs := flag.NewFlagSet("runner", flag.ContinueOnError)
	fs.BoolVar(&opts.ProcessHip, "process-hip", false, "process a Houdini work directive")
	fs.StringVar(&opts.WorkDirective, "work-directive", runner.Config{ToolingRoot: toolingRoot}.DefaultWorkDirective(), "houdini_directive.json to process")
	fs.StringVar(&opts.JobID, "job-id", "", "job id used for logs and the response")
	fs.StringVar(&opts.JobPackage, "jobpackage", "", "s3:// URI of the job package to fetch")
	fs.StringVar(&opts.ResponseQueueURL, "response-queue-url", "", "queue receiving the job response")
	fs.StringVar(&profilePath, "profile", config.Env("AURORA_RUNTIME_PROFILE", ""), "YAML runtime profile")
	if err := fs.Parse(cli.Args()); err != nil {
		return cli.FlagError(err)
	}

	profile, err := config.LoadProfile(profilePath, toolingRoot)
	if err != nil {
		return err
	}

	awsCfg, err := awsutil.LoadConfig(ctx, config.Env("AWS_REGION", ""))
	if err != nil {
		return err
	}

	deps := runner.Deps{
		Containers: container.NewSupervisor(container.Deps{
			Platform: container.DetectPlatform(),
			Log:      log,
		}),
		Secrets: secrets.NewSecretsManagerStore(awsCfg),
		Log:     log,
	}
	if opts.JobPackage != "" {
		store, err := objectstore.NewFromEnv(awsCfg.Region)
		if err != nil {
			return err
		}
		deps.Objects = store
	}
	if opts.ResponseQueueURL != "" {
		deps.Responses = submitter.NewSQSPublisherFromConfig(awsCfg)
	}

	r := runner.New(runner.Config{ToolingRoot: toolingRoot, Profile: profile}, deps)
	return r.Run(ctx, opts)
}
