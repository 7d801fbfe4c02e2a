// Command dispatcher is the Lambda function launching one instance per job request.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"aurora/internal/awsutil"
	"aurora/internal/config"
	"aurora/internal/dispatcher"
	"aurora/internal/pkg/cli"
	"aurora/internal/pkg/logger"
)

func main() {
	cli.Main("aurora-dispatcher", func(ctx context.Context, log *logger.Logger) error {
		awsCfg, err := awsutil.LoadConfig(ctx, config.Env("AWS_REGION", ""))
		if err != nil {
			return err
		}
		d := dispatcher.New(ec2.NewFromConfig(awsCfg), dispatcher.ConfigFromEnv(), log)
		lambda.StartWithOptions(d.HandleSQSEvent, lambda.WithContext(ctx))
		return nil
	})
}
