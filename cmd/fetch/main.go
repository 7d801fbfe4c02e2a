// Command fetch downloads, verifies and extracts an installer archive.
package main

import (
	"context"
	"flag"
	"fmt"

	"aurora/internal/artifact"
	"aurora/internal/awsutil"
	"aurora/internal/config"
	"aurora/internal/pkg/cli"
	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
	"aurora/internal/releaseinfo"
	"aurora/internal/secrets"
)

func main() {
	cli.Main("aurora-fetch", run)
}

func run(ctx context.Context, log *logger.Logger) error {
	var d artifact.Download
	var version, secretName, product, platform string

	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.StringVar(&d.URL, "download-url", "", "URL to download the file from")
	fs.StringVar(&d.Filename, "filename", "", "name of the file to download")
	fs.StringVar(&d.Hash, "hash", "", "expected hash of the file (md5 hex, or md5:/sha1:/sha256: prefixed)")
	fs.StringVar(&d.TargetDir, "installer-path", artifact.DefaultInstallerPath, "where the installer is downloaded and extracted")
	fs.StringVar(&version, "release-version", "", "resolve download parameters for this release, e.g. 20.5.410")
	fs.StringVar(&secretName, "secret-name", config.Env("SIDEFX_SECRETS_NAME", "SideFXOAuthCredentials"), "secret holding the vendor API credentials")
	fs.StringVar(&product, "product", "houdini", "product to resolve")
	fs.StringVar(&platform, "platform", "linux", "platform to resolve")
	if err := fs.Parse(cli.Args()); err != nil {
		return cli.FlagError(err)
	}

	if version != "" {
		if d.URL != "" || d.Hash != "" {
			return errors.Validation("--release-version cannot be combined with --download-url or --hash")
		}
		info, err := resolve(ctx, secretName, product, platform, version)
		if err != nil {
			return err
		}
		d.URL, d.Hash = info.DownloadURL, info.Hash
		if d.Filename == "" {
			d.Filename = info.Filename
		}
		log.Info("resolved release", "version", version, "filename", d.Filename)
	}

	build, err := artifact.NewFetcher(nil, log).Provision(ctx, d)
	if err != nil {
		return err
	}
	fmt.Println(build)
	return nil
}

func resolve(ctx context.Context, secretName, product, platform, version string) (releaseinfo.DownloadInfo, error) {
	awsCfg, err := awsutil.LoadConfig(ctx, config.Env("AWS_REGION", ""))
	if err != nil {
		return releaseinfo.DownloadInfo{}, err
	}
	client, err := releaseinfo.NewClientFromSecret(ctx, secrets.NewSecretsManagerStore(awsCfg), secretName,
		config.Env("SIDEFX_API_URL", ""), config.Env("SIDEFX_TOKEN_URL", ""))
	if err != nil {
		return releaseinfo.DownloadInfo{}, err
	}
	return client.Resolve(ctx, product, platform, version)
}
