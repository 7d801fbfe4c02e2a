// Package runner is the on-instance job entrypoint: it fetches the job
// package, provisions credentials and runs the processing container.
package runner

import (
	"context"
	"os"
	"path/filepath"

	"aurora/internal/config"
	"aurora/internal/container"
	"aurora/internal/contracts"
	"aurora/internal/directive"
	"aurora/internal/objectstore"
	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
	"aurora/internal/secrets"
	"aurora/internal/submitter"
	"aurora/internal/timings"
)

// Stage names as they appear in timings.json.
const (
	StageFetchJobPackage = "fetch_jobpackage"
	StageGenerate        = "generate_houdini_content"
)

// Container side mount points.
const (
	ToolingMount     = "/mnt/tooling/"
	DataMount        = "/mnt/data/"
	CredentialsMount = "/mnt/credentials/"
)

type Config struct {
	ToolingRoot string
	Profile     config.Profile
}

// DataRoot is the shared host directory mounted at /mnt/data/.
func (c Config) DataRoot() string { return filepath.Join(c.ToolingRoot, "SHARED") }

func (c Config) CredentialsRoot() string { return filepath.Join(c.ToolingRoot, "houdini_credentials") }

func (c Config) OutputDir() string { return filepath.Join(c.DataRoot(), "OUT") }

func (c Config) InputDir() string { return filepath.Join(c.DataRoot(), "IN") }

// DefaultWorkDirective is used when --work-directive is not given.
func (c Config) DefaultWorkDirective() string {
	return filepath.Join(c.ToolingRoot, "RUNTIME", "IN", "houdini_directive.json")
}

type Options struct {
	ProcessHip       bool
	WorkDirective    string
	JobID            string
	JobPackage       string
	ResponseQueueURL string
}

// ContainerRunner runs one invocation to completion.
type ContainerRunner interface {
	Run(ctx context.Context, inv container.Invocation) (container.Result, error)
}

type Deps struct {
	Containers ContainerRunner
	Secrets    secrets.Store
	// Objects is needed only when a job package is fetched.
	Objects objectstore.Store
	// Responses is needed only when a response queue is given.
	Responses submitter.Publisher
	Log       *logger.Logger
}

type Runner struct {
	cfg Config
	d   Deps
	log *logger.Logger
}

func New(cfg Config, d Deps) *Runner {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Runner{cfg: cfg, d: d, log: log.WithComponent("runner")}
}

// Run executes the requested stages. timings.json is written on every exit
// path and a JobResponse is published when a response queue is configured.
func (r *Runner) Run(ctx context.Context, opts Options) (err error) {
	log := r.log
	if opts.JobID != "" {
		log = log.WithJobID(opts.JobID)
		ctx = logger.ContextWithJobID(ctx, opts.JobID)
	}

	rec := timings.New()
	defer func() {
		if path, saveErr := rec.Save(r.cfg.OutputDir()); saveErr != nil {
			log.Error("failed to write timings", "error", saveErr.Error())
			if err == nil {
				err = saveErr
			}
		} else {
			log.Info("timings written", "path", path)
		}

		if pubErr := r.respond(context.WithoutCancel(ctx), log, opts, rec, err); pubErr != nil && err == nil {
			err = pubErr
		}
	}()

	if err := os.MkdirAll(r.cfg.OutputDir(), 0o755); err != nil {
		return errors.Wrap(err, "runner.run", "failed to create output directory")
	}

	if opts.ProcessHip && opts.WorkDirective == "" {
		return errors.ValidationField("work_directive", "the --work-directive argument must be provided when --process-hip is set")
	}

	if opts.JobPackage != "" {
		if err := rec.Track(StageFetchJobPackage, func() error { return r.fetchJobPackage(ctx, log, opts.JobPackage) }); err != nil {
			return err
		}
	}

	if opts.ProcessHip {
		if err := rec.Track(StageGenerate, func() error { return r.generate(ctx, log, opts) }); err != nil {
			return err
		}
	}

	log.Info("job finished")
	return nil
}

func (r *Runner) fetchJobPackage(ctx context.Context, log *logger.Logger, uri string) error {
	log = log.WithStage(StageFetchJobPackage)
	if r.d.Objects == nil {
		return errors.Configuration("object store")
	}
	path, err := objectstore.Download(ctx, r.d.Objects, uri, r.cfg.InputDir())
	if err != nil {
		return err
	}
	log.Info("job package fetched", "jobpackage", uri, "path", path)
	return nil
}

func (r *Runner) generate(ctx context.Context, log *logger.Logger, opts Options) error {
	log = log.WithStage(StageGenerate)
	p := r.cfg.Profile

	hostDirective := directive.HostPath(opts.WorkDirective, r.cfg.DataRoot())
	if _, err := os.Stat(hostDirective); err == nil {
		if _, err := directive.Load(hostDirective); err != nil {
			return err
		}
	} else {
		log.Warn("work directive not readable on the host, skipping validation", "path", hostDirective)
	}

	return secrets.WithCredentialsRoot(log, r.cfg.CredentialsRoot(), func(root string) error {
		if err := secrets.WriteJSON(ctx, r.d.Secrets, p.SecretName, filepath.Join(root, p.CredentialsFile)); err != nil {
			return err
		}

		inv := r.invocation(opts, root)
		res, err := r.d.Containers.Run(ctx, inv)
		if err != nil {
			return err
		}
		log.Info("container finished", "exit_code", res.ExitCode, "log_path", res.LogPath)
		return nil
	})
}

func (r *Runner) invocation(opts Options, credentialsRoot string) container.Invocation {
	p := r.cfg.Profile

	name := p.ContainerName
	if name == "" {
		name = container.ContainerName(p.ServiceImage)
	}

	env := []container.EnvVar{
		{Key: "AURORA_TOOLING_ROOT", Value: ToolingMount},
		{Key: "DATA_ROOT", Value: DataMount},
		{Key: "CREDENTIALS_ROOT", Value: CredentialsMount},
	}
	if opts.JobID != "" {
		env = append(env, container.EnvVar{Key: "AURORA_JOB_ID", Value: opts.JobID})
	}
	env = append(env, container.EnvFromMap(p.Env)...)

	return container.Invocation{
		Image:      p.ServiceImage,
		Name:       name,
		Entrypoint: p.Entrypoint,
		Script:     p.Script,
		Args:       []string{"--work_directive", directive.ContainerPath(opts.WorkDirective, DataMount)},
		Mounts: []container.Mount{
			{HostPath: r.cfg.ToolingRoot, ContainerPath: ToolingMount},
			{HostPath: r.cfg.DataRoot(), ContainerPath: DataMount},
			{HostPath: credentialsRoot, ContainerPath: CredentialsMount},
		},
		Env:       env,
		ExtraArgs: p.ExtraDockerArgs,
		Timeout:   p.Timeout,
		LogPath:   filepath.Join(p.LogDir, "runtime.log"),
	}
}

func (r *Runner) respond(ctx context.Context, log *logger.Logger, opts Options, rec *timings.Record, runErr error) error {
	if opts.ResponseQueueURL == "" {
		return nil
	}
	if r.d.Responses == nil {
		log.Warn("response queue given but no publisher configured", "queue_url", opts.ResponseQueueURL)
		return nil
	}

	resp := contracts.NewJobResponse(opts.JobID, rec.Snapshot(), runErr)
	body, err := resp.Marshal()
	if err != nil {
		return err
	}
	if _, err := r.d.Responses.Publish(ctx, opts.ResponseQueueURL, body); err != nil {
		log.Error("failed to publish job response", "error", err.Error())
		return err
	}
	log.Info("job response published", "status", resp.Status)
	return nil
}
