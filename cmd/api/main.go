// Command api serves job submission and status over HTTP.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"aurora/internal/awsutil"
	"aurora/internal/config"
	"aurora/internal/httpapi"
	"aurora/internal/httpapi/handlers"
	"aurora/internal/ledger"
	"aurora/internal/pkg/cli"
	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
	"aurora/internal/pkg/shutdown"
	"aurora/internal/submitter"
)

func main() {
	cli.Main("aurora-api", run)
}

func run(ctx context.Context, log *logger.Logger) error {
	httpPort := config.Env("HTTP_PORT", "8080")
	dbURL, err := config.MustEnv("DATABASE_URL")
	if err != nil {
		return err
	}
	outputsPath, err := config.MustEnv("AURORA_OUTPUTS")
	if err != nil {
		return err
	}
	outputs, err := config.LoadOutputs(outputsPath)
	if err != nil {
		return err
	}

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)
	fail := func(err error) error {
		shutdownMgr.Shutdown()
		return err
	}

	// Connect to PostgreSQL
	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fail(errors.Transport(err, "api.postgres", "failed to connect to PostgreSQL"))
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)

	if err := pool.Ping(ctx); err != nil {
		return fail(errors.Transport(err, "api.postgres", "failed to ping PostgreSQL"))
	}
	led := ledger.New(pool)
	if err := led.Migrate(ctx); err != nil {
		return fail(err)
	}
	log.Info("PostgreSQL connected")

	deps := handlers.Deps{
		Ledger:       led,
		Pool:         pool,
		QueueBackend: config.Env("QUEUE_BACKEND", "sqs"),
		Log:          log,
	}

	var rdb *redis.Client
	if addr := config.Env("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(errors.Transport(err, "api.redis", "failed to ping Redis").WithField("addr", addr))
		}
		deps.RDB = rdb
		log.Info("Redis connected", "addr", addr)
	}

	pub, err := submitter.NewPublisherFromEnv(
		func() (aws.Config, error) { return awsutil.LoadConfig(ctx, outputs[config.OutputAWSRegion]) },
		func() (redis.Cmdable, error) {
			if rdb == nil {
				return nil, errors.Configuration("REDIS_ADDR")
			}
			return rdb, nil
		},
	)
	if err != nil {
		return fail(err)
	}
	deps.Submitter = submitter.New(pub, outputs, log)

	server := &http.Server{
		Addr:         "0.0.0.0:" + httpPort,
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	waitCtx, stop := context.WithCancel(ctx)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- errors.Transport(err, "api.listen", "HTTP server failed")
			stop()
		}
		close(serveErr)
	}()

	shutdownMgr.WaitWithContext(waitCtx)
	return <-serveErr
}
