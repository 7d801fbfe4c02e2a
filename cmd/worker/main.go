// Command worker dispatches job requests from the local Redis queue, the
// stand-in for the SQS trigger when running without Lambda.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"aurora/internal/awsutil"
	"aurora/internal/config"
	"aurora/internal/dispatcher"
	"aurora/internal/ledger"
	"aurora/internal/pkg/cli"
	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
	"aurora/internal/pkg/shutdown"
	"aurora/internal/queue"
	"aurora/internal/worker"
)

func main() {
	cli.Main("aurora-worker", run)
}

func run(ctx context.Context, log *logger.Logger) error {
	redisAddr, err := config.MustEnv("REDIS_ADDR")
	if err != nil {
		return err
	}
	popTimeout, err := config.DurationEnv("WORKER_POP_TIMEOUT", worker.DefaultPopTimeout)
	if err != nil {
		return err
	}
	queueName := config.Env("JOB_QUEUE_NAME", queue.DefaultName)

	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		shutdownMgr.Shutdown()
		return errors.Transport(err, "worker.redis", "failed to ping Redis").WithField("addr", redisAddr)
	}
	log.Info("Redis connected", "addr", redisAddr)

	awsCfg, err := awsutil.LoadConfig(ctx, config.Env("AWS_REGION", ""))
	if err != nil {
		shutdownMgr.Shutdown()
		return err
	}

	deps := worker.Deps{
		Queue:      queue.NewRedisQueue(rdb, queueName),
		Dispatcher: dispatcher.New(ec2.NewFromConfig(awsCfg), dispatcher.ConfigFromEnv(), log),
		Log:        log,
		PopTimeout: popTimeout,
	}

	if dbURL := config.Env("DATABASE_URL", ""); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			shutdownMgr.Shutdown()
			return errors.Transport(err, "worker.postgres", "failed to connect to PostgreSQL")
		}
		shutdownMgr.RegisterSimple("postgres", pool.Close)
		deps.Recorder = ledger.New(pool)
		log.Info("recording dispatch outcomes in the submissions ledger")
	}

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(shutdownMgr.Context(), deps)
	}()

	shutdownMgr.WaitWithContext(ctx)

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
