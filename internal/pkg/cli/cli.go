// Package cli holds the shared entrypoint plumbing for the command binaries.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"aurora/internal/config"
	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
)

// Main loads .env, builds the logger for service and runs fn with a context
// canceled on SIGINT or SIGTERM. It never returns.
func Main(service string, fn func(ctx context.Context, log *logger.Logger) error) {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(errors.GetExitCode(err))
	}

	cfg := logger.DefaultConfig()
	cfg.ServiceName = service
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := fn(ctx, log)
	stop()

	Exit(log, os.Stderr, err)
}

// Exit logs err and terminates the process with its mapped exit status.
func Exit(log *logger.Logger, stderr io.Writer, err error) {
	code := Report(log, stderr, err)
	os.Exit(code)
}

// Report writes err to the log and stderr and returns the exit status.
func Report(log *logger.Logger, stderr io.Writer, err error) int {
	if err == nil {
		return 0
	}
	code := errors.GetExitCode(err)

	args := []any{"error", err.Error(), "code", string(errors.GetCode(err)), "exit_code", code}
	for k, v := range errors.GetFields(err) {
		if k == "exit_code" {
			continue
		}
		args = append(args, k, v)
	}
	log.Error("command failed", args...)

	fmt.Fprintf(stderr, "error: %v\n", err)
	return code
}
