package worker

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"aurora/internal/dispatcher"
	"aurora/internal/pkg/logger"
)

// Queue is the blocking source of request bodies.
type Queue interface {
	Name() string
	PopWithin(ctx context.Context, timeout time.Duration) (string, error)
}

type Dispatcher interface {
	OnMessageBatch(ctx context.Context, msgs []events.SQSMessage) dispatcher.Outcome
}

// Recorder is notified of each dispatch outcome. The ledger implements it.
type Recorder interface {
	MarkDispatched(ctx context.Context, jobID, instanceID string) error
	MarkFailed(ctx context.Context, jobID, reason string) error
}

type Deps struct {
	Queue      Queue
	Dispatcher Dispatcher
	Recorder   Recorder // optional
	Log        *logger.Logger

	PopTimeout time.Duration
	RetryDelay time.Duration
}

const (
	DefaultPopTimeout = 30 * time.Second
	DefaultRetryDelay = time.Second
)
