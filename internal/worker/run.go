// Package worker feeds request bodies from the local Redis queue to the
// dispatcher, one message per batch.
package worker

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"aurora/internal/contracts"
	"aurora/internal/dispatcher"
	"aurora/internal/pkg/logger"
)

func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	popTimeout := d.PopTimeout
	if popTimeout <= 0 {
		popTimeout = DefaultPopTimeout
	}
	retryDelay := d.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	log.Info("worker started", "queue", d.Queue.Name())

	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		body, err := d.Queue.PopWithin(ctx, popTimeout)
		if err != nil {
			// Check if it's a context cancellation
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}

			log.Warn("queue pop error, retrying",
				"error", err.Error(),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		}

		if body == "" {
			continue
		}

		Handle(ctx, d, log, body)
	}
}

// Handle dispatches one body and records the outcome when a Recorder is set.
func Handle(ctx context.Context, d Deps, log *logger.Logger, body string) dispatcher.Outcome {
	msg := events.SQSMessage{
		MessageId:   uuid.NewString(),
		Body:        body,
		EventSource: "aurora:redis",
	}

	var jobID string
	if req, err := contracts.ParseJobRequest(body); err == nil {
		jobID = req.JobID
	}

	jobCtx := ctx
	jobLog := log
	if jobID != "" {
		jobCtx = logger.ContextWithJobID(ctx, jobID)
		jobLog = log.WithJobID(jobID)
	}

	jobLog.Info("dispatching request", "message_id", msg.MessageId)
	startTime := time.Now()

	out := d.Dispatcher.OnMessageBatch(jobCtx, []events.SQSMessage{msg})

	if out.Kind == dispatcher.OutcomeLaunched {
		jobLog.Info("request dispatched",
			"instance_id", out.InstanceID,
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
	} else {
		jobLog.Error("dispatch failed",
			"outcome", string(out.Kind),
			"body", out.Body,
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
	}

	if d.Recorder == nil || jobID == "" {
		return out
	}

	var err error
	if out.Kind == dispatcher.OutcomeLaunched {
		err = d.Recorder.MarkDispatched(jobCtx, jobID, out.InstanceID)
	} else {
		err = d.Recorder.MarkFailed(jobCtx, jobID, out.Body)
	}
	if err != nil {
		jobLog.Warn("failed to record dispatch outcome", "error", err.Error())
	}
	return out
}
