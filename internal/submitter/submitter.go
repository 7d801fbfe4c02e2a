// Package submitter places job requests on the request queue.
package submitter

import (
	"context"

	"github.com/google/uuid"

	"aurora/internal/config"
	"aurora/internal/contracts"
	"aurora/internal/objectstore"
	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
)

// Receipt identifies a published request.
type Receipt struct {
	MessageID string `json:"message_id"`
	QueueURL  string `json:"queue_url"`
}

type Submitter struct {
	pub     Publisher
	outputs config.Outputs
	log     *logger.Logger
	newID   func() string
}

func New(pub Publisher, outputs config.Outputs, log *logger.Logger) *Submitter {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Submitter{pub: pub, outputs: outputs, log: log.WithComponent("submitter"), newID: newID}
}

func newID() string { return uuid.NewString() }

// Prepared is a validated request with its job id assigned, not yet on the queue.
type Prepared struct {
	Request  contracts.JobRequest
	QueueURL string
}

// Prepare validates artifactURI and the provisioning outputs and assigns a
// fresh job id. Nothing touches the network when the URI is not s3://bucket/key.
func (s *Submitter) Prepare(artifactURI string) (Prepared, error) {
	if _, err := objectstore.ParseS3URI(artifactURI); err != nil {
		return Prepared{}, err
	}
	if err := s.outputs.Require(config.OutputRequestQueueURL, config.OutputResponseQueueURL, config.OutputAWSRegion); err != nil {
		return Prepared{}, err
	}
	return Prepared{
		Request: contracts.JobRequest{
			JobPackage:       artifactURI,
			JobID:            s.newID(),
			ResponseQueueURL: s.outputs[config.OutputResponseQueueURL],
		},
		QueueURL: s.outputs[config.OutputRequestQueueURL],
	}, nil
}

// Publish puts a prepared request on the request queue. Every failure is a
// transport error.
func (s *Submitter) Publish(ctx context.Context, p Prepared) (Receipt, error) {
	body, err := p.Request.Marshal()
	if err != nil {
		return Receipt{}, err
	}
	log := s.log.WithJobID(p.Request.JobID)

	msgID, err := s.pub.Publish(ctx, p.QueueURL, body)
	if err != nil {
		if !errors.IsCode(err, errors.CodeTransport) {
			err = errors.Transport(err, "submitter.submit", "failed to publish job request")
		}
		log.Error("failed to publish job request", "error", err.Error())
		return Receipt{}, err
	}

	log.Info("job request published", "message_id", msgID, "jobpackage", p.Request.JobPackage)
	return Receipt{MessageID: msgID, QueueURL: p.QueueURL}, nil
}

// Submit prepares and publishes one request.
func (s *Submitter) Submit(ctx context.Context, artifactURI string) (Receipt, string, error) {
	p, err := s.Prepare(artifactURI)
	if err != nil {
		return Receipt{}, "", err
	}
	receipt, err := s.Publish(ctx, p)
	return receipt, p.Request.JobID, err
}
