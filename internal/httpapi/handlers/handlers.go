package handlers

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"aurora/internal/ledger"
	"aurora/internal/pkg/logger"
	"aurora/internal/submitter"
)

// Submitter is split so the ledger row exists before the queue has the job.
type Submitter interface {
	Prepare(artifactURI string) (submitter.Prepared, error)
	Publish(ctx context.Context, p submitter.Prepared) (submitter.Receipt, error)
}

// Ledger is the read/write side of the submissions table used by the API.
type Ledger interface {
	Insert(ctx context.Context, s *ledger.Submission) error
	Get(ctx context.Context, jobID string) (*ledger.Submission, error)
	List(ctx context.Context, status ledger.Status, limit int) ([]ledger.Submission, error)
	SetMessageID(ctx context.Context, jobID, messageID string) error
	MarkSubmitFailed(ctx context.Context, jobID, reason string) error
}

type Deps struct {
	Submitter    Submitter
	Ledger       Ledger
	Pool         *pgxpool.Pool // health only, optional
	RDB          redis.Cmdable // health only, optional
	QueueBackend string
	Log          *logger.Logger
}

type Handler struct {
	submitter    Submitter
	ledger       Ledger
	pool         *pgxpool.Pool
	rdb          redis.Cmdable
	queueBackend string
	log          *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		submitter:    d.Submitter,
		ledger:       d.Ledger,
		pool:         d.Pool,
		rdb:          d.RDB,
		queueBackend: d.QueueBackend,
		log:          log.WithComponent("httpapi"),
	}
}
