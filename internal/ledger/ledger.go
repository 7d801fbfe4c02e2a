// Package ledger records submitted job requests in PostgreSQL so the HTTP API
// can answer status queries and the local worker can mark dispatches.
package ledger

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"aurora/internal/pkg/errors"
)

type Status string

const (
	StatusQueued         Status = "QUEUED"
	StatusDispatched     Status = "DISPATCHED"
	StatusDispatchFailed Status = "DISPATCH_FAILED"
	StatusSubmitFailed   Status = "SUBMIT_FAILED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusDispatched, StatusDispatchFailed, StatusSubmitFailed:
		return true
	}
	return false
}

// Schema creates the submissions table. Migrate runs it at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS submissions (
	job_id      TEXT PRIMARY KEY,
	jobpackage  TEXT NOT NULL,
	status      TEXT NOT NULL,
	message_id  TEXT,
	instance_id TEXT,
	error       TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS submissions_status_created_idx ON submissions (status, created_at DESC);
`

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type Submission struct {
	JobID      string    `json:"jobid"`
	JobPackage string    `json:"jobpackage"`
	Status     Status    `json:"status"`
	MessageID  string    `json:"message_id,omitempty"`
	InstanceID string    `json:"instance_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DB is the part of pgxpool.Pool the ledger needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Ledger struct {
	db  DB
	now func() time.Time
}

func New(db DB) *Ledger {
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, Schema); err != nil {
		return errors.Wrap(err, "ledger.migrate", "failed to create submissions table")
	}
	return nil
}

// Insert stores a new QUEUED submission. A duplicate job id is a validation error.
func (l *Ledger) Insert(ctx context.Context, s *Submission) error {
	if strings.TrimSpace(s.JobID) == "" {
		return errors.ValidationField("jobid", "jobid is required")
	}
	if s.Status == "" {
		s.Status = StatusQueued
	}
	now := l.now()
	s.CreatedAt, s.UpdatedAt = now, now

	_, err := l.db.Exec(ctx,
		`INSERT INTO submissions (job_id, jobpackage, status, message_id, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		s.JobID, s.JobPackage, string(s.Status), nullIfEmpty(s.MessageID), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return errors.ValidationField("jobid", "submission already exists").WithField("jobid", s.JobID)
		}
		return errors.Wrap(err, "ledger.insert", "db insert failed").WithField("jobid", s.JobID)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, jobID string) (*Submission, error) {
	row := l.db.QueryRow(ctx,
		`SELECT job_id, jobpackage, status, message_id, instance_id, error, created_at, updated_at
		 FROM submissions WHERE job_id=$1`, jobID)

	s, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("submission", jobID)
		}
		return nil, errors.Wrap(err, "ledger.get", "db query failed").WithField("jobid", jobID)
	}
	return s, nil
}

// List returns the newest submissions first, optionally filtered by status.
// Limits outside 1..MaxListLimit fall back to DefaultListLimit.
func (l *Ledger) List(ctx context.Context, status Status, limit int) ([]Submission, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = DefaultListLimit
	}
	if status != "" && !status.Valid() {
		return nil, errors.ValidationField("status", "unknown status").WithField("status", string(status))
	}

	q := `SELECT job_id, jobpackage, status, message_id, instance_id, error, created_at, updated_at
	      FROM submissions`
	args := []any{}
	if status != "" {
		q += ` WHERE status=$1`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := l.db.Query(ctx, q, args...)
	if err != nil {
		if IsUndefinedTable(err) {
			return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "ledger.list", "submissions table missing, run the migration")
		}
		return nil, errors.Wrap(err, "ledger.list", "db query failed")
	}
	defer rows.Close()

	out := make([]Submission, 0, limit)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, errors.Wrap(err, "ledger.list", "db scan failed")
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "ledger.list", "db rows failed")
	}
	return out, nil
}

func (l *Ledger) MarkDispatched(ctx context.Context, jobID, instanceID string) error {
	return l.update(ctx, jobID, StatusDispatched, instanceID, "")
}

func (l *Ledger) MarkFailed(ctx context.Context, jobID, reason string) error {
	return l.update(ctx, jobID, StatusDispatchFailed, "", reason)
}

// MarkSubmitFailed records a request that never reached the queue.
func (l *Ledger) MarkSubmitFailed(ctx context.Context, jobID, reason string) error {
	return l.update(ctx, jobID, StatusSubmitFailed, "", reason)
}

// SetMessageID attaches the queue message id. The status is left alone so a
// worker that already marked the job is not overwritten.
func (l *Ledger) SetMessageID(ctx context.Context, jobID, messageID string) error {
	tag, err := l.db.Exec(ctx,
		`UPDATE submissions SET message_id=$2 WHERE job_id=$1`,
		jobID, nullIfEmpty(messageID),
	)
	if err != nil {
		return errors.Wrap(err, "ledger.set_message_id", "db update failed").WithField("jobid", jobID)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("submission", jobID)
	}
	return nil
}

func (l *Ledger) update(ctx context.Context, jobID string, status Status, instanceID, reason string) error {
	tag, err := l.db.Exec(ctx,
		`UPDATE submissions
		 SET status=$2, instance_id=COALESCE($3, instance_id), error=$4, updated_at=$5
		 WHERE job_id=$1`,
		jobID, string(status), nullIfEmpty(instanceID), nullIfEmpty(reason), l.now(),
	)
	if err != nil {
		return errors.Wrap(err, "ledger.update", "db update failed").WithField("jobid", jobID)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("submission", jobID)
	}
	return nil
}

func scanSubmission(row pgx.Row) (*Submission, error) {
	var (
		s                           Submission
		status                      string
		messageID, instanceID, fail *string
	)
	if err := row.Scan(&s.JobID, &s.JobPackage, &status, &messageID, &instanceID, &fail, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = Status(status)
	s.MessageID = deref(messageID)
	s.InstanceID = deref(instanceID)
	s.Error = deref(fail)
	return &s, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
