package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"aurora/internal/contracts"
	"aurora/internal/httpapi/handlers"
	"aurora/internal/ledger"
	"aurora/internal/objectstore"
	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
	"aurora/internal/submitter"
)

// callLog is shared by the fakes so tests can assert ordering across them.
type callLog struct {
	calls []string
}

func (c *callLog) add(call string) {
	if c != nil {
		c.calls = append(c.calls, call)
	}
}

type fakeSubmitter struct {
	log        *callLog
	n          int
	prepareErr error
	err        error
}

func (s *fakeSubmitter) Prepare(uri string) (submitter.Prepared, error) {
	if _, err := objectstore.ParseS3URI(uri); err != nil {
		return submitter.Prepared{}, err
	}
	if s.prepareErr != nil {
		return submitter.Prepared{}, s.prepareErr
	}
	s.n++
	return submitter.Prepared{
		Request:  contracts.JobRequest{JobPackage: uri, JobID: fmt.Sprintf("job-%d", s.n)},
		QueueURL: "https://sqs/req",
	}, nil
}

func (s *fakeSubmitter) Publish(_ context.Context, p submitter.Prepared) (submitter.Receipt, error) {
	s.log.add("publish " + p.Request.JobID)
	if s.err != nil {
		return submitter.Receipt{}, s.err
	}
	return submitter.Receipt{MessageID: "msg-1", QueueURL: p.QueueURL}, nil
}

type fakeLedger struct {
	log       *callLog
	subs      map[string]*ledger.Submission
	insertErr error
	gotStatus ledger.Status
	gotLimit  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{subs: map[string]*ledger.Submission{}}
}

func (l *fakeLedger) Insert(_ context.Context, s *ledger.Submission) error {
	l.log.add("insert " + s.JobID + " " + string(s.Status))
	if l.insertErr != nil {
		return l.insertErr
	}
	s.CreatedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cp := *s
	l.subs[s.JobID] = &cp
	return nil
}

func (l *fakeLedger) Get(_ context.Context, jobID string) (*ledger.Submission, error) {
	s, ok := l.subs[jobID]
	if !ok {
		return nil, errors.NotFound("submission", jobID)
	}
	return s, nil
}

func (l *fakeLedger) List(_ context.Context, status ledger.Status, limit int) ([]ledger.Submission, error) {
	l.gotStatus, l.gotLimit = status, limit
	out := []ledger.Submission{}
	for _, s := range l.subs {
		out = append(out, *s)
	}
	return out, nil
}

func (l *fakeLedger) SetMessageID(_ context.Context, jobID, messageID string) error {
	l.log.add("message_id " + jobID)
	s, ok := l.subs[jobID]
	if !ok {
		return errors.NotFound("submission", jobID)
	}
	s.MessageID = messageID
	return nil
}

func (l *fakeLedger) MarkSubmitFailed(_ context.Context, jobID, reason string) error {
	l.log.add("submit_failed " + jobID)
	s, ok := l.subs[jobID]
	if !ok {
		return errors.NotFound("submission", jobID)
	}
	s.Status, s.Error = ledger.StatusSubmitFailed, reason
	return nil
}

func newTestRouter(sub *fakeSubmitter, led *fakeLedger) http.Handler {
	return NewRouter(handlers.Deps{
		Submitter:    sub,
		Ledger:       led,
		QueueBackend: "sqs",
		Log:          logger.Discard(),
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostJob(t *testing.T) {
	queueDown := errors.Transport(fmt.Errorf("dial tcp"), "submitter.publish", "failed to send message")

	tests := []struct {
		name       string
		body       string
		prepareErr error
		publishErr error
		insertErr  error
		wantStatus int
		wantCode   string
		wantCalls  []string
		wantStored ledger.Status
	}{
		{
			name: "accepted", body: `{"jobpackage":"s3://jobs/pkg.zip"}`, wantStatus: 202,
			wantCalls:  []string{"insert job-1 QUEUED", "publish job-1", "message_id job-1"},
			wantStored: ledger.StatusQueued,
		},
		{
			name: "ledger failure publishes nothing", body: `{"jobpackage":"s3://jobs/pkg.zip"}`,
			insertErr: fmt.Errorf("db down"), wantStatus: 500, wantCode: "INTERNAL_ERROR",
			wantCalls: []string{"insert job-1 QUEUED"},
		},
		{
			name: "queue unreachable marks the row", body: `{"jobpackage":"s3://jobs/pkg.zip"}`,
			publishErr: queueDown, wantStatus: 502, wantCode: "TRANSPORT_ERROR",
			wantCalls:  []string{"insert job-1 QUEUED", "publish job-1", "submit_failed job-1"},
			wantStored: ledger.StatusSubmitFailed,
		},
		{name: "missing jobpackage", body: `{}`, wantStatus: 400, wantCode: "VALIDATION_ERROR"},
		{name: "non s3 uri", body: `{"jobpackage":"https://example.com/pkg.zip"}`, wantStatus: 400, wantCode: "VALIDATION_ERROR"},
		{name: "unknown field", body: `{"jobpackage":"s3://jobs/pkg.zip","priority":1}`, wantStatus: 400, wantCode: "VALIDATION_ERROR"},
		{name: "outputs incomplete", body: `{"jobpackage":"s3://jobs/pkg.zip"}`, prepareErr: errors.Configuration("provisioning output \"aws_region\""), wantStatus: 503, wantCode: "CONFIGURATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := &callLog{}
			sub := &fakeSubmitter{log: calls, prepareErr: tt.prepareErr, err: tt.publishErr}
			led := newFakeLedger()
			led.log, led.insertErr = calls, tt.insertErr

			rec := do(t, newTestRouter(sub, led), http.MethodPost, "/jobs", tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("expected a request id header")
			}
			if !reflect.DeepEqual(calls.calls, tt.wantCalls) {
				t.Errorf("expected calls %v, got %v", tt.wantCalls, calls.calls)
			}
			if tt.wantStored != "" {
				if s := led.subs["job-1"]; s == nil || s.Status != tt.wantStored {
					t.Errorf("expected stored status %s, got %+v", tt.wantStored, s)
				}
			}

			var resp struct {
				Job   ledger.Submission `json:"job"`
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if tt.wantCode != "" {
				if resp.Error.Code != tt.wantCode {
					t.Errorf("expected code %s, got %s", tt.wantCode, resp.Error.Code)
				}
				return
			}
			if resp.Job.JobID != "job-1" || resp.Job.Status != ledger.StatusQueued || resp.Job.MessageID != "msg-1" {
				t.Errorf("unexpected job: %+v", resp.Job)
			}
			if led.subs["job-1"].MessageID != "msg-1" {
				t.Error("expected the message id to be recorded")
			}
		})
	}
}

func TestGetJob(t *testing.T) {
	led := newFakeLedger()
	led.subs["job-1"] = &ledger.Submission{JobID: "job-1", JobPackage: "s3://jobs/pkg.zip", Status: ledger.StatusDispatched, InstanceID: "i-0abc"}
	h := newTestRouter(&fakeSubmitter{}, led)

	rec := do(t, h, http.MethodGet, "/jobs/job-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"instance_id":"i-0abc"`) {
		t.Errorf("expected instance id in body, got %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/jobs/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListJobs(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantFilter ledger.Status
		wantLimit  int
	}{
		{name: "defaults", query: "", wantStatus: 200, wantLimit: ledger.DefaultListLimit},
		{name: "status is case insensitive", query: "?status=queued&limit=5", wantStatus: 200, wantFilter: ledger.StatusQueued, wantLimit: 5},
		{name: "limit out of range", query: "?limit=1000", wantStatus: 400},
		{name: "limit not a number", query: "?limit=ten", wantStatus: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			led := newFakeLedger()
			rec := do(t, newTestRouter(&fakeSubmitter{}, led), http.MethodGet, "/jobs"+tt.query, "")

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus != 200 {
				return
			}
			if led.gotStatus != tt.wantFilter || led.gotLimit != tt.wantLimit {
				t.Errorf("expected filter %q limit %d, got %q %d", tt.wantFilter, tt.wantLimit, led.gotStatus, led.gotLimit)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&fakeSubmitter{}, newFakeLedger())

	rec := do(t, h, http.MethodGet, "/health?deep=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("expected ok with optional dependencies disabled, got %s", body.Status)
	}
	if body.Checks["postgres"]["status"] != "disabled" || body.Checks["queue"]["backend"] != "sqs" {
		t.Errorf("unexpected checks: %v", body.Checks)
	}
}

func TestPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/jobs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()

	newTestRouter(&fakeSubmitter{}, newFakeLedger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("unexpected allow-origin %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
