// Package contracts holds the wire documents exchanged over the job queues.
package contracts

import (
	"encoding/json"
	"strings"

	"aurora/internal/pkg/errors"
)

// JobRequest v0: minimal contract placed on the request queue.
// - jobpackage: s3:// URI of the input archive
// - jobid: UUID assigned at submission
// - response_queue_url: where the runner publishes the JobResponse
type JobRequest struct {
	JobPackage       string `json:"jobpackage"`
	JobID            string `json:"jobid"`
	ResponseQueueURL string `json:"response_queue_url"`
}

// Job status values reported in JobResponse.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// JobResponse is published by the runner once the job finished, whatever the outcome.
type JobResponse struct {
	JobID    string             `json:"jobid"`
	Status   string             `json:"status"`
	ExitCode int                `json:"exit_code"`
	Timings  map[string]float64 `json:"timings,omitempty"`
	Error    *ErrorBody         `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r JobRequest) Marshal() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", errors.Wrap(err, "contracts.marshal", "failed to encode job request")
	}
	return string(b), nil
}

func (r JobResponse) Marshal() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", errors.Wrap(err, "contracts.marshal", "failed to encode job response")
	}
	return string(b), nil
}

// ParseJobRequest decodes a queue message body. Only jobid is mandatory.
func ParseJobRequest(body string) (JobRequest, error) {
	var r JobRequest
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return JobRequest{}, errors.WrapWithCode(err, errors.CodeValidation, "contracts.parse", "job request is not valid JSON")
	}
	if strings.TrimSpace(r.JobID) == "" {
		return JobRequest{}, errors.ValidationField("jobid", "job request has no jobid")
	}
	return r, nil
}

// NewJobResponse builds the response for a finished run. A nil err means success.
func NewJobResponse(jobID string, timings map[string]float64, err error) JobResponse {
	resp := JobResponse{
		JobID:    jobID,
		Status:   StatusSucceeded,
		ExitCode: errors.GetExitCode(err),
		Timings:  timings,
	}
	if err != nil {
		resp.Status = StatusFailed
		resp.Error = &ErrorBody{Code: string(errors.GetCode(err)), Message: err.Error()}
	}
	return resp
}
