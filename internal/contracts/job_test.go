package contracts

import (
	"encoding/json"
	"testing"

	"aurora/internal/pkg/errors"
)

func TestJobRequestWireFormat(t *testing.T) {
	req := JobRequest{JobPackage: "s3://bucket/key.zip", JobID: "abc", ResponseQueueURL: "https://sqs/resp"}

	body, err := req.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"jobpackage", "jobid", "response_queue_url"} {
		if _, ok := raw[k]; !ok {
			t.Errorf("expected key %s in %s", k, body)
		}
	}
}

func TestParseJobRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"jobpackage":"s3://b/k","jobid":"1","response_queue_url":"u"}`},
		{name: "missing jobid", body: `{"jobpackage":"s3://b/k"}`, wantErr: true},
		{name: "not json", body: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJobRequest(tt.body)
			if tt.wantErr {
				if !errors.IsValidation(err) {
					t.Errorf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewJobResponse(t *testing.T) {
	ok := NewJobResponse("1", map[string]float64{"fetch_jobpackage": 1.5}, nil)
	if ok.Status != StatusSucceeded || ok.ExitCode != 0 || ok.Error != nil {
		t.Errorf("unexpected success response: %+v", ok)
	}

	failed := NewJobResponse("1", nil, errors.Execution(3, "container exited"))
	if failed.Status != StatusFailed || failed.ExitCode != 3 {
		t.Errorf("unexpected failure response: %+v", failed)
	}
	if failed.Error == nil || failed.Error.Code != string(errors.CodeExecution) {
		t.Errorf("expected execution error body, got %+v", failed.Error)
	}
}
