package dispatcher

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
)

type fakeEC2 struct {
	calls []*ec2.RunInstancesInput
	err   error
	empty bool
}

func (f *fakeEC2) RunInstances(ctx context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return &ec2.RunInstancesOutput{}, nil
	}
	return &ec2.RunInstancesOutput{Instances: []types.Instance{{InstanceId: aws.String("i-0abc123")}}}, nil
}

func testConfig() Config {
	return Config{LaunchTemplateName: "aurora-runtime", SubnetID: "subnet-0a1", SecurityGroupID: "sg-0b2"}
}

func tagMap(tags []types.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return m
}

func TestOnMessageBatchEmpty(t *testing.T) {
	api := &fakeEC2{}
	d := New(api, Config{}, logger.Discard())

	out := d.OnMessageBatch(context.Background(), nil)
	if out.Kind != OutcomeEmpty || out.StatusCode != 200 {
		t.Errorf("expected neutral outcome, got %+v", out)
	}
	if len(api.calls) != 0 {
		t.Errorf("expected no platform calls, got %d", len(api.calls))
	}
}

func TestOnMessageBatchLaunchesOneInstance(t *testing.T) {
	api := &fakeEC2{}
	d := New(api, testConfig(), logger.Discard())

	body := `{"jobpackage":"s3://bucket/scene.zip","jobid":"4f1c2a9e-0000-4000-8000-000000000001","response_queue_url":"https://sqs/resp","priority":3}`
	out := d.OnMessageBatch(context.Background(), []events.SQSMessage{{MessageId: "m1", Body: body}})

	if out.Kind != OutcomeLaunched || out.StatusCode != 200 || out.InstanceID != "i-0abc123" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !strings.Contains(out.Body, "i-0abc123") {
		t.Errorf("expected instance id in body, got %s", out.Body)
	}
	if len(api.calls) != 1 {
		t.Fatalf("expected exactly one launch, got %d", len(api.calls))
	}

	in := api.calls[0]
	if aws.ToString(in.LaunchTemplate.LaunchTemplateName) != "aurora-runtime" || aws.ToString(in.LaunchTemplate.Version) != "$Latest" {
		t.Errorf("unexpected launch template %+v", in.LaunchTemplate)
	}
	if aws.ToInt32(in.MinCount) != 1 || aws.ToInt32(in.MaxCount) != 1 {
		t.Error("expected exactly one instance requested")
	}
	if aws.ToString(in.ClientToken) != "4f1c2a9e-0000-4000-8000-000000000001" {
		t.Errorf("expected jobid as client token, got %q", aws.ToString(in.ClientToken))
	}
	if len(in.TagSpecifications) != 1 || in.TagSpecifications[0].ResourceType != types.ResourceTypeInstance {
		t.Fatalf("unexpected tag specifications %+v", in.TagSpecifications)
	}

	tags := in.TagSpecifications[0].Tags
	want := map[string]string{
		"jobpackage":         "s3://bucket/scene.zip",
		"jobid":              "4f1c2a9e-0000-4000-8000-000000000001",
		"response_queue_url": "https://sqs/resp",
		"priority":           "3",
		"Name":               DefaultInstanceName,
	}
	got := tagMap(tags)
	if len(got) != len(want) || len(tags) != len(want) {
		t.Errorf("expected %d tags, got %v", len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("tag %s: expected %q, got %q", k, v, got[k])
		}
	}
	if aws.ToString(tags[len(tags)-1].Key) != "Name" {
		t.Error("expected Name tag last")
	}
}

func TestOnMessageBatchOverridesBodyName(t *testing.T) {
	api := &fakeEC2{}
	d := New(api, testConfig(), logger.Discard())

	d.OnMessageBatch(context.Background(), []events.SQSMessage{{Body: `{"jobid":"1","Name":"spoofed"}`}})

	got := tagMap(api.calls[0].TagSpecifications[0].Tags)
	if got["Name"] != DefaultInstanceName {
		t.Errorf("expected fixed Name tag, got %q", got["Name"])
	}
	if len(api.calls[0].TagSpecifications[0].Tags) != 2 {
		t.Errorf("expected body Name to be dropped, got %v", got)
	}
}

func TestOnMessageBatchOnlyFirstMessage(t *testing.T) {
	api := &fakeEC2{}
	d := New(api, testConfig(), logger.Discard())

	msgs := []events.SQSMessage{
		{Body: `{"jobid":"first"}`},
		{Body: `{"jobid":"second"}`},
		{Body: `{"jobid":"third"}`},
	}
	out := d.OnMessageBatch(context.Background(), msgs)

	if out.Kind != OutcomeLaunched {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(api.calls) != 1 {
		t.Fatalf("expected one launch per batch, got %d", len(api.calls))
	}
	if tagMap(api.calls[0].TagSpecifications[0].Tags)["jobid"] != "first" {
		t.Error("expected the first message to be dispatched")
	}
}

func TestOnMessageBatchFailures(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		api      *fakeEC2
		body     string
		wantKind OutcomeKind
		wantBody string
		launches int
	}{
		{
			name:     "missing launch template",
			cfg:      Config{},
			api:      &fakeEC2{},
			body:     `{"jobid":"1"}`,
			wantKind: OutcomeConfig,
			wantBody: "Missing environment variable: LAUNCH_TEMPLATE_NAME",
		},
		{
			name:     "missing subnet",
			cfg:      Config{LaunchTemplateName: "aurora-runtime", SecurityGroupID: "sg-0b2"},
			api:      &fakeEC2{},
			body:     `{"jobid":"1"}`,
			wantKind: OutcomeConfig,
			wantBody: "Missing environment variable: SUBNET_ID",
		},
		{
			name:     "missing security group",
			cfg:      Config{LaunchTemplateName: "aurora-runtime", SubnetID: "subnet-0a1"},
			api:      &fakeEC2{},
			body:     `{"jobid":"1"}`,
			wantKind: OutcomeConfig,
			wantBody: "Missing environment variable: SECURITY_GROUP_ID",
		},
		{
			name:     "platform error",
			cfg:      testConfig(),
			api:      &fakeEC2{err: stderrors.New("InsufficientInstanceCapacity")},
			body:     `{"jobid":"1"}`,
			wantKind: OutcomePlatform,
			wantBody: "Error interacting with AWS services",
			launches: 1,
		},
		{
			name:     "malformed body",
			cfg:      testConfig(),
			api:      &fakeEC2{},
			body:     `not json`,
			wantKind: OutcomeUnexpected,
			wantBody: "Unexpected error",
		},
		{
			name:     "empty response",
			cfg:      testConfig(),
			api:      &fakeEC2{empty: true},
			body:     `{"jobid":"1"}`,
			wantKind: OutcomeUnexpected,
			wantBody: "Unexpected error",
			launches: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.api, tt.cfg, logger.Discard())
			out, err := d.HandleSQSEvent(context.Background(), events.SQSEvent{Records: []events.SQSMessage{{Body: tt.body}}})
			if err != nil {
				t.Fatalf("handler must not return errors, got %v", err)
			}
			if out.Kind != tt.wantKind || out.StatusCode != 500 {
				t.Errorf("expected %s/500, got %s/%d", tt.wantKind, out.Kind, out.StatusCode)
			}
			if !strings.HasPrefix(out.Body, tt.wantBody) {
				t.Errorf("expected body starting with %q, got %q", tt.wantBody, out.Body)
			}
			if len(tt.api.calls) != tt.launches {
				t.Errorf("expected %d launches, got %d", tt.launches, len(tt.api.calls))
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LAUNCH_TEMPLATE_NAME", "tpl")
	t.Setenv("LAUNCH_TEMPLATE_VERSION", "")
	t.Setenv("INSTANCE_NAME", "")
	t.Setenv("SUBNET_ID", "subnet-1")
	t.Setenv("SECURITY_GROUP_ID", "")

	cfg := ConfigFromEnv()
	if cfg.LaunchTemplateName != "tpl" || cfg.LaunchTemplateVersion != DefaultLaunchTemplateVersion {
		t.Errorf("unexpected config %+v", cfg)
	}
	err := cfg.Validate()
	if !errors.IsConfiguration(err) || errors.GetFields(err)["key"] != "SECURITY_GROUP_ID" {
		t.Errorf("expected missing SECURITY_GROUP_ID, got %v", err)
	}

	t.Setenv("SECURITY_GROUP_ID", "sg-1")
	if err := ConfigFromEnv().Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
