// Package dispatcher turns queued job requests into compute instances.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
)

// EC2API is the subset of the EC2 client used to launch instances.
type EC2API interface {
	RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
}

type OutcomeKind string

const (
	OutcomeLaunched   OutcomeKind = "launched"
	OutcomeEmpty      OutcomeKind = "empty"
	OutcomeConfig     OutcomeKind = "config"
	OutcomePlatform   OutcomeKind = "platform"
	OutcomeUnexpected OutcomeKind = "unexpected"
)

// Outcome is the handler result. The JSON shape is what the Lambda runtime returns.
type Outcome struct {
	Kind       OutcomeKind `json:"-"`
	StatusCode int         `json:"statusCode"`
	Body       string      `json:"body"`
	InstanceID string      `json:"-"`
}

const maxClientTokenLen = 64

type Dispatcher struct {
	ec2 EC2API
	cfg Config
	log *logger.Logger
}

func New(api EC2API, cfg Config, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Dispatcher{ec2: api, cfg: cfg.withDefaults(), log: log.WithComponent("dispatcher")}
}

// HandleSQSEvent is the Lambda entrypoint. It never returns an error so
// failed batches are not redelivered by the runtime.
func (d *Dispatcher) HandleSQSEvent(ctx context.Context, ev events.SQSEvent) (Outcome, error) {
	return d.OnMessageBatch(ctx, ev.Records), nil
}

// OnMessageBatch launches one instance for the first message of the batch.
// Later messages in the same batch are logged and ignored.
func (d *Dispatcher) OnMessageBatch(ctx context.Context, msgs []events.SQSMessage) Outcome {
	if len(msgs) == 0 {
		d.log.Info("no messages in the event, no action taken")
		return Outcome{Kind: OutcomeEmpty, StatusCode: 200, Body: "No messages in the event."}
	}

	if err := d.cfg.Validate(); err != nil {
		d.log.Error("missing environment variable", "error", err.Error())
		return Outcome{Kind: OutcomeConfig, StatusCode: 500, Body: fmt.Sprintf("Missing environment variable: %v", errors.GetFields(err)["key"])}
	}

	log := d.log.WithFields(map[string]any{
		"launch_template":         d.cfg.LaunchTemplateName,
		"launch_template_version": d.cfg.LaunchTemplateVersion,
		"subnet_id":               d.cfg.SubnetID,
		"security_group_id":       d.cfg.SecurityGroupID,
	})
	log.Info("messages in event, starting an EC2 instance", "messages", len(msgs))
	if len(msgs) > 1 {
		log.Warn("only the first message of the batch is dispatched", "ignored", len(msgs)-1)
	}

	msg := msgs[0]
	tags, jobID, err := tagsFromBody(msg.Body, d.cfg.InstanceName)
	if err != nil {
		log.Error("unexpected error", "message_id", msg.MessageId, "error", err.Error())
		return Outcome{Kind: OutcomeUnexpected, StatusCode: 500, Body: fmt.Sprintf("Unexpected error: %v", err)}
	}
	if jobID != "" {
		log = log.WithJobID(jobID)
	}

	in := &ec2.RunInstancesInput{
		LaunchTemplate: &types.LaunchTemplateSpecification{
			LaunchTemplateName: aws.String(d.cfg.LaunchTemplateName),
			Version:            aws.String(d.cfg.LaunchTemplateVersion),
		},
		MinCount: aws.Int32(1),
		MaxCount: aws.Int32(1),
		TagSpecifications: []types.TagSpecification{{
			ResourceType: types.ResourceTypeInstance,
			Tags:         tags,
		}},
	}
	// duplicate deliveries of the same job launch nothing new
	if jobID != "" && len(jobID) <= maxClientTokenLen {
		in.ClientToken = aws.String(jobID)
	}

	out, err := d.ec2.RunInstances(ctx, in)
	if err != nil {
		args := []any{"error", err.Error()}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			args = append(args, "aws_error_code", apiErr.ErrorCode())
		}
		log.Error("error interacting with AWS services", args...)
		return Outcome{Kind: OutcomePlatform, StatusCode: 500, Body: fmt.Sprintf("Error interacting with AWS services: %v", err)}
	}
	if out == nil || len(out.Instances) == 0 || aws.ToString(out.Instances[0].InstanceId) == "" {
		log.Error("run instances returned no instance")
		return Outcome{Kind: OutcomeUnexpected, StatusCode: 500, Body: "Unexpected error: no instance in RunInstances response"}
	}

	id := aws.ToString(out.Instances[0].InstanceId)
	log.Info("started EC2 instance", "instance_id", id)
	return Outcome{Kind: OutcomeLaunched, StatusCode: 200, Body: "Started EC2 instance with ID: " + id, InstanceID: id}
}

// tagsFromBody maps every key of a flat JSON object to an instance tag, sorted
// by key, followed by the fixed Name tag. A body Name key is replaced.
func tagsFromBody(body, instanceName string) ([]types.Tag, string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, "", errors.WrapWithCode(err, errors.CodeValidation, "dispatcher.tags", "message body is not a JSON object")
	}
	if doc == nil {
		return nil, "", errors.Validation("message body is not a JSON object")
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		if k == "Name" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]types.Tag, 0, len(keys)+1)
	var jobID string
	for _, k := range keys {
		v := tagValue(doc[k])
		if k == "jobid" {
			jobID = v
		}
		tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	tags = append(tags, types.Tag{Key: aws.String("Name"), Value: aws.String(instanceName)})
	return tags, jobID, nil
}

func tagValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}
