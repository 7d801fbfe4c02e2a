package submitter

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"aurora/internal/config"
	"aurora/internal/pkg/errors"
	"aurora/internal/queue"
)

// Publisher puts one message body on the queue addressed by queueURL and
// returns the queue's receipt id.
type Publisher interface {
	Publish(ctx context.Context, queueURL, body string) (string, error)
}

// SQSAPI is the subset of the SQS client used by the publishers.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type SQSPublisher struct {
	api SQSAPI
}

func NewSQSPublisher(api SQSAPI) *SQSPublisher {
	return &SQSPublisher{api: api}
}

func NewSQSPublisherFromConfig(cfg aws.Config) *SQSPublisher {
	return &SQSPublisher{api: sqs.NewFromConfig(cfg)}
}

func (p *SQSPublisher) Publish(ctx context.Context, queueURL, body string) (string, error) {
	out, err := p.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return "", errors.Transport(err, "submitter.publish", "failed to send message").WithField("queue_url", queueURL)
	}
	return aws.ToString(out.MessageId), nil
}

// RedisPublisher pushes onto the Redis list named by queueURL, for local runs
// without SQS.
type RedisPublisher struct {
	rdb   redis.Cmdable
	newID func() string
}

func NewRedisPublisher(rdb redis.Cmdable) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, newID: newID}
}

func (p *RedisPublisher) Publish(ctx context.Context, queueURL, body string) (string, error) {
	q := queue.NewRedisQueue(p.rdb, queueURL)
	if err := q.Push(ctx, body); err != nil {
		return "", errors.Transport(err, "submitter.publish", "failed to push message").WithField("queue", q.Name())
	}
	return p.newID(), nil
}

// NewPublisherFromEnv selects the backend from QUEUE_BACKEND (sqs or redis).
func NewPublisherFromEnv(awsCfg func() (aws.Config, error), rdb func() (redis.Cmdable, error)) (Publisher, error) {
	switch backend := config.Env("QUEUE_BACKEND", "sqs"); backend {
	case "sqs":
		cfg, err := awsCfg()
		if err != nil {
			return nil, err
		}
		return NewSQSPublisherFromConfig(cfg), nil
	case "redis":
		c, err := rdb()
		if err != nil {
			return nil, err
		}
		return NewRedisPublisher(c), nil
	default:
		return nil, errors.New(errors.CodeConfiguration, "unknown queue backend: "+backend).WithField("key", "QUEUE_BACKEND")
	}
}
