// Package queue is the Redis backed request queue used in local mode.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultName is the list key used when JOB_QUEUE_NAME is unset.
const DefaultName = "aurora:requests"

type RedisQueue struct {
	rdb       redis.Cmdable
	queueName string
}

func NewRedisQueue(rdb redis.Cmdable, queueName string) *RedisQueue {
	if queueName == "" {
		queueName = DefaultName
	}
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

func (q *RedisQueue) Name() string { return q.queueName }

// Push agrega un mensaje a la cabeza de la lista (LPUSH)
func (q *RedisQueue) Push(ctx context.Context, body string) error {
	return q.rdb.LPush(ctx, q.queueName, body).Err()
}

// Pop bloquea hasta que exista un elemento (BRPOP)
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	return q.PopWithin(ctx, 0)
}

// PopWithin waits at most timeout for an element. An empty body with a nil
// error means the wait expired.
func (q *RedisQueue) PopWithin(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}
