package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultResultTTL is how long a finished task's state stays queryable.
const DefaultResultTTL = 24 * time.Hour

// RedisQueue is a Backend on Redis. Pending handles live in a list, each
// task in a hash, and revocations are broadcast on a pub/sub channel so any
// worker process running the task can stop it.
type RedisQueue struct {
	client    *redis.Client
	prefix    string
	resultTTL time.Duration
}

// NewRedisQueue creates a queue namespaced under name.
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{
		client:    client,
		prefix:    "webgenie:queue:" + name,
		resultTTL: DefaultResultTTL,
	}
}

func (q *RedisQueue) pendingKey() string {
	return q.prefix + ":pending"
}

func (q *RedisQueue) taskKey(id string) string {
	return q.prefix + ":task:" + id
}

func (q *RedisQueue) revokeChannel() string {
	return q.prefix + ":revoke"
}

// KEYS[1]=task hash, ARGV[1]=now. Returns -1 missing, 0 revoked, 1 started.
var startScript = redis.NewScript(`
local s = redis.call('HGET', KEYS[1], 'state')
if not s then return -1 end
if s == 'revoked' then return 0 end
redis.call('HSET', KEYS[1], 'state', 'started', 'updated_at', ARGV[1])
return 1
`)

// KEYS[1]=task hash, ARGV[1]=state, ARGV[2]=now, ARGV[3]=ttl seconds.
var finishScript = redis.NewScript(`
local s = redis.call('HGET', KEYS[1], 'state')
if not s then return -1 end
if s ~= 'revoked' then
  redis.call('HSET', KEYS[1], 'state', ARGV[1], 'updated_at', ARGV[2])
end
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

// KEYS[1]=task hash, ARGV[1]=now. Returns -1 missing, 0 already finished, 1 revoked.
var revokeScript = redis.NewScript(`
local s = redis.call('HGET', KEYS[1], 'state')
if not s then return -1 end
if s == 'succeeded' or s == 'failed' or s == 'revoked' then return 0 end
redis.call('HSET', KEYS[1], 'state', 'revoked', 'updated_at', ARGV[1])
return 1
`)

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (q *RedisQueue) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode task payload: %w", err)
	}
	id := uuid.NewString()
	ts := now()

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.taskKey(id),
		"name", name,
		"payload", string(raw),
		"state", string(TaskQueued),
		"enqueued_at", ts,
		"updated_at", ts,
	)
	pipe.LPush(ctx, q.pendingKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", name, err)
	}
	return id, nil
}

func (q *RedisQueue) Revoke(ctx context.Context, handle string) error {
	res, err := revokeScript.Run(ctx, q.client, []string{q.taskKey(handle)}, now()).Int()
	if err != nil {
		return fmt.Errorf("revoke task: %w", err)
	}
	switch res {
	case -1:
		return ErrTaskNotFound
	case 0:
		return nil
	}
	if err := q.client.Publish(ctx, q.revokeChannel(), handle).Err(); err != nil {
		return fmt.Errorf("publish revocation: %w", err)
	}
	return nil
}

func (q *RedisQueue) State(ctx context.Context, handle string) (TaskState, error) {
	val, err := q.client.HGet(ctx, q.taskKey(handle), "state").Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTaskNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get task state: %w", err)
	}
	return TaskState(val), nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Task, error) {
	res, err := q.client.BRPop(ctx, wait, q.pendingKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id := res[1]

	fields, err := q.client.HGetAll(ctx, q.taskKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	task := &Task{
		ID:      id,
		Name:    fields["name"],
		Payload: json.RawMessage(fields["payload"]),
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["enqueued_at"]); err == nil {
		task.EnqueuedAt = ts
	}
	return task, nil
}

func (q *RedisQueue) Start(ctx context.Context, handle string) (bool, error) {
	res, err := startScript.Run(ctx, q.client, []string{q.taskKey(handle)}, now()).Int()
	if err != nil {
		return false, fmt.Errorf("start task: %w", err)
	}
	if res == -1 {
		return false, ErrTaskNotFound
	}
	return res == 1, nil
}

func (q *RedisQueue) Finish(ctx context.Context, handle string, state TaskState) error {
	res, err := finishScript.Run(ctx, q.client, []string{q.taskKey(handle)},
		string(state), now(), int(q.resultTTL.Seconds())).Int()
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	if res == -1 {
		return ErrTaskNotFound
	}
	return nil
}

func (q *RedisQueue) Revocations(ctx context.Context) (<-chan string, error) {
	pubsub := q.client.Subscribe(ctx, q.revokeChannel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe revocations: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
