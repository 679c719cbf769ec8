package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list used as the outbound mail queue.
const DefaultQueueKey = "exam:mail:queue"

// DefaultMaxQueueSize caps the queue while the delivery backend is down.
const DefaultMaxQueueSize int64 = 1000

var ErrQueueFull = errors.New("mail queue full")

const (
	jobPasswordReset     = "password_reset"
	jobEmailVerification = "email_verification"
)

// Job is the payload pushed onto the queue.
type Job struct {
	Type      string `json:"type"`
	ToEmail   string `json:"to_email"`
	Link      string `json:"link"`
	ExpiresIn int64  `json:"expires_in"` // nanoseconds
}

// QueuedMailer enqueues jobs to Redis so request handlers return without
// waiting on delivery. StartWorker hands queued jobs to the inner Mailer.
type QueuedMailer struct {
	inner   Mailer
	rdb     redis.UniversalClient
	key     string
	maxSize int64
	pop     time.Duration
}

func NewQueuedMailer(inner Mailer, rdb redis.UniversalClient, key string, maxSize int64) *QueuedMailer {
	if key == "" {
		key = DefaultQueueKey
	}
	return &QueuedMailer{inner: inner, rdb: rdb, key: key, maxSize: maxSize, pop: 2 * time.Second}
}

// enqueueScript pushes ARGV[2] onto KEYS[1] unless the list already holds
// ARGV[1] items (0 disables the cap). Returns 1 if pushed.
var enqueueScript = redis.NewScript(`
local max = tonumber(ARGV[1])
if max > 0 and redis.call('LLEN', KEYS[1]) >= max then
    return 0
end
redis.call('RPUSH', KEYS[1], ARGV[2])
return 1
`)

func (q *QueuedMailer) SendPasswordReset(ctx context.Context, toEmail, link string, expiresIn time.Duration) error {
	return q.enqueue(ctx, Job{Type: jobPasswordReset, ToEmail: toEmail, Link: link, ExpiresIn: int64(expiresIn)})
}

func (q *QueuedMailer) SendEmailVerification(ctx context.Context, toEmail, link string, expiresIn time.Duration) error {
	return q.enqueue(ctx, Job{Type: jobEmailVerification, ToEmail: toEmail, Link: link, ExpiresIn: int64(expiresIn)})
}

func (q *QueuedMailer) enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling mail job: %w", err)
	}
	ok, err := enqueueScript.Run(ctx, q.rdb, []string{q.key}, q.maxSize, data).Int64()
	if err != nil {
		return fmt.Errorf("enqueuing mail job: %w", err)
	}
	if ok == 0 {
		return ErrQueueFull
	}
	return nil
}

// StartWorker drains the queue until ctx is cancelled. Run it in a goroutine.
func (q *QueuedMailer) StartWorker(ctx context.Context) {
	for {
		res, err := q.rdb.BLPop(ctx, q.pop, q.key).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			slog.Error("mail worker: queue pop failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.pop):
			}
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			slog.Error("mail worker: bad job payload", "error", err)
			continue
		}
		q.dispatch(ctx, job)
	}
}

// dispatch delivers one job. Failures are logged and the job is dropped.
func (q *QueuedMailer) dispatch(ctx context.Context, job Job) {
	expiresIn := time.Duration(job.ExpiresIn)
	var err error
	switch job.Type {
	case jobPasswordReset:
		err = q.inner.SendPasswordReset(ctx, job.ToEmail, job.Link, expiresIn)
	case jobEmailVerification:
		err = q.inner.SendEmailVerification(ctx, job.ToEmail, job.Link, expiresIn)
	default:
		slog.Error("mail worker: unknown job type", "type", job.Type)
		return
	}
	if err != nil {
		slog.Error("mail worker: send failed", "type", job.Type, "to", job.ToEmail, "error", err)
	}
}
