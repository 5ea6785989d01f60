package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinio/clinio/kv"
)

// DefaultKeyPrefix namespaces all queue keys in the store.
const DefaultKeyPrefix = "jobs"

// Producer enqueues jobs from request handlers. Enqueue does not report
// success until the store has acknowledged the write; that acknowledgement is
// the boundary that lets a user-facing request return without waiting on
// downstream I/O.
type Producer struct {
	store  kv.Store
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// ProducerOption customizes a Producer.
type ProducerOption func(*Producer)

// WithProducerLogger sets the producer's logger.
func WithProducerLogger(l *slog.Logger) ProducerOption {
	return func(p *Producer) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithProducerPrefix overrides the store key namespace.
func WithProducerPrefix(prefix string) ProducerOption {
	return func(p *Producer) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithProducerClock replaces the time source.
func WithProducerClock(now func() time.Time) ProducerOption {
	return func(p *Producer) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProducer builds a Producer on top of store.
func NewProducer(store kv.Store, opts ...ProducerOption) *Producer {
	p := &Producer{store: store, prefix: DefaultKeyPrefix, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// EnqueueOption adjusts a single enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	delay time.Duration
}

// WithDelay schedules the job to become ready only after d has passed.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// Enqueue records a job of the given type and returns its id. The job record
// and its scheduling entry are written in one batch; an error means the job
// was not durably recorded and the caller must not assume it will run.
func (p *Producer) Enqueue(ctx context.Context, jobType string, payload any, opts ...EnqueueOption) (string, error) {
	var cfg enqueueOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("jobqueue: encode payload: %w", err)
	}

	now := p.now().UTC()
	job := Job{
		ID:             uuid.NewString(),
		Type:           jobType,
		Payload:        raw,
		IdempotencyKey: idempotencyKey(jobType, raw),
		EnqueuedAt:     now,
		NextRunAt:      now.Add(cfg.delay),
	}
	record, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("jobqueue: encode job: %w", err)
	}

	pipe := p.store.Pipeline()
	pipe.Set(jobKey(p.prefix, jobType, job.ID), record, 0)
	pipe.ZAdd(scheduledKey(p.prefix, jobType), float64(job.NextRunAt.UnixMilli()), job.ID)
	if err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("jobqueue: enqueue %s: %w", jobType, err)
	}

	p.logger.Debug("job enqueued", "type", jobType, "id", job.ID, "nextRunAt", job.NextRunAt)
	return job.ID, nil
}
