package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinio/clinio/jobqueue"
	"github.com/clinio/clinio/kv"
)

// Job types drained by the notification worker.
const (
	TypeEmail = "email"
	TypePush  = "push"
)

// EmailPayload is the payload of a TypeEmail job. Kind distinguishes the
// business event (confirmation, status update, approval) for logging only;
// the content is already rendered.
type EmailPayload struct {
	Kind    string `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// PushPayload is the payload of a TypePush job.
type PushPayload struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// DefaultEmailConfig mirrors the production email pool: three attempts with
// exponential backoff from two seconds, ten jobs in flight.
func DefaultEmailConfig() jobqueue.TypeConfig {
	return jobqueue.TypeConfig{
		MaxAttempts: 3,
		Backoff:     jobqueue.ExponentialBackoff(2*time.Second, time.Minute),
		Concurrency: 10,
		Timeout:     30 * time.Second,
	}
}

// DefaultPushConfig mirrors the push pool: two attempts, fixed one-second
// backoff, five in flight.
func DefaultPushConfig() jobqueue.TypeConfig {
	return jobqueue.TypeConfig{
		MaxAttempts: 2,
		Backoff:     jobqueue.FixedBackoff(time.Second),
		Concurrency: 5,
		Timeout:     15 * time.Second,
	}
}

const dedupeKeyPrefix = "notify:sent:"

// Handlers executes notification jobs. Delivery is at least once; a replayed
// job is suppressed by a short-lived delivery marker in the store keyed on
// the job's idempotency key. When the store is unreachable the marker is
// skipped and a duplicate send is accepted rather than losing the
// notification.
type Handlers struct {
	store     kv.Store
	mailer    Mailer
	push      *PushClient
	logger    *slog.Logger
	dedupeTTL time.Duration
}

// HandlersOption customizes Handlers.
type HandlersOption func(*Handlers)

// WithHandlersLogger sets the logger.
func WithHandlersLogger(l *slog.Logger) HandlersOption {
	return func(h *Handlers) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithDedupeTTL sets how long delivery markers are kept.
func WithDedupeTTL(d time.Duration) HandlersOption {
	return func(h *Handlers) {
		if d > 0 {
			h.dedupeTTL = d
		}
	}
}

// NewHandlers wires the transports.
func NewHandlers(store kv.Store, mailer Mailer, push *PushClient, opts ...HandlersOption) *Handlers {
	h := &Handlers{
		store:     store,
		mailer:    mailer,
		push:      push,
		logger:    slog.Default(),
		dedupeTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register binds both notification types to the worker with their pools.
func (h *Handlers) Register(w *jobqueue.Worker, emailCfg, pushCfg jobqueue.TypeConfig) {
	w.Register(TypeEmail, emailCfg, h.HandleEmail)
	w.Register(TypePush, pushCfg, h.HandlePush)
}

// HandleEmail delivers one email job.
func (h *Handlers) HandleEmail(ctx context.Context, job jobqueue.Job) error {
	var payload EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("email payload: %w", err)
	}
	if !h.claim(ctx, job) {
		h.logger.Info("duplicate email suppressed", "id", job.ID, "to", payload.To)
		return nil
	}
	if err := h.mailer.Send(ctx, Message{To: payload.To, Subject: payload.Subject, HTML: payload.HTML}); err != nil {
		h.release(ctx, job)
		return err
	}
	h.logger.Info("email sent", "kind", payload.Kind, "to", payload.To)
	return nil
}

// HandlePush delivers one push job.
func (h *Handlers) HandlePush(ctx context.Context, job jobqueue.Job) error {
	var payload PushPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("push payload: %w", err)
	}
	if !h.claim(ctx, job) {
		h.logger.Info("duplicate push suppressed", "id", job.ID, "channel", payload.Channel)
		return nil
	}
	if err := h.push.Trigger(ctx, payload.Channel, payload.Event, payload.Data); err != nil {
		h.release(ctx, job)
		return err
	}
	h.logger.Info("push sent", "channel", payload.Channel, "event", payload.Event)
	return nil
}

// claim reports whether this execution owns the delivery. A marker that
// cannot be written (store down) does not block delivery.
func (h *Handlers) claim(ctx context.Context, job jobqueue.Job) bool {
	ok, err := h.store.SetNX(ctx, dedupeKeyPrefix+job.IdempotencyKey, []byte(job.ID), h.dedupeTTL)
	if err != nil {
		h.logger.Warn("delivery marker unavailable, sending anyway", "id", job.ID, "err", err)
		return true
	}
	return ok
}

func (h *Handlers) release(ctx context.Context, job jobqueue.Job) {
	if _, err := h.store.Del(ctx, dedupeKeyPrefix+job.IdempotencyKey); err != nil {
		h.logger.Warn("delivery marker not released", "id", job.ID, "err", err)
	}
}
