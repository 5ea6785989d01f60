package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinio/clinio/kv"
)

// Handler executes one job. The passed context carries the per-run timeout;
// handlers must honor it and surface partial failure through the returned
// error so the retry path can take over.
type Handler func(ctx context.Context, job Job) error

// TypeConfig sizes the pool and retry policy for one job type. Types run in
// independent pools so a slow type cannot starve a fast one.
type TypeConfig struct {
	MaxAttempts     int
	Backoff         BackoffFunc
	Concurrency     int
	Timeout         time.Duration
	DeadLetterLimit int64
	// Lease is how long a claimed job may sit in the processing set before
	// other workers treat its claimer as dead and return it to the schedule.
	// It must exceed Timeout so a live run never looks stalled.
	Lease time.Duration
}

func (c TypeConfig) withDefaults() TypeConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff == nil {
		c.Backoff = ExponentialBackoff(2*time.Second, time.Minute)
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.DeadLetterLimit <= 0 {
		c.DeadLetterLimit = 50
	}
	if c.Lease <= c.Timeout {
		c.Lease = c.Timeout + 30*time.Second
	}
	return c
}

type typeRunner struct {
	jobType string
	cfg     TypeConfig
	handler Handler
}

// Worker drains the queues for its registered job types. It is intended to
// run as its own long-lived process, pulling cooperatively from the shared
// store; several worker processes may run at once and coordinate purely
// through the store: claims move a job's scheduling entry into a per-type
// processing set under a lease, and expired leases are swept back into the
// schedule so a crashed claimer cannot strand a job.
type Worker struct {
	store  kv.Store
	prefix string
	logger *slog.Logger
	poll   time.Duration
	now    func() time.Time

	runners map[string]*typeRunner

	onCompleted func(Job)
	onFailed    func(Job, error)
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the worker's logger.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithWorkerPrefix overrides the store key namespace; it must match the
// producer's.
func WithWorkerPrefix(prefix string) WorkerOption {
	return func(w *Worker) {
		if prefix != "" {
			w.prefix = prefix
		}
	}
}

// WithPollInterval sets how long the claim loop sleeps when no job is ready.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.poll = d
		}
	}
}

// WithWorkerClock replaces the time source.
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// OnCompleted registers a callback fired after a job's record is deleted.
func OnCompleted(fn func(Job)) WorkerOption {
	return func(w *Worker) { w.onCompleted = fn }
}

// OnFailed registers a callback fired when a job is dead-lettered.
func OnFailed(fn func(Job, error)) WorkerOption {
	return func(w *Worker) { w.onFailed = fn }
}

// NewWorker builds a Worker with no registered types.
func NewWorker(store kv.Store, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:   store,
		prefix:  DefaultKeyPrefix,
		logger:  slog.Default(),
		poll:    time.Second,
		now:     time.Now,
		runners: make(map[string]*typeRunner),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Register binds a handler and pool configuration to a job type. Must be
// called before Run.
func (w *Worker) Register(jobType string, cfg TypeConfig, h Handler) {
	w.runners[jobType] = &typeRunner{jobType: jobType, cfg: cfg.withDefaults(), handler: h}
}

// Run claims and executes jobs until ctx is cancelled, then waits for
// in-flight handlers to finish. Claimed jobs are not cancelled mid-run; each
// handler still gets its own bounded timeout.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.runners) == 0 {
		return fmt.Errorf("jobqueue: no job types registered")
	}
	eg, ctx := errgroup.WithContext(ctx)
	for _, r := range w.runners {
		r := r
		eg.Go(func() error { return w.runType(ctx, r) })
	}
	return eg.Wait()
}

func (w *Worker) runType(ctx context.Context, r *typeRunner) error {
	sched := scheduledKey(w.prefix, r.jobType)
	proc := processingKey(w.prefix, r.jobType)
	slots := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return nil
		}

		w.recoverStalled(ctx, r, sched, proc)

		ids, err := w.store.ZRangeByScore(ctx, sched, math.Inf(-1), float64(w.now().UnixMilli()), int64(r.cfg.Concurrency))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("claim poll failed", "type", r.jobType, "err", err)
			w.sleep(ctx)
			continue
		}

		claimed := 0
		for _, id := range ids {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			// The ZRem is the claim arbiter: whichever worker removes the
			// scheduling entry owns the job. The lease is written in the same
			// batch so a claimer that dies leaves an expiring trace behind; a
			// losing claimer merely refreshes the winner's lease.
			pipe := w.store.Pipeline()
			pipe.ZAdd(proc, float64(w.now().Add(r.cfg.Lease).UnixMilli()), id)
			removed := pipe.ZRem(sched, id)
			if err := pipe.Exec(ctx); err != nil || removed.Int == 0 {
				<-slots
				continue
			}
			claimed++
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				defer func() { <-slots }()
				w.runJob(context.WithoutCancel(ctx), r, id)
			}(id)
		}

		if claimed == 0 {
			w.sleep(ctx)
		}
	}
}

// recoverStalled returns jobs whose claimer died mid-run to the schedule. A
// lease past its deadline means the owning worker crashed between claiming
// and finishing; re-adding the scheduling entry before dropping the lease
// keeps the job reachable even if this sweep dies halfway too.
func (w *Worker) recoverStalled(ctx context.Context, r *typeRunner, sched, proc string) {
	ids, err := w.store.ZRangeByScore(ctx, proc, math.Inf(-1), float64(w.now().UnixMilli()), int64(r.cfg.Concurrency))
	if err != nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		pipe := w.store.Pipeline()
		pipe.ZAdd(sched, float64(w.now().UnixMilli()), id)
		pipe.ZRem(proc, id)
		if err := pipe.Exec(ctx); err != nil {
			w.logger.Warn("stalled job recovery failed", "type", r.jobType, "id", id, "err", err)
			return
		}
		w.logger.Warn("stalled job returned to schedule", "type", r.jobType, "id", id)
	}
}

// releaseLease drops the processing entry once a claim reaches a terminal
// state. Best effort: a leftover entry is swept after its lease expires.
func (w *Worker) releaseLease(ctx context.Context, proc, id string) {
	_, _ = w.store.ZRem(ctx, proc, id)
}

func (w *Worker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *Worker) runJob(ctx context.Context, r *typeRunner, id string) {
	key := jobKey(w.prefix, r.jobType, id)
	sched := scheduledKey(w.prefix, r.jobType)
	proc := processingKey(w.prefix, r.jobType)

	raw, err := w.store.Get(ctx, key)
	if err != nil {
		if kv.IsMiss(err) {
			// Scheduling entry outlived its record; nothing to run.
			w.logger.Debug("claimed job has no record", "type", r.jobType, "id", id)
			w.releaseLease(ctx, proc, id)
			return
		}
		w.logger.Warn("job fetch failed, returning claim", "type", r.jobType, "id", id, "err", err)
		pipe := w.store.Pipeline()
		pipe.ZAdd(sched, float64(w.now().UnixMilli()), id)
		pipe.ZRem(proc, id)
		_ = pipe.Exec(ctx)
		return
	}

	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		w.logger.Error("job record corrupt, dead-lettering", "type", r.jobType, "id", id, "err", err)
		w.deadLetter(ctx, r, raw)
		_, _ = w.store.Del(ctx, key)
		w.releaseLease(ctx, proc, id)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	runErr := runHandler(runCtx, r.handler, job)
	cancel()

	if runErr == nil {
		if _, err := w.store.Del(ctx, key); err != nil {
			// The lease sweep replays the job; at-least-once by design.
			w.logger.Warn("completed job not deleted", "type", r.jobType, "id", id, "err", err)
		}
		w.releaseLease(ctx, proc, id)
		w.logger.Info("job completed", "type", r.jobType, "id", id, "attempts", job.Attempts)
		if w.onCompleted != nil {
			w.onCompleted(job)
		}
		return
	}

	job.Attempts++
	job.LastError = runErr.Error()

	if job.Attempts >= r.cfg.MaxAttempts {
		w.logger.Error("job exhausted retries", "type", r.jobType, "id", id, "attempts", job.Attempts, "err", runErr)
		if record, err := json.Marshal(job); err == nil {
			w.deadLetter(ctx, r, record)
		}
		_, _ = w.store.Del(ctx, key)
		w.releaseLease(ctx, proc, id)
		if w.onFailed != nil {
			w.onFailed(job, runErr)
		}
		return
	}

	job.NextRunAt = w.now().UTC().Add(r.cfg.Backoff(job.Attempts))
	record, err := json.Marshal(job)
	if err != nil {
		w.logger.Error("job record not re-encodable", "type", r.jobType, "id", id, "err", err)
		return
	}
	pipe := w.store.Pipeline()
	pipe.Set(key, record, 0)
	pipe.ZAdd(sched, float64(job.NextRunAt.UnixMilli()), id)
	pipe.ZRem(proc, id)
	if err := pipe.Exec(ctx); err != nil {
		w.logger.Warn("job reschedule failed", "type", r.jobType, "id", id, "err", err)
		return
	}
	w.logger.Warn("job failed, retrying", "type", r.jobType, "id", id, "attempts", job.Attempts, "nextRunAt", job.NextRunAt, "err", runErr)
}

func (w *Worker) deadLetter(ctx context.Context, r *typeRunner, record []byte) {
	dead := deadKey(w.prefix, r.jobType)
	if err := w.store.LPush(ctx, dead, record); err != nil {
		w.logger.Error("dead-letter push failed", "type", r.jobType, "err", err)
		return
	}
	_ = w.store.LTrim(ctx, dead, 0, r.cfg.DeadLetterLimit-1)
}

// DeadLetters returns up to limit most recent dead-lettered jobs for a type,
// for operator inspection.
func (w *Worker) DeadLetters(ctx context.Context, jobType string, limit int64) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := w.store.LRange(ctx, deadKey(w.prefix, jobType), 0, limit-1)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(raw))
	for _, record := range raw {
		var job Job
		if err := json.Unmarshal(record, &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func runHandler(ctx context.Context, h Handler, job Job) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panic: %v", r)
			}
		}()
		done <- h(ctx, job)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("handler timeout: %w", ctx.Err())
	}
}
