// Package jobqueue is the durable background-job layer between request
// handlers and slow outbound I/O. Producers record a job in the shared store
// before returning; a separate worker process claims ready jobs, runs them
// with a bounded timeout, and retries with backoff until success or the
// dead-letter list.
//
// Delivery is at least once: a crash between a handler succeeding and the
// record being deleted replays the job. Every job carries an idempotency key
// derived from its type and payload so handlers can deduplicate side effects.
package jobqueue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Job is one unit of deferred work.
type Job struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Attempts       int             `json:"attempts"`
	EnqueuedAt     time.Time       `json:"enqueuedAt"`
	NextRunAt      time.Time       `json:"nextRunAt"`
	LastError      string          `json:"lastError,omitempty"`
}

// BackoffFunc maps the attempt count (1 for the first retry) to the delay
// before the next run.
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff doubles the delay on every retry: base, 2*base, 4*base,
// capped at cap.
func ExponentialBackoff(base, cap time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= cap {
				return cap
			}
		}
		if d > cap {
			return cap
		}
		return d
	}
}

// FixedBackoff waits the same delay before every retry.
func FixedBackoff(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

func idempotencyKey(jobType string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(jobType))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func jobKey(prefix, jobType, id string) string {
	return prefix + ":" + jobType + ":job:" + id
}

func scheduledKey(prefix, jobType string) string {
	return prefix + ":" + jobType + ":scheduled"
}

func processingKey(prefix, jobType string) string {
	return prefix + ":" + jobType + ":processing"
}

func deadKey(prefix, jobType string) string {
	return prefix + ":" + jobType + ":dead"
}
