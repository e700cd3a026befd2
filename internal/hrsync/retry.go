package hrsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sellsync/internal/hrsync/store"
	"sellsync/pkg/platform/sentinel"
)

const (
	// DefaultRetryAttempts and DefaultRetryBackoff match the origin system's
	// five attempts with five seconds between them.
	DefaultRetryAttempts = 5
	DefaultRetryBackoff  = 5 * time.Second
)

// FatalError is the terminal outcome of an operation that exhausted its
// attempt budget. It is the one failure the pipeline surfaces upward instead
// of swallowing.
type FatalError struct {
	Attempts int
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("storage operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// permanentError marks a failure retrying cannot fix: bad payload data,
// constraint violations, unexpected handler state. The retrier logs it and
// stops without consuming further attempts or raising a FatalError, mirroring
// the handlers' treat-as-dropped semantics for that message.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the Retrier will not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retrier runs a storage operation with a fresh session per attempt. A failed
// session may be poisoned, so it is rolled back and closed, never reused.
type Retrier struct {
	store    store.Store
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

type RetrierOption func(*Retrier)

func WithAttempts(n int) RetrierOption {
	return func(r *Retrier) {
		if n > 0 {
			r.attempts = n
		}
	}
}

func WithBackoff(d time.Duration) RetrierOption {
	return func(r *Retrier) {
		if d >= 0 {
			r.backoff = d
		}
	}
}

func WithRetrierLogger(logger *slog.Logger) RetrierOption {
	return func(r *Retrier) { r.logger = logger }
}

func NewRetrier(st store.Store, opts ...RetrierOption) (*Retrier, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	r := &Retrier{
		store:    st,
		attempts: DefaultRetryAttempts,
		backoff:  DefaultRetryBackoff,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Do executes op against a fresh session per attempt. op is responsible for
// committing; Do closes the session afterwards if op left it open. On error
// the session is rolled back, closed, and the attempt repeats after the
// backoff. The backoff sleep is interruptible by ctx so shutdown is never
// delayed by a pending retry.
//
// Returns nil on success or permanent failure (logged, dropped), a
// *FatalError once the attempt budget is exhausted, or ctx.Err() wrapped in a
// *FatalError when cancelled mid-retry.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context, s store.Session) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		session, err := r.store.Begin(ctx)
		if err != nil {
			lastErr = err
			r.logger.Warn("no storage session",
				"attempt", attempt, "error", err)
			if attempt < r.attempts {
				if err := r.sleep(ctx); err != nil {
					return &FatalError{Attempts: attempt, Err: err}
				}
			}
			continue
		}

		err = op(ctx, session)
		if err == nil {
			if session.Open() {
				_ = session.Close()
			}
			return nil
		}

		_ = session.Rollback(ctx)
		_ = session.Close()

		var perm *permanentError
		if errors.As(err, &perm) {
			r.logger.Error("dropping event after permanent failure", "error", perm.err)
			return nil
		}

		lastErr = err
		r.logger.Warn("storage operation failed, retrying",
			"attempt", attempt, "error", err)
		if attempt < r.attempts {
			if err := r.sleep(ctx); err != nil {
				return &FatalError{Attempts: attempt, Err: err}
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no storage connection: %w", sentinel.ErrUnavailable)
	}
	return &FatalError{Attempts: r.attempts, Err: lastErr}
}

func (r *Retrier) sleep(ctx context.Context) error {
	if r.backoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
