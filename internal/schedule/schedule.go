// Package schedule runs a job on a fixed interval in the background.
package schedule

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Job is one unit of scheduled work. It should return promptly once ctx is
// canceled.
type Job func(ctx context.Context)

// Runner calls a Job every interval. The first call happens one interval
// after Start, not immediately.
type Runner struct {
	name     string
	interval time.Duration
	job      Job
	logger   *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the logger for lifecycle messages and recovered panics.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a stopped Runner.
func New(name string, interval time.Duration, job Job, opts ...Option) (*Runner, error) {
	if interval <= 0 {
		return nil, errors.New("schedule: interval must be positive")
	}
	if job == nil {
		return nil, errors.New("schedule: job is required")
	}
	r := &Runner{name: name, interval: interval, job: job, logger: log.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Start begins the ticking loop. Starting a running Runner is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	r.logger.Printf("%s: started (every %s)", r.name, r.interval)
}

// Stop cancels the loop and waits for an in-flight job to return. After Stop
// returns no further job runs. Stopping a stopped Runner is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.logger.Printf("%s: stopped", r.name)
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A tick and a cancel can be ready together; cancel wins.
			if ctx.Err() != nil {
				return
			}
			r.run(ctx)
		}
	}
}

func (r *Runner) run(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Printf("WARNING: %s: job panicked: %v", r.name, p)
		}
	}()
	r.job(ctx)
}
