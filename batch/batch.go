// Package batch runs per-file jobs concurrently. Each job owns its graph
// and cursor exclusively, so workers share nothing but the read-only
// schema; the runner only bounds concurrency and IO throughput.
package batch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/formaproject/forma/codec"
)

// Job is one unit of work, typically a single file.
type Job struct {
	// Name identifies the job in outcomes and logs.
	Name string
	// Size is the payload size in bytes, charged against the IO budget
	// before Run starts. Zero is untracked.
	Size int64
	// Run does the work. A version mismatch should surface as
	// codec.ErrUnsupportedVersion so the job counts as skipped.
	Run func(ctx context.Context) error
}

// Status classifies how a job ended.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the per-job result.
type Outcome struct {
	Name    string
	Status  Status
	Err     error
	Elapsed time.Duration
}

// Summary aggregates a whole run. Outcomes preserve job submission order.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
	Outcomes  []Outcome
}

// Runner executes jobs on a bounded worker pool. A job failure is recorded
// in its outcome and never interrupts sibling jobs; only context
// cancellation stops a run early.
type Runner struct {
	workers int64
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the number of concurrent jobs. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n >= 1 {
			r.workers = int64(n)
		}
	}
}

// WithIOLimit caps aggregate payload throughput in bytes per second.
// Zero means unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(r *Runner) {
		if bytesPerSec > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
		}
	}
}

// WithLogger sets the logger for per-job progress output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner returns a single-worker runner; widen it with WithWorkers.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		workers: 1,
		logger:  slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sem = semaphore.NewWeighted(r.workers)
	return r
}

// Run executes all jobs and waits for them. The returned error is non-nil
// only when ctx was cancelled; job errors live in the summary. Jobs not
// started before cancellation are marked failed with the context error.
func (r *Runner) Run(ctx context.Context, jobs []Job) (Summary, error) {
	outcomes := make([]Outcome, len(jobs))
	var wg sync.WaitGroup

	var runErr error
	for i, job := range jobs {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(jobs); j++ {
				outcomes[j] = Outcome{Name: jobs[j].Name, Status: StatusFailure, Err: err}
			}
			runErr = err
			break
		}
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			defer r.sem.Release(1)
			outcomes[i] = r.runOne(ctx, job)
		}(i, job)
	}
	wg.Wait()

	sum := Summary{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			sum.Succeeded++
		case StatusFailure:
			sum.Failed++
		case StatusSkipped:
			sum.Skipped++
		}
	}
	return sum, runErr
}

func (r *Runner) runOne(ctx context.Context, job Job) Outcome {
	start := time.Now()
	if r.limiter != nil && job.Size > 0 {
		n := job.Size
		if n > int64(r.limiter.Burst()) {
			n = int64(r.limiter.Burst())
		}
		if err := r.limiter.WaitN(ctx, int(n)); err != nil {
			return Outcome{Name: job.Name, Status: StatusFailure, Err: err, Elapsed: time.Since(start)}
		}
	}

	err := job.Run(ctx)
	o := Outcome{Name: job.Name, Err: err, Elapsed: time.Since(start)}
	switch {
	case err == nil:
		o.Status = StatusSuccess
		r.logger.Info("job done", slog.String("job", job.Name), slog.Duration("elapsed", o.Elapsed))
	case errors.Is(err, codec.ErrUnsupportedVersion):
		o.Status = StatusSkipped
		r.logger.Info("job skipped", slog.String("job", job.Name), slog.Any("reason", err))
	default:
		o.Status = StatusFailure
		r.logger.Error("job failed", slog.String("job", job.Name), slog.Any("error", err))
	}
	return o
}
