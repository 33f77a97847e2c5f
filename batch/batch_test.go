package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formaproject/forma/codec"
)

func TestRunner_Outcomes(t *testing.T) {
	r := NewRunner(WithWorkers(4))

	jobs := []Job{
		{Name: "good", Run: func(context.Context) error { return nil }},
		{Name: "bad", Run: func(context.Context) error { return errors.New("corrupt header") }},
		{Name: "old", Run: func(context.Context) error {
			return fmt.Errorf("reading: %w", codec.ErrUnsupportedVersion)
		}},
		{Name: "also good", Run: func(context.Context) error { return nil }},
	}

	sum, err := r.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Skipped)

	// Outcomes keep submission order regardless of completion order.
	require.Len(t, sum.Outcomes, 4)
	assert.Equal(t, "good", sum.Outcomes[0].Name)
	assert.Equal(t, StatusSuccess, sum.Outcomes[0].Status)
	assert.Equal(t, StatusFailure, sum.Outcomes[1].Status)
	assert.Equal(t, StatusSkipped, sum.Outcomes[2].Status)
	assert.ErrorIs(t, sum.Outcomes[2].Err, codec.ErrUnsupportedVersion)
}

func TestRunner_FailureDoesNotAbortSiblings(t *testing.T) {
	r := NewRunner(WithWorkers(2))

	var ran atomic.Int32
	jobs := make([]Job, 8)
	for i := range jobs {
		i := i
		jobs[i] = Job{
			Name: fmt.Sprintf("job-%d", i),
			Run: func(context.Context) error {
				ran.Add(1)
				if i%2 == 0 {
					return errors.New("broken file")
				}
				return nil
			},
		}
	}

	sum, err := r.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, int32(8), ran.Load())
	assert.Equal(t, 4, sum.Succeeded)
	assert.Equal(t, 4, sum.Failed)
}

func TestRunner_WorkerLimit(t *testing.T) {
	r := NewRunner(WithWorkers(2))

	var mu sync.Mutex
	active, peak := 0, 0
	enter := func() {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
	}
	leave := func() {
		mu.Lock()
		active--
		mu.Unlock()
	}

	jobs := make([]Job, 6)
	for i := range jobs {
		jobs[i] = Job{
			Name: fmt.Sprintf("job-%d", i),
			Run: func(context.Context) error {
				enter()
				defer leave()
				return nil
			},
		}
	}

	_, err := r.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 2)
}

func TestRunner_Cancellation(t *testing.T) {
	r := NewRunner(WithWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	jobs := []Job{
		{Name: "stuck", Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		}},
		{Name: "starved", Run: func(context.Context) error { return nil }},
	}

	done := make(chan struct{})
	var sum Summary
	var runErr error
	go func() {
		sum, runErr = r.Run(ctx, jobs)
		close(done)
	}()

	<-started
	cancel()
	close(release)
	<-done

	require.ErrorIs(t, runErr, context.Canceled)
	// The job that never got a worker slot is marked failed with the
	// context error.
	assert.Equal(t, StatusFailure, sum.Outcomes[1].Status)
	assert.ErrorIs(t, sum.Outcomes[1].Err, context.Canceled)
}

func TestRunner_IOLimitRoundsDownToBurst(t *testing.T) {
	// A job larger than the burst must still run; the charge is clamped.
	r := NewRunner(WithWorkers(1), WithIOLimit(64))

	sum, err := r.Run(context.Background(), []Job{{
		Name: "big",
		Size: 4096,
		Run:  func(context.Context) error { return nil },
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
}
