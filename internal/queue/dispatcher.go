package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/trunov/csvimages/internal/telemetry"
	"golang.org/x/sync/semaphore"
)

var ErrShuttingDown = errors.New("dispatcher is shutting down")

// Runner processes one job to completion. It must handle its own errors.
type Runner interface {
	Run(ctx context.Context, requestID string)
}

// Dispatcher starts one detached goroutine per submitted job. At most
// maxConcurrent jobs run at once; the rest wait for a slot inside their own
// goroutine so Submit never blocks.
type Dispatcher struct {
	runner Runner
	sem    *semaphore.Weighted

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func NewDispatcher(runner Runner, maxConcurrent int64) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Dispatcher{
		runner: runner,
		sem:    semaphore.NewWeighted(maxConcurrent),
	}
}

// Submit schedules requestID in the background. ctx only carries values; its
// cancellation does not stop the job.
func (d *Dispatcher) Submit(ctx context.Context, requestID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return ErrShuttingDown
	}

	d.wg.Add(1)
	go d.run(context.WithoutCancel(ctx), requestID)
	return nil
}

func (d *Dispatcher) run(ctx context.Context, requestID string) {
	defer d.wg.Done()

	// never fails: ctx cannot be canceled
	_ = d.sem.Acquire(ctx, 1)
	defer d.sem.Release(1)

	telemetry.JobsRunning.Inc()
	defer telemetry.JobsRunning.Dec()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("request_id", requestID).Interface("panic", r).Msg("[dispatcher] job panicked")
		}
	}()

	d.runner.Run(ctx, requestID)
}

// Shutdown stops accepting jobs and waits for the running ones, or until ctx
// is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("[dispatcher] all jobs finished")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
