package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRunner struct {
	mu       sync.Mutex
	done     []string
	running  atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	panicFor string
}

func (f *fakeRunner) Run(ctx context.Context, id string) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if id == f.panicFor {
		panic("boom")
	}
	time.Sleep(f.delay)
	f.mu.Lock()
	f.done = append(f.done, id)
	f.mu.Unlock()
}

func TestDispatcher_RunsAllJobs(t *testing.T) {
	r := &fakeRunner{delay: 5 * time.Millisecond}
	d := NewDispatcher(r, 4)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if err := d.Submit(context.Background(), id); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(r.done) != 5 {
		t.Fatalf("want 5 jobs done, got %v", r.done)
	}
}

func TestDispatcher_SubmitDoesNotBlockAndRespectsLimit(t *testing.T) {
	r := &fakeRunner{delay: 30 * time.Millisecond}
	d := NewDispatcher(r, 2)

	start := time.Now()
	for i := 0; i < 6; i++ {
		if err := d.Submit(context.Background(), "job"); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Fatalf("Submit blocked for %v", time.Since(start))
	}

	_ = d.Shutdown(context.Background())
	if r.peak.Load() > 2 {
		t.Fatalf("concurrency limit exceeded: %d", r.peak.Load())
	}
}

func TestDispatcher_IgnoresCallerCancellation(t *testing.T) {
	r := &fakeRunner{delay: 10 * time.Millisecond}
	d := NewDispatcher(r, 1)

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Submit(ctx, "a"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cancel()

	_ = d.Shutdown(context.Background())
	if len(r.done) != 1 {
		t.Fatalf("job should finish after request context is canceled")
	}
}

func TestDispatcher_RejectsAfterShutdown(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, 1)
	_ = d.Shutdown(context.Background())

	if err := d.Submit(context.Background(), "late"); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("want ErrShuttingDown, got %v", err)
	}
}

func TestDispatcher_SurvivesPanickingJob(t *testing.T) {
	r := &fakeRunner{panicFor: "bad"}
	d := NewDispatcher(r, 1)

	_ = d.Submit(context.Background(), "bad")
	_ = d.Submit(context.Background(), "good")
	_ = d.Shutdown(context.Background())

	if len(r.done) != 1 || r.done[0] != "good" {
		t.Fatalf("good job should still run, got %v", r.done)
	}
}

func TestDispatcher_ShutdownTimeout(t *testing.T) {
	d := NewDispatcher(&fakeRunner{delay: 200 * time.Millisecond}, 1)
	_ = d.Submit(context.Background(), "slow")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	_ = d.Shutdown(context.Background())
}
