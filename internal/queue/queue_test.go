package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPoolRunsScheduledJobs(t *testing.T) {
	var mu sync.Mutex
	var got []Job
	ran := make(chan struct{}, 10)

	p := NewPool(2)
	p.SetHandler(func(ctx context.Context, job Job) {
		mu.Lock()
		got = append(got, job)
		mu.Unlock()
		ran <- struct{}{}
	})
	p.Start()
	defer p.Stop()

	jobs := []Job{
		{Step: StepStartDebate, DebateID: "d1"},
		{Step: StepProcessTurn, DebateID: "d1", SeqIndex: 0},
		{Step: StepFinishDebate, DebateID: "d2"},
	}
	for _, j := range jobs {
		if err := p.Schedule(context.Background(), j); err != nil {
			t.Fatalf("schedule failed: %v", err)
		}
	}

	for range jobs {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(jobs) {
		t.Errorf("expected %d jobs run, got %d", len(jobs), len(got))
	}
}

func TestPoolScheduleAfterStop(t *testing.T) {
	p := NewPool(1)
	p.SetHandler(func(ctx context.Context, job Job) {})
	p.Start()
	p.Stop()

	if err := p.Schedule(context.Background(), Job{Step: StepProcessTurn, DebateID: "d1"}); err == nil {
		t.Error("expected error scheduling on a stopped pool")
	}
}

func TestPoolScheduleHonorsContext(t *testing.T) {
	p := NewPool(1)
	p.SetHandler(func(ctx context.Context, job Job) {
		time.Sleep(50 * time.Millisecond)
	})
	// Not started: the queue will fill and Schedule must respect cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < cap(p.jobs); i++ {
		p.jobs <- Job{}
	}
	if err := p.Schedule(ctx, Job{Step: StepProcessTurn}); err == nil {
		t.Error("expected context error on full queue")
	}
}
