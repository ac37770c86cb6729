// Package queue provides asynchronous step dispatch for debate chains.
//
// The contract is at-least-once: a scheduled job runs eventually, possibly
// more than once, with no ordering guarantee across distinct debates. Steps
// for the same debate order themselves by each step scheduling the next.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Step names a unit of work in a debate chain.
type Step string

const (
	StepStartDebate    Step = "start_debate"
	StepProcessTurn    Step = "process_turn"
	StepConductVerdict Step = "conduct_verdict"
	StepFinishDebate   Step = "finish_debate"
)

// Job is one scheduled step with its arguments.
type Job struct {
	Step     Step   `json:"step"`
	DebateID string `json:"debate_id"`
	SeqIndex int    `json:"seq_index"`
}

// Dispatcher is the collaborator contract the orchestrator schedules through.
type Dispatcher interface {
	Schedule(ctx context.Context, job Job) error
}

// Handler executes one job.
type Handler func(ctx context.Context, job Job)

// Pool is an in-process Dispatcher backed by a worker pool. Distinct debates
// proceed in parallel; one debate's chain stays sequential because each step
// schedules only its successor.
type Pool struct {
	handler Handler
	jobs    chan Job

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
	workers   int
}

// NewPool creates a dispatcher running jobs on n workers (minimum 1).
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{
		jobs:    make(chan Job, 1024),
		done:    make(chan struct{}),
		workers: n,
	}
}

// SetHandler installs the job handler. Must be called before Start; the
// scheduler and the pool reference each other, so the handler is wired after
// construction.
func (p *Pool) SetHandler(h Handler) {
	p.handler = h
}

// Start launches the worker goroutines. Safe to call once.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.run()
		}
	})
}

// Stop prevents new jobs from being accepted and waits for in-flight jobs.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

// Schedule enqueues a job for asynchronous execution.
func (p *Pool) Schedule(ctx context.Context, job Job) error {
	select {
	case <-p.done:
		return fmt.Errorf("dispatcher stopped")
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
		slog.Debug("Job scheduled", "step", job.Step, "debate_id", job.DebateID, "seq_index", job.SeqIndex)
		return nil
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case job := <-p.jobs:
			p.handler(context.Background(), job)
		}
	}
}
