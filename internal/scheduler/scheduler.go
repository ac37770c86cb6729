// Package scheduler orchestrates debate turn chains.
//
// Each step (start, turn, verdict, finish) runs as an independent job; a step
// schedules exactly its successor, so one debate's chain is strictly
// sequential while distinct debates proceed in parallel.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alienxp03/parley/internal/core"
	"github.com/alienxp03/parley/internal/events"
	"github.com/alienxp03/parley/internal/openrouter"
	"github.com/alienxp03/parley/internal/prompt"
	"github.com/alienxp03/parley/internal/queue"
	"github.com/alienxp03/parley/internal/storage"
)

// verdictSpeakerName labels the judge's turn in transcripts and events.
const verdictSpeakerName = "Moderator (Verdict)"

// Generator produces a streamed chat completion. *openrouter.Client
// implements it.
type Generator interface {
	StreamChatCompletion(ctx context.Context, model string, messages []openrouter.Message, onDelta func(delta string)) (string, *openrouter.Usage, error)
}

// Config holds scheduler settings.
type Config struct {
	// DefaultJudgeModel is used for the verdict when no moderator is
	// configured to act as judge.
	DefaultJudgeModel string
}

// Scheduler drives debate chains: it decides who speaks, requests generation,
// persists turns, emits events, and schedules the next step.
type Scheduler struct {
	storage    storage.Storage
	generator  Generator
	publisher  events.Publisher
	dispatcher queue.Dispatcher
	config     Config
}

// New creates a scheduler.
func New(store storage.Storage, gen Generator, pub events.Publisher, disp queue.Dispatcher, cfg Config) *Scheduler {
	return &Scheduler{
		storage:    store,
		generator:  gen,
		publisher:  pub,
		dispatcher: disp,
		config:     cfg,
	}
}

// Begin schedules the start step for a debate chain.
func (s *Scheduler) Begin(ctx context.Context, debateID string) error {
	return s.dispatcher.Schedule(ctx, queue.Job{Step: queue.StepStartDebate, DebateID: debateID})
}

// Handle executes one job. It is the queue.Handler for the worker pool.
// Nothing here is fatal: every failure is scoped to one debate's chain.
func (s *Scheduler) Handle(ctx context.Context, job queue.Job) {
	switch job.Step {
	case queue.StepStartDebate:
		s.startDebate(ctx, job)
	case queue.StepProcessTurn:
		s.processTurn(ctx, job)
	case queue.StepConductVerdict:
		s.conductVerdict(ctx, job)
	case queue.StepFinishDebate:
		s.finishDebate(ctx, job)
	default:
		slog.Error("Unknown step", "step", job.Step, "debate_id", job.DebateID)
	}
}

// loadRunning loads the debate for a mid-chain step. A missing or non-running
// debate aborts the chain; the abort is logged and published so operators can
// see chains that stopped early instead of silently disappearing.
func (s *Scheduler) loadRunning(step queue.Step, debateID string) *core.Debate {
	debate, err := s.storage.GetDebate(debateID)
	if err != nil {
		slog.Error("Failed to load debate", "step", step, "debate_id", debateID, "error", err)
		return nil
	}
	if debate == nil || debate.Status != core.StatusRunning {
		status := "missing"
		if debate != nil {
			status = string(debate.Status)
		}
		slog.Warn("Chain aborted at step entry", "step", step, "debate_id", debateID, "status", status)
		s.publisher.Publish(debateID, events.TypeChainAborted, map[string]any{
			"step":   string(step),
			"status": status,
		})
		return nil
	}
	return debate
}

func (s *Scheduler) scheduleNext(ctx context.Context, t Transition) {
	if t.Next == nil {
		return
	}
	if err := s.dispatcher.Schedule(ctx, *t.Next); err != nil {
		slog.Error("Failed to schedule next step",
			"step", t.Next.Step,
			"debate_id", t.Next.DebateID,
			"seq_index", t.Next.SeqIndex,
			"error", err,
		)
	}
}

// startDebate marks the debate running and opens the chain at turn 0.
func (s *Scheduler) startDebate(ctx context.Context, job queue.Job) {
	debate, err := s.storage.GetDebate(job.DebateID)
	if err != nil || debate == nil {
		slog.Warn("Debate not found at start", "debate_id", job.DebateID, "error", err)
		s.publisher.Publish(job.DebateID, events.TypeChainAborted, map[string]any{
			"step":   string(job.Step),
			"status": "missing",
		})
		return
	}
	if debate.Status.Terminal() || debate.Status == core.StatusRunning {
		// Status transitions are monotonic; never restart a chain.
		slog.Warn("Start ignored for non-queued debate", "debate_id", job.DebateID, "status", debate.Status)
		return
	}

	if err := s.storage.UpdateStatus(debate.ID, core.StatusRunning); err != nil {
		slog.Error("Failed to mark debate running", "debate_id", debate.ID, "error", err)
		return
	}

	s.publisher.Publish(debate.ID, events.TypeDebateStarted, map[string]any{
		"debate_id": debate.ID,
		"status":    string(core.StatusRunning),
	})

	s.scheduleNext(ctx, Plan(job.Step, &debate.Config, debate.ID, 0))
}

// processTurn executes one regular turn, or routes to the verdict when all
// regular turns are done.
func (s *Scheduler) processTurn(ctx context.Context, job queue.Job) {
	debate := s.loadRunning(job.Step, job.DebateID)
	if debate == nil {
		return
	}

	t := Plan(job.Step, &debate.Config, debate.ID, job.SeqIndex)
	if t.Action == ActionRouteVerdict {
		s.scheduleNext(ctx, t)
		return
	}

	assignment := AssignSpeaker(&debate.Config, job.SeqIndex)
	speaker := assignment.Speaker

	s.publisher.Publish(debate.ID, events.TypeTurnStarted, map[string]any{
		"seq_index":    job.SeqIndex,
		"speaker_name": speaker.DisplayName,
	})

	turns, err := s.storage.ListTurns(debate.ID)
	if err != nil {
		slog.Error("Failed to load prior turns", "debate_id", debate.ID, "error", err)
		return
	}

	messages := []openrouter.Message{
		{Role: openrouter.RoleSystem, Content: prompt.SystemPrompt(speaker, debate.Config.Intensity, debate.Config.Language, debate.Config.LengthPreset)},
		{Role: openrouter.RoleUser, Content: prompt.UserContent(&debate.Config, turns, speaker)},
	}

	s.generateAndSave(ctx, debate, job.SeqIndex, speaker.ModelID, speaker.DisplayName, assignment.TurnType, messages)
	s.scheduleNext(ctx, t)
}

// conductVerdict produces the single judging turn. Finishing is
// unconditional: a failed judge never leaves the debate stuck.
func (s *Scheduler) conductVerdict(ctx context.Context, job queue.Job) {
	debate := s.loadRunning(job.Step, job.DebateID)
	if debate == nil {
		return
	}

	// The finish step is scheduled no matter how generation goes.
	defer s.scheduleNext(ctx, Plan(job.Step, &debate.Config, debate.ID, job.SeqIndex))

	judgeModel := s.config.DefaultJudgeModel
	if mod := debate.Config.Moderator(); mod != nil && mod.ModelID != "" {
		judgeModel = mod.ModelID
	}

	s.publisher.Publish(debate.ID, events.TypeTurnStarted, map[string]any{
		"seq_index":    job.SeqIndex,
		"speaker_name": verdictSpeakerName,
	})

	turns, err := s.storage.ListTurns(debate.ID)
	if err != nil {
		slog.Error("Failed to load transcript for verdict", "debate_id", debate.ID, "error", err)
		return
	}

	messages := []openrouter.Message{
		{Role: openrouter.RoleSystem, Content: prompt.VerdictSystemPrompt(debate.Config.Language)},
		{Role: openrouter.RoleUser, Content: prompt.VerdictUserContent(&debate.Config, turns)},
	}

	s.generateAndSave(ctx, debate, job.SeqIndex, judgeModel, verdictSpeakerName, core.TurnVerdict, messages)
}

// generateAndSave streams one generation to completion, persists the turn,
// and publishes its lifecycle events. A generation failure is recorded on the
// turn rather than surfaced: the slot is always filled so the chain never
// stalls on a flaky model.
func (s *Scheduler) generateAndSave(ctx context.Context, debate *core.Debate, seqIndex int, modelID, speakerName string, turnType core.TurnType, messages []openrouter.Message) {
	text, usage, genErr := s.generator.StreamChatCompletion(ctx, modelID, messages, func(delta string) {
		s.publisher.Publish(debate.ID, events.TypeTurnDelta, map[string]any{
			"seq_index":    seqIndex,
			"delta":        delta,
			"speaker_name": speakerName,
		})
	})

	turn := &core.Turn{
		ID:          core.GenerateID(),
		DebateID:    debate.ID,
		SeqIndex:    seqIndex,
		TurnType:    turnType,
		SpeakerID:   modelID,
		SpeakerName: speakerName,
		ModelUsed:   modelID,
		Text:        text,
		CreatedAt:   time.Now(),
	}
	if usage != nil {
		turn.Usage = &core.Usage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
			Cost:             usage.Cost,
		}
	}

	if genErr != nil {
		slog.Error("Generation failed", "debate_id", debate.ID, "seq_index", seqIndex, "model", modelID, "error", genErr)
		turn.Error = genErr.Error()
		s.publisher.Publish(debate.ID, events.TypeTurnDelta, map[string]any{
			"seq_index":    seqIndex,
			"delta":        fmt.Sprintf(" [Error: %v]", genErr),
			"speaker_name": speakerName,
		})
	}
	turn.WordCount = core.CountWords(turn.Text)

	inserted, err := s.storage.AppendTurn(turn)
	if err != nil {
		slog.Error("Failed to save turn", "debate_id", debate.ID, "seq_index", seqIndex, "error", err)
		return
	}
	if !inserted {
		// Redelivered step: the slot was already filled by a previous run.
		slog.Warn("Turn slot already filled, skipping", "debate_id", debate.ID, "seq_index", seqIndex)
		return
	}

	s.publisher.Publish(debate.ID, events.TypeTurnCompleted, map[string]any{
		"seq_index":    seqIndex,
		"text":         turn.Text,
		"speaker_name": speakerName,
	})
}

// finishDebate marks the debate completed and announces it. Re-running the
// step re-sets the same terminal values, so double scheduling is harmless.
func (s *Scheduler) finishDebate(ctx context.Context, job queue.Job) {
	debate, err := s.storage.GetDebate(job.DebateID)
	if err != nil || debate == nil {
		slog.Warn("Debate not found at finish", "debate_id", job.DebateID, "error", err)
		return
	}
	if debate.Status.Terminal() && debate.Status != core.StatusCompleted {
		// Keep stopped/error as-is; terminal statuses never change.
		slog.Warn("Finish ignored for terminal debate", "debate_id", debate.ID, "status", debate.Status)
		return
	}

	if err := s.storage.UpdateStatus(debate.ID, core.StatusCompleted); err != nil {
		slog.Error("Failed to mark debate completed", "debate_id", debate.ID, "error", err)
		return
	}

	s.publisher.Publish(debate.ID, events.TypeDebateCompleted, map[string]any{
		"debate_id": debate.ID,
	})
}
