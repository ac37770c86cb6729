package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alienxp03/parley/internal/core"
	"github.com/alienxp03/parley/internal/openrouter"
	"github.com/alienxp03/parley/internal/queue"
	"github.com/alienxp03/parley/internal/storage"
)

// recordingPublisher captures every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	DebateID string
	Type     string
	Data     map[string]any
}

func (p *recordingPublisher) Publish(debateID, eventType string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	payload, _ := data.(map[string]any)
	p.events = append(p.events, recordedEvent{DebateID: debateID, Type: eventType, Data: payload})
}

func (p *recordingPublisher) ofType(eventType string) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// stubDispatcher collects scheduled jobs so tests can drain the chain
// synchronously and deterministically.
type stubDispatcher struct {
	jobs []queue.Job
}

func (d *stubDispatcher) Schedule(ctx context.Context, job queue.Job) error {
	d.jobs = append(d.jobs, job)
	return nil
}

// scriptedGenerator emits fixed chunks per call and can fail on chosen calls.
type scriptedGenerator struct {
	mu      sync.Mutex
	calls   int
	models  []string
	failOn  map[int]error
	partial string // text emitted before a scripted failure
	onCall  func(call int)
}

func (g *scriptedGenerator) StreamChatCompletion(ctx context.Context, model string, messages []openrouter.Message, onDelta func(string)) (string, *openrouter.Usage, error) {
	g.mu.Lock()
	call := g.calls
	g.calls++
	g.models = append(g.models, model)
	g.mu.Unlock()

	if g.onCall != nil {
		g.onCall(call)
	}

	if err, ok := g.failOn[call]; ok {
		if g.partial != "" && onDelta != nil {
			onDelta(g.partial)
		}
		return g.partial, nil, err
	}

	chunks := []string{"response ", fmt.Sprintf("%d", call)}
	for _, c := range chunks {
		if onDelta != nil {
			onDelta(c)
		}
	}
	return strings.Join(chunks, ""), &openrouter.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}, nil
}

type fixture struct {
	store     *storage.SQLiteStorage
	publisher *recordingPublisher
	dispatch  *stubDispatcher
	generator *scriptedGenerator
	scheduler *Scheduler
}

func setup(t *testing.T) *fixture {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "parley-scheduler-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := storage.NewSQLiteStorage(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Initialize(); err != nil {
		t.Fatalf("failed to initialize storage: %v", err)
	}

	pub := &recordingPublisher{}
	disp := &stubDispatcher{}
	gen := &scriptedGenerator{failOn: map[int]error{}}
	sched := New(store, gen, pub, disp, Config{DefaultJudgeModel: "default/judge"})

	return &fixture{store: store, publisher: pub, dispatch: disp, generator: gen, scheduler: sched}
}

// drain runs scheduled jobs to exhaustion, simulating the worker pool.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	for steps := 0; len(f.dispatch.jobs) > 0; steps++ {
		if steps > 100 {
			t.Fatal("chain did not terminate")
		}
		job := f.dispatch.jobs[0]
		f.dispatch.jobs = f.dispatch.jobs[1:]
		f.scheduler.Handle(context.Background(), job)
	}
}

func (f *fixture) createDebate(t *testing.T, hasModerator bool, debaters, rounds int) *core.Debate {
	t.Helper()
	var participants []core.Participant
	if hasModerator {
		participants = append(participants, core.Participant{
			Role: core.RoleModerator, ModelID: "mod/model", DisplayName: "Mod",
		})
	}
	for i := 0; i < debaters; i++ {
		participants = append(participants, core.Participant{
			Role:        core.RoleDebater,
			ModelID:     fmt.Sprintf("debater/model-%d", i),
			DisplayName: fmt.Sprintf("Debater %d", i),
		})
	}

	debate := &core.Debate{
		ID:     core.GenerateID(),
		Title:  core.DefaultTitle("Test topic"),
		Status: core.StatusQueued,
		Config: core.DebateConfig{
			Topic:        "Test topic",
			Language:     "English",
			Participants: participants,
			LengthPreset: core.LengthMedium,
			NumRounds:    rounds,
			Intensity:    5,
		},
		CreatedAt: time.Now(),
	}
	if err := f.store.CreateDebate(debate); err != nil {
		t.Fatalf("failed to create debate: %v", err)
	}
	return debate
}

func TestAssignSpeakerPeriodicity(t *testing.T) {
	for _, hasMod := range []bool{true, false} {
		for k := 1; k <= 3; k++ {
			name := fmt.Sprintf("Mod=%v/Debaters=%d", hasMod, k)
			t.Run(name, func(t *testing.T) {
				f := setup(t)
				debate := f.createDebate(t, hasMod, k, 1)
				config := &debate.Config

				cycle := k
				if hasMod {
					cycle++
				}
				if got := config.CycleLength(); got != cycle {
					t.Fatalf("cycle length: got %d, want %d", got, cycle)
				}

				for i := 0; i < 3*cycle; i++ {
					a := AssignSpeaker(config, i)
					b := AssignSpeaker(config, i+cycle)
					if a.Speaker.DisplayName != b.Speaker.DisplayName || a.TurnType != b.TurnType {
						t.Errorf("not periodic at %d: %v vs %v", i, a, b)
					}

					pos := i % cycle
					if hasMod && pos == 0 {
						if a.TurnType != core.TurnModeratorComment || a.Speaker.Role != core.RoleModerator {
							t.Errorf("index %d: expected moderator opening, got %v", i, a)
						}
					} else {
						if a.TurnType != core.TurnArgument || a.Speaker.Role != core.RoleDebater {
							t.Errorf("index %d: expected debater argument, got %v", i, a)
						}
						wantIdx := pos
						if hasMod {
							wantIdx = pos - 1
						}
						wantName := fmt.Sprintf("Debater %d", wantIdx)
						if a.Speaker.DisplayName != wantName {
							t.Errorf("index %d: got %s, want %s", i, a.Speaker.DisplayName, wantName)
						}
					}
				}
			})
		}
	}
}

func TestPlanTransitions(t *testing.T) {
	config := &core.DebateConfig{
		Participants: []core.Participant{
			{Role: core.RoleModerator, DisplayName: "Mod"},
			{Role: core.RoleDebater, DisplayName: "A"},
			{Role: core.RoleDebater, DisplayName: "B"},
		},
		NumRounds: 2, // T = 6
	}

	tests := []struct {
		name       string
		step       queue.Step
		i          int
		wantAction Action
		wantNext   *queue.Step
		wantIndex  int
	}{
		{"StartOpensChain", queue.StepStartDebate, 0, ActionBegin, stepPtr(queue.StepProcessTurn), 0},
		{"TurnMidChain", queue.StepProcessTurn, 3, ActionRunTurn, stepPtr(queue.StepProcessTurn), 4},
		{"LastRegularTurn", queue.StepProcessTurn, 5, ActionRunTurn, stepPtr(queue.StepProcessTurn), 6},
		{"TerminationGate", queue.StepProcessTurn, 6, ActionRouteVerdict, stepPtr(queue.StepConductVerdict), 6},
		{"PastTermination", queue.StepProcessTurn, 9, ActionRouteVerdict, stepPtr(queue.StepConductVerdict), 9},
		{"VerdictSchedulesFinish", queue.StepConductVerdict, 6, ActionRunVerdict, stepPtr(queue.StepFinishDebate), 6},
		{"FinishEndsChain", queue.StepFinishDebate, 6, ActionComplete, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Plan(tt.step, config, "d1", tt.i)
			if got.Action != tt.wantAction {
				t.Errorf("action: got %v, want %v", got.Action, tt.wantAction)
			}
			if tt.wantNext == nil {
				if got.Next != nil {
					t.Errorf("expected chain end, got %+v", got.Next)
				}
				return
			}
			if got.Next == nil {
				t.Fatal("expected a next job")
			}
			if got.Next.Step != *tt.wantNext || got.Next.SeqIndex != tt.wantIndex {
				t.Errorf("next: got %s@%d, want %s@%d", got.Next.Step, got.Next.SeqIndex, *tt.wantNext, tt.wantIndex)
			}
		})
	}
}

func stepPtr(s queue.Step) *queue.Step { return &s }

func TestFullChainWithModerator(t *testing.T) {
	// 1 moderator + 2 debaters, 1 round: order mod, d0, d1; verdict at 3.
	f := setup(t)
	debate := f.createDebate(t, true, 2, 1)

	if err := f.scheduler.Begin(context.Background(), debate.ID); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	f.drain(t)

	got, _ := f.store.GetDebate(debate.ID)
	if got.Status != core.StatusCompleted {
		t.Errorf("final status: got %s, want completed", got.Status)
	}
	if got.StartedAt == nil || got.EndedAt == nil {
		t.Error("start/end timestamps not stamped")
	}

	turns, _ := f.store.ListTurns(debate.ID)
	if len(turns) != 4 {
		t.Fatalf("turn count: got %d, want 4", len(turns))
	}

	wantSpeakers := []string{"Mod", "Debater 0", "Debater 1", verdictSpeakerName}
	wantTypes := []core.TurnType{core.TurnModeratorComment, core.TurnArgument, core.TurnArgument, core.TurnVerdict}
	for i, turn := range turns {
		if turn.SeqIndex != i {
			t.Errorf("turn %d: seq_index %d", i, turn.SeqIndex)
		}
		if turn.SpeakerName != wantSpeakers[i] {
			t.Errorf("turn %d: speaker %s, want %s", i, turn.SpeakerName, wantSpeakers[i])
		}
		if turn.TurnType != wantTypes[i] {
			t.Errorf("turn %d: type %s, want %s", i, turn.TurnType, wantTypes[i])
		}
		if turn.WordCount != core.CountWords(turn.Text) {
			t.Errorf("turn %d: word count %d", i, turn.WordCount)
		}
	}

	// Moderator acts as judge for the verdict.
	if turns[3].ModelUsed != "mod/model" {
		t.Errorf("verdict model: got %s, want mod/model", turns[3].ModelUsed)
	}

	// Event shape: one started/completed pair per turn, chain bracketed by
	// debate_started and debate_completed.
	if n := len(f.publisher.ofType("debate_started")); n != 1 {
		t.Errorf("debate_started events: got %d", n)
	}
	if n := len(f.publisher.ofType("turn_started")); n != 4 {
		t.Errorf("turn_started events: got %d", n)
	}
	if n := len(f.publisher.ofType("turn_completed")); n != 4 {
		t.Errorf("turn_completed events: got %d", n)
	}
	if n := len(f.publisher.ofType("debate_completed")); n != 1 {
		t.Errorf("debate_completed events: got %d", n)
	}

	// Deltas for one turn arrive in generation order.
	deltas := f.publisher.ofType("turn_delta")
	var firstTurn []string
	for _, d := range deltas {
		if d.Data["seq_index"] == 0 {
			firstTurn = append(firstTurn, d.Data["delta"].(string))
		}
	}
	if strings.Join(firstTurn, "") != "response 0" {
		t.Errorf("turn 0 deltas out of order: %v", firstTurn)
	}
}

func TestFullChainWithoutModerator(t *testing.T) {
	// 0 moderator, 2 debaters, 2 rounds: order d0,d1,d0,d1; verdict at 4.
	f := setup(t)
	debate := f.createDebate(t, false, 2, 2)

	if err := f.scheduler.Begin(context.Background(), debate.ID); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	f.drain(t)

	turns, _ := f.store.ListTurns(debate.ID)
	if len(turns) != 5 {
		t.Fatalf("turn count: got %d, want 5", len(turns))
	}

	wantSpeakers := []string{"Debater 0", "Debater 1", "Debater 0", "Debater 1", verdictSpeakerName}
	for i, turn := range turns {
		if turn.SpeakerName != wantSpeakers[i] {
			t.Errorf("turn %d: speaker %s, want %s", i, turn.SpeakerName, wantSpeakers[i])
		}
	}
	if turns[4].TurnType != core.TurnVerdict || turns[4].SeqIndex != 4 {
		t.Errorf("verdict misplaced: %+v", turns[4])
	}

	// No moderator: the synthesized judge uses the default model.
	if turns[4].ModelUsed != "default/judge" {
		t.Errorf("judge model: got %s, want default/judge", turns[4].ModelUsed)
	}
}

func TestGenerationFailureStillSavesTurn(t *testing.T) {
	f := setup(t)
	debate := f.createDebate(t, false, 2, 1)

	f.generator.failOn[1] = errors.New("model overloaded")
	f.generator.partial = "partial text"

	if err := f.scheduler.Begin(context.Background(), debate.ID); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	f.drain(t)

	got, _ := f.store.GetDebate(debate.ID)
	if got.Status != core.StatusCompleted {
		t.Errorf("failed turn stalled the chain: status %s", got.Status)
	}

	turns, _ := f.store.ListTurns(debate.ID)
	if len(turns) != 3 {
		t.Fatalf("turn count: got %d, want 3", len(turns))
	}

	failed := turns[1]
	if failed.Text != "partial text" {
		t.Errorf("partial text lost: %q", failed.Text)
	}
	if !strings.Contains(failed.Error, "model overloaded") {
		t.Errorf("error not recorded on turn: %q", failed.Error)
	}

	// The live stream carries a one-shot error delta.
	found := false
	for _, d := range f.publisher.ofType("turn_delta") {
		if d.Data["seq_index"] == 1 && strings.Contains(d.Data["delta"].(string), "model overloaded") {
			found = true
		}
	}
	if !found {
		t.Error("error delta not published")
	}
}

func TestVerdictFailureStillFinishes(t *testing.T) {
	f := setup(t)
	debate := f.createDebate(t, false, 1, 1)

	// Call 1 is the verdict (call 0 is the only regular turn).
	f.generator.failOn[1] = errors.New("judge unavailable")

	if err := f.scheduler.Begin(context.Background(), debate.ID); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	f.drain(t)

	got, _ := f.store.GetDebate(debate.ID)
	if got.Status != core.StatusCompleted {
		t.Errorf("verdict failure left debate stuck: status %s", got.Status)
	}
}

func TestStoppedDebateAbortsChain(t *testing.T) {
	f := setup(t)
	debate := f.createDebate(t, false, 2, 2)

	// Flip the status after the first generation; the next step observes it.
	f.generator.onCall = func(call int) {
		if call == 0 {
			f.store.UpdateStatus(debate.ID, core.StatusStopped)
		}
	}

	if err := f.scheduler.Begin(context.Background(), debate.ID); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	f.drain(t)

	got, _ := f.store.GetDebate(debate.ID)
	if got.Status != core.StatusStopped {
		t.Errorf("status: got %s, want stopped", got.Status)
	}

	// The mid-flight turn still completed and persisted; nothing after it.
	turns, _ := f.store.ListTurns(debate.ID)
	if len(turns) != 1 {
		t.Errorf("turn count after stop: got %d, want 1", len(turns))
	}

	aborted := f.publisher.ofType("chain_aborted")
	if len(aborted) == 0 {
		t.Fatal("no chain_aborted signal published")
	}
	if aborted[0].Data["status"] != "stopped" {
		t.Errorf("abort signal status: got %v", aborted[0].Data["status"])
	}
}

func TestRedeliveredTurnStepIsIdempotent(t *testing.T) {
	f := setup(t)
	debate := f.createDebate(t, false, 2, 1)
	f.store.UpdateStatus(debate.ID, core.StatusRunning)

	job := queue.Job{Step: queue.StepProcessTurn, DebateID: debate.ID, SeqIndex: 0}
	f.scheduler.Handle(context.Background(), job)
	f.dispatch.jobs = nil // drop the follow-up, redeliver the same step
	f.scheduler.Handle(context.Background(), job)

	turns, _ := f.store.ListTurns(debate.ID)
	if len(turns) != 1 {
		t.Fatalf("redelivery duplicated the turn: got %d turns", len(turns))
	}
	if turns[0].Text != "response 0" {
		t.Errorf("original turn text changed: %q", turns[0].Text)
	}

	// The redelivered run generated again but must not re-announce completion.
	if n := len(f.publisher.ofType("turn_completed")); n != 1 {
		t.Errorf("turn_completed events after redelivery: got %d", n)
	}
}

func TestStartIgnoredForRunningDebate(t *testing.T) {
	f := setup(t)
	debate := f.createDebate(t, false, 1, 1)
	f.store.UpdateStatus(debate.ID, core.StatusRunning)

	f.scheduler.Handle(context.Background(), queue.Job{Step: queue.StepStartDebate, DebateID: debate.ID})

	if len(f.dispatch.jobs) != 0 {
		t.Error("start on a running debate scheduled a second chain")
	}
}

func TestMissingDebatePublishesAbortSignal(t *testing.T) {
	f := setup(t)

	f.scheduler.Handle(context.Background(), queue.Job{Step: queue.StepProcessTurn, DebateID: "ghost", SeqIndex: 0})

	aborted := f.publisher.ofType("chain_aborted")
	if len(aborted) != 1 {
		t.Fatalf("chain_aborted events: got %d", len(aborted))
	}
	if aborted[0].Data["status"] != "missing" {
		t.Errorf("abort status: got %v", aborted[0].Data["status"])
	}
	if len(f.dispatch.jobs) != 0 {
		t.Error("aborted chain scheduled further work")
	}
}
