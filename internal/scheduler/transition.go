package scheduler

import (
	"github.com/alienxp03/parley/internal/core"
	"github.com/alienxp03/parley/internal/queue"
)

// Assignment is the outcome of routing one turn index to a speaker.
type Assignment struct {
	Speaker  core.Participant
	TurnType core.TurnType
}

// AssignSpeaker computes who speaks at turn index i. The rotation is a strict
// round-robin: the moderator (if present) opens every cycle, then each
// debater once per cycle, in configuration order.
func AssignSpeaker(config *core.DebateConfig, i int) Assignment {
	debaters := config.Debaters()
	moderator := config.Moderator()

	cycle := len(debaters)
	if moderator != nil {
		cycle++
	}
	pos := i % cycle

	if moderator != nil {
		if pos == 0 {
			return Assignment{Speaker: *moderator, TurnType: core.TurnModeratorComment}
		}
		return Assignment{Speaker: debaters[(pos-1)%len(debaters)], TurnType: core.TurnArgument}
	}
	return Assignment{Speaker: debaters[pos%len(debaters)], TurnType: core.TurnArgument}
}

// Action is what a step does with its index before scheduling a successor.
type Action int

const (
	// ActionBegin marks the debate running and starts the chain.
	ActionBegin Action = iota
	// ActionRunTurn generates and persists a regular turn at the index.
	ActionRunTurn
	// ActionRouteVerdict does no generation; the index is past the last
	// regular turn and routes to the verdict step.
	ActionRouteVerdict
	// ActionRunVerdict generates and persists the single verdict turn.
	ActionRunVerdict
	// ActionComplete marks the debate completed; the chain ends.
	ActionComplete
)

// Transition couples a step's action with the job it schedules afterwards.
// Nil Next ends the chain.
type Transition struct {
	Action Action
	Next   *queue.Job
}

// Plan is the state-transition table for a debate chain: given the step being
// executed and its turn index, it returns the action to take and the exact
// next job. All sequencing and termination decisions live here so they can be
// verified in one place; the step executors only carry them out.
func Plan(step queue.Step, config *core.DebateConfig, debateID string, i int) Transition {
	switch step {
	case queue.StepStartDebate:
		return Transition{
			Action: ActionBegin,
			Next:   &queue.Job{Step: queue.StepProcessTurn, DebateID: debateID, SeqIndex: 0},
		}

	case queue.StepProcessTurn:
		// The single termination gate: no regular turn at or past the total.
		if i >= config.TotalTurns() {
			return Transition{
				Action: ActionRouteVerdict,
				Next:   &queue.Job{Step: queue.StepConductVerdict, DebateID: debateID, SeqIndex: i},
			}
		}
		return Transition{
			Action: ActionRunTurn,
			Next:   &queue.Job{Step: queue.StepProcessTurn, DebateID: debateID, SeqIndex: i + 1},
		}

	case queue.StepConductVerdict:
		return Transition{
			Action: ActionRunVerdict,
			Next:   &queue.Job{Step: queue.StepFinishDebate, DebateID: debateID, SeqIndex: i},
		}

	default: // queue.StepFinishDebate
		return Transition{Action: ActionComplete}
	}
}
