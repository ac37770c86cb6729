// Package core contains the core domain types for parley.
package core

import (
	"strings"
	"time"
)

// DebateStatus represents the current status of a debate.
type DebateStatus string

const (
	StatusQueued    DebateStatus = "queued"
	StatusRunning   DebateStatus = "running"
	StatusCompleted DebateStatus = "completed"
	StatusError     DebateStatus = "error"
	StatusStopped   DebateStatus = "stopped"
)

// Terminal reports whether the status is final. A debate never re-enters
// running after reaching a terminal status.
func (s DebateStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusStopped
}

// ParticipantRole identifies a participant's function in the debate.
type ParticipantRole string

const (
	RoleModerator ParticipantRole = "moderator"
	RoleDebater   ParticipantRole = "debater"
)

// TurnType classifies a produced turn.
type TurnType string

const (
	TurnModeratorComment TurnType = "moderator_comment"
	TurnArgument         TurnType = "argument"
	TurnVerdict          TurnType = "verdict"
)

// LengthPreset selects a target response length instruction.
type LengthPreset string

const (
	LengthVeryShort LengthPreset = "very_short"
	LengthShort     LengthPreset = "short"
	LengthMedium    LengthPreset = "medium"
	LengthLong      LengthPreset = "long"
)

// Participant is the immutable configuration of one debate voice.
// Exactly zero or one moderator per debate; one or more debaters.
type Participant struct {
	Role        ParticipantRole `json:"role" yaml:"role"`
	ModelID     string          `json:"model_id" yaml:"model_id"`
	DisplayName string          `json:"display_name" yaml:"display_name"`
	Persona     string          `json:"persona,omitempty" yaml:"persona,omitempty"`
	VoiceName   string          `json:"voice_name,omitempty" yaml:"voice_name,omitempty"`
	AvatarURL   string          `json:"avatar_url,omitempty" yaml:"avatar_url,omitempty"`
}

// DebateConfig is the immutable configuration a debate is created with.
type DebateConfig struct {
	Topic        string        `json:"topic" yaml:"topic"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	Language     string        `json:"language" yaml:"language"`
	Participants []Participant `json:"participants" yaml:"participants"`
	LengthPreset LengthPreset  `json:"length_preset" yaml:"length_preset"`
	NumRounds    int           `json:"num_rounds" yaml:"num_rounds"`
	Intensity    int           `json:"intensity" yaml:"intensity"`
}

// Moderator returns the moderator participant, or nil if none is configured.
func (c *DebateConfig) Moderator() *Participant {
	for i := range c.Participants {
		if c.Participants[i].Role == RoleModerator {
			return &c.Participants[i]
		}
	}
	return nil
}

// Debaters returns the debaters in configuration order.
func (c *DebateConfig) Debaters() []Participant {
	var out []Participant
	for _, p := range c.Participants {
		if p.Role == RoleDebater {
			out = append(out, p)
		}
	}
	return out
}

// CycleLength is one full pass through moderator (if present) plus all debaters.
func (c *DebateConfig) CycleLength() int {
	n := len(c.Debaters())
	if c.Moderator() != nil {
		n++
	}
	return n
}

// TotalTurns is the number of regular (non-verdict) turns the debate produces.
func (c *DebateConfig) TotalTurns() int {
	return c.NumRounds * c.CycleLength()
}

// Debate represents one orchestrated multi-turn generation session.
type Debate struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Status    DebateStatus `json:"status"`
	Config    DebateConfig `json:"config"`
	CreatedAt time.Time    `json:"created_at"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
}

// Usage holds token/cost metadata reported by the generation backend.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	Cost             float64 `json:"cost,omitempty"`
}

// Turn is one produced message in a debate. Turns are created exactly once
// per completed generation step and never mutated afterwards.
type Turn struct {
	ID          string    `json:"id"`
	DebateID    string    `json:"debate_id"`
	SeqIndex    int       `json:"seq_index"`
	TurnType    TurnType  `json:"turn_type"`
	SpeakerID   string    `json:"speaker_id"`
	SpeakerName string    `json:"speaker_name"`
	ModelUsed   string    `json:"model_used"`
	Text        string    `json:"text"`
	Error       string    `json:"error,omitempty"`
	WordCount   int       `json:"word_count"`
	Usage       *Usage    `json:"usage,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CountWords returns the whitespace-split token count of s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// DebateSummary is a lightweight representation for listing debates.
type DebateSummary struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Topic     string       `json:"topic"`
	Status    DebateStatus `json:"status"`
	TurnCount int          `json:"turn_count"`
	CreatedAt time.Time    `json:"created_at"`
}

// DefaultTitle derives a debate title from its topic.
func DefaultTitle(topic string) string {
	if len(topic) > 50 {
		topic = topic[:50]
	}
	return "Debate: " + topic
}
