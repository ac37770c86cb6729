// Package storage provides persistence for debate sessions.
package storage

import (
	"github.com/alienxp03/parley/internal/core"
)

// Storage defines the interface for debate persistence.
//
// GetDebate returns (nil, nil) when the debate does not exist. AppendTurn is
// insert-if-absent on (debate_id, seq_index) so a redelivered turn step never
// produces a duplicate record.
type Storage interface {
	// Initialize sets up the storage (creates tables, etc.)
	Initialize() error

	// Close closes the storage connection.
	Close() error

	// Debate operations
	CreateDebate(debate *core.Debate) error
	GetDebate(id string) (*core.Debate, error)
	UpdateStatus(id string, status core.DebateStatus) error
	DeleteDebate(id string) error
	ListDebates(limit, offset int) ([]*core.DebateSummary, error)

	// Turn operations
	AppendTurn(turn *core.Turn) (inserted bool, err error)
	ListTurns(debateID string) ([]*core.Turn, error)
}
