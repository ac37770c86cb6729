package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alienxp03/parley/internal/core"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &SQLiteStorage{
		db:   db,
		path: dbPath,
	}, nil
}

// Initialize creates the database schema.
func (s *SQLiteStorage) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS debates (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		config_json TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		ended_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		debate_id TEXT NOT NULL,
		seq_index INTEGER NOT NULL,
		turn_type TEXT NOT NULL,
		speaker_id TEXT NOT NULL,
		speaker_name TEXT NOT NULL,
		model_used TEXT NOT NULL,
		text TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		word_count INTEGER NOT NULL DEFAULT 0,
		usage_json TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (debate_id) REFERENCES debates(id) ON DELETE CASCADE,
		UNIQUE (debate_id, seq_index)
	);

	CREATE INDEX IF NOT EXISTS idx_turns_debate_id ON turns(debate_id);
	CREATE INDEX IF NOT EXISTS idx_debates_status ON debates(status);
	CREATE INDEX IF NOT EXISTS idx_debates_created_at ON debates(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateDebate creates a new debate.
func (s *SQLiteStorage) CreateDebate(debate *core.Debate) error {
	configJSON, err := json.Marshal(debate.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
	INSERT INTO debates (id, title, status, config_json, created_at, started_at, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		debate.ID,
		debate.Title,
		debate.Status,
		string(configJSON),
		debate.CreatedAt,
		debate.StartedAt,
		debate.EndedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert debate: %w", err)
	}

	return nil
}

// GetDebate retrieves a debate by ID.
func (s *SQLiteStorage) GetDebate(id string) (*core.Debate, error) {
	query := `
	SELECT id, title, status, config_json, created_at, started_at, ended_at
	FROM debates
	WHERE id = ?
	`

	var debate core.Debate
	var configJSON string
	var startedAt, endedAt sql.NullTime

	err := s.db.QueryRow(query, id).Scan(
		&debate.ID,
		&debate.Title,
		&debate.Status,
		&configJSON,
		&debate.CreatedAt,
		&startedAt,
		&endedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get debate: %w", err)
	}

	if err := json.Unmarshal([]byte(configJSON), &debate.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if startedAt.Valid {
		debate.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		debate.EndedAt = &endedAt.Time
	}

	return &debate, nil
}

// UpdateStatus sets the debate status and stamps the matching timestamp:
// started_at when entering running, ended_at when entering a terminal status.
func (s *SQLiteStorage) UpdateStatus(id string, status core.DebateStatus) error {
	now := time.Now()

	var query string
	switch {
	case status == core.StatusRunning:
		query = `UPDATE debates SET status = ?, started_at = ? WHERE id = ?`
	case status.Terminal():
		query = `UPDATE debates SET status = ?, ended_at = ? WHERE id = ?`
	default:
		_, err := s.db.Exec(`UPDATE debates SET status = ? WHERE id = ?`, status, id)
		if err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		return nil
	}

	if _, err := s.db.Exec(query, status, now, id); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	return nil
}

// DeleteDebate deletes a debate and its turns.
func (s *SQLiteStorage) DeleteDebate(id string) error {
	_, err := s.db.Exec("DELETE FROM debates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete debate: %w", err)
	}
	return nil
}

// ListDebates returns a list of debate summaries, newest first.
func (s *SQLiteStorage) ListDebates(limit, offset int) ([]*core.DebateSummary, error) {
	query := `
	SELECT d.id, d.title, d.status, d.config_json, d.created_at,
		   (SELECT COUNT(*) FROM turns WHERE debate_id = d.id) as turn_count
	FROM debates d
	ORDER BY d.created_at DESC
	LIMIT ? OFFSET ?
	`

	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list debates: %w", err)
	}
	defer rows.Close()

	var summaries []*core.DebateSummary
	for rows.Next() {
		var summary core.DebateSummary
		var configJSON string

		err := rows.Scan(
			&summary.ID,
			&summary.Title,
			&summary.Status,
			&configJSON,
			&summary.CreatedAt,
			&summary.TurnCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debate summary: %w", err)
		}

		var config core.DebateConfig
		if err := json.Unmarshal([]byte(configJSON), &config); err == nil {
			summary.Topic = config.Topic
		}

		summaries = append(summaries, &summary)
	}

	return summaries, rows.Err()
}

// AppendTurn inserts a turn if no turn exists for its (debate_id, seq_index).
// Returns false when the slot was already taken, which makes a redelivered
// turn step a no-op at the persistence layer.
func (s *SQLiteStorage) AppendTurn(turn *core.Turn) (bool, error) {
	var usageJSON sql.NullString
	if turn.Usage != nil {
		data, err := json.Marshal(turn.Usage)
		if err != nil {
			return false, fmt.Errorf("failed to marshal usage: %w", err)
		}
		usageJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
	INSERT OR IGNORE INTO turns (id, debate_id, seq_index, turn_type, speaker_id, speaker_name, model_used, text, error, word_count, usage_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.Exec(query,
		turn.ID,
		turn.DebateID,
		turn.SeqIndex,
		turn.TurnType,
		turn.SpeakerID,
		turn.SpeakerName,
		turn.ModelUsed,
		turn.Text,
		turn.Error,
		turn.WordCount,
		usageJSON,
		turn.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert turn: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return n > 0, nil
}

// ListTurns returns all turns for a debate ordered by seq_index.
func (s *SQLiteStorage) ListTurns(debateID string) ([]*core.Turn, error) {
	query := `
	SELECT id, debate_id, seq_index, turn_type, speaker_id, speaker_name, model_used, text, error, word_count, usage_json, created_at
	FROM turns
	WHERE debate_id = ?
	ORDER BY seq_index ASC
	`

	rows, err := s.db.Query(query, debateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get turns: %w", err)
	}
	defer rows.Close()

	var turns []*core.Turn
	for rows.Next() {
		var turn core.Turn
		var usageJSON sql.NullString
		err := rows.Scan(
			&turn.ID,
			&turn.DebateID,
			&turn.SeqIndex,
			&turn.TurnType,
			&turn.SpeakerID,
			&turn.SpeakerName,
			&turn.ModelUsed,
			&turn.Text,
			&turn.Error,
			&turn.WordCount,
			&usageJSON,
			&turn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}

		if usageJSON.Valid {
			var usage core.Usage
			if err := json.Unmarshal([]byte(usageJSON.String), &usage); err == nil {
				turn.Usage = &usage
			}
		}

		turns = append(turns, &turn)
	}

	return turns, rows.Err()
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "parley.db"
	}
	return filepath.Join(home, ".parley", "parley.db")
}
