package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver with CGO
)

// Journal records every generation a session performs
type Journal struct {
	db *sql.DB
}

// JournalEntry is one recorded operation
type JournalEntry struct {
	ID          string
	SessionID   string
	Operation   string // "data" or "plot"
	Instruction string
	Code        string
	Calls       int
	Terminated  bool
	Outcome     string // "ok" or the error kind
	Error       string
	StartedAt   time.Time
	Duration    time.Duration
}

// OpenJournal opens the journal database. An empty dsn keeps it in memory.
func OpenJournal(dsn string) (*Journal, error) {
	if dsn == "" {
		dsn = ":memory:"
	} else {
		dsn += "?_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// in-memory databases vanish with their last connection
	db.SetMaxOpenConns(1)

	if err := initJournalSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func initJournalSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS generations (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		instruction TEXT NOT NULL,
		code TEXT,
		calls INTEGER NOT NULL,
		terminated INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_generations_session ON generations(session_id, started_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// Record stores an entry, assigning an ID when it has none
func (j *Journal) Record(ctx context.Context, e *JournalEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO generations
			(id, session_id, operation, instruction, code, calls, terminated, outcome, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Operation, e.Instruction, e.Code, e.Calls, e.Terminated,
		e.Outcome, e.Error, e.StartedAt.UnixNano(), e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record generation: %w", err)
	}
	return nil
}

// Recent returns up to limit entries of a session, newest first
func (j *Journal) Recent(ctx context.Context, sessionID string, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session_id, operation, instruction, code, calls, terminated, outcome, error, started_at, duration_ms
		FROM generations
		WHERE session_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []JournalEntry
	for rows.Next() {
		var (
			e          JournalEntry
			code, msg  sql.NullString
			startedAt  int64
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Operation, &e.Instruction, &code, &e.Calls,
			&e.Terminated, &e.Outcome, &msg, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.Code = code.String
		e.Error = msg.String
		e.StartedAt = time.Unix(0, startedAt)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}
