package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/agentcore/nexus/pkg/models"
)

// SQLiteStore is a durable EventStore backed by modernc.org/sqlite, a
// pure-Go sqlite driver chosen over a cgo driver so this module builds
// without a C toolchain. Each event is stored as a JSON blob keyed by
// (conversation_id, seq); the table grows append-only.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a SQLiteStore at path.
// Use ":memory:" for an ephemeral in-process database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
	conversation_id TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	payload         TEXT NOT NULL,
	PRIMARY KEY (conversation_id, seq)
);
`

func (s *SQLiteStore) Append(ctx context.Context, conversationID string, ev models.Event) (models.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Event{}, err
	}
	defer tx.Rollback()

	var next int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq) + 1, 0) FROM events WHERE conversation_id = ?`, conversationID)
	if err := row.Scan(&next); err != nil {
		return models.Event{}, fmt.Errorf("store: next seq: %w", err)
	}

	ev.ConversationID = conversationID
	ev.Seq = next

	payload, err := json.Marshal(ev)
	if err != nil {
		return models.Event{}, fmt.Errorf("store: marshal event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO events (conversation_id, seq, payload) VALUES (?, ?, ?)`, conversationID, next, string(payload)); err != nil {
		return models.Event{}, fmt.Errorf("store: insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

func (s *SQLiteStore) Load(ctx context.Context, conversationID string) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM events WHERE conversation_id = ? ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("store: unmarshal event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *SQLiteStore) View(ctx context.Context, conversationID string) (models.View, error) {
	log, err := s.Load(ctx, conversationID)
	if err != nil {
		return models.View{}, err
	}
	return models.ViewForLLM(log), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
