package rollout

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mfateev/agent-rollout/internal/models"
)

// SQLiteStore persists rollouts in a SQLite database, one row per record
// keyed by an autoincrement id. The id doubles as the reverse-read cursor.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLiteStore opens (creating if needed) a rollout database. A nil
// logger falls back to slog.Default().
func OpenSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open rollout database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		logger.Warn("sqlite: failed to enable WAL mode", "error", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		logger.Warn("sqlite: failed to set busy_timeout", "error", err)
	}
	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS rollout_items (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    kind       TEXT NOT NULL,
    payload    TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rollout_items_session ON rollout_items(session_id, id);
`)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append writes items to a session's rollout in log order.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, items ...models.RolloutItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.NewTransientError("sqlite: begin append", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, item := range items {
		line, err := EncodeItem(item)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rollout_items (session_id, kind, payload, created_at) VALUES (?, ?, ?, ?)",
			sessionID, line.Type, string(line.Payload), now); err != nil {
			return models.NewTransientError("sqlite: insert rollout item", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.NewTransientError("sqlite: commit append", err)
	}
	return nil
}

// Source returns a reverse source over one session's rollout.
func (s *SQLiteStore) Source(sessionID string) *SQLiteSource {
	return &SQLiteSource{store: s, sessionID: sessionID}
}

// SQLiteSource implements Source over a SQLiteStore session.
type SQLiteSource struct {
	store     *SQLiteStore
	sessionID string
}

// LoadEarlier implements Source.
func (s *SQLiteSource) LoadEarlier(ctx context.Context, before *Cursor, limit int) (*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewTransientError("sqlite: load cancelled", err)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	var cur *int64
	if before != nil {
		v := int64(*before)
		cur = &v
	}
	for {
		query := "SELECT id, kind, payload FROM rollout_items WHERE session_id = ? ORDER BY id DESC LIMIT ?"
		args := []any{s.sessionID, limit}
		if cur != nil {
			query = "SELECT id, kind, payload FROM rollout_items WHERE session_id = ? AND id < ? ORDER BY id DESC LIMIT ?"
			args = []any{s.sessionID, *cur, limit}
		}

		rows, err := s.store.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, models.NewTransientError("sqlite: query rollout items", err)
		}

		chunk := &Chunk{}
		rawCount := 0
		oldestID := int64(0)
		for rows.Next() {
			var id int64
			var kind, payload string
			if err := rows.Scan(&id, &kind, &payload); err != nil {
				rows.Close()
				return nil, models.NewTransientError("sqlite: scan rollout item", err)
			}
			rawCount++
			oldestID = id
			item, ok, err := DecodeLine(Line{Type: kind, Payload: json.RawMessage(payload)})
			if err != nil {
				rows.Close()
				return nil, err
			}
			if !ok {
				s.store.logger.Debug("skipping rollout record",
					"session_id", s.sessionID, "id", id, "reason", "unknown or non-history kind")
				continue
			}
			chunk.Items = append(chunk.Items, StampedItem{Cursor: Cursor(id), Item: item})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, models.NewTransientError("sqlite: iterate rollout items", err)
		}
		rows.Close()

		chunk.ReachedStart = rawCount < limit
		if chunk.ReachedStart || len(chunk.Items) > 0 {
			return chunk, nil
		}
		// Every row in this page was skipped; keep paging older.
		cur = &oldestID
	}
}
