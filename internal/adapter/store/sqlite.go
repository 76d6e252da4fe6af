// Package store archives captured network traffic in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-json-experiment/json"
	_ "modernc.org/sqlite"

	"devtools-bridge/internal/domain"
)

// TrafficStore keeps network log snapshots keyed by session id.
type TrafficStore struct {
	db *sql.DB
}

// SessionSummary describes one archived session.
type SessionSummary struct {
	ID         string
	Entries    int
	ArchivedAt time.Time
}

// Open opens (or creates) the archive at dbPath and runs the schema
// migration. The parent directory is created when missing.
func Open(dbPath string) (*TrafficStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open traffic db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate traffic db: %w", err)
	}
	return &TrafficStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS traffic (
			session_id  TEXT NOT NULL,
			seq         INTEGER NOT NULL,
			request_id  TEXT NOT NULL,
			method      TEXT NOT NULL DEFAULT '',
			url         TEXT NOT NULL DEFAULT '',
			status      INTEGER,
			request     TEXT NOT NULL DEFAULT '{}',
			response    TEXT,
			started_at  TEXT NOT NULL,
			archived_at TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);

		CREATE INDEX IF NOT EXISTS traffic_url ON traffic(url);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *TrafficStore) Close() error {
	return s.db.Close()
}

// SaveTraffic replaces the archived snapshot for sessionID with entries.
func (s *TrafficStore) SaveTraffic(ctx context.Context, sessionID string, entries []domain.NetworkEntry) error {
	if sessionID == "" {
		return domain.NewDomainError("TrafficStore.SaveTraffic", domain.ErrInvalidInput, "empty session id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM traffic WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO traffic
		(session_id, seq, request_id, method, url, status, request, response, started_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, e := range entries {
		reqJSON, err := json.Marshal(e.Request)
		if err != nil {
			return fmt.Errorf("marshal request %s: %w", e.RequestID, err)
		}
		var status sql.NullInt64
		var respJSON sql.NullString
		if e.Response != nil {
			status = sql.NullInt64{Int64: int64(e.Response.Status), Valid: true}
			b, err := json.Marshal(e.Response)
			if err != nil {
				return fmt.Errorf("marshal response %s: %w", e.RequestID, err)
			}
			respJSON = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID, i, e.RequestID, e.Request.Method, e.Request.URL, status,
			string(reqJSON), respJSON, e.Started.UTC().Format(time.RFC3339Nano), now,
		); err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ListTraffic returns the archived entries of sessionID in capture order.
// An unknown session yields an empty slice.
func (s *TrafficStore) ListTraffic(ctx context.Context, sessionID string) ([]domain.NetworkEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT request_id, request, response, started_at FROM traffic WHERE session_id = ? ORDER BY seq", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.NetworkEntry, 0)
	for rows.Next() {
		var (
			e         domain.NetworkEntry
			reqStr    string
			respStr   sql.NullString
			startedAt string
		)
		if err := rows.Scan(&e.RequestID, &reqStr, &respStr, &startedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(reqStr), &e.Request); err != nil {
			return nil, fmt.Errorf("unmarshal request %s: %w", e.RequestID, err)
		}
		if respStr.Valid {
			e.Response = &domain.NetworkResponse{}
			if err := json.Unmarshal([]byte(respStr.String), e.Response); err != nil {
				return nil, fmt.Errorf("unmarshal response %s: %w", e.RequestID, err)
			}
		}
		e.Started, _ = time.Parse(time.RFC3339Nano, startedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Sessions lists archived sessions, most recent first.
func (s *TrafficStore) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MAX(archived_at)
		FROM traffic GROUP BY session_id ORDER BY MAX(archived_at) DESC, session_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var archived string
		if err := rows.Scan(&sum.ID, &sum.Entries, &archived); err != nil {
			return nil, err
		}
		sum.ArchivedAt, _ = time.Parse(time.RFC3339Nano, archived)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteSession drops every archived entry of sessionID.
func (s *TrafficStore) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM traffic WHERE session_id = ?", sessionID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewDomainError("TrafficStore.DeleteSession", domain.ErrSessionNotFound, sessionID)
	}
	return nil
}
