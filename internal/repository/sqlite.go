package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"agentloop/internal/domain"
	"agentloop/internal/message"
)

const terminalStatuses = `('COMPLETED', 'FAILED', 'TIMED_OUT')`

// SQLiteStore implements SessionStore using SQLite.
type SQLiteStore struct {
	db       *sql.DB
	ttl      time.Duration
	maxBytes int64
}

// NewSQLiteStore opens the database at dsn and applies migrations.
// ttl bounds the age of terminal sessions (zero disables expiry);
// maxBytes bounds the total serialized size (zero disables eviction).
func NewSQLiteStore(dsn string, ttl time.Duration, maxBytes int64) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &SQLiteStore{db: db, ttl: ttl, maxBytes: maxBytes}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			status_cause TEXT,
			iteration_count INTEGER NOT NULL DEFAULT 0,
			confidence REAL,
			messages TEXT NOT NULL,
			pending_approval TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status_updated ON sessions(status, updated_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the session state. Messages are serialized in the canonical
// boundary form so the durable record is the contract other processes read.
func (s *SQLiteStore) Save(ctx context.Context, state *domain.SessionState) error {
	msgData, err := json.Marshal(message.DenormalizeAll(state.Messages))
	if err != nil {
		return fmt.Errorf("failed to serialize messages: %w", err)
	}

	var pending sql.NullString
	if state.PendingApproval != nil {
		data, err := json.Marshal(state.PendingApproval)
		if err != nil {
			return fmt.Errorf("failed to serialize pending approval: %w", err)
		}
		pending = sql.NullString{String: string(data), Valid: true}
	}

	var confidence sql.NullFloat64
	if state.ConfidenceScore != nil {
		confidence = sql.NullFloat64{Float64: *state.ConfidenceScore, Valid: true}
	}

	state.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, status, status_cause, iteration_count, confidence, messages, pending_approval, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			status_cause = excluded.status_cause,
			iteration_count = excluded.iteration_count,
			confidence = excluded.confidence,
			messages = excluded.messages,
			pending_approval = excluded.pending_approval,
			updated_at = excluded.updated_at`,
		state.SessionID, state.Status, nullString(state.StatusCause), state.IterationCount,
		confidence, string(msgData), pending, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if s.maxBytes > 0 {
		if _, err := s.evictOversize(ctx); err != nil {
			return fmt.Errorf("%w: eviction: %v", domain.ErrPersistence, err)
		}
	}
	return nil
}

// Load returns the session state, reconstructed through the canonical
// message converter.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	var state domain.SessionState
	var statusCause, pending sql.NullString
	var confidence sql.NullFloat64
	var msgData string

	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, status, status_cause, iteration_count, confidence, messages, pending_approval, created_at, updated_at
		 FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&state.SessionID, &state.Status, &statusCause, &state.IterationCount,
		&confidence, &msgData, &pending, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if statusCause.Valid {
		state.StatusCause = statusCause.String
	}
	if confidence.Valid {
		c := confidence.Float64
		state.ConfidenceScore = &c
	}

	var raws []map[string]any
	if err := json.Unmarshal([]byte(msgData), &raws); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	msgs, err := message.NormalizeAll(raws)
	if err != nil {
		return nil, fmt.Errorf("failed to restore messages: %w", err)
	}
	state.Messages = msgs

	if pending.Valid {
		var pa domain.PendingApproval
		if err := json.Unmarshal([]byte(pending.String), &pa); err != nil {
			return nil, fmt.Errorf("failed to decode pending approval: %w", err)
		}
		state.PendingApproval = &pa
	}

	state.CreatedAt = state.CreatedAt.UTC()
	state.UpdatedAt = state.UpdatedAt.UTC()
	return &state, nil
}

// Delete removes the session record.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

// ListActive returns ids of sessions whose status is not terminal.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE status NOT IN `+terminalStatuses+` ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Sweep removes expired terminal sessions, then evicts oldest terminal
// sessions until the store fits the size bound. Sessions that are not
// terminal (including AWAITING_APPROVAL) are never removed.
func (s *SQLiteStore) Sweep(ctx context.Context) (int, error) {
	removed := 0

	if s.ttl > 0 {
		cutoff := time.Now().UTC().Add(-s.ttl)
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM sessions WHERE status IN `+terminalStatuses+` AND updated_at < ?`, cutoff)
		if err != nil {
			return removed, fmt.Errorf("%w: expiry: %v", domain.ErrPersistence, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			removed += int(n)
		}
	}

	if s.maxBytes > 0 {
		n, err := s.evictOversize(ctx)
		if err != nil {
			return removed, fmt.Errorf("%w: eviction: %v", domain.ErrPersistence, err)
		}
		removed += n
	}
	return removed, nil
}

func (s *SQLiteStore) evictOversize(ctx context.Context) (int, error) {
	evicted := 0
	for {
		total, err := s.totalBytes(ctx)
		if err != nil {
			return evicted, err
		}
		if total <= s.maxBytes {
			return evicted, nil
		}

		var victim string
		err = s.db.QueryRowContext(ctx,
			`SELECT session_id FROM sessions WHERE status IN `+terminalStatuses+` ORDER BY updated_at ASC LIMIT 1`).Scan(&victim)
		if err == sql.ErrNoRows {
			// Only active sessions left; the bound is allowed to overshoot
			// rather than evicting live work.
			return evicted, nil
		}
		if err != nil {
			return evicted, err
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, victim); err != nil {
			return evicted, err
		}
		evicted++
	}
}

func (s *SQLiteStore) totalBytes(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(messages) + COALESCE(LENGTH(pending_approval), 0)), 0) FROM sessions`).Scan(&total)
	return total, err
}

// Stats reports store totals.
func (s *SQLiteStore) Stats(ctx context.Context) (domain.StoreStats, error) {
	var stats domain.StoreStats
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&stats.Sessions)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE status NOT IN `+terminalStatuses).Scan(&stats.Active)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	stats.Bytes, err = s.totalBytes(ctx)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return stats, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
