// Package store archives completed debate sessions in sqlite so they stay
// listable and inspectable after the process exits.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore implements core.SessionStore over a WAL-mode sqlite file.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and if needed creates) the archive database.
func New(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// Save upserts a session by ID. The full session document is stored as
// JSON with a checksum alongside the indexed listing columns.
func (s *SQLiteStore) Save(ctx context.Context, session *core.DebateSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	document, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	sum := sha256.Sum256(document)

	var completedAt interface{}
	if session.Metadata.CompletedAt != nil {
		completedAt = session.Metadata.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	var verdictSource, verdictPosition interface{}
	if session.FinalVerdict != nil {
		verdictSource = string(session.FinalVerdict.Source)
		verdictPosition = session.FinalVerdict.PositionID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, topic, phase, started_at, completed_at,
			total_tokens, verdict_source, verdict_position,
			document, checksum, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic = excluded.topic,
			phase = excluded.phase,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			total_tokens = excluded.total_tokens,
			verdict_source = excluded.verdict_source,
			verdict_position = excluded.verdict_position,
			document = excluded.document,
			checksum = excluded.checksum,
			updated_at = excluded.updated_at
	`,
		session.ID, session.Topic, string(session.Phase),
		session.Metadata.StartedAt.UTC().Format(time.RFC3339Nano), completedAt,
		session.Metadata.TotalTokens, verdictSource, verdictPosition,
		string(document), hex.EncodeToString(sum[:]),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// Load retrieves a session by ID. Missing sessions return nil, nil.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*core.DebateSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var document, checksum string
	err := s.db.QueryRowContext(ctx,
		"SELECT document, checksum FROM sessions WHERE id = ?", id,
	).Scan(&document, &checksum)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	sum := sha256.Sum256([]byte(document))
	if hex.EncodeToString(sum[:]) != checksum {
		return nil, core.ErrIntegrity(core.CodeHashMismatch,
			fmt.Sprintf("archived session %s fails its checksum", id))
	}

	var session core.DebateSession
	if err := json.Unmarshal([]byte(document), &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &session, nil
}

// List returns summaries of all archived sessions, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]core.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, phase, started_at, completed_at, total_tokens, verdict_source
		FROM sessions ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	summaries := make([]core.SessionSummary, 0)
	for rows.Next() {
		var (
			summary     core.SessionSummary
			phase       string
			startedAt   string
			completedAt sql.NullString
			verdict     sql.NullString
		)
		if err := rows.Scan(&summary.ID, &summary.Topic, &phase, &startedAt,
			&completedAt, &summary.TotalTokens, &verdict); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		summary.Phase = core.Phase(phase)
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			summary.StartedAt = t
		}
		if completedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
				summary.CompletedAt = &t
			}
		}
		if verdict.Valid {
			summary.Verdict = verdict.String
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// Delete removes a session; deleting a missing session is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Ensure SQLiteStore implements core.SessionStore.
var _ core.SessionStore = (*SQLiteStore)(nil)
