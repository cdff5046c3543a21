// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session persists generation sessions and their attempt history.
// Every session owns a private scratch directory so concurrent sessions
// never share script or artifact paths.
// Implements: prd004-sessions (R1-R4); docs/ARCHITECTURE § Sessions.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/cad-engine/pkg/types"
)

// ErrNotFound is returned by Get when no session has the requested ID.
var ErrNotFound = errors.New("session not found")

const (
	sessionsDir  = "sessions"
	dbFile       = "cad-engine.db"
	scriptFile   = "model.py"
	artifactFile = "output.stl"
)

// ScriptPath returns the session's persisted script location.
func ScriptPath(s *types.Session) string {
	return filepath.Join(s.ScratchDir, scriptFile)
}

// ArtifactPath returns the session's expected output artifact location.
// Scripts export to a relative "output.stl"; the runner sets the working
// directory to the scratch dir so the artifact lands here.
func ArtifactPath(s *types.Session) string {
	return filepath.Join(s.ScratchDir, artifactFile)
}

// Store manages the session registry SQLite database.
type Store struct {
	db      *sql.DB
	dataDir string
}

// Open opens or creates the registry database at dataDir/cad-engine.db and
// creates the schema if it does not exist (R1.2).
func Open(cfg types.SessionConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dataDir: cfg.DataDir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			scratch_dir TEXT NOT NULL,
			request TEXT,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			seq INTEGER NOT NULL,
			op TEXT NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER,
			stderr TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Create registers a new session with a fresh private scratch directory
// under dataDir/sessions/<id>/ (R1.1).
func (s *Store) Create(ctx context.Context, request string) (*types.Session, error) {
	id := uuid.NewString()
	scratch := filepath.Join(s.dataDir, sessionsDir, id)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}

	now := time.Now().UTC()
	sess := &types.Session{
		ID:         id,
		ScratchDir: scratch,
		Request:    request,
		Status:     types.SessionNew,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, scratch_dir, request, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ScratchDir, sess.Request, sess.Status,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return sess, nil
}

// Get returns the session with the given ID, or an error when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, scratch_dir, request, status, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

// Latest returns the most recently updated session, or nil when the
// registry is empty. The iterate CLI defaults to this session.
func (s *Store) Latest(ctx context.Context) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, scratch_dir, request, status, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC LIMIT 1`)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

// List returns all sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]types.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scratch_dir, request, status, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// SetStatus updates a session's status and bumps its updated_at timestamp (R2.1).
func (s *Store) SetStatus(ctx context.Context, id string, status types.SessionStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("updating session status: %w", err)
	}
	return nil
}

// RecordAttempt appends one attempt record to the session's history (R3.1).
func (s *Store) RecordAttempt(ctx context.Context, att types.Attempt) error {
	created := att.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (session_id, seq, op, status, exit_code, stderr, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		att.SessionID, att.Seq, att.Op, att.Status, att.ExitCode, att.Stderr,
		created.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting attempt: %w", err)
	}
	return nil
}

// Attempts returns a session's attempt history in order.
func (s *Store) Attempts(ctx context.Context, sessionID string) ([]types.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, seq, op, status, exit_code, stderr, created_at
		 FROM attempts WHERE session_id = ? ORDER BY seq, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer rows.Close()

	var attempts []types.Attempt
	for rows.Next() {
		var att types.Attempt
		var created string
		if err := rows.Scan(&att.SessionID, &att.Seq, &att.Op, &att.Status,
			&att.ExitCode, &att.Stderr, &created); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		att.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		attempts = append(attempts, att)
	}
	return attempts, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var sess types.Session
	var created, updated string
	if err := row.Scan(&sess.ID, &sess.ScratchDir, &sess.Request, &sess.Status,
		&created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &sess, nil
}
