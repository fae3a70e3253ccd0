// Package checkpoint persists workflow state snapshots to SQLite so a
// suspended or crashed run can resume from its last good step.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite" // SQLite driver

	"contentflow/pkg/logx"
	"contentflow/pkg/state"
	"contentflow/pkg/utils"
)

// Reason records why a snapshot was taken.
type Reason string

const (
	// ReasonStep is a routine post-stage snapshot.
	ReasonStep Reason = "step"
	// ReasonSuspend marks a human-in-the-loop pause.
	ReasonSuspend Reason = "suspend"
	// ReasonFinal marks workflow completion.
	ReasonFinal Reason = "final"
)

// ErrNotFound is returned when a thread has no checkpoints.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is one stored snapshot.
type Checkpoint struct {
	ID        string
	ThreadID  string
	Stage     state.Stage
	Reason    Reason
	Question  string
	Key       string
	State     *state.State
	CreatedAt time.Time
}

// Store is an instance-scoped checkpoint database. Construct one per
// process and inject it; there is no package-level connection.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

const schemaVersion = 1

// Open opens (or creates) the checkpoint database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping checkpoint database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logx.NewLogger("checkpoint")}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		version = 0
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version == schemaVersion {
		return nil
	}
	if version > schemaVersion {
		return fmt.Errorf("checkpoint database is version %d, newer than supported %d", version, schemaVersion)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			id         TEXT PRIMARY KEY,
			thread_id  TEXT NOT NULL,
			stage      TEXT NOT NULL,
			reason     TEXT NOT NULL,
			question   TEXT NOT NULL DEFAULT '',
			q_key      TEXT NOT NULL DEFAULT '',
			hash       TEXT NOT NULL,
			snapshot   BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_thread
			ON checkpoints(thread_id, created_at);
	`); err != nil {
		return fmt.Errorf("failed to create checkpoint schema: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("failed to reset schema version: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}
	return nil
}

// Save snapshots the state. Identical consecutive snapshots for a thread
// are deduplicated by content hash; the stored checkpoint ID is returned
// either way.
func (s *Store) Save(ctx context.Context, st *state.State, reason Reason, question, key string) (string, error) {
	snapshot, err := msgpack.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to encode state snapshot: %w", err)
	}
	sum := blake3.Sum256(snapshot)
	hash := hex.EncodeToString(sum[:])

	var lastID, lastHash string
	err = s.db.QueryRowContext(ctx, `
		SELECT id, hash FROM checkpoints
		WHERE thread_id = ?
		ORDER BY id DESC LIMIT 1`, st.ThreadID).Scan(&lastID, &lastHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read latest checkpoint: %w", err)
	}
	if lastHash == hash && reason == ReasonStep {
		s.logger.Debug("state unchanged, reusing checkpoint %s", lastID)
		return lastID, nil
	}

	id := utils.NewCheckpointID()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, thread_id, stage, reason, question, q_key, hash, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, st.ThreadID, string(st.CurrentStage), string(reason), question, key, hash, snapshot,
		time.Now().UTC(),
	); err != nil {
		return "", fmt.Errorf("failed to insert checkpoint: %w", err)
	}

	s.logger.Debug("saved checkpoint %s for %s (%s)", id, st.ThreadID, reason)
	return id, nil
}

// LoadLatest returns the newest checkpoint for a thread.
func (s *Store) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, stage, reason, question, q_key, snapshot, created_at
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY id DESC LIMIT 1`, threadID)
	return scanCheckpoint(row)
}

// Load returns one checkpoint by ID.
func (s *Store) Load(ctx context.Context, id string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, stage, reason, question, q_key, snapshot, created_at
		FROM checkpoints
		WHERE id = ?`, id)
	return scanCheckpoint(row)
}

func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	var cp Checkpoint
	var stage, reason string
	var snapshot []byte
	err := row.Scan(&cp.ID, &cp.ThreadID, &stage, &reason, &cp.Question, &cp.Key, &snapshot, &cp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	cp.Stage = state.Stage(stage)
	cp.Reason = Reason(reason)

	var st state.State
	if err := msgpack.Unmarshal(snapshot, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state snapshot: %w", err)
	}
	cp.State = &st
	return &cp, nil
}

// ListThreads returns thread IDs with at least one checkpoint, newest first.
func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id FROM checkpoints
		GROUP BY thread_id
		ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan thread id: %w", err)
		}
		threads = append(threads, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threads: %w", err)
	}
	return threads, nil
}

// GC keeps the newest keep checkpoints per thread and deletes the rest.
func (s *Store) GC(ctx context.Context, threadID string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE thread_id = ? AND id NOT IN (
			SELECT id FROM checkpoints
			WHERE thread_id = ?
			ORDER BY id DESC LIMIT ?
		)`, threadID, threadID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint database: %w", err)
	}
	return nil
}
