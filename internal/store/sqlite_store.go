package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store in a single SQLite database. Traces stay as
// JSONL files in the database's directory, so DeleteCheckpoint removes both.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Init opens the database and creates the schema. It is idempotent.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// One writer at a time; the pure Go driver reports SQLITE_BUSY otherwise.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func (s *SQLiteStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	return s.SaveCheckpointContext(context.Background(), jobID, checkpoint)
}

// SaveCheckpointContext upserts the checkpoint row for jobID.
func (s *SQLiteStore) SaveCheckpointContext(ctx context.Context, jobID string, checkpoint *Checkpoint) error {
	if err := checkJobID(jobID); err != nil {
		return err
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if err := checkpoint.Validate(); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO checkpoints (job_id, problem, algorithm, best_fitness, iteration, evaluations, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			problem = excluded.problem,
			algorithm = excluded.algorithm,
			best_fitness = excluded.best_fitness,
			iteration = excluded.iteration,
			evaluations = excluded.evaluations,
			updated_at = excluded.updated_at,
			payload = excluded.payload
	`, jobID, checkpoint.Config.Problem, checkpoint.Config.Algorithm, checkpoint.Best.Fitness,
		checkpoint.Iteration, checkpoint.Evaluations, checkpoint.Timestamp.UnixNano(), payload)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", jobID, err)
	}

	slog.Debug("Checkpoint saved", "jobID", jobID, "path", s.path, "fitness", checkpoint.Best.Fitness)
	return nil
}

func (s *SQLiteStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	return s.LoadCheckpointContext(context.Background(), jobID)
}

func (s *SQLiteStore) LoadCheckpointContext(ctx context.Context, jobID string) (*Checkpoint, error) {
	if err := checkJobID(jobID); err != nil {
		return nil, err
	}
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE job_id = ?`, jobID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{JobID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", jobID, err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(payload, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// ListCheckpoints reads metadata from the indexed columns, newest first.
func (s *SQLiteStore) ListCheckpoints() ([]CheckpointInfo, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(context.Background(), `
		SELECT job_id, problem, algorithm, best_fitness, iteration, evaluations, updated_at
		FROM checkpoints
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	infos := []CheckpointInfo{}
	for rows.Next() {
		var (
			info      CheckpointInfo
			updatedAt int64
		)
		if err := rows.Scan(&info.JobID, &info.Problem, &info.Algorithm, &info.BestFitness,
			&info.Iteration, &info.Evaluations, &updatedAt); err != nil {
			return nil, err
		}
		info.Timestamp = time.Unix(0, updatedAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) DeleteCheckpoint(jobID string) error {
	if err := checkJobID(jobID); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(context.Background(), `DELETE FROM checkpoints WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", jobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{JobID: jobID}
	}
	return DeleteTrace(filepath.Dir(s.path), jobID)
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			job_id TEXT PRIMARY KEY,
			problem TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			best_fitness REAL NOT NULL,
			iteration INTEGER NOT NULL,
			evaluations INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS checkpoints_updated_at ON checkpoints (updated_at);
	`)
	return err
}
