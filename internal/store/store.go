// Package store persists jobs, tree snapshots, and emitted artifacts in
// sqlite. Snapshots are versioned per job, one per completed stage, so a
// run can be inspected or resumed from its last good state.
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mathatom/internal/doctree"
	"mathatom/internal/emit"
)

//go:embed schema.sql
var schema string

// Store handles database operations.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and applies the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Snapshot writes from concurrent jobs serialize on a single
	// connection; sqlite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// JobRecord is the persisted job summary.
type JobRecord struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveJob inserts or updates a job record.
func (s *Store) SaveJob(rec JobRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, filename, stage, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET stage = excluded.stage,
			error = excluded.error, updated_at = excluded.updated_at
	`, rec.ID, rec.Filename, rec.Stage, rec.Error, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// GetJob retrieves one job record.
func (s *Store) GetJob(id string) (*JobRecord, error) {
	var rec JobRecord
	err := s.db.QueryRow(
		"SELECT id, filename, stage, error, created_at, updated_at FROM jobs WHERE id = ?",
		id,
	).Scan(&rec.ID, &rec.Filename, &rec.Stage, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &rec, nil
}

// ListJobs returns recent jobs, newest first.
func (s *Store) ListJobs(limit int) ([]JobRecord, error) {
	rows, err := s.db.Query(
		"SELECT id, filename, stage, error, created_at, updated_at FROM jobs ORDER BY created_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var recs []JobRecord
	for rows.Next() {
		var rec JobRecord
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.Stage, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SaveSnapshot stores the tree as the job's next snapshot version and
// returns that version.
func (s *Store) SaveSnapshot(jobID, stage string, tree *doctree.Tree) (int, error) {
	blob, err := json.Marshal(tree.Root)
	if err != nil {
		return 0, fmt.Errorf("marshal tree: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(version), 0) + 1 FROM snapshots WHERE job_id = ?", jobID,
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("next snapshot version: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO snapshots (job_id, version, stage, tree, created_at) VALUES (?, ?, ?, ?, ?)",
		jobID, version, stage, string(blob), time.Now(),
	); err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit snapshot: %w", err)
	}
	return version, nil
}

// LatestSnapshot loads the job's most recent snapshot.
func (s *Store) LatestSnapshot(jobID string) (stage string, tree *doctree.Tree, err error) {
	var blob string
	err = s.db.QueryRow(
		"SELECT stage, tree FROM snapshots WHERE job_id = ? ORDER BY version DESC LIMIT 1",
		jobID,
	).Scan(&stage, &blob)
	if err != nil {
		return "", nil, fmt.Errorf("latest snapshot: %w", err)
	}

	var root doctree.Node
	if err := json.Unmarshal([]byte(blob), &root); err != nil {
		return "", nil, fmt.Errorf("unmarshal tree: %w", err)
	}
	tree, err = doctree.New(&root)
	if err != nil {
		return "", nil, fmt.Errorf("rebuild tree: %w", err)
	}
	return stage, tree, nil
}

// SaveArtifacts replaces the job's artifacts with the given set.
func (s *Store) SaveArtifacts(jobID string, arts []emit.Artifact) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin artifacts: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM artifacts WHERE job_id = ?", jobID); err != nil {
		return fmt.Errorf("clear artifacts: %w", err)
	}
	for _, a := range arts {
		if _, err := tx.Exec(
			"INSERT INTO artifacts (job_id, path, content) VALUES (?, ?, ?)",
			jobID, a.Path, a.Content,
		); err != nil {
			return fmt.Errorf("insert artifact %s: %w", a.Path, err)
		}
	}
	return tx.Commit()
}

// ListArtifacts returns the job's artifacts ordered by path.
func (s *Store) ListArtifacts(jobID string) ([]emit.Artifact, error) {
	rows, err := s.db.Query(
		"SELECT path, content FROM artifacts WHERE job_id = ? ORDER BY path",
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var arts []emit.Artifact
	for rows.Next() {
		var a emit.Artifact
		if err := rows.Scan(&a.Path, &a.Content); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		arts = append(arts, a)
	}
	return arts, rows.Err()
}

// GetArtifact returns one artifact by path.
func (s *Store) GetArtifact(jobID, path string) (*emit.Artifact, error) {
	var a emit.Artifact
	err := s.db.QueryRow(
		"SELECT path, content FROM artifacts WHERE job_id = ? AND path = ?",
		jobID, path,
	).Scan(&a.Path, &a.Content)
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return &a, nil
}

// DeleteJob removes a job and all of its snapshots and artifacts.
func (s *Store) DeleteJob(jobID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM artifacts WHERE job_id = ?",
		"DELETE FROM snapshots WHERE job_id = ?",
		"DELETE FROM jobs WHERE id = ?",
	} {
		if _, err := tx.Exec(q, jobID); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
	}
	return tx.Commit()
}
