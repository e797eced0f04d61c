// Package journal keeps the history of chains in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aimat-lab/AutoSlurm/internal/chain"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
	_ "modernc.org/sqlite"
)

// timeLayout sorts lexicographically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is a SQLite-backed chain journal.
type Store struct{ db *sql.DB }

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.Close()
}

// ChainRecord is one row of the chain history.
type ChainRecord struct {
	ID          string
	Template    string
	Tasks       int
	MaxResumes  chain.ResumeLimit
	DryRun      bool
	Started     time.Time
	Finished    time.Time // zero while the chain is running or was interrupted
	State       string
	Generations int
	Status      *int
	Error       string
}

// JobRecord is one submitted (or failed) job of a chain.
type JobRecord struct {
	Generation int
	Batch      int
	JobID      string
	ScriptPath string
	Slots      []int
	Units      int
	Error      string
}

// Recorder returns a chain.Recorder writing into the store.
func (s *Store) Recorder() *Recorder {
	return &Recorder{store: s}
}

// Recent returns the latest n chains, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]ChainRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, template, tasks, max_resumes, dry_run, started_at,
		       COALESCE(finished_at, ''), state, generations, status, COALESCE(error, '')
		FROM chains ORDER BY started_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	defer rows.Close()

	var out []ChainRecord
	for rows.Next() {
		var (
			rec               ChainRecord
			maxResumes        int
			dryRun            int
			started, finished string
			status            sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.Template, &rec.Tasks, &maxResumes, &dryRun, &started,
			&finished, &rec.State, &rec.Generations, &status, &rec.Error); err != nil {
			return nil, err
		}
		rec.MaxResumes = chain.ResumeLimit(maxResumes)
		rec.DryRun = dryRun != 0
		rec.Started = parseTime(started)
		rec.Finished = parseTime(finished)
		if status.Valid {
			v := int(status.Int64)
			rec.Status = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Jobs returns the jobs of a chain in submission order.
func (s *Store) Jobs(ctx context.Context, chainID string) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT generation, batch, COALESCE(job_id, ''), COALESCE(script_path, ''), slots, units, COALESCE(error, '')
		FROM jobs WHERE chain_id = ? ORDER BY generation, batch`, chainID)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var rec JobRecord
		var slots string
		if err := rows.Scan(&rec.Generation, &rec.Batch, &rec.JobID, &rec.ScriptPath, &slots, &rec.Units, &rec.Error); err != nil {
			return nil, err
		}
		rec.Slots = splitInts(slots)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, p := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}
