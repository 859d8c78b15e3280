package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRunNotFound indicates no run has the requested ID.
var ErrRunNotFound = errors.New("store: run not found")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one experiment execution.
type Run struct {
	ID            string     `json:"id"`
	Graph         string     `json:"graph"`
	ConfigPath    string     `json:"config_path"`
	ParamsPath    string     `json:"params_path"`
	SubParamsPath string     `json:"sub_params_path"`
	ConfigHash    string     `json:"config_hash"`
	OutputPath    string     `json:"output_path"`
	Status        Status     `json:"status"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Metric is one numeric value of a metrics row.
type Metric struct {
	RunID string  `json:"run_id"`
	Role  string  `json:"role"`
	Rep   int     `json:"rep"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Graph  string
	Status Status
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// BeginRun records a run in the running state.
func (s *Store) BeginRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, graph, config_path, params_path, sub_params_path, config_hash, output_path, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Graph,
		r.ConfigPath,
		r.ParamsPath,
		r.SubParamsPath,
		r.ConfigHash,
		r.OutputPath,
		string(StatusRunning),
		r.StartedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun sets the final status of a running run. errMsg is stored for
// failed runs.
func (s *Store) FinishRun(ctx context.Context, id string, status Status, errMsg string, at time.Time) error {
	if status != StatusSucceeded && status != StatusFailed {
		return fmt.Errorf("finish run: invalid final status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, string(status), errMsg, at.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// WriteMetrics stores metrics in one transaction. A repeated
// (run, role, rep, name) overwrites the earlier value.
func (s *Store) WriteMetrics(ctx context.Context, metrics []Metric) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO metrics (run_id, role, rep, name, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, role, rep, name) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	defer stmt.Close()

	for _, m := range metrics {
		if _, err := stmt.ExecContext(ctx, m.RunID, m.Role, m.Rep, m.Name, m.Value); err != nil {
			return fmt.Errorf("write metric %s/%s/%d/%s: %w", m.RunID, m.Role, m.Rep, m.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// GetRun returns the run with the given ID.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, graph, config_path, params_path, sub_params_path, config_hash,
		       output_path, status, error, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns matching runs ordered by start time, then ID.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if f.Graph != "" {
		where = append(where, "graph = ?")
		args = append(args, f.Graph)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	query := `
		SELECT id, graph, config_path, params_path, sub_params_path, config_hash,
		       output_path, status, error, started_at, finished_at
		FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at ASC, id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Metrics returns the metrics of a run ordered by role, rep and name.
func (s *Store) Metrics(ctx context.Context, runID string) ([]Metric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, role, rep, name, value
		FROM metrics WHERE run_id = ?
		ORDER BY role ASC, rep ASC, name COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	out := []Metric{}
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.RunID, &m.Role, &m.Rep, &m.Name, &m.Value); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r          Run
		status     string
		startedAt  string
		finishedAt sql.NullString
	)
	err := sc.Scan(&r.ID, &r.Graph, &r.ConfigPath, &r.ParamsPath, &r.SubParamsPath,
		&r.ConfigHash, &r.OutputPath, &status, &r.Error, &startedAt, &finishedAt)
	if err != nil {
		return Run{}, err
	}
	r.Status = Status(status)
	if r.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	return r, nil
}
