package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore opens a fresh ledger in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testStart is the base start time of test runs.
var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestRun returns a run with minimal required fields, started
// offset seconds after testStart.
func createTestRun(id, graph string, offset int) Run {
	return Run{
		ID:            id,
		Graph:         graph,
		ConfigPath:    "scripts/" + graph + "/sample_config_1.json",
		ParamsPath:    "scripts/" + graph + "/default_params_a.json",
		SubParamsPath: "scripts/" + graph + "/default_params_a.json",
		ConfigHash:    "hash-" + id,
		OutputPath:    "out/" + id,
		StartedAt:     testStart.Add(time.Duration(offset) * time.Second),
	}
}
