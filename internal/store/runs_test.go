package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBeginRun_GetRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("r1", "cora", 0)
	if err := s.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}

	got, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("status = %q, want %q", got.Status, StatusRunning)
	}
	if got.FinishedAt != nil {
		t.Errorf("finished_at = %v, want nil", got.FinishedAt)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, run.StartedAt)
	}
	if got.ConfigHash != "hash-r1" || got.Graph != "cora" || got.OutputPath != "out/r1" {
		t.Errorf("unexpected run: %+v", got)
	}
}

func TestBeginRun_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BeginRun(ctx, createTestRun("r1", "cora", 0)); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	if err := s.BeginRun(ctx, createTestRun("r1", "cora", 1)); err == nil {
		t.Error("expected error for duplicate run ID")
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestFinishRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BeginRun(ctx, createTestRun("r1", "cora", 0)); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	end := testStart.Add(90 * time.Second)
	if err := s.FinishRun(ctx, "r1", StatusFailed, "fit base: boom", end); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}

	got, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.Status != StatusFailed || got.Error != "fit base: boom" {
		t.Errorf("got status %q error %q", got.Status, got.Error)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(end) {
		t.Errorf("finished_at = %v, want %v", got.FinishedAt, end)
	}
}

func TestFinishRun_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.FinishRun(ctx, "missing", StatusSucceeded, "", testStart); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun() on unknown run error = %v, want ErrRunNotFound", err)
	}
	if err := s.FinishRun(ctx, "missing", StatusRunning, "", testStart); err == nil {
		t.Error("expected error for non-final status")
	}
}

func TestListRuns_OrderAndFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Inserted out of order; "b" and "a" share a start time.
	runs := []Run{
		createTestRun("c", "cora", 20),
		createTestRun("b", "cora", 10),
		createTestRun("a", "cora", 10),
		createTestRun("d", "toy", 5),
	}
	for _, r := range runs {
		if err := s.BeginRun(ctx, r); err != nil {
			t.Fatalf("BeginRun(%s) failed: %v", r.ID, err)
		}
	}
	if err := s.FinishRun(ctx, "b", StatusSucceeded, "", testStart.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}

	all, err := s.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	want := []string{"d", "a", "b", "c"}
	if len(all) != len(want) {
		t.Fatalf("got %d runs, want %d", len(all), len(want))
	}
	for i, id := range want {
		if all[i].ID != id {
			t.Errorf("runs[%d] = %q, want %q", i, all[i].ID, id)
		}
	}

	cora, err := s.ListRuns(ctx, RunFilter{Graph: "cora", Status: StatusRunning})
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(cora) != 2 || cora[0].ID != "a" || cora[1].ID != "c" {
		t.Errorf("filtered runs = %+v", cora)
	}

	none, err := s.ListRuns(ctx, RunFilter{Graph: "citeseer"})
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", none)
	}
}

func TestWriteMetrics(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BeginRun(ctx, createTestRun("r1", "cora", 0)); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	metrics := []Metric{
		{RunID: "r1", Role: "target", Rep: 0, Name: "micro_f1", Value: 0.8},
		{RunID: "r1", Role: "base", Rep: 1, Name: "micro_f1", Value: 0.7},
		{RunID: "r1", Role: "base", Rep: 0, Name: "micro_f1", Value: 0.6},
		{RunID: "r1", Role: "base", Rep: 0, Name: "macro_f1", Value: 0.5},
	}
	if err := s.WriteMetrics(ctx, metrics); err != nil {
		t.Fatalf("WriteMetrics() failed: %v", err)
	}
	// Overwrite one value.
	if err := s.WriteMetrics(ctx, []Metric{{RunID: "r1", Role: "base", Rep: 0, Name: "micro_f1", Value: 0.65}}); err != nil {
		t.Fatalf("WriteMetrics() overwrite failed: %v", err)
	}

	got, err := s.Metrics(ctx, "r1")
	if err != nil {
		t.Fatalf("Metrics() failed: %v", err)
	}
	want := []Metric{
		{RunID: "r1", Role: "base", Rep: 0, Name: "macro_f1", Value: 0.5},
		{RunID: "r1", Role: "base", Rep: 0, Name: "micro_f1", Value: 0.65},
		{RunID: "r1", Role: "base", Rep: 1, Name: "micro_f1", Value: 0.7},
		{RunID: "r1", Role: "target", Rep: 0, Name: "micro_f1", Value: 0.8},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d metrics, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("metrics[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWriteMetrics_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BeginRun(ctx, createTestRun("r1", "cora", 0)); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	err := s.WriteMetrics(ctx, []Metric{
		{RunID: "r1", Role: "base", Rep: 0, Name: "micro_f1", Value: 0.6},
		{RunID: "r1", Role: "sub", Rep: 0, Name: "micro_f1", Value: 0.6},
	})
	if err == nil {
		t.Fatal("expected error for invalid role")
	}

	got, err := s.Metrics(ctx, "r1")
	if err != nil {
		t.Fatalf("Metrics() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected rollback, found %d metrics", len(got))
	}
}
