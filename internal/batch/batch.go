// Package batch sweeps a graph's experiment configs against its parameter
// files, one experiment per pair.
//
// Files live under <scripts>/<graph>/: configs match sample_config_*.json
// and parameter files match default_params_*.json. Every pair runs with
// the parameter file as both the embedder and the sub-embedder parameters.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/roach88/kce/internal/ctxlog"
)

// File name patterns inside a graph's scripts directory.
const (
	ConfigPattern = "sample_config_*.json"
	ParamsPattern = "default_params_*.json"
)

// ErrNoGraph indicates an empty graph name.
var ErrNoGraph = errors.New("batch: graph name is required")

// Invocation is one experiment of a sweep.
type Invocation struct {
	Graph     string `json:"graph"`
	Config    string `json:"config"`
	Params    string `json:"params"`
	SubParams string `json:"sub_params"`
}

// Plan lists the invocations for graph in execution order: configs in
// lexical order, and for each config the parameter files in lexical order.
// A missing directory or an empty pattern match yields no invocations.
func Plan(scriptsDir, graph string) ([]Invocation, error) {
	if graph == "" {
		return nil, ErrNoGraph
	}
	dir := filepath.Join(scriptsDir, graph)
	// Glob returns matches sorted.
	configs, err := filepath.Glob(filepath.Join(dir, ConfigPattern))
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	params, err := filepath.Glob(filepath.Join(dir, ParamsPattern))
	if err != nil {
		return nil, fmt.Errorf("list params: %w", err)
	}

	plan := make([]Invocation, 0, len(configs)*len(params))
	for _, c := range configs {
		for _, p := range params {
			plan = append(plan, Invocation{Graph: graph, Config: c, Params: p, SubParams: p})
		}
	}
	return plan, nil
}

// Runner executes one invocation to completion.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// InvocationError reports a failed invocation.
type InvocationError struct {
	Invocation Invocation
	Err        error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("config %s with params %s: %v", e.Invocation.Config, e.Invocation.Params, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Summary counts the outcome of a sweep. Total is the planned count;
// invocations skipped by fail-fast or cancellation are in neither
// Succeeded nor Failed.
type Summary struct {
	Graph     string `json:"graph"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// Skipped returns the number of planned invocations that never ran.
func (s Summary) Skipped() int { return s.Total - s.Succeeded - s.Failed }

// Driver runs sweeps strictly one invocation at a time.
type Driver struct {
	Runner     Runner
	Out        io.Writer // progress lines
	ScriptsDir string

	// FailFast stops at the first failure. By default the sweep continues
	// and reports every failure.
	FailFast bool
}

// Run sweeps graph. The returned error joins an *InvocationError per
// failure, plus the context error if the sweep was interrupted.
func (d *Driver) Run(ctx context.Context, graph string) (Summary, error) {
	logger := ctxlog.FromContext(ctx).With("graph", graph)

	plan, err := Plan(d.ScriptsDir, graph)
	if err != nil {
		return Summary{Graph: graph}, err
	}
	sum := Summary{Graph: graph, Total: len(plan)}
	logger.Debug("sweep planned", "invocations", len(plan))

	var errs []error
	for _, inv := range plan {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if d.Out != nil {
			fmt.Fprintf(d.Out, "Processing graph %s with config %s and params %s\n", graph, inv.Config, inv.Params)
		}

		if err := d.Runner.Run(ctx, inv); err != nil {
			sum.Failed++
			errs = append(errs, &InvocationError{Invocation: inv, Err: err})
			logger.Error("invocation failed", "config", inv.Config, "params", inv.Params, "error", err)
			if d.FailFast {
				break
			}
			continue
		}
		sum.Succeeded++
	}

	if n := sum.Skipped(); n > 0 {
		logger.Warn("sweep stopped early", "skipped", n)
	}
	return sum, errors.Join(errs...)
}
