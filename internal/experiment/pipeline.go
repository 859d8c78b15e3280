package experiment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/roach88/kce/internal/ctxlog"
	"github.com/roach88/kce/internal/embedder"
	"github.com/roach88/kce/internal/evaluate"
	"github.com/roach88/kce/internal/graph"
	"github.com/roach88/kce/internal/ir"
	"github.com/roach88/kce/internal/registry"
	"github.com/roach88/kce/internal/store"
)

// ErrPipelineFailed wraps every error raised after the output directory
// exists. The directory then holds partial results.
var ErrPipelineFailed = errors.New("experiment: pipeline failed")

// Roles of the two embedders compared by an experiment.
const (
	RoleBase   = "base"
	RoleTarget = "target"
)

// Inputs are the three files of one experiment.
type Inputs struct {
	ConfigPath    string
	ParamsPath    string
	SubParamsPath string
}

// Ledger records runs. *store.Store implements it.
type Ledger interface {
	BeginRun(ctx context.Context, r store.Run) error
	FinishRun(ctx context.Context, id string, status store.Status, errMsg string, at time.Time) error
	WriteMetrics(ctx context.Context, metrics []store.Metric) error
}

// BuildFunc constructs an embedder from its kind and parameters.
type BuildFunc func(kind registry.Kind, params map[string]any, subKind registry.Kind, subParams map[string]any) (embedder.Embedder, error)

// ScoreFunc evaluates an embedding of g.
type ScoreFunc func(ctx context.Context, g *graph.Graph, emb *embedder.Embedding, opts evaluate.Options) (map[string]float64, error)

// Options configures a Pipeline. Zero fields take production defaults.
type Options struct {
	Clock  Clock
	IDs    IDGenerator
	Ledger Ledger // optional

	// Evaluate holds classifier settings. The seed is replaced per rep.
	Evaluate evaluate.Options

	// Build defaults to registry.New.
	Build BuildFunc

	// Score defaults to node classification, or link prediction when the
	// config sets link_pred.
	Score ScoreFunc
}

// Pipeline runs single experiments.
type Pipeline struct {
	opts Options
}

// New returns a Pipeline with defaults filled in.
func New(opts Options) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.IDs == nil {
		opts.IDs = UUIDv7Generator{}
	}
	if opts.Evaluate == (evaluate.Options{}) {
		opts.Evaluate = evaluate.DefaultOptions()
	}
	if opts.Build == nil {
		opts.Build = registry.New
	}
	return &Pipeline{opts: opts}
}

// Result describes a run, complete or partial.
type Result struct {
	RunID      string
	ConfigHash string
	Dir        string
	Base       []Row
	Target     []Row
}

// experiment is everything resolved from the input files.
type experiment struct {
	cfg       *Config
	params    Params
	subParams Params
	fit       embedder.FitOptions
	base      registry.Kind
	target    registry.Kind
	sub       registry.Kind
}

// Run executes one experiment. Errors in the input files are returned as
// ConfigError or ConfigErrors before anything is written. Later failures
// return a non-nil Result and an error wrapping ErrPipelineFailed.
func (p *Pipeline) Run(ctx context.Context, in Inputs) (*Result, error) {
	x, err := p.resolve(in)
	if err != nil {
		return nil, err
	}

	// Build once up front so bad hyperparameters fail before any output.
	for _, kind := range []registry.Kind{x.base, x.target} {
		if _, err := p.build(x, kind); err != nil {
			return nil, &ConfigError{Path: in.ParamsPath, Message: fmt.Sprintf("%s: %v", kind, err)}
		}
	}

	g, err := graph.LoadGML(x.cfg.InputPath)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	g, err = graph.Preprocess(g)
	if err != nil {
		return nil, fmt.Errorf("preprocess graph: %w", err)
	}

	hash, err := ir.ExperimentHash(x.cfg.Raw, x.params, x.subParams)
	if err != nil {
		return nil, fmt.Errorf("fingerprint config: %w", err)
	}

	started := p.opts.Clock.Now()
	res := &Result{
		RunID:      p.opts.IDs.Generate(),
		ConfigHash: hash,
		Dir:        filepath.Join(x.cfg.OutputDir, DirName(x.cfg, started.Format(TimestampLayout))),
	}
	logger := ctxlog.FromContext(ctx).With("run_id", res.RunID, "graph", x.cfg.GraphName())
	ctx = ctxlog.WithLogger(ctx, logger)

	if res.Dir, err = createLayout(res.Dir); err != nil {
		return nil, err
	}
	doc := configsDocument{
		RunID:             res.RunID,
		ConfigHash:        hash,
		Config:            x.cfg.Raw,
		Params:            x.params,
		SubEmbedderParams: x.subParams,
	}
	if err := writeJSON(filepath.Join(res.Dir, ConfigsFile), doc); err != nil {
		return res, fmt.Errorf("%w: %w", ErrPipelineFailed, err)
	}

	if p.opts.Ledger != nil {
		// Ledger writes outlive cancellation so an interrupted run is
		// still recorded.
		err := p.opts.Ledger.BeginRun(context.WithoutCancel(ctx), store.Run{
			ID:            res.RunID,
			Graph:         x.cfg.GraphName(),
			ConfigPath:    in.ConfigPath,
			ParamsPath:    in.ParamsPath,
			SubParamsPath: in.SubParamsPath,
			ConfigHash:    hash,
			OutputPath:    res.Dir,
			StartedAt:     started,
		})
		if err != nil {
			return res, fmt.Errorf("%w: %w", ErrPipelineFailed, err)
		}
	}

	logger.Info("experiment started",
		"dir", res.Dir,
		"base", x.base,
		"target", x.target,
		"reps", x.cfg.Reps,
		"nodes", g.Order(),
		"edges", g.Size())

	runErr := p.reps(ctx, x, g, res)

	// Metrics are written whatever happened to the reps.
	if err := WriteMetrics(filepath.Join(res.Dir, BaseMetricsFile), res.Base); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if err := WriteMetrics(filepath.Join(res.Dir, TargetMetricsFile), res.Target); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if err := p.record(ctx, res, runErr); err != nil {
		runErr = errors.Join(runErr, err)
	}

	if runErr != nil {
		logger.Error("experiment failed", "error", runErr)
		return res, fmt.Errorf("%w: %w", ErrPipelineFailed, runErr)
	}
	logger.Info("experiment finished", "dir", res.Dir)
	return res, nil
}

func (p *Pipeline) resolve(in Inputs) (*experiment, error) {
	cfg, err := LoadConfig(in.ConfigPath)
	if err != nil {
		return nil, err
	}
	params, err := LoadParams(in.ParamsPath)
	if err != nil {
		return nil, err
	}
	subParams, err := LoadParams(in.SubParamsPath)
	if err != nil {
		return nil, err
	}
	fit, err := params.FitOptions()
	if err != nil {
		return nil, &ConfigError{Path: in.ParamsPath, Field: "train", Message: err.Error()}
	}

	x := &experiment{cfg: cfg, params: params, subParams: subParams, fit: fit}
	if x.base, err = registry.Parse(cfg.BaseEmbedder); err != nil {
		return nil, &ConfigError{Path: in.ConfigPath, Field: "base_embedder", Message: err.Error()}
	}
	if x.target, err = registry.Parse(cfg.TargetEmbedder); err != nil {
		return nil, &ConfigError{Path: in.ConfigPath, Field: "target_embedder", Message: err.Error()}
	}
	if cfg.SubEmbedder != "" {
		if x.sub, err = registry.Parse(cfg.SubEmbedder); err != nil {
			return nil, &ConfigError{Path: in.ConfigPath, Field: "sub_embedder", Message: err.Error()}
		}
	}
	return x, nil
}

func (p *Pipeline) build(x *experiment, kind registry.Kind) (embedder.Embedder, error) {
	return p.opts.Build(kind, x.params.Hyper(), x.sub, x.subParams.Hyper())
}

// reps fits and evaluates both embedders cfg.Reps times, appending rows to
// res as they complete.
func (p *Pipeline) reps(ctx context.Context, x *experiment, g *graph.Graph, res *Result) error {
	score := p.opts.Score
	if score == nil {
		score = evaluate.NodeClassification
		if x.cfg.LinkPred {
			score = evaluate.LinkPrediction
		}
	}

	for rep := 0; rep < x.cfg.Reps; rep++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		seed := x.cfg.Seed + uint64(rep)

		row, err := p.runRole(ctx, x, g, res.Dir, RoleBase, x.base, rep, seed, score)
		if err != nil {
			return err
		}
		res.Base = append(res.Base, row)

		row, err = p.runRole(ctx, x, g, res.Dir, RoleTarget, x.target, rep, seed, score)
		if err != nil {
			return err
		}
		res.Target = append(res.Target, row)
	}
	return nil
}

func (p *Pipeline) runRole(ctx context.Context, x *experiment, g *graph.Graph, dir, role string, kind registry.Kind, rep int, seed uint64, score ScoreFunc) (Row, error) {
	logger := ctxlog.FromContext(ctx)

	emb, err := p.build(x, kind)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", role, err)
	}
	fit := x.fit
	fit.Seed = seed
	fit.Workers = x.cfg.Workers

	logger.Debug("fitting", "role", role, "embedder", kind, "rep", rep)
	vectors, err := emb.Fit(ctx, g, fit)
	if err != nil {
		return nil, fmt.Errorf("fit %s rep %d: %w", role, rep, err)
	}
	if err := writeEmbedding(dir, role, rep, vectors); err != nil {
		return nil, err
	}

	evalOpts := p.opts.Evaluate
	evalOpts.Seed = seed
	scores, err := score(ctx, g, vectors, evalOpts)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s rep %d: %w", role, rep, err)
	}

	row := Row{}
	for k, v := range emb.Attributes() {
		row[k] = v
	}
	for k, v := range scores {
		row[k] = v
	}
	row[RepColumn] = rep
	logger.Info("rep finished", "role", role, "rep", rep, "scores", scores)
	return row, nil
}

// record stores the final status and numeric metrics in the ledger.
func (p *Pipeline) record(ctx context.Context, res *Result, runErr error) error {
	if p.opts.Ledger == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	var metrics []store.Metric
	for role, rows := range map[string][]Row{RoleBase: res.Base, RoleTarget: res.Target} {
		metrics = append(metrics, ledgerMetrics(res.RunID, role, rows)...)
	}
	if len(metrics) > 0 {
		if err := p.opts.Ledger.WriteMetrics(ctx, metrics); err != nil {
			return err
		}
	}

	status, msg := store.StatusSucceeded, ""
	if runErr != nil {
		status, msg = store.StatusFailed, runErr.Error()
	}
	return p.opts.Ledger.FinishRun(ctx, res.RunID, status, msg, p.opts.Clock.Now())
}

func ledgerMetrics(runID, role string, rows []Row) []store.Metric {
	var out []store.Metric
	for _, r := range rows {
		rep, _ := r[RepColumn].(int)
		for name, v := range r {
			if name == RepColumn {
				continue
			}
			f, ok := numeric(v)
			if !ok {
				continue
			}
			out = append(out, store.Metric{RunID: runID, Role: role, Rep: rep, Name: name, Value: f})
		}
	}
	return out
}
