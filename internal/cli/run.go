package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/kce/internal/ctxlog"
	"github.com/roach88/kce/internal/experiment"
	"github.com/roach88/kce/internal/graph"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config    string
	Params    string
	SubParams string

	// Clock and IDs allow overriding time and run IDs (for testing).
	// If nil, the system clock and UUIDv7 IDs are used.
	Clock experiment.Clock
	IDs   experiment.IDGenerator
}

// RunResult is the JSON payload of a successful run.
type RunResult struct {
	RunID      string `json:"run_id"`
	ConfigHash string `json:"config_hash"`
	Dir        string `json:"dir"`
	Reps       int    `json:"reps"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single experiment",
		Long: `Run one experiment: fit the base and target embedders on the configured
graph for every repetition, dump the embeddings and evaluate them.

Results are written to a new directory under the config's output_dir:
embeddings/, configs.json, base_metrics.csv and target_metrics.csv.

Example:
  kce run --config scripts/cora/sample_config_1.json \
          --params scripts/cora/default_params_a.json \
          --sub-embedder-params scripts/cora/default_params_a.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "experiment config file (required)")
	cmd.Flags().StringVar(&opts.Params, "params", "", "embedder parameter file (required)")
	cmd.Flags().StringVar(&opts.SubParams, "sub-embedder-params", "", "sub-embedder parameter file (required)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("params")
	_ = cmd.MarkFlagRequired("sub-embedder-params")

	return cmd
}

func runExperiment(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx, stop := commandContext(opts.RootOptions, cmd)
	defer stop()
	logger := ctxlog.FromContext(ctx)

	ledger, err := openLedger(opts.Ledger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLedger, "failed to open ledger", err)
	}
	pipeOpts := experiment.Options{Clock: opts.Clock, IDs: opts.IDs}
	if ledger != nil {
		defer func() {
			if closeErr := ledger.Close(); closeErr != nil {
				logger.Error("error closing ledger", "error", closeErr)
			}
		}()
		pipeOpts.Ledger = ledger
	}

	res, err := experiment.New(pipeOpts).Run(ctx, experiment.Inputs{
		ConfigPath:    opts.Config,
		ParamsPath:    opts.Params,
		SubParamsPath: opts.SubParams,
	})
	if err != nil {
		return experimentError(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(RunResult{
			RunID:      res.RunID,
			ConfigHash: res.ConfigHash,
			Dir:        res.Dir,
			Reps:       len(res.Base),
		})
	}
	fmt.Fprintf(formatter.Writer, "Experiment %s written to %s\n", res.RunID, res.Dir)
	return nil
}

// experimentError maps a pipeline error to an exit code and error code.
func experimentError(formatter *OutputFormatter, err error) error {
	var parseErr *graph.ParseError
	switch {
	case errors.Is(err, experiment.ErrPipelineFailed):
		return formatter.Fail(ExitFailure, ErrCodeExperimentFailed, "experiment failed", err)
	case experiment.IsConfigError(err):
		return formatter.Fail(ExitCommandError, ErrCodeInvalidConfig, "invalid experiment files", err)
	case errors.Is(err, fs.ErrNotExist):
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "file not found", err)
	case errors.As(err, &parseErr):
		return formatter.Fail(ExitCommandError, ErrCodeGraph, "invalid graph", err)
	default:
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "experiment failed", err)
	}
}
