package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/kce/internal/batch"
	"github.com/roach88/kce/internal/ctxlog"
	"github.com/roach88/kce/internal/experiment"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	ScriptsDir string
	Exec       bool
	FailFast   bool

	// Runner allows overriding how invocations execute (for testing).
	// If nil, Exec selects a subprocess or in-process runner.
	Runner batch.Runner
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <graph>",
		Short: "Run every config against every params file of a graph",
		Long: `Sweep the experiments of a graph. For each <scripts>/<graph>/sample_config_*.json
and each <scripts>/<graph>/default_params_*.json, in lexical order, run one
experiment with the params file as both --params and --sub-embedder-params.

Experiments run one at a time. By default a failed experiment is reported
and the sweep continues; --fail-fast stops at the first failure.

Example:
  kce batch cora
  kce batch --scripts-dir ./scripts --exec --fail-fast citeseer`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ScriptsDir, "scripts-dir", envDefault(EnvScriptsDir, DefaultScriptsDir),
		"directory holding one folder of configs and params per graph (env "+EnvScriptsDir+")")
	cmd.Flags().BoolVar(&opts.Exec, "exec", false, "run each experiment in its own kce process")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "stop at the first failed experiment")

	return cmd
}

func runBatch(opts *BatchOptions, graphName string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx, stop := commandContext(opts.RootOptions, cmd)
	defer stop()
	logger := ctxlog.FromContext(ctx)

	runner := opts.Runner
	if runner == nil {
		r, closeFn, err := defaultRunner(opts, cmd)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeLedger, "failed to prepare runner", err)
		}
		defer func() {
			if closeErr := closeFn(); closeErr != nil {
				logger.Error("error closing ledger", "error", closeErr)
			}
		}()
		runner = r
	}

	// Progress lines would corrupt JSON on stdout.
	progress := formatter.Writer
	if formatter.Format == "json" {
		progress = formatter.GetErrWriter()
	}
	d := &batch.Driver{
		Runner:     runner,
		Out:        progress,
		ScriptsDir: opts.ScriptsDir,
		FailFast:   opts.FailFast,
	}

	sum, err := d.Run(ctx, graphName)
	if err != nil {
		if errors.Is(err, batch.ErrNoGraph) {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid graph name", err)
		}
		if formatter.Format == "json" {
			_ = formatter.Error(ErrCodeBatchFailed, summaryLine(sum), err.Error())
		} else {
			fmt.Fprintln(formatter.Writer, summaryLine(sum))
			_ = formatter.Error(ErrCodeBatchFailed, "batch failed", err.Error())
		}
		return WrapExitError(ExitFailure, summaryLine(sum), err)
	}

	if formatter.Format == "json" {
		return formatter.Success(sum)
	}
	fmt.Fprintln(formatter.Writer, summaryLine(sum))
	return nil
}

func summaryLine(s batch.Summary) string {
	line := fmt.Sprintf("Graph %s: %d invocation(s), %d succeeded, %d failed", s.Graph, s.Total, s.Succeeded, s.Failed)
	if n := s.Skipped(); n > 0 {
		line += fmt.Sprintf(", %d skipped", n)
	}
	return line
}

// defaultRunner returns the runner selected by the flags and a function
// releasing what it holds.
func defaultRunner(opts *BatchOptions, cmd *cobra.Command) (batch.Runner, func() error, error) {
	noop := func() error { return nil }
	if opts.Exec {
		bin, err := batch.SelfBinary()
		if err != nil {
			return nil, noop, err
		}
		return batch.ExecRunner{
			Binary: bin,
			Args:   passthroughFlags(opts.RootOptions),
			Stdout: subprocessOutput(opts.RootOptions, cmd),
			Stderr: cmd.ErrOrStderr(),
		}, noop, nil
	}

	ledger, err := openLedger(opts.Ledger)
	if err != nil {
		return nil, noop, err
	}
	pipeOpts := experiment.Options{}
	closeFn := noop
	if ledger != nil {
		pipeOpts.Ledger = ledger
		closeFn = ledger.Close
	}
	return batch.InProcessRunner{Pipeline: experiment.New(pipeOpts)}, closeFn, nil
}

// passthroughFlags repeats the global flags for a child kce process.
func passthroughFlags(opts *RootOptions) []string {
	var args []string
	if opts.Verbose {
		args = append(args, "--verbose")
	}
	if opts.Ledger != "" {
		args = append(args, "--ledger", opts.Ledger)
	}
	return args
}

// subprocessOutput keeps child text output off a JSON stdout.
func subprocessOutput(opts *RootOptions, cmd *cobra.Command) io.Writer {
	if opts.Format == "json" {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}
