package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/kce/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Graph  string
	Status string
	ID     string
}

// RunDetail is the JSON payload of runs --id.
type RunDetail struct {
	Run     store.Run      `json:"run"`
	Metrics []store.Metric `json:"metrics"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List experiments recorded in the run ledger",
		Long: `List runs recorded in the SQLite ledger given by --ledger or KCE_LEDGER,
oldest first. With --id, show one run and its metrics.

Example:
  kce runs --ledger runs.db --graph cora --status failed
  kce runs --ledger runs.db --id 0190b6f2-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Graph, "graph", "", "only runs of this graph")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only runs with this status (running|succeeded|failed)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "show one run with its metrics")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Ledger == "" {
		return formatter.Fail(ExitCommandError, ErrCodeLedger, "no ledger: set --ledger or "+EnvLedger, nil)
	}
	status := store.Status(opts.Status)
	switch status {
	case "", store.StatusRunning, store.StatusSucceeded, store.StatusFailed:
	default:
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("invalid status %q", opts.Status), nil)
	}

	ledger, err := store.Open(opts.Ledger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLedger, "failed to open ledger", err)
	}
	defer ledger.Close()

	ctx := cmd.Context()
	if opts.ID != "" {
		run, err := ledger.GetRun(ctx, opts.ID)
		if errors.Is(err, store.ErrRunNotFound) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "run not found", err)
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeLedger, "failed to read ledger", err)
		}
		metrics, err := ledger.Metrics(ctx, opts.ID)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeLedger, "failed to read ledger", err)
		}
		return outputRunDetail(formatter, RunDetail{Run: run, Metrics: metrics})
	}

	runs, err := ledger.ListRuns(ctx, store.RunFilter{Graph: opts.Graph, Status: status})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLedger, "failed to read ledger", err)
	}
	if formatter.Format == "json" {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGRAPH\tSTATUS\tSTARTED\tOUTPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Graph, r.Status, r.StartedAt.Format(time.RFC3339), r.OutputPath)
	}
	return tw.Flush()
}

func outputRunDetail(formatter *OutputFormatter, d RunDetail) error {
	if formatter.Format == "json" {
		return formatter.Success(d)
	}
	w := formatter.Writer
	r := d.Run
	fmt.Fprintf(w, "Run:     %s\n", r.ID)
	fmt.Fprintf(w, "Graph:   %s\n", r.Graph)
	fmt.Fprintf(w, "Status:  %s\n", r.Status)
	if r.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", r.Error)
	}
	fmt.Fprintf(w, "Config:  %s\n", r.ConfigPath)
	fmt.Fprintf(w, "Params:  %s\n", r.ParamsPath)
	fmt.Fprintf(w, "Output:  %s\n", r.OutputPath)
	fmt.Fprintf(w, "Hash:    %s\n", r.ConfigHash)
	fmt.Fprintf(w, "Started: %s\n", r.StartedAt.Format(time.RFC3339))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "Took:    %s\n", r.FinishedAt.Sub(r.StartedAt))
	}
	if len(d.Metrics) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tREP\tMETRIC\tVALUE")
	for _, m := range d.Metrics {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%g\n", m.Role, m.Rep, m.Name, m.Value)
	}
	return tw.Flush()
}
