package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/roach88/kce/internal/ctxlog"
	"github.com/roach88/kce/internal/experiment"
)

// InProcessRunner runs each invocation through a Pipeline in the current
// process.
type InProcessRunner struct {
	Pipeline *experiment.Pipeline
}

// Run implements Runner.
func (r InProcessRunner) Run(ctx context.Context, inv Invocation) error {
	_, err := r.Pipeline.Run(ctx, experiment.Inputs{
		ConfigPath:    inv.Config,
		ParamsPath:    inv.Params,
		SubParamsPath: inv.SubParams,
	})
	return err
}

// DefaultWaitDelay bounds how long a cancelled subprocess may keep its
// output pipes open.
const DefaultWaitDelay = 5 * time.Second

// ExecRunner runs each invocation as
//
//	<Binary> <Args...> run --config C --params P --sub-embedder-params S
//
// in its own process. A cancelled context kills the process.
type ExecRunner struct {
	Binary string
	Args   []string // placed before the "run" subcommand
	Env    []string // nil inherits the current environment
	Stdout io.Writer
	Stderr io.Writer
}

// Command builds the command for inv without starting it.
func (r ExecRunner) Command(ctx context.Context, inv Invocation) *exec.Cmd {
	args := append([]string{}, r.Args...)
	args = append(args,
		"run",
		"--config", inv.Config,
		"--params", inv.Params,
		"--sub-embedder-params", inv.SubParams,
	)
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Env = r.Env
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.WaitDelay = DefaultWaitDelay
	return cmd
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, inv Invocation) error {
	cmd := r.Command(ctx, inv)
	ctxlog.FromContext(ctx).Debug("exec", "args", cmd.Args)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", r.Binary, ctx.Err())
		}
		return fmt.Errorf("%s: %w", r.Binary, err)
	}
	return nil
}

// SelfBinary returns the path of the running executable for ExecRunner.
func SelfBinary() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return path, nil
}
