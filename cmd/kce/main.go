// Command kce runs k-core embedding experiments.
//
// A .env file in the working directory, when present, seeds KCE_LEDGER and
// KCE_SCRIPTS_DIR.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/kce/internal/cli"
)

func main() {
	// A missing .env is not an error.
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		// Exit errors were already reported by the command's formatter.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
