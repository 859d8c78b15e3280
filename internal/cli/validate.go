package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/kce/internal/experiment"
)

// ValidationError is one problem found in a file.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// FileValidation is the result for one file.
type FileValidation struct {
	Path   string            `json:"path"`
	Kind   string            `json:"kind"` // "config" | "params"
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`

	missing bool
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Kind string // "auto" | "config" | "params"
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate config and params files without running",
		Long: `Validate experiment config and params files against the schema.

Files whose name contains "config" are checked as configs, all others as
params, unless --kind says otherwise. Every problem in every file is
reported. Configs are also checked against the filesystem: input_path must
exist and output_dir must be an existing directory.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "auto", "file kind (auto|config|params)")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var force experiment.Schema
	switch opts.Kind {
	case "auto":
	case "config":
		force = experiment.SchemaConfig
	case "params":
		force = experiment.SchemaParams
	default:
		return formatter.Fail(ExitCommandError, ErrCodeGeneric,
			fmt.Sprintf("invalid kind %q: must be auto, config or params", opts.Kind), nil)
	}

	result := ValidationResult{Valid: true}
	missing := 0
	for _, path := range paths {
		schema := force
		if schema == "" {
			schema = experiment.SchemaFor(path)
		}
		formatter.VerboseLog("Validating %s as %s", path, kindName(schema))

		fv := validateFile(path, schema)
		if !fv.Valid {
			result.Valid = false
		}
		if fv.missing {
			missing++
		}
		result.Files = append(result.Files, fv)
	}

	exitCode := ExitSuccess
	switch {
	case missing > 0:
		exitCode = ExitCommandError
	case !result.Valid:
		exitCode = ExitFailure
	}

	if formatter.Format == "json" {
		if exitCode == ExitSuccess {
			return formatter.Success(result)
		}
		code := ErrCodeInvalidConfig
		if missing > 0 {
			code = ErrCodeNotFound
		}
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    code,
				Message: fmt.Sprintf("validation failed for %d file(s)", countInvalid(result)),
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	} else {
		for _, fv := range result.Files {
			if fv.Valid {
				fmt.Fprintf(formatter.Writer, "✓ %s (%s)\n", fv.Path, fv.Kind)
				continue
			}
			fmt.Fprintf(formatter.Writer, "✗ %s (%s)\n", fv.Path, fv.Kind)
			for _, e := range fv.Errors {
				if e.Field != "" {
					fmt.Fprintf(formatter.Writer, "  %s: %s\n", e.Field, e.Message)
				} else {
					fmt.Fprintf(formatter.Writer, "  %s\n", e.Message)
				}
			}
		}
	}

	if exitCode != ExitSuccess {
		return NewExitError(exitCode, fmt.Sprintf("validation failed for %d file(s)", countInvalid(result)))
	}
	return nil
}

// validateFile runs the same loaders as the run command.
func validateFile(path string, schema experiment.Schema) FileValidation {
	fv := FileValidation{Path: path, Kind: kindName(schema), Valid: true}

	var err error
	if schema == experiment.SchemaConfig {
		_, err = experiment.LoadConfig(path)
	} else {
		_, err = experiment.LoadParams(path)
	}
	if err == nil {
		return fv
	}

	fv.Valid = false
	fv.missing = errors.Is(err, fs.ErrNotExist)
	var list experiment.ConfigErrors
	var single *experiment.ConfigError
	switch {
	case errors.As(err, &list):
		for _, e := range list {
			fv.Errors = append(fv.Errors, ValidationError{Field: e.Field, Message: e.Message})
		}
	case errors.As(err, &single):
		fv.Errors = append(fv.Errors, ValidationError{Field: single.Field, Message: single.Message})
	default:
		fv.Errors = append(fv.Errors, ValidationError{Message: err.Error()})
	}
	return fv
}

func kindName(s experiment.Schema) string {
	if s == experiment.SchemaConfig {
		return "config"
	}
	return "params"
}

func countInvalid(r ValidationResult) int {
	n := 0
	for _, f := range r.Files {
		if !f.Valid {
			n++
		}
	}
	return n
}
