package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lacquerai/mathutils/internal/execcontext"
	"github.com/lacquerai/mathutils/internal/style"
	"github.com/lacquerai/mathutils/internal/wasmhost"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errValidationFailed is returned after the summary when any module is invalid
var errValidationFailed = errors.New("validation failed")

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate [modules...]",
	Short: "Check compiled modules before hosting them",
	Long: `Validate compiled mathutils modules without running them.

This command checks:
- The file is a valid WebAssembly binary
- add and multiply are exported as (i32, i32) -> i32, as required by invoke
- Whether the module is a command (_start) usable with run

A command module without the arithmetic exports is valid but reported with a warning.`,
	Example: `
  mathutils-host validate mathutils.wasm            # Validate a single module
  mathutils-host validate --recursive ./build       # Validate every .wasm file below a directory
  mathutils-host validate --output json *.wasm      # JSON output for CI/CD`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runCtx := execcontext.RunContext{
			Context: cmd.Context(),
			StdOut:  cmd.OutOrStdout(),
			StdErr:  cmd.ErrOrStderr(),
		}
		return validateModules(runCtx, args)
	},
}

var (
	recursive bool
	showAll   bool
)

func init() {
	hostCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "recursively validate modules in directories")
	validateCmd.Flags().BoolVar(&showAll, "show-all", false, "show all validation results, including successful ones")
}

// ValidationResult represents the result of validating a module
type ValidationResult struct {
	File     string        `json:"file" yaml:"file"`
	Valid    bool          `json:"valid" yaml:"valid"`
	Kind     string        `json:"kind,omitempty" yaml:"kind,omitempty"`
	Exports  []string      `json:"exports,omitempty" yaml:"exports,omitempty"`
	Duration time.Duration `json:"duration_ms" yaml:"duration_ms"`
	Errors   []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// ValidationSummary represents the summary of all validation results
type ValidationSummary struct {
	Total    int                `json:"total" yaml:"total"`
	Valid    int                `json:"valid" yaml:"valid"`
	Invalid  int                `json:"invalid" yaml:"invalid"`
	Duration time.Duration      `json:"total_duration_ms" yaml:"total_duration_ms"`
	Results  []ValidationResult `json:"results" yaml:"results"`
}

func validateModules(runCtx execcontext.RunContext, args []string) error {
	start := time.Now()

	files, err := collectModules(args, recursive)
	if err != nil {
		return fmt.Errorf("failed to collect modules: %w", err)
	}

	text := viper.GetString("output") == "text"

	if len(files) == 0 {
		if text {
			style.Warning(runCtx.StdErr, "No modules found to validate")
		}
		return nil
	}

	results := make([]ValidationResult, 0, len(files))

	for _, file := range files {
		result := validateModule(runCtx, file)
		results = append(results, result)

		if !viper.GetBool("quiet") && text {
			if result.Valid {
				if showAll {
					style.Success(runCtx, fmt.Sprintf("%s (%v)", file, result.Duration))
				}
			} else {
				style.Error(runCtx, fmt.Sprintf("%s (%v)", file, result.Duration))
				for _, errMsg := range result.Errors {
					runCtx.Printf("  %s\n", errMsg)
				}
			}
			for _, warning := range result.Warnings {
				style.Warning(runCtx, fmt.Sprintf("%s: %s", file, warning))
			}
		}
	}

	summary := ValidationSummary{
		Total:    len(results),
		Duration: time.Since(start),
		Results:  results,
	}

	for _, result := range results {
		if result.Valid {
			summary.Valid++
		} else {
			summary.Invalid++
		}
	}

	style.Print(runCtx, viper.GetString("output"), summary, func(w io.Writer) {
		printValidationSummary(w, summary)
	})

	if summary.Invalid > 0 {
		return fmt.Errorf("%w: %d of %d module(s)", errValidationFailed, summary.Invalid, summary.Total)
	}
	return nil
}

func validateModule(runCtx execcontext.RunContext, filename string) ValidationResult {
	start := time.Now()
	result := ValidationResult{
		File:  filename,
		Valid: true,
	}

	wasm, err := os.ReadFile(filename)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		result.Duration = time.Since(start)
		return result
	}

	info, err := wasmhost.Inspect(runCtx.Context, wasm)
	result.Duration = time.Since(start)

	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	result.Exports = info.Exports
	result.Kind = moduleKind(info)

	switch {
	case info.Loadable():
	case info.Command:
		result.Warnings = append(result.Warnings, fmt.Sprintf("usable with run only: %v", info.Arithmetic))
	default:
		result.Valid = false
		result.Errors = append(result.Errors, info.Arithmetic.Error())
	}

	log.Debug().
		Str("file", filename).
		Bool("valid", result.Valid).
		Str("kind", result.Kind).
		Dur("duration", result.Duration).
		Msg("Validated module")

	return result
}

func moduleKind(info *wasmhost.Info) string {
	switch {
	case info.Command:
		return "command"
	case info.Reactor:
		return "reactor"
	default:
		return "library"
	}
}

func collectModules(args []string, recursive bool) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			if !recursive {
				return nil, fmt.Errorf("%s is a directory, use --recursive to validate directories", arg)
			}
			err := filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && isModuleFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("error walking directory %s: %w", arg, err)
			}
		} else if isModuleFile(arg) {
			files = append(files, arg)
		} else {
			return nil, fmt.Errorf("%s is not a WebAssembly module (.wasm)", arg)
		}
	}

	return files, nil
}

func isModuleFile(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".wasm")
}

func printValidationSummary(w io.Writer, summary ValidationSummary) {
	if viper.GetBool("quiet") {
		return
	}

	fmt.Fprintln(w)
	if summary.Invalid == 0 {
		style.Success(w, fmt.Sprintf("All %d module(s) are valid (%v)", summary.Total, summary.Duration))
	} else {
		style.Error(w, fmt.Sprintf("%d of %d module(s) failed validation (%v)", summary.Invalid, summary.Total, summary.Duration))
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(w, "\nDetailed results:\n")
		headers := []string{"File", "Kind", "Status", "Duration"}
		rows := make([][]string, len(summary.Results))

		for i, result := range summary.Results {
			status := "valid"
			if !result.Valid {
				status = "invalid"
			}
			rows[i] = []string{
				result.File,
				result.Kind,
				status,
				result.Duration.String(),
			}
		}

		style.PrintTable(w, headers, rows)
	}
}
