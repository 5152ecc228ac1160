package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/amflow/internal/harness"
)

// ConformOptions holds flags for the conform command.
type ConformOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern on the file name)
}

// NewConformCommand creates the conform command.
func NewConformCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConformOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "conform <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios against a fresh in-memory play server.

Each scenario drives named sessions through the AMFlow operations,
checks the outcome of every step it sets an expectation for, and then
evaluates its assertions against the trace and the stored tables.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  amflow conform ./scenarios
  amflow conform ./scenarios --filter "tick_*"
  amflow conform ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConform(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runConform(opts *ConformOptions, dir string, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)

	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	paths, err := harness.FindScenarios(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := &harness.SuiteResult{}
	for _, path := range paths {
		if !matchesFilter(path, opts.Filter) {
			continue
		}
		out.VerboseLog("running %s", path)
		one, err := harness.RunSuite(ctx, path)
		if err != nil {
			return WrapExitError(ExitCommandError, "conformance run interrupted", err)
		}
		merge(result, one)
		if !out.JSON() {
			printScenarioOutcome(cmd, path, one)
		}
	}

	if out.JSON() {
		if result.Failed > 0 {
			if err := out.encode(CLIResponse{
				Status: "error",
				Data:   result,
				Error: &CLIError{
					Code:    CodeConformance,
					Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
				},
			}); err != nil {
				return err
			}
			return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
		}
		return out.Success(result)
	}

	w := cmd.OutOrStdout()
	if result.TotalScenarios == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Conformance Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.TotalScenarios)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

// matchesFilter applies the glob to the file name without its extension.
func matchesFilter(path, filter string) bool {
	if filter == "" {
		return true
	}
	base := filepath.Base(path)
	name := base[:len(base)-len(filepath.Ext(base))]
	matched, _ := filepath.Match(filter, name)
	return matched
}

func merge(into, one *harness.SuiteResult) {
	into.TotalScenarios += one.TotalScenarios
	into.Passed += one.Passed
	into.Failed += one.Failed
	into.Failures = append(into.Failures, one.Failures...)
}

func printScenarioOutcome(cmd *cobra.Command, path string, one *harness.SuiteResult) {
	w := cmd.OutOrStdout()
	if one.Failed == 0 {
		fmt.Fprintf(w, "✓ %s\n", filepath.Base(path))
		return
	}
	for _, f := range one.Failures {
		fmt.Fprintf(w, "✗ %s\n", filepath.Base(path))
		fmt.Fprintf(w, "  %s\n", f.Error)
		for _, e := range f.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}
