package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ludo-technologies/pyjit/domain"
)

// CheckCommand compiles sources and only reports errors
type CheckCommand struct {
	*LowerCommand
	quiet bool
}

// NewCheckCommand creates a new check command
func NewCheckCommand() *CheckCommand {
	return &CheckCommand{LowerCommand: NewLowerCommand()}
}

// CreateCobraCommand creates the cobra command for checking
func (c *CheckCommand) CreateCobraCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [files|dirs...]",
		Short: "Compile Python source and report syntax and compile errors",
		Long: `Compile Python source without printing the IR, for CI pipelines.

Exit codes:
  0: everything compiled
  1: syntax or compile errors in the source
  2: the check itself failed (missing files, bad configuration,
     internal compiler errors)

Examples:
  pyjit check .
  pyjit check --quiet src/`,
		Args: cobra.ArbitraryArgs,
		RunE: c.runCheck,
	}

	cmd.Flags().StringVarP(&c.configFile, "config", "c", "", "Configuration file path")
	cmd.Flags().BoolVarP(&c.quiet, "quiet", "q", false, "Suppress output unless errors are found")
	cmd.Flags().StringSliceVar(&c.includePatterns, "include", nil, "Glob patterns of files to include")
	cmd.Flags().StringSliceVar(&c.excludePatterns, "exclude", nil, "Glob patterns of files to exclude")
	return cmd
}

func (c *CheckCommand) runCheck(cmd *cobra.Command, args []string) error {
	paths, err := expandAndValidatePaths(args)
	if err != nil {
		return c.fail(cmd, err)
	}
	req, err := c.buildRequest(cmd, paths)
	if err != nil {
		return c.fail(cmd, err)
	}

	useCase, err := createUseCase(cmd)
	if err != nil {
		return c.fail(cmd, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	response, err := useCase.LowerAndReturn(ctx, req)
	if err != nil {
		return c.fail(cmd, err)
	}

	if exitCode := c.report(cmd.ErrOrStderr(), response); exitCode != 0 {
		cmd.SilenceErrors = true
		cmd.SilenceUsage = true
		return &ExitError{Code: exitCode}
	}
	return nil
}

// fail reports an error of the check itself and maps it to exit code 2
func (c *CheckCommand) fail(cmd *cobra.Command, err error) error {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	printRecoverySuggestions(cmd.ErrOrStderr(), err)
	return &ExitError{Code: 2}
}

// report prints every diagnostic and returns the exit code of the run
func (c *CheckCommand) report(w io.Writer, response *domain.LowerResponse) int {
	for _, d := range response.Diagnostics() {
		where := d.File
		if d.Line > 0 {
			where = fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)
		}
		fmt.Fprintf(w, "%s: %s error: %s\n", where, d.Kind, d.Message)
	}
	for _, warning := range response.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}

	s := response.Summary
	switch {
	case s.SourceErrors() > 0:
		fmt.Fprintf(w, "✗ %d error(s) in %d of %d file(s)\n", s.SourceErrors(), s.FilesFailed, s.FilesProcessed)
		return 1
	case s.InternalErrors > 0:
		fmt.Fprintf(w, "✗ %d internal compiler error(s)\n", s.InternalErrors)
		return 2
	}

	if !c.quiet {
		fmt.Fprintf(w, "✓ %d file(s), %d function(s) compiled\n", s.FilesProcessed, s.Functions)
	}
	return 0
}

// NewCheckCmd creates and returns the check cobra command
func NewCheckCmd() *cobra.Command {
	return NewCheckCommand().CreateCobraCommand()
}
