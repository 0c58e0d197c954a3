package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ludo-technologies/pyjit/service"
)

// ExitError carries a process exit code out of a command
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// expandAndValidatePaths makes every argument absolute and checks it exists;
// no arguments means the current directory
func expandAndValidatePaths(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		expanded, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", arg, err)
		}
		if _, err := os.Stat(expanded); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("path does not exist: %s", arg)
			}
			return nil, fmt.Errorf("cannot access path %s: %w", arg, err)
		}
		paths = append(paths, expanded)
	}
	return paths, nil
}

// isVerbose reads the global --verbose flag
func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}

// newLogger returns a stderr logger when --verbose is set, nil otherwise
func newLogger(cmd *cobra.Command) *log.Logger {
	if !isVerbose(cmd) {
		return nil
	}
	return log.New(cmd.ErrOrStderr(), "pyjit: ", log.Ltime)
}

// printRecoverySuggestions explains a failed run on stderr
func printRecoverySuggestions(w io.Writer, err error) {
	categorizer := service.NewErrorCategorizer()
	categorized := categorizer.Categorize(err)
	if categorized == nil {
		return
	}
	fmt.Fprintf(w, "%s: %s\n", categorized.Category, categorized.Message)
	for _, s := range categorizer.GetRecoverySuggestions(categorized.Category) {
		fmt.Fprintf(w, "  • %s\n", s)
	}
}
