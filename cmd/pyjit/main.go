package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/ludo-technologies/pyjit/internal/version"
)

// NewRootCmd creates the pyjit command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pyjit",
		Short: "A JIT middle-end for Python source",
		Long: `pyjit compiles Python source into the register-based control flow
graph a baseline JIT works from, and runs the dataflow analyses an
optimizing tier needs on top of it.

Features:
  • CFG construction with exception, finally and generator edges
  • Four-pass register allocation over user, cross-block and single-block values
  • Liveness, definedness, phi placement and speculative type analysis
  • Text, JSON, YAML and Graphviz DOT reports`,
		Version: version.Short(),
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(NewLowerCmd())
	rootCmd.AddCommand(NewAnalyzeCmd())
	rootCmd.AddCommand(NewCheckCmd())
	rootCmd.AddCommand(NewInitCmd())
	rootCmd.AddCommand(NewVersionCmd())
	return rootCmd
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
