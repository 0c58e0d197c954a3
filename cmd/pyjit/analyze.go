package main

import (
	"github.com/spf13/cobra"

	"github.com/ludo-technologies/pyjit/internal/config"
)

// NewAnalyzeCmd creates the analyze command: lower plus the dataflow report
func NewAnalyzeCmd() *cobra.Command {
	c := NewLowerCommand()
	c.analyze = true

	cmd := &cobra.Command{
		Use:   "analyze [files|dirs...]",
		Short: "Lower Python source and report liveness, definedness and phis",
		Long: `Lower Python source and run the dataflow analyses over every
function: liveness, definedness, phi placement and, with --types,
speculative type analysis.

Each block lists the phis required at its entry and the state of
every live user variable.

Examples:
  pyjit analyze mod.py
  pyjit analyze --osr --function loop mod.py
  pyjit analyze --types --format json src/`,
		Args: cobra.ArbitraryArgs,
		RunE: c.run,
	}
	c.addFlags(cmd)
	cmd.Flags().BoolVar(&c.osr, config.FlagOSR, false, "Treat the entry block as an on-stack-replacement resume point")
	cmd.Flags().BoolVar(&c.types, config.FlagTypes, false, "Run speculative type analysis")
	return cmd
}
