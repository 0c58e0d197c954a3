package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ludo-technologies/pyjit/internal/config"
)

// negatedFlags maps "--no-x" style flags to the setting they switch off
var negatedFlags = map[string]string{
	"no-merge": config.FlagMergeBlocks,
	"no-reuse": config.FlagReuse,
}

// GetExplicitFlags extracts which settings were explicitly set on the command
// line, keyed by the configuration flag names
func GetExplicitFlags(cmd *cobra.Command) map[string]bool {
	explicitFlags := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().Visit(func(f *pflag.Flag) {
			if name, ok := negatedFlags[f.Name]; ok {
				explicitFlags[name] = true
				return
			}
			explicitFlags[f.Name] = true
		})
	}
	return explicitFlags
}
