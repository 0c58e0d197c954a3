package config

// Command-line flag names that can override file configuration
const (
	FlagFormat          = "format"
	FlagShowConstants   = "show-constants"
	FlagMergeBlocks     = "merge-blocks"
	FlagReuse           = "reuse"
	FlagOSR             = "osr"
	FlagTypes           = "types"
	FlagMaxConcurrency  = "max-concurrency"
	FlagFunctionWorkers = "workers"
	FlagTimeout         = "timeout"
	FlagInclude         = "include"
	FlagExclude         = "exclude"
	FlagRecursive       = "recursive"
)

// Overrides carries flag values; only those named in the explicit set are applied
type Overrides struct {
	Format           string
	ShowConstants    bool
	MergeBlocks      bool
	ReuseSingleBlock bool
	OSREntry         bool
	Types            bool
	MaxConcurrency   int
	FunctionWorkers  int
	TimeoutSeconds   int
	IncludePatterns  []string
	ExcludePatterns  []string
	Recursive        bool
}

// ApplyOverrides merges explicitly set flags over c.
// Flags the user did not set never replace file values.
func (c *Config) ApplyOverrides(o Overrides, explicit map[string]bool) {
	c.Output.Format = pick(c.Output.Format, o.Format, explicit[FlagFormat])
	c.Output.ShowConstants = pick(c.Output.ShowConstants, o.ShowConstants, explicit[FlagShowConstants])

	c.Allocator.MergeBlocks = pick(c.Allocator.MergeBlocks, o.MergeBlocks, explicit[FlagMergeBlocks])
	c.Allocator.ReuseSingleBlock = pick(c.Allocator.ReuseSingleBlock, o.ReuseSingleBlock, explicit[FlagReuse])

	c.Analysis.OSREntry = pick(c.Analysis.OSREntry, o.OSREntry, explicit[FlagOSR])
	c.Analysis.Types = pick(c.Analysis.Types, o.Types, explicit[FlagTypes])
	c.Analysis.MaxConcurrency = pick(c.Analysis.MaxConcurrency, o.MaxConcurrency, explicit[FlagMaxConcurrency])
	c.Analysis.FunctionWorkers = pick(c.Analysis.FunctionWorkers, o.FunctionWorkers, explicit[FlagFunctionWorkers])
	c.Analysis.TimeoutSeconds = pick(c.Analysis.TimeoutSeconds, o.TimeoutSeconds, explicit[FlagTimeout])

	// an explicit but empty pattern list keeps the configured one
	if explicit[FlagInclude] && len(o.IncludePatterns) > 0 {
		c.Input.IncludePatterns = o.IncludePatterns
	}
	if explicit[FlagExclude] && len(o.ExcludePatterns) > 0 {
		c.Input.ExcludePatterns = o.ExcludePatterns
	}
	c.Input.Recursive = pick(c.Input.Recursive, o.Recursive, explicit[FlagRecursive])
}

func pick[T any](base, override T, set bool) T {
	if set {
		return override
	}
	return base
}
