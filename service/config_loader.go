package service

import (
	"time"

	"github.com/ludo-technologies/pyjit/domain"
	"github.com/ludo-technologies/pyjit/internal/config"
)

// ConfigurationLoaderImpl implements the LowerConfigurationLoader interface.
// Values from the override request replace configured ones only when the
// corresponding flag was set explicitly.
type ConfigurationLoaderImpl struct {
	explicitFlags map[string]bool
}

// NewConfigurationLoader creates a loader that never lets flags override files
func NewConfigurationLoader() *ConfigurationLoaderImpl {
	return NewConfigurationLoaderWithFlags(nil)
}

// NewConfigurationLoaderWithFlags creates a loader honoring the given explicitly set flags
func NewConfigurationLoaderWithFlags(explicitFlags map[string]bool) *ConfigurationLoaderImpl {
	copied := make(map[string]bool, len(explicitFlags))
	for k, v := range explicitFlags {
		copied[k] = v
	}
	return &ConfigurationLoaderImpl{explicitFlags: copied}
}

// LoadConfig loads configuration from configPath, or the configuration
// discovered upward from targetPath
func (c *ConfigurationLoaderImpl) LoadConfig(configPath, targetPath string) (*domain.LowerRequest, error) {
	cfg, err := config.LoadConfigWithTarget(configPath, targetPath)
	if err != nil {
		return nil, domain.NewConfigError("failed to load configuration", err)
	}
	req := RequestFromConfig(cfg)
	req.ConfigPath = configPath
	return req, nil
}

// LoadDefaultConfig loads the default configuration
func (c *ConfigurationLoaderImpl) LoadDefaultConfig() *domain.LowerRequest {
	return RequestFromConfig(config.DefaultConfig())
}

// MergeConfig merges CLI flags with configuration file
func (c *ConfigurationLoaderImpl) MergeConfig(base *domain.LowerRequest, override *domain.LowerRequest) *domain.LowerRequest {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	cfg := configFromRequest(base)
	cfg.ApplyOverrides(config.Overrides{
		Format:           string(override.OutputFormat),
		ShowConstants:    override.ShowConstants,
		MergeBlocks:      override.MergeBlocks,
		ReuseSingleBlock: override.ReuseSingleBlock,
		OSREntry:         override.OSREntry,
		Types:            override.Types,
		MaxConcurrency:   override.MaxConcurrency,
		FunctionWorkers:  override.FunctionWorkers,
		TimeoutSeconds:   int(override.Timeout / time.Second),
		IncludePatterns:  override.IncludePatterns,
		ExcludePatterns:  override.ExcludePatterns,
		Recursive:        override.Recursive,
	}, c.explicitFlags)

	merged := RequestFromConfig(cfg)

	// These come from the command itself, never from files
	merged.Paths = base.Paths
	if len(override.Paths) > 0 {
		merged.Paths = override.Paths
	}
	merged.OutputWriter = override.OutputWriter
	merged.OutputPath = override.OutputPath
	merged.Functions = override.Functions
	merged.Analyze = override.Analyze || base.Analyze
	merged.ConfigPath = base.ConfigPath
	if override.ConfigPath != "" {
		merged.ConfigPath = override.ConfigPath
	}
	return merged
}

// RequestFromConfig converts file configuration into a request
func RequestFromConfig(cfg *config.Config) *domain.LowerRequest {
	return &domain.LowerRequest{
		OutputFormat:     domain.OutputFormat(cfg.Output.Format),
		ShowConstants:    cfg.Output.ShowConstants,
		MergeBlocks:      cfg.Allocator.MergeBlocks,
		ReuseSingleBlock: cfg.Allocator.ReuseSingleBlock,
		OSREntry:         cfg.Analysis.OSREntry,
		Types:            cfg.Analysis.Types,
		MaxConcurrency:   cfg.Analysis.MaxConcurrency,
		FunctionWorkers:  cfg.Analysis.FunctionWorkers,
		Timeout:          time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second,
		Recursive:        cfg.Input.Recursive,
		IncludePatterns:  cfg.Input.IncludePatterns,
		ExcludePatterns:  cfg.Input.ExcludePatterns,
	}
}

// configFromRequest is the inverse of RequestFromConfig
func configFromRequest(req *domain.LowerRequest) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Output.Format = string(req.OutputFormat)
	cfg.Output.ShowConstants = req.ShowConstants
	cfg.Allocator.MergeBlocks = req.MergeBlocks
	cfg.Allocator.ReuseSingleBlock = req.ReuseSingleBlock
	cfg.Analysis.OSREntry = req.OSREntry
	cfg.Analysis.Types = req.Types
	cfg.Analysis.MaxConcurrency = req.MaxConcurrency
	cfg.Analysis.FunctionWorkers = req.FunctionWorkers
	cfg.Analysis.TimeoutSeconds = int(req.Timeout / time.Second)
	cfg.Input.Recursive = req.Recursive
	cfg.Input.IncludePatterns = req.IncludePatterns
	cfg.Input.ExcludePatterns = req.ExcludePatterns
	return cfg
}
