package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFileName is the dedicated configuration file searched for upward
// from the target directory
const ConfigFileName = ".pyjit.toml"

// PyjitTomlConfig represents the structure of .pyjit.toml and of the
// [tool.pyjit] table in pyproject.toml
type PyjitTomlConfig struct {
	Output    PyjitTomlOutputConfig    `toml:"output"`
	Allocator PyjitTomlAllocatorConfig `toml:"allocator"`
	Analysis  PyjitTomlAnalysisConfig  `toml:"analysis"`
	Input     PyjitTomlInputConfig     `toml:"input"`
}

type PyjitTomlOutputConfig struct {
	Format        string `toml:"format"`
	Directory     string `toml:"directory"`
	ShowConstants *bool  `toml:"show_constants"` // pointer to detect unset
}

type PyjitTomlAllocatorConfig struct {
	MergeBlocks      *bool `toml:"merge_blocks"`       // pointer to detect unset
	ReuseSingleBlock *bool `toml:"reuse_single_block"` // pointer to detect unset
}

type PyjitTomlAnalysisConfig struct {
	OSREntry        *bool `toml:"osr_entry"`
	Types           *bool `toml:"types"`
	MaxConcurrency  *int  `toml:"max_concurrency"`
	FunctionWorkers int   `toml:"function_workers"`
	TimeoutSeconds  *int  `toml:"timeout_seconds"`
}

type PyjitTomlInputConfig struct {
	IncludePatterns []string `toml:"include_patterns"`
	ExcludePatterns []string `toml:"exclude_patterns"`
	Recursive       *bool    `toml:"recursive"` // pointer to detect unset
}

// TomlConfigLoader handles TOML-only configuration loading
type TomlConfigLoader struct{}

// NewTomlConfigLoader creates a new TOML configuration loader
func NewTomlConfigLoader() *TomlConfigLoader {
	return &TomlConfigLoader{}
}

// LoadConfig loads configuration from TOML files with ruff-like priority:
// 1. .pyjit.toml (dedicated config file)
// 2. pyproject.toml (with [tool.pyjit] section)
// 3. defaults
//
// A file that exists but fails to parse is an error, not a fallthrough.
func (l *TomlConfigLoader) LoadConfig(startDir string) (*Config, error) {
	if path, err := findUpward(startDir, ConfigFileName); err == nil {
		return l.LoadFile(path)
	}
	if _, err := findPyprojectToml(startDir); err == nil {
		return LoadPyprojectConfig(startDir)
	}
	return DefaultConfig(), nil
}

// LoadFile reads one .pyjit.toml file and merges it over the defaults
func (l *TomlConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tomlConfig PyjitTomlConfig
	if err := toml.Unmarshal(data, &tomlConfig); err != nil {
		return nil, err
	}

	config := DefaultConfig()
	mergeTomlConfig(config, &tomlConfig)
	return config, nil
}

// findUpward walks up the directory tree from startDir looking for name
func findUpward(startDir, name string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

// mergeTomlConfig copies every value set in the file over the defaults
func mergeTomlConfig(defaults *Config, file *PyjitTomlConfig) {
	if file.Output.Format != "" {
		defaults.Output.Format = file.Output.Format
	}
	if file.Output.Directory != "" {
		defaults.Output.Directory = file.Output.Directory
	}
	if file.Output.ShowConstants != nil {
		defaults.Output.ShowConstants = *file.Output.ShowConstants
	}

	if file.Allocator.MergeBlocks != nil {
		defaults.Allocator.MergeBlocks = *file.Allocator.MergeBlocks
	}
	if file.Allocator.ReuseSingleBlock != nil {
		defaults.Allocator.ReuseSingleBlock = *file.Allocator.ReuseSingleBlock
	}

	if file.Analysis.OSREntry != nil {
		defaults.Analysis.OSREntry = *file.Analysis.OSREntry
	}
	if file.Analysis.Types != nil {
		defaults.Analysis.Types = *file.Analysis.Types
	}
	if file.Analysis.MaxConcurrency != nil {
		defaults.Analysis.MaxConcurrency = *file.Analysis.MaxConcurrency
	}
	if file.Analysis.FunctionWorkers > 0 {
		defaults.Analysis.FunctionWorkers = file.Analysis.FunctionWorkers
	}
	if file.Analysis.TimeoutSeconds != nil {
		defaults.Analysis.TimeoutSeconds = *file.Analysis.TimeoutSeconds
	}

	if len(file.Input.IncludePatterns) > 0 {
		defaults.Input.IncludePatterns = file.Input.IncludePatterns
	}
	if file.Input.ExcludePatterns != nil {
		defaults.Input.ExcludePatterns = file.Input.ExcludePatterns
	}
	if file.Input.Recursive != nil {
		defaults.Input.Recursive = *file.Input.Recursive
	}
}

// WriteTomlConfig writes config as a complete .pyjit.toml document
func WriteTomlConfig(config *Config, path string) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
