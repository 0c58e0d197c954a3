package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Default lowering and analysis settings
const (
	// DefaultOutputFormat is used when neither a config file nor a flag names one
	DefaultOutputFormat = "text"

	// DefaultMaxConcurrency bounds the files compiled at once; 0 means one per CPU
	DefaultMaxConcurrency = 0

	// DefaultFunctionWorkers bounds the functions of one module lowered at once
	DefaultFunctionWorkers = 4

	// DefaultTimeoutSeconds caps a whole run
	DefaultTimeoutSeconds = 600
)

// Config represents the main configuration structure
type Config struct {
	// Output holds report formatting configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" toml:"output"`

	// Allocator holds lowering and register allocation switches
	Allocator AllocatorConfig `mapstructure:"allocator" yaml:"allocator" toml:"allocator"`

	// Analysis holds dataflow analysis and scheduling configuration
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis" toml:"analysis"`

	// Input holds file collection configuration
	Input InputConfig `mapstructure:"input" yaml:"input" toml:"input"`
}

// OutputConfig holds configuration for output formatting
type OutputConfig struct {
	// Format specifies the output format: text, json, yaml, dot
	Format string `mapstructure:"format" yaml:"format" toml:"format"`

	// Directory receives report files when an output file has no directory
	Directory string `mapstructure:"directory" yaml:"directory" toml:"directory"`

	// ShowConstants lists the constant pool of each function in text output
	ShowConstants bool `mapstructure:"show_constants" yaml:"show_constants" toml:"show_constants"`
}

// AllocatorConfig holds lowering switches
type AllocatorConfig struct {
	// MergeBlocks runs the block-merge post-pass
	MergeBlocks bool `mapstructure:"merge_blocks" yaml:"merge_blocks" toml:"merge_blocks"`

	// ReuseSingleBlock lets single-block temporaries share registers
	ReuseSingleBlock bool `mapstructure:"reuse_single_block" yaml:"reuse_single_block" toml:"reuse_single_block"`
}

// AnalysisConfig holds dataflow and scheduling configuration
type AnalysisConfig struct {
	// OSREntry treats the entry block as an on-stack-replacement resume point
	OSREntry bool `mapstructure:"osr_entry" yaml:"osr_entry" toml:"osr_entry"`

	// Types enables speculative type analysis
	Types bool `mapstructure:"types" yaml:"types" toml:"types"`

	// MaxConcurrency bounds the number of files processed in parallel
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency" toml:"max_concurrency"`

	// FunctionWorkers bounds the functions of one module lowered in parallel
	FunctionWorkers int `mapstructure:"function_workers" yaml:"function_workers" toml:"function_workers"`

	// TimeoutSeconds caps a whole run; 0 disables the timeout
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// InputConfig holds file collection configuration
type InputConfig struct {
	// IncludePatterns are doublestar globs a file must match
	IncludePatterns []string `mapstructure:"include_patterns" yaml:"include_patterns" toml:"include_patterns"`

	// ExcludePatterns are doublestar globs that drop a file
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns" toml:"exclude_patterns"`

	// Recursive controls whether directories are walked recursively
	Recursive bool `mapstructure:"recursive" yaml:"recursive" toml:"recursive"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Format: DefaultOutputFormat,
		},
		Allocator: AllocatorConfig{
			MergeBlocks:      true,
			ReuseSingleBlock: true,
		},
		Analysis: AnalysisConfig{
			MaxConcurrency:  DefaultMaxConcurrency,
			FunctionWorkers: DefaultFunctionWorkers,
			TimeoutSeconds:  DefaultTimeoutSeconds,
		},
		Input: InputConfig{
			IncludePatterns: []string{"**/*.py"},
			ExcludePatterns: []string{"**/__pycache__/**", "**/.venv/**"},
			Recursive:       true,
		},
	}
}

// LoadConfig loads configuration from a yaml, toml or json file, or returns
// the default config when configPath is empty and no default file exists
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		configPath = findDefaultConfig()
	}
	if configPath == "" {
		return config, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadConfigWithTarget resolves the configuration for a run over targetPath:
// an explicit file wins, then .pyjit.toml or pyproject.toml found upward
// from the target, then the defaults
func LoadConfigWithTarget(configPath, targetPath string) (*Config, error) {
	if configPath != "" {
		return LoadConfig(configPath)
	}

	startDir := targetPath
	if startDir == "" {
		startDir = "."
	}
	if info, err := os.Stat(startDir); err == nil && !info.IsDir() {
		startDir = filepath.Dir(startDir)
	}
	if abs, err := filepath.Abs(startDir); err == nil {
		startDir = abs
	}

	config, err := NewTomlConfigLoader().LoadConfig(startDir)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// findDefaultConfig looks for yaml or json configuration in the working directory
func findDefaultConfig() string {
	candidates := []string{
		"pyjit.yaml",
		"pyjit.yml",
		".pyjit.yaml",
		".pyjit.yml",
		"pyjit.json",
		".pyjit.json",
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Validate validates the configuration values
func (c *Config) Validate() error {
	validFormats := map[string]bool{
		"text": true,
		"json": true,
		"yaml": true,
		"dot":  true,
	}
	if !validFormats[c.Output.Format] {
		return fmt.Errorf("invalid output.format '%s', must be one of: text, json, yaml, dot", c.Output.Format)
	}

	if c.Analysis.MaxConcurrency < 0 {
		return fmt.Errorf("analysis.max_concurrency must be >= 0, got %d", c.Analysis.MaxConcurrency)
	}
	if c.Analysis.FunctionWorkers < 1 {
		return fmt.Errorf("analysis.function_workers must be >= 1, got %d", c.Analysis.FunctionWorkers)
	}
	if c.Analysis.TimeoutSeconds < 0 {
		return fmt.Errorf("analysis.timeout_seconds must be >= 0, got %d", c.Analysis.TimeoutSeconds)
	}

	if len(c.Input.IncludePatterns) == 0 {
		return fmt.Errorf("input.include_patterns cannot be empty")
	}
	return nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("output", config.Output)
	v.Set("allocator", config.Allocator)
	v.Set("analysis", config.Analysis)
	v.Set("input", config.Input)

	return v.WriteConfig()
}
