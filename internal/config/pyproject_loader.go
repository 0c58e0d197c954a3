package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// PyprojectToml represents the parts of pyproject.toml read by pyjit
type PyprojectToml struct {
	Tool ToolConfig `toml:"tool"`
}

// ToolConfig represents the [tool] section
type ToolConfig struct {
	Pyjit PyjitTomlConfig `toml:"pyjit"`
}

// LoadPyprojectConfig loads configuration from the [tool.pyjit] table of
// the nearest pyproject.toml, or the defaults when there is none
func LoadPyprojectConfig(startDir string) (*Config, error) {
	configPath, err := findPyprojectToml(startDir)
	if err != nil {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var pyproject PyprojectToml
	if err := toml.Unmarshal(data, &pyproject); err != nil {
		return nil, err
	}

	config := DefaultConfig()
	mergeTomlConfig(config, &pyproject.Tool.Pyjit)
	return config, nil
}

// findPyprojectToml walks up the directory tree to find pyproject.toml
func findPyprojectToml(startDir string) (string, error) {
	return findUpward(startDir, "pyproject.toml")
}
