package service

import (
	"context"
	"errors"
	"strings"

	"github.com/ludo-technologies/pyjit/domain"
)

// ErrorCategorizerImpl implements the ErrorCategorizer interface
type ErrorCategorizerImpl struct {
	patterns []categoryPatterns
}

type categoryPatterns struct {
	category domain.ErrorCategory
	patterns []string
}

// NewErrorCategorizer creates a new error categorizer
func NewErrorCategorizer() domain.ErrorCategorizer {
	return &ErrorCategorizerImpl{
		patterns: []categoryPatterns{
			{domain.ErrorCategoryTimeout, []string{"timeout", "timed out", "deadline", "context canceled", "cancelled"}},
			{domain.ErrorCategoryConfig, []string{"config", ".toml", "yaml", "invalid output.format"}},
			{domain.ErrorCategoryInput, []string{"no python files", "file not found", "no such file", "permission denied", "path"}},
			{domain.ErrorCategoryOutput, []string{"output", "write", "unsupported format"}},
			{domain.ErrorCategorySource, []string{"syntax", "compile"}},
			{domain.ErrorCategoryCompiler, []string{"internal compiler error"}},
		},
	}
}

// categoryForCode maps domain error codes to categories
var categoryForCode = map[string]domain.ErrorCategory{
	domain.ErrCodeInvalidInput:      domain.ErrorCategoryInput,
	domain.ErrCodeFileNotFound:      domain.ErrorCategoryInput,
	domain.ErrCodeParseError:        domain.ErrorCategorySource,
	domain.ErrCodeCompileError:      domain.ErrorCategorySource,
	domain.ErrCodeInternalError:     domain.ErrorCategoryCompiler,
	domain.ErrCodeConfigError:       domain.ErrorCategoryConfig,
	domain.ErrCodeOutputError:       domain.ErrorCategoryOutput,
	domain.ErrCodeUnsupportedFormat: domain.ErrorCategoryOutput,
}

// Categorize determines the category of an error. Domain error codes win
// over message patterns, and timeouts win over both.
func (ec *ErrorCategorizerImpl) Categorize(err error) *domain.CategorizedError {
	if err == nil {
		return nil
	}

	category := domain.ErrorCategoryUnknown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		category = domain.ErrorCategoryTimeout
	} else if c, ok := categoryForCode[domain.ErrorCode(err)]; ok {
		category = c
	} else {
		msg := strings.ToLower(err.Error())
		for _, cp := range ec.patterns {
			if containsAnyPattern(msg, cp.patterns) {
				category = cp.category
				break
			}
		}
	}

	return &domain.CategorizedError{
		Category: category,
		Message:  categoryMessages[category],
		Original: err,
	}
}

var categoryMessages = map[domain.ErrorCategory]string{
	domain.ErrorCategoryInput:    "Failed to process input files or directories",
	domain.ErrorCategoryConfig:   "Configuration file or settings error",
	domain.ErrorCategorySource:   "The compiled source was rejected",
	domain.ErrorCategoryCompiler: "The compiler hit an internal error",
	domain.ErrorCategoryOutput:   "Failed to generate or write output",
	domain.ErrorCategoryTimeout:  "Lowering timed out or was cancelled",
	domain.ErrorCategoryUnknown:  "An unexpected error occurred",
}

// GetRecoverySuggestions returns recovery suggestions for an error category
func (ec *ErrorCategorizerImpl) GetRecoverySuggestions(category domain.ErrorCategory) []string {
	suggestions := map[domain.ErrorCategory][]string{
		domain.ErrorCategoryInput: {
			"Check that files/directories exist and contain Python files",
			"Check --include and --exclude patterns",
		},
		domain.ErrorCategoryConfig: {
			"Check for syntax errors in .pyjit.toml or the [tool.pyjit] table of pyproject.toml",
			"Try: pyjit init to generate a valid config file",
		},
		domain.ErrorCategorySource: {
			"Run: pyjit check <file> to list syntax and compile errors",
		},
		domain.ErrorCategoryCompiler: {
			"Run with --verbose and report the failing function",
			"Try --no-merge or --no-reuse to narrow down the failing pass",
		},
		domain.ErrorCategoryOutput: {
			"Use --format text, json, yaml or dot",
			"Ensure the output directory is writable",
		},
		domain.ErrorCategoryTimeout: {
			"Raise timeout_seconds in [analysis] or lower fewer files at once",
		},
		domain.ErrorCategoryUnknown: {
			"Run with --verbose for detailed error information",
		},
	}

	if sug, ok := suggestions[category]; ok {
		return sug
	}
	return []string{"Check the error message for more details"}
}

// containsAnyPattern checks if a string contains any of the given patterns
func containsAnyPattern(str string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(str, pattern) {
			return true
		}
	}
	return false
}
