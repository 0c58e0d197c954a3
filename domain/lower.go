package domain

import (
	"context"
	"io"
	"time"
)

// DiagnosticKind classifies a per-file or per-function failure
type DiagnosticKind string

const (
	// DiagnosticSyntax is a parse failure; nothing of the file was lowered
	DiagnosticSyntax DiagnosticKind = "syntax"
	// DiagnosticCompile is a source-level error such as 'break' outside a loop
	DiagnosticCompile DiagnosticKind = "compile"
	// DiagnosticInternal is a broken compiler invariant in one function
	DiagnosticInternal DiagnosticKind = "internal"
)

// LowerRequest represents a request to lower Python sources to register IR
type LowerRequest struct {
	// Input files or directories
	Paths []string

	// Output configuration
	OutputFormat  OutputFormat
	OutputWriter  io.Writer
	OutputPath    string
	ShowConstants bool

	// Functions restricts the report to these qualified names; empty keeps all
	Functions []string

	// Lowering switches
	MergeBlocks      bool
	ReuseSingleBlock bool

	// Dataflow analysis
	Analyze  bool
	OSREntry bool
	Types    bool

	// Configuration
	ConfigPath string

	// File collection
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Scheduling
	MaxConcurrency  int
	FunctionWorkers int
	Timeout         time.Duration
}

// DefaultLowerRequest returns a request with the default lowering settings
func DefaultLowerRequest() *LowerRequest {
	return &LowerRequest{
		OutputFormat:     OutputFormatText,
		MergeBlocks:      true,
		ReuseSingleBlock: true,
		Recursive:        true,
		IncludePatterns:  []string{"**/*.py"},
		ExcludePatterns:  []string{"**/__pycache__/**", "**/.venv/**"},
		FunctionWorkers:  4,
		Timeout:          10 * time.Minute,
	}
}

// Validate validates the lower request
func (req *LowerRequest) Validate() error {
	if len(req.Paths) == 0 {
		return NewInvalidInputError("at least one path must be specified", nil)
	}
	if _, err := ParseOutputFormat(string(req.OutputFormat)); err != nil {
		return NewInvalidInputError("invalid output format", err)
	}
	if req.MaxConcurrency < 0 {
		return NewInvalidInputError("max concurrency must be >= 0", nil)
	}
	if req.FunctionWorkers < 1 {
		return NewInvalidInputError("function workers must be >= 1", nil)
	}
	if req.Timeout < 0 {
		return NewInvalidInputError("timeout must be >= 0", nil)
	}
	if req.Types && !req.Analyze {
		return NewInvalidInputError("type analysis requires dataflow analysis", nil)
	}
	return nil
}

// WantsFunction reports whether the function filter keeps name
func (req *LowerRequest) WantsFunction(name string) bool {
	if len(req.Functions) == 0 {
		return true
	}
	for _, f := range req.Functions {
		if f == name {
			return true
		}
	}
	return false
}

// Diagnostic is an error attached to a file or one of its functions
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind" yaml:"kind"`
	File     string         `json:"file" yaml:"file"`
	Function string         `json:"function,omitempty" yaml:"function,omitempty"`
	Line     int            `json:"line,omitempty" yaml:"line,omitempty"`
	Column   int            `json:"column,omitempty" yaml:"column,omitempty"`
	Message  string         `json:"message" yaml:"message"`
}

// RegisterLayout is the frame layout chosen by register allocation
type RegisterLayout struct {
	Params int `json:"params" yaml:"params"`
	User   int `json:"user" yaml:"user"`
	Cross  int `json:"cross_block" yaml:"cross_block"`
	Single int `json:"single_block" yaml:"single_block"`
	Total  int `json:"total" yaml:"total"`

	// Names lists user-visible variables in register order
	Names []string `json:"names,omitempty" yaml:"names,omitempty"`
}

// EdgeInfo is one outgoing control-flow edge of a block
type EdgeInfo struct {
	To   int    `json:"to" yaml:"to"`
	Kind string `json:"kind" yaml:"kind"`
}

// BlockInfo is one placed basic block
type BlockInfo struct {
	Index  int        `json:"index" yaml:"index"`
	Label  string     `json:"label" yaml:"label"`
	Preds  []int      `json:"preds,omitempty" yaml:"preds,omitempty"`
	Instrs []string   `json:"instrs" yaml:"instrs"`
	Succs  []EdgeInfo `json:"succs,omitempty" yaml:"succs,omitempty"`
}

// VariableState is the dataflow state of one user variable at block entry
type VariableState struct {
	Name    string `json:"name" yaml:"name"`
	Defined string `json:"defined" yaml:"defined"`
	Live    bool   `json:"live" yaml:"live"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
}

// BlockDataflow holds the analysis results for one block
type BlockDataflow struct {
	Index int `json:"index" yaml:"index"`

	// Phis lists the registers merged at block entry
	Phis []string `json:"phis,omitempty" yaml:"phis,omitempty"`

	Variables []VariableState `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// FunctionDataflow bundles liveness, definedness, phi and type results
type FunctionDataflow struct {
	PhiCount int             `json:"phi_count" yaml:"phi_count"`
	OSREntry bool            `json:"osr_entry" yaml:"osr_entry"`
	Blocks   []BlockDataflow `json:"blocks" yaml:"blocks"`
}

// FunctionIR is the lowered form of one code object
type FunctionIR struct {
	Name       string         `json:"name" yaml:"name"`
	Kind       string         `json:"kind" yaml:"kind"`
	Params     []string       `json:"params,omitempty" yaml:"params,omitempty"`
	Generator  bool           `json:"generator,omitempty" yaml:"generator,omitempty"`
	Registers  RegisterLayout `json:"registers" yaml:"registers"`
	Blocks     []BlockInfo    `json:"blocks" yaml:"blocks"`
	DeadBlocks int            `json:"dead_blocks" yaml:"dead_blocks"`
	Complexity int            `json:"complexity" yaml:"complexity"`
	Constants  []string       `json:"constants,omitempty" yaml:"constants,omitempty"`

	// Dataflow is set when analysis was requested
	Dataflow *FunctionDataflow `json:"dataflow,omitempty" yaml:"dataflow,omitempty"`
}

// InstructionCount sums the instructions of every block
func (f *FunctionIR) InstructionCount() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Instrs)
	}
	return n
}

// FileLowering is the result of lowering one source file
type FileLowering struct {
	FilePath  string       `json:"file_path" yaml:"file_path"`
	Functions []FunctionIR `json:"functions" yaml:"functions"`
	Errors    []Diagnostic `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// HasErrors reports whether any diagnostic was recorded for the file
func (f *FileLowering) HasErrors() bool {
	return len(f.Errors) > 0
}

// LowerSummary represents aggregate statistics of a run
type LowerSummary struct {
	FilesProcessed int `json:"files_processed" yaml:"files_processed"`
	FilesFailed    int `json:"files_failed" yaml:"files_failed"`
	Functions      int `json:"functions" yaml:"functions"`
	Blocks         int `json:"blocks" yaml:"blocks"`
	Instructions   int `json:"instructions" yaml:"instructions"`
	Registers      int `json:"registers" yaml:"registers"`
	Phis           int `json:"phis" yaml:"phis"`
	SyntaxErrors   int `json:"syntax_errors" yaml:"syntax_errors"`
	CompileErrors  int `json:"compile_errors" yaml:"compile_errors"`
	InternalErrors int `json:"internal_errors" yaml:"internal_errors"`
}

// SourceErrors counts the errors caused by the compiled source
func (s LowerSummary) SourceErrors() int {
	return s.SyntaxErrors + s.CompileErrors
}

// LowerResponse represents the complete lowering result
type LowerResponse struct {
	Files   []FileLowering `json:"files" yaml:"files"`
	Summary LowerSummary   `json:"summary" yaml:"summary"`

	// Warnings are non-fatal issues such as skipped files
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	// Metadata
	GeneratedAt string `json:"generated_at" yaml:"generated_at"`
	Version     string `json:"version" yaml:"version"`
}

// Diagnostics returns every diagnostic of the run in file order
func (r *LowerResponse) Diagnostics() []Diagnostic {
	var out []Diagnostic
	for _, f := range r.Files {
		out = append(out, f.Errors...)
	}
	return out
}

// LowerService defines the core business logic for lowering
type LowerService interface {
	// Lower compiles every file named by the request
	Lower(ctx context.Context, req LowerRequest) (*LowerResponse, error)

	// LowerFile compiles a single Python file
	LowerFile(ctx context.Context, filePath string, req LowerRequest) (*FileLowering, error)

	// LowerSource compiles source text under the given display name
	LowerSource(ctx context.Context, name string, source []byte, req LowerRequest) (*FileLowering, error)
}

// FileReader defines the interface for reading and collecting Python files
type FileReader interface {
	// CollectPythonFiles finds all Python files in the given paths
	CollectPythonFiles(paths []string, recursive bool, includePatterns, excludePatterns []string) ([]string, error)

	// ReadFile reads the content of a file
	ReadFile(path string) ([]byte, error)

	// IsValidPythonFile checks if a file is a valid Python file
	IsValidPythonFile(path string) bool

	// FileExists checks if a file exists and returns an error if not
	FileExists(path string) (bool, error)
}

// LowerOutputFormatter defines the interface for formatting lowering results
type LowerOutputFormatter interface {
	// Format formats the response according to the specified format
	Format(response *LowerResponse, format OutputFormat) (string, error)

	// Write writes the formatted output to the writer
	Write(response *LowerResponse, format OutputFormat, writer io.Writer) error
}

// LowerConfigurationLoader defines the interface for loading configuration
type LowerConfigurationLoader interface {
	// LoadConfig loads configuration from configPath, or the configuration
	// discovered upward from targetPath when configPath is empty
	LoadConfig(configPath, targetPath string) (*LowerRequest, error)

	// LoadDefaultConfig loads the default configuration
	LoadDefaultConfig() *LowerRequest

	// MergeConfig merges CLI flags with configuration file
	MergeConfig(base *LowerRequest, override *LowerRequest) *LowerRequest
}
