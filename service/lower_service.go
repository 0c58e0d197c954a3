package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ludo-technologies/pyjit/domain"
	"github.com/ludo-technologies/pyjit/internal/analyzer"
	"github.com/ludo-technologies/pyjit/internal/parser"
	"github.com/ludo-technologies/pyjit/internal/version"
)

// LowerServiceImpl implements the LowerService interface. Files are
// compiled in parallel by a ParallelExecutor; within one file, scope
// classification and CFG construction run first and the per-function
// lowering and analyses then run in an errgroup.
type LowerServiceImpl struct {
	fileReader domain.FileReader
	progress   domain.ProgressManager
	logger     *log.Logger
}

// NewLowerService creates a lowering service reading from the file system
// and reporting progress on stderr
func NewLowerService() *LowerServiceImpl {
	return NewLowerServiceWithDeps(NewFileReader(), NewProgressManager())
}

// NewLowerServiceWithDeps creates a lowering service with the given collaborators
func NewLowerServiceWithDeps(fileReader domain.FileReader, progress domain.ProgressManager) *LowerServiceImpl {
	return &LowerServiceImpl{
		fileReader: fileReader,
		progress:   progress,
	}
}

// SetLogger sets the logger passed down to the CFG builder and the register
// allocator; nil silences them
func (s *LowerServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

func (s *LowerServiceImpl) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Lower compiles every Python file named by the request
func (s *LowerServiceImpl) Lower(ctx context.Context, req domain.LowerRequest) (*domain.LowerResponse, error) {
	files, err := s.fileReader.CollectPythonFiles(req.Paths, req.Recursive, req.IncludePatterns, req.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, domain.NewInvalidInputError("no Python files found in the specified paths", nil)
	}
	s.logf("lowering %d files", len(files))

	results := make([]*domain.FileLowering, len(files))
	warnings := make([]string, len(files))
	var done int32

	if s.progress != nil {
		s.progress.Initialize(len(files))
		s.progress.Start()
		defer s.progress.Close()
	}

	tasks := make([]domain.ExecutableTask, len(files))
	for i, file := range files {
		tasks[i] = NewSimpleTask(file, true, func(ctx context.Context) (interface{}, error) {
			fl, err := s.LowerFile(ctx, file, req)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				// unreadable files are reported and skipped
				warnings[i] = err.Error()
			}
			results[i] = fl
			if s.progress != nil {
				s.progress.Update(int(atomic.AddInt32(&done, 1)), len(files))
			}
			return fl, nil
		})
	}

	executor := NewParallelExecutor()
	maxConcurrency := req.MaxConcurrency
	if maxConcurrency == 0 {
		maxConcurrency = runtime.NumCPU()
	}
	executor.SetMaxConcurrency(maxConcurrency)
	executor.SetTimeout(req.Timeout)

	err = executor.Execute(ctx, tasks)
	if s.progress != nil {
		s.progress.Complete(err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("lowering failed: %w", err)
	}

	response := &domain.LowerResponse{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Version:     version.Short(),
	}
	for i, fl := range results {
		if warnings[i] != "" {
			response.Warnings = append(response.Warnings, warnings[i])
		}
		if fl == nil {
			response.Summary.FilesFailed++
			continue
		}
		response.Files = append(response.Files, *fl)
	}
	summarize(response)
	return response, nil
}

// LowerFile compiles a single Python file
func (s *LowerServiceImpl) LowerFile(ctx context.Context, filePath string, req domain.LowerRequest) (*domain.FileLowering, error) {
	source, err := s.fileReader.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return s.LowerSource(ctx, filePath, source, req)
}

// LowerSource compiles source text registered under name. Syntax errors,
// compile errors and per-function internal errors are returned as
// diagnostics of the file; the returned error is reserved for
// cancellation and failures outside the compiled source.
func (s *LowerServiceImpl) LowerSource(ctx context.Context, name string, source []byte, req domain.LowerRequest) (*domain.FileLowering, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &domain.FileLowering{FilePath: name}

	parsed, err := parser.New().ParseNamed(ctx, name, source)
	if err != nil {
		if diag, ok := diagnosticFor(name, err); ok {
			result.Errors = append(result.Errors, diag)
			return result, nil
		}
		return nil, domain.NewParseError(name, err)
	}

	prog, err := analyzer.BuildProgram(parsed.AST, s.logger)
	if err != nil {
		if diag, ok := diagnosticFor(name, err); ok {
			result.Errors = append(result.Errors, diag)
			return result, nil
		}
		return nil, domain.NewCompileError(name, err)
	}

	cfgs := prog.Functions()
	lowered := make([]*domain.FunctionIR, len(cfgs))
	diags := make([]*domain.Diagnostic, len(cfgs))

	workers := req.FunctionWorkers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, cfg := range cfgs {
		if !req.WantsFunction(cfg.Name) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ir, err := s.lowerFunction(cfg, req)
			if err != nil {
				diag, ok := diagnosticFor(name, err)
				if !ok {
					return fmt.Errorf("lowering %s: %w", cfg.Name, err)
				}
				if diag.Function == "" {
					diag.Function = cfg.Name
				}
				s.logf("%s: %s", name, diag.Message)
				diags[i] = &diag
				return nil
			}
			lowered[i] = ir
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range cfgs {
		if lowered[i] != nil {
			result.Functions = append(result.Functions, *lowered[i])
		}
		if diags[i] != nil {
			result.Errors = append(result.Errors, *diags[i])
		}
	}
	return result, nil
}

// lowerFunction finalizes, merges and allocates one CFG, checks its
// structure and runs the requested analyses
func (s *LowerServiceImpl) lowerFunction(cfg *analyzer.CFG, req domain.LowerRequest) (*domain.FunctionIR, error) {
	opts := analyzer.CompileOptions{
		MergeBlocks: req.MergeBlocks,
		Allocator:   analyzer.RegAllocOptions{ReuseSingleBlock: req.ReuseSingleBlock},
		Logger:      s.logger,
	}
	if err := analyzer.LowerFunction(cfg, opts); err != nil {
		return nil, err
	}
	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	ir := describeCFG(cfg, req.ShowConstants)
	if !req.Analyze {
		return &ir, nil
	}

	fa, err := analyzer.AnalyzeFunction(cfg, analyzer.AnalysisOptions{
		Phi:   analyzer.PhiOptions{OSREntry: req.OSREntry},
		Types: req.Types,
	})
	if err != nil {
		return nil, err
	}
	ir.Dataflow = describeDataflow(fa, req.OSREntry)
	return &ir, nil
}

// diagnosticFor converts the errors caused by compiled source, and internal
// compiler errors, into diagnostics
func diagnosticFor(file string, err error) (domain.Diagnostic, bool) {
	var syntaxErr *parser.SyntaxError
	var compileErr *analyzer.CompileError
	var internalErr *analyzer.InternalError

	switch {
	case errors.As(err, &syntaxErr):
		return domain.Diagnostic{
			Kind:     domain.DiagnosticSyntax,
			File:     file,
			Function: syntaxErr.Function,
			Line:     syntaxErr.Line,
			Column:   syntaxErr.Col,
			Message:  syntaxErr.Error(),
		}, true
	case errors.As(err, &compileErr):
		return domain.Diagnostic{
			Kind:     domain.DiagnosticCompile,
			File:     file,
			Function: compileErr.Function,
			Line:     compileErr.Pos.Line,
			Column:   compileErr.Pos.Col,
			Message:  compileErr.Msg,
		}, true
	case errors.As(err, &internalErr):
		return domain.Diagnostic{
			Kind:     domain.DiagnosticInternal,
			File:     file,
			Function: internalErr.Function,
			Message:  internalErr.Msg,
		}, true
	default:
		return domain.Diagnostic{}, false
	}
}

// summarize fills in the aggregate statistics of a response
func summarize(response *domain.LowerResponse) {
	sum := &response.Summary
	for _, f := range response.Files {
		sum.FilesProcessed++
		if f.HasErrors() {
			sum.FilesFailed++
		}
		for _, fn := range f.Functions {
			sum.Functions++
			sum.Blocks += len(fn.Blocks)
			sum.Instructions += fn.InstructionCount()
			sum.Registers += fn.Registers.Total
			if fn.Dataflow != nil {
				sum.Phis += fn.Dataflow.PhiCount
			}
		}
		for _, d := range f.Errors {
			switch d.Kind {
			case domain.DiagnosticSyntax:
				sum.SyntaxErrors++
			case domain.DiagnosticCompile:
				sum.CompileErrors++
			case domain.DiagnosticInternal:
				sum.InternalErrors++
			}
		}
	}
}
