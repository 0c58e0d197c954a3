package analyzer

import (
	"fmt"
	"log"

	"github.com/ludo-technologies/pyjit/internal/parser"
	"github.com/ludo-technologies/pyjit/internal/scope"
)

// CompileOptions configures lowering of one module.
type CompileOptions struct {
	// MergeBlocks runs the block-merge post-pass after finalization
	MergeBlocks bool
	Allocator   RegAllocOptions
	Logger      *log.Logger
}

// DefaultCompileOptions returns the default lowering configuration.
func DefaultCompileOptions() CompileOptions {
	return CompileOptions{
		MergeBlocks: true,
		Allocator:   DefaultRegAllocOptions(),
	}
}

// BuildProgram classifies the scopes of module and builds the CFG of every
// code object in it. The CFGs are placed but not finalized.
func BuildProgram(module *parser.Node, logger *log.Logger) (*Program, error) {
	info, err := scope.Analyze(module)
	if err != nil {
		return nil, fromScopeError(err)
	}
	builder := NewCFGBuilder(info)
	builder.SetLogger(logger)
	return builder.Build()
}

// LowerFunction finalizes one built CFG, merges trivially chained blocks if
// asked to, and allocates its registers.
func LowerFunction(cfg *CFG, opts CompileOptions) error {
	if err := cfg.Finalize(); err != nil {
		return err
	}
	if opts.MergeBlocks {
		if _, err := cfg.MergeBlocks(); err != nil {
			return err
		}
	}
	alloc := NewRegisterAllocator(opts.Allocator)
	alloc.SetLogger(opts.Logger)
	if _, err := alloc.Allocate(cfg); err != nil {
		return err
	}
	return nil
}

// Compile builds and lowers every code object of a module sequentially.
func Compile(module *parser.Node, opts CompileOptions) (*Program, error) {
	prog, err := BuildProgram(module, opts.Logger)
	if err != nil {
		return nil, err
	}
	for _, cfg := range prog.Functions() {
		if err := LowerFunction(cfg, opts); err != nil {
			return nil, fmt.Errorf("lowering %s: %w", cfg.Name, err)
		}
	}
	return prog, nil
}

// FunctionAnalysis bundles the dataflow results of one lowered CFG.
type FunctionAnalysis struct {
	CFG         *CFG
	Liveness    *Liveness
	Definedness *Definedness
	Phis        *PhiPlacement
	// Types is nil unless requested
	Types *TypeAnalysis
}

// AnalysisOptions selects the analyses run by AnalyzeFunction.
type AnalysisOptions struct {
	Phi   PhiOptions
	Types bool
}

// AnalyzeFunction runs liveness, definedness and phi placement, plus type
// analysis when asked, over a lowered CFG. Results are memoized on the CFG
// per option set until the CFG is relaid out or reallocated.
func AnalyzeFunction(cfg *CFG, opts AnalysisOptions) (*FunctionAnalysis, error) {
	cfg.analysisMu.Lock()
	defer cfg.analysisMu.Unlock()
	if fa, ok := cfg.analyses[opts]; ok {
		return fa, nil
	}
	fa, err := analyzeFunction(cfg, opts)
	if err != nil {
		return nil, err
	}
	if cfg.analyses == nil {
		cfg.analyses = make(map[AnalysisOptions]*FunctionAnalysis)
	}
	cfg.analyses[opts] = fa
	return fa, nil
}

func analyzeFunction(cfg *CFG, opts AnalysisOptions) (*FunctionAnalysis, error) {
	live, err := NewLiveness(cfg)
	if err != nil {
		return nil, err
	}
	defs, err := AnalyzeDefinedness(cfg)
	if err != nil {
		return nil, err
	}
	phis, err := AnalyzePhis(cfg, live, defs, opts.Phi)
	if err != nil {
		return nil, err
	}
	fa := &FunctionAnalysis{CFG: cfg, Liveness: live, Definedness: defs, Phis: phis}
	if opts.Types {
		if fa.Types, err = AnalyzeTypes(cfg); err != nil {
			return nil, err
		}
	}
	return fa, nil
}
