package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ludo-technologies/pyjit/app"
	"github.com/ludo-technologies/pyjit/domain"
	"github.com/ludo-technologies/pyjit/internal/config"
	"github.com/ludo-technologies/pyjit/service"
)

// LowerCommand holds the flags shared by lower and analyze
type LowerCommand struct {
	// Output
	format        string
	outputPath    string
	showConstants bool
	functions     []string

	// Lowering switches
	noMerge bool
	noReuse bool

	// Analysis, only registered on analyze
	analyze bool
	osr     bool
	types   bool

	// Input
	configFile      string
	includePatterns []string
	excludePatterns []string
	recursive       bool

	// Scheduling
	maxConcurrency  int
	functionWorkers int
	timeout         time.Duration
}

// NewLowerCommand creates a new lower command
func NewLowerCommand() *LowerCommand {
	return &LowerCommand{
		format:          config.DefaultOutputFormat,
		recursive:       true,
		functionWorkers: config.DefaultFunctionWorkers,
		timeout:         config.DefaultTimeoutSeconds * time.Second,
	}
}

// CreateCobraCommand creates the cobra command for lowering
func (c *LowerCommand) CreateCobraCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lower [files|dirs...]",
		Short: "Compile Python source and print the CFG of every function",
		Long: `Compile Python source into register IR and print the placed
control flow graph of every module, class body, function and lambda.

Examples:
  # Lower every file under src/
  pyjit lower src/

  # Only one function, without block merging
  pyjit lower --function Widget.grow --no-merge widget.py

  # Graphviz output
  pyjit lower --format dot mod.py > mod.dot`,
		Args: cobra.ArbitraryArgs,
		RunE: c.run,
	}
	c.addFlags(cmd)
	return cmd
}

func (c *LowerCommand) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.format, config.FlagFormat, "f", c.format, "Output format: text, json, yaml, dot")
	cmd.Flags().StringVarP(&c.outputPath, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&c.showConstants, config.FlagShowConstants, false, "List the constant pool of each function")
	cmd.Flags().StringSliceVar(&c.functions, "function", nil, "Only report these qualified function names")

	cmd.Flags().BoolVar(&c.noMerge, "no-merge", false, "Skip the block-merge pass")
	cmd.Flags().BoolVar(&c.noReuse, "no-reuse", false, "Give every single-block temporary its own register")

	cmd.Flags().StringVarP(&c.configFile, "config", "c", "", "Configuration file path (.pyjit.toml, pyproject.toml or yaml)")
	cmd.Flags().StringSliceVar(&c.includePatterns, config.FlagInclude, nil, "Glob patterns of files to include")
	cmd.Flags().StringSliceVar(&c.excludePatterns, config.FlagExclude, nil, "Glob patterns of files to exclude")
	cmd.Flags().BoolVarP(&c.recursive, config.FlagRecursive, "r", c.recursive, "Walk directories recursively")

	cmd.Flags().IntVar(&c.maxConcurrency, config.FlagMaxConcurrency, 0, "Files compiled in parallel (0 = one per CPU)")
	cmd.Flags().IntVar(&c.functionWorkers, config.FlagFunctionWorkers, c.functionWorkers, "Functions of one file lowered in parallel")
	cmd.Flags().DurationVar(&c.timeout, config.FlagTimeout, c.timeout, "Abort the run after this long (0 = no limit)")
}

// buildRequest turns the parsed flags into a lowering request
func (c *LowerCommand) buildRequest(cmd *cobra.Command, paths []string) (domain.LowerRequest, error) {
	format, err := domain.ParseOutputFormat(c.format)
	if err != nil {
		return domain.LowerRequest{}, err
	}
	return domain.LowerRequest{
		Paths:            paths,
		OutputFormat:     format,
		OutputWriter:     cmd.OutOrStdout(),
		OutputPath:       c.outputPath,
		ShowConstants:    c.showConstants,
		Functions:        c.functions,
		MergeBlocks:      !c.noMerge,
		ReuseSingleBlock: !c.noReuse,
		Analyze:          c.analyze,
		OSREntry:         c.osr,
		Types:            c.types,
		ConfigPath:       c.configFile,
		Recursive:        c.recursive,
		IncludePatterns:  c.includePatterns,
		ExcludePatterns:  c.excludePatterns,
		MaxConcurrency:   c.maxConcurrency,
		FunctionWorkers:  c.functionWorkers,
		Timeout:          c.timeout,
	}, nil
}

// createUseCase wires the lowering use case for this invocation
func createUseCase(cmd *cobra.Command) (*app.LowerUseCase, error) {
	fileReader := service.NewFileReader()
	lowerService := service.NewLowerServiceWithDeps(fileReader, service.NewProgressManager())
	lowerService.SetLogger(newLogger(cmd))

	return app.NewLowerUseCaseBuilder().
		WithService(lowerService).
		WithFileReader(fileReader).
		WithFormatter(service.NewLowerFormatter()).
		WithConfigLoader(service.NewConfigurationLoaderWithFlags(GetExplicitFlags(cmd))).
		WithOutputWriter(service.NewFileOutputWriter(cmd.ErrOrStderr())).
		Build()
}

func (c *LowerCommand) run(cmd *cobra.Command, args []string) error {
	paths, err := expandAndValidatePaths(args)
	if err != nil {
		return err
	}
	req, err := c.buildRequest(cmd, paths)
	if err != nil {
		return err
	}

	useCase, err := createUseCase(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	response, err := useCase.Execute(ctx, req)
	if err != nil {
		if isVerbose(cmd) {
			printRecoverySuggestions(cmd.ErrOrStderr(), err)
		}
		return err
	}

	if n := len(response.Diagnostics()); n > 0 && isVerbose(cmd) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d function(s) or file(s) failed to compile\n", n)
	}
	return nil
}

// NewLowerCmd creates and returns the lower cobra command
func NewLowerCmd() *cobra.Command {
	return NewLowerCommand().CreateCobraCommand()
}
