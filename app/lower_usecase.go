package app

import (
	"context"
	"fmt"
	"io"

	"github.com/ludo-technologies/pyjit/domain"
	"github.com/ludo-technologies/pyjit/service"
)

// LowerUseCase orchestrates the lowering workflow: configuration, file
// collection, compilation and report output
type LowerUseCase struct {
	service      domain.LowerService
	fileReader   domain.FileReader
	formatter    domain.LowerOutputFormatter
	configLoader domain.LowerConfigurationLoader
	output       domain.ReportWriter
}

// NewLowerUseCase creates a new lowering use case
func NewLowerUseCase(
	service domain.LowerService,
	fileReader domain.FileReader,
	formatter domain.LowerOutputFormatter,
	configLoader domain.LowerConfigurationLoader,
	output domain.ReportWriter,
) *LowerUseCase {
	return &LowerUseCase{
		service:      service,
		fileReader:   fileReader,
		formatter:    formatter,
		configLoader: configLoader,
		output:       output,
	}
}

// Execute lowers the requested files and writes the report. The response
// is returned so callers can act on source errors.
func (uc *LowerUseCase) Execute(ctx context.Context, req domain.LowerRequest) (*domain.LowerResponse, error) {
	finalReq, response, err := uc.run(ctx, req)
	if err != nil {
		return nil, err
	}

	err = uc.output.Write(finalReq.OutputWriter, finalReq.OutputPath, finalReq.OutputFormat, func(w io.Writer) error {
		return uc.formatter.Write(response, finalReq.OutputFormat, w)
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// LowerAndReturn lowers the requested files without writing a report
func (uc *LowerUseCase) LowerAndReturn(ctx context.Context, req domain.LowerRequest) (*domain.LowerResponse, error) {
	_, response, err := uc.run(ctx, req)
	return response, err
}

func (uc *LowerUseCase) run(ctx context.Context, req domain.LowerRequest) (domain.LowerRequest, *domain.LowerResponse, error) {
	if len(req.Paths) == 0 {
		return req, nil, domain.NewInvalidInputError("invalid request", fmt.Errorf("no input paths specified"))
	}

	finalReq, err := uc.loadAndMergeConfig(req)
	if err != nil {
		return req, nil, err
	}
	if err := finalReq.Validate(); err != nil {
		return req, nil, err
	}

	files, err := ResolveFilePaths(
		uc.fileReader,
		finalReq.Paths,
		finalReq.Recursive,
		finalReq.IncludePatterns,
		finalReq.ExcludePatterns,
	)
	if err != nil {
		return req, nil, err
	}
	if len(files) == 0 {
		return req, nil, domain.NewInvalidInputError("no Python files found in the specified paths", nil)
	}
	finalReq.Paths = files

	if finalReq.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, finalReq.Timeout)
		defer cancel()
	}

	response, err := uc.service.Lower(ctx, finalReq)
	if err != nil {
		return req, nil, err
	}
	return finalReq, response, nil
}

// loadAndMergeConfig loads the configuration for the first target and lets
// the request override it
func (uc *LowerUseCase) loadAndMergeConfig(req domain.LowerRequest) (domain.LowerRequest, error) {
	if uc.configLoader == nil {
		return req, nil
	}

	target := ""
	if len(req.Paths) > 0 {
		target = req.Paths[0]
	}
	configReq, err := uc.configLoader.LoadConfig(req.ConfigPath, target)
	if err != nil {
		return req, err
	}
	if configReq == nil {
		return req, nil
	}
	return *uc.configLoader.MergeConfig(configReq, &req), nil
}

// LowerUseCaseBuilder provides a builder pattern for creating LowerUseCase
type LowerUseCaseBuilder struct {
	service      domain.LowerService
	fileReader   domain.FileReader
	formatter    domain.LowerOutputFormatter
	configLoader domain.LowerConfigurationLoader
	output       domain.ReportWriter
}

// NewLowerUseCaseBuilder creates a new builder
func NewLowerUseCaseBuilder() *LowerUseCaseBuilder {
	return &LowerUseCaseBuilder{}
}

// WithService sets the lowering service
func (b *LowerUseCaseBuilder) WithService(s domain.LowerService) *LowerUseCaseBuilder {
	b.service = s
	return b
}

// WithFileReader sets the file reader
func (b *LowerUseCaseBuilder) WithFileReader(fileReader domain.FileReader) *LowerUseCaseBuilder {
	b.fileReader = fileReader
	return b
}

// WithFormatter sets the output formatter
func (b *LowerUseCaseBuilder) WithFormatter(formatter domain.LowerOutputFormatter) *LowerUseCaseBuilder {
	b.formatter = formatter
	return b
}

// WithConfigLoader sets the configuration loader
func (b *LowerUseCaseBuilder) WithConfigLoader(configLoader domain.LowerConfigurationLoader) *LowerUseCaseBuilder {
	b.configLoader = configLoader
	return b
}

// WithOutputWriter sets the report writer
func (b *LowerUseCaseBuilder) WithOutputWriter(output domain.ReportWriter) *LowerUseCaseBuilder {
	b.output = output
	return b
}

// Build creates the LowerUseCase. The config loader is optional; the report
// writer defaults to one printing status lines on stderr.
func (b *LowerUseCaseBuilder) Build() (*LowerUseCase, error) {
	if b.service == nil {
		return nil, fmt.Errorf("lower service is required")
	}
	if b.fileReader == nil {
		return nil, fmt.Errorf("file reader is required")
	}
	if b.formatter == nil {
		return nil, fmt.Errorf("output formatter is required")
	}
	if b.output == nil {
		b.output = service.NewFileOutputWriter(nil)
	}

	return NewLowerUseCase(
		b.service,
		b.fileReader,
		b.formatter,
		b.configLoader,
		b.output,
	), nil
}
