package mcp

import (
	"github.com/ludo-technologies/pyjit/app"
	"github.com/ludo-technologies/pyjit/domain"
	"github.com/ludo-technologies/pyjit/internal/config"
	"github.com/ludo-technologies/pyjit/service"
)

// Dependencies aggregates the shared services required by MCP handlers.
type Dependencies struct {
	fileReader domain.FileReader
	config     *config.Config
	configPath string
}

// NewDependencies constructs the dependency set with sane defaults.
func NewDependencies(cfg *config.Config, configPath string) *Dependencies {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	return &Dependencies{
		fileReader: service.NewFileReader(),
		config:     cfg,
		configPath: configPath,
	}
}

// Config exposes the loaded configuration snapshot.
func (d *Dependencies) Config() *config.Config {
	return d.config
}

// ConfigPath returns the configured config file path (may be empty to trigger discovery).
func (d *Dependencies) ConfigPath() string {
	return d.configPath
}

// BaseRequest returns a lowering request carrying the configured settings.
func (d *Dependencies) BaseRequest() domain.LowerRequest {
	return *service.RequestFromConfig(d.config)
}

// BuildLowerService creates a lowering service without progress output,
// since stdout carries the JSON-RPC stream.
func (d *Dependencies) BuildLowerService() *service.LowerServiceImpl {
	return service.NewLowerServiceWithDeps(d.fileReader, nil)
}

// BuildLowerUseCase assembles a fresh LowerUseCase with injected dependencies.
func (d *Dependencies) BuildLowerUseCase() (*app.LowerUseCase, error) {
	return app.NewLowerUseCaseBuilder().
		WithService(d.BuildLowerService()).
		WithFileReader(d.fileReader).
		WithFormatter(service.NewLowerFormatter()).
		WithConfigLoader(service.NewConfigurationLoader()).
		Build()
}
