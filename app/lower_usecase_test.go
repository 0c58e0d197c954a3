package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ludo-technologies/pyjit/domain"
	"github.com/ludo-technologies/pyjit/service"
)

func cliRequest(paths ...string) domain.LowerRequest {
	req := *domain.DefaultLowerRequest()
	req.Paths = paths
	return req
}

func mockedUseCase(t *testing.T, svc *MockLowerService, reader *MockFileReader) *LowerUseCase {
	t.Helper()
	uc, err := NewLowerUseCaseBuilder().
		WithService(svc).
		WithFileReader(reader).
		WithFormatter(service.NewLowerFormatter()).
		WithOutputWriter(service.NewFileOutputWriter(&bytes.Buffer{})).
		Build()
	require.NoError(t, err)
	return uc
}

func TestLowerUseCase_Execute(t *testing.T) {
	t.Run("WritesReport", func(t *testing.T) {
		reader := new(MockFileReader)
		reader.On("IsValidPythonFile", "a.py").Return(true)
		reader.On("FileExists", "a.py").Return(true, nil)

		response := &domain.LowerResponse{
			Files:   []domain.FileLowering{{FilePath: "a.py"}},
			Summary: domain.LowerSummary{FilesProcessed: 1},
		}
		svc := new(MockLowerService)
		svc.On("Lower", mock.Anything, mock.MatchedBy(func(r domain.LowerRequest) bool {
			return len(r.Paths) == 1 && r.Paths[0] == "a.py"
		})).Return(response, nil)

		var out bytes.Buffer
		req := cliRequest("a.py")
		req.OutputWriter = &out

		got, err := mockedUseCase(t, svc, reader).Execute(context.Background(), req)
		require.NoError(t, err)
		assert.Same(t, response, got)
		assert.Contains(t, out.String(), "Lowering Report")
		svc.AssertExpectations(t)
	})

	t.Run("ServiceError", func(t *testing.T) {
		reader := new(MockFileReader)
		reader.On("IsValidPythonFile", "a.py").Return(true)
		reader.On("FileExists", "a.py").Return(true, nil)
		svc := new(MockLowerService)
		svc.On("Lower", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

		_, err := mockedUseCase(t, svc, reader).Execute(context.Background(), cliRequest("a.py"))
		assert.EqualError(t, err, "boom")
	})

	t.Run("NoPaths", func(t *testing.T) {
		_, err := mockedUseCase(t, new(MockLowerService), new(MockFileReader)).Execute(context.Background(), cliRequest())
		require.Error(t, err)
		assert.Equal(t, domain.ErrCodeInvalidInput, domain.ErrorCode(err))
	})

	t.Run("InvalidRequest", func(t *testing.T) {
		req := cliRequest("a.py")
		req.Types = true
		_, err := mockedUseCase(t, new(MockLowerService), new(MockFileReader)).Execute(context.Background(), req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "type analysis requires dataflow analysis")
	})

	t.Run("NoPythonFiles", func(t *testing.T) {
		reader := new(MockFileReader)
		reader.On("IsValidPythonFile", "docs").Return(false)
		reader.On("CollectPythonFiles", []string{"docs"}, true, mock.Anything, mock.Anything).Return([]string{}, nil)

		_, err := mockedUseCase(t, new(MockLowerService), reader).Execute(context.Background(), cliRequest("docs"))
		require.Error(t, err)
		assert.Equal(t, domain.ErrCodeInvalidInput, domain.ErrorCode(err))
	})
}

func TestLowerUseCase_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".pyjit.toml"), []byte("[output]\nformat = \"json\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mod.py"), []byte("def f(a):\n    return a\n"), 0o644))

	reader := service.NewFileReader()
	uc, err := NewLowerUseCaseBuilder().
		WithService(service.NewLowerServiceWithDeps(reader, nil)).
		WithFileReader(reader).
		WithFormatter(service.NewLowerFormatter()).
		WithConfigLoader(service.NewConfigurationLoader()).
		WithOutputWriter(service.NewFileOutputWriter(&bytes.Buffer{})).
		Build()
	require.NoError(t, err)

	t.Run("ConfigFormatApplies", func(t *testing.T) {
		var out bytes.Buffer
		req := cliRequest(dir)
		req.OutputWriter = &out

		resp, err := uc.Execute(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Summary.FilesProcessed)
		assert.Equal(t, 2, resp.Summary.Functions)
		assert.Contains(t, out.String(), `"file_path"`)
	})

	t.Run("OutputFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.json")
		req := cliRequest(dir)
		req.OutputPath = path

		_, err := uc.Execute(context.Background(), req)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"functions"`)
	})

	t.Run("LowerAndReturn", func(t *testing.T) {
		req := cliRequest(filepath.Join(dir, "mod.py"))
		req.Analyze = true
		resp, err := uc.LowerAndReturn(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, resp.Files, 1)
		for _, fn := range resp.Files[0].Functions {
			assert.NotNil(t, fn.Dataflow)
		}
	})
}

func TestLowerUseCaseBuilder(t *testing.T) {
	_, err := NewLowerUseCaseBuilder().Build()
	assert.EqualError(t, err, "lower service is required")

	_, err = NewLowerUseCaseBuilder().WithService(new(MockLowerService)).Build()
	assert.EqualError(t, err, "file reader is required")

	_, err = NewLowerUseCaseBuilder().WithService(new(MockLowerService)).WithFileReader(new(MockFileReader)).Build()
	assert.EqualError(t, err, "output formatter is required")
}
