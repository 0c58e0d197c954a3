package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowerRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*LowerRequest)
		wantErr string
	}{
		{
			name:   "Valid",
			modify: func(*LowerRequest) {},
		},
		{
			name:    "NoPaths",
			modify:  func(r *LowerRequest) { r.Paths = nil },
			wantErr: "at least one path",
		},
		{
			name:    "BadFormat",
			modify:  func(r *LowerRequest) { r.OutputFormat = "csv" },
			wantErr: "invalid output format",
		},
		{
			name:    "NoWorkers",
			modify:  func(r *LowerRequest) { r.FunctionWorkers = 0 },
			wantErr: "function workers",
		},
		{
			name:    "NegativeConcurrency",
			modify:  func(r *LowerRequest) { r.MaxConcurrency = -2 },
			wantErr: "max concurrency",
		},
		{
			name:    "TypesWithoutAnalysis",
			modify:  func(r *LowerRequest) { r.Types = true },
			wantErr: "requires dataflow analysis",
		},
		{
			name: "TypesWithAnalysis",
			modify: func(r *LowerRequest) {
				r.Analyze = true
				r.Types = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := DefaultLowerRequest()
			req.Paths = []string{"."}
			tt.modify(req)

			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, ErrCodeInvalidInput, ErrorCode(err))
		})
	}
}

func TestWantsFunction(t *testing.T) {
	req := DefaultLowerRequest()
	assert.True(t, req.WantsFunction("anything"))

	req.Functions = []string{"f", "C.m"}
	assert.True(t, req.WantsFunction("C.m"))
	assert.False(t, req.WantsFunction("g"))
}

func TestLowerResponseAggregates(t *testing.T) {
	fn := FunctionIR{
		Blocks: []BlockInfo{
			{Index: 0, Instrs: []string{"a", "b"}},
			{Index: 1, Instrs: []string{"c"}},
		},
	}
	assert.Equal(t, 3, fn.InstructionCount())

	resp := &LowerResponse{
		Files: []FileLowering{
			{FilePath: "a.py", Errors: []Diagnostic{{Kind: DiagnosticSyntax, File: "a.py"}}},
			{FilePath: "b.py"},
			{FilePath: "c.py", Errors: []Diagnostic{{Kind: DiagnosticCompile, File: "c.py", Function: "f"}}},
		},
		Summary: LowerSummary{SyntaxErrors: 1, CompileErrors: 1, InternalErrors: 4},
	}
	diags := resp.Diagnostics()
	require.Len(t, diags, 2)
	assert.Equal(t, "a.py", diags[0].File)
	assert.Equal(t, "f", diags[1].Function)
	assert.True(t, resp.Files[0].HasErrors())
	assert.False(t, resp.Files[1].HasErrors())
	assert.Equal(t, 2, resp.Summary.SourceErrors())
}
