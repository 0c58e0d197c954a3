package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ludo-technologies/pyjit/domain"
	"github.com/ludo-technologies/pyjit/service"
)

const defaultFilename = "<input>"

// handlerTimeout bounds a tool call when the configuration disables the run timeout
const handlerTimeout = 2 * time.Minute

// HandlerSet exposes MCP tool handlers with shared dependencies.
type HandlerSet struct {
	deps *Dependencies
}

// NewHandlerSet constructs a handler set.
func NewHandlerSet(deps *Dependencies) *HandlerSet {
	if deps == nil {
		deps = NewDependencies(nil, "")
	}
	return &HandlerSet{deps: deps}
}

// HandleLowerCode handles the lower_code tool
func (h *HandlerSet) HandleLowerCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("invalid arguments format"), nil
	}

	source, ok := args["source"].(string)
	if !ok {
		return mcp.NewToolResultError("source parameter is required and must be a string"), nil
	}

	filename := defaultFilename
	if fn, ok := args["filename"].(string); ok && fn != "" {
		filename = fn
	}

	format := domain.OutputFormatJSON
	if f, ok := args["format"].(string); ok && f != "" {
		parsed, err := domain.ParseOutputFormat(f)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		format = parsed
	}

	req := h.deps.BaseRequest()
	if fn, ok := args["function"].(string); ok && fn != "" {
		req.Functions = []string{fn}
	}
	if mb, ok := args["merge_blocks"].(bool); ok {
		req.MergeBlocks = mb
	}
	if rr, ok := args["reuse_registers"].(bool); ok {
		req.ReuseSingleBlock = rr
	}
	if sc, ok := args["show_constants"].(bool); ok {
		req.ShowConstants = sc
	}

	fl, err := h.lowerSource(ctx, filename, source, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lowering failed: %v", err)), nil
	}
	if len(req.Functions) > 0 && len(fl.Functions) == 0 && !fl.HasErrors() {
		return mcp.NewToolResultError(fmt.Sprintf("function not found: %s", req.Functions[0])), nil
	}

	if format == domain.OutputFormatJSON {
		return jsonResult(fl)
	}

	response := &domain.LowerResponse{Files: []domain.FileLowering{*fl}}
	text, err := service.NewLowerFormatter().Format(response, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleAnalyzeDataflow handles the analyze_dataflow tool
func (h *HandlerSet) HandleAnalyzeDataflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("invalid arguments format"), nil
	}

	source, ok := args["source"].(string)
	if !ok {
		return mcp.NewToolResultError("source parameter is required and must be a string"), nil
	}
	function, ok := args["function"].(string)
	if !ok || function == "" {
		return mcp.NewToolResultError("function parameter is required and must be a string"), nil
	}

	req := h.deps.BaseRequest()
	req.Functions = []string{function}
	req.Analyze = true
	if osr, ok := args["osr"].(bool); ok {
		req.OSREntry = osr
	}
	if types, ok := args["types"].(bool); ok {
		req.Types = types
	}

	fl, err := h.lowerSource(ctx, defaultFilename, source, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
	}
	if fl.HasErrors() {
		return mcp.NewToolResultError(describeErrors(fl.Errors)), nil
	}
	if len(fl.Functions) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("function not found: %s", function)), nil
	}

	fn := fl.Functions[0]
	return jsonResult(dataflowReport(fn))
}

// HandleLowerPath handles the lower_path tool
func (h *HandlerSet) HandleLowerPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("invalid arguments format"), nil
	}

	path, ok := args["path"].(string)
	if !ok {
		return mcp.NewToolResultError("path parameter is required and must be a string"), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return mcp.NewToolResultError(fmt.Sprintf("path does not exist: %s", path)), nil
	}

	req := h.deps.BaseRequest()
	req.Paths = []string{path}
	req.ConfigPath = h.deps.ConfigPath()
	if r, ok := args["recursive"].(bool); ok {
		req.Recursive = r
	}

	useCase, err := h.deps.BuildLowerUseCase()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create lowering pipeline: %v", err)), nil
	}
	result, err := useCase.LowerAndReturn(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lowering failed: %v", err)), nil
	}

	outputMode := "summary"
	if om, ok := args["output_mode"].(string); ok {
		outputMode = om
	}
	if outputMode == "full" {
		return jsonResult(result)
	}

	return jsonResult(map[string]interface{}{
		"summary":     result.Summary,
		"diagnostics": result.Diagnostics(),
		"warnings":    result.Warnings,
	})
}

// lowerSource runs one source text through the lowering service under the
// configured timeout
func (h *HandlerSet) lowerSource(ctx context.Context, name, source string, req domain.LowerRequest) (*domain.FileLowering, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = handlerTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return h.deps.BuildLowerService().LowerSource(ctx, name, []byte(source), req)
}

// blockReport pairs the IR of one block with its dataflow facts
type blockReport struct {
	Index     int                    `json:"index"`
	Label     string                 `json:"label"`
	Preds     []int                  `json:"preds,omitempty"`
	Phis      []string               `json:"phis,omitempty"`
	Variables []domain.VariableState `json:"variables,omitempty"`
	Instrs    []string               `json:"instrs"`
}

func dataflowReport(fn domain.FunctionIR) map[string]interface{} {
	facts := make(map[int]domain.BlockDataflow)
	phiCount := 0
	if fn.Dataflow != nil {
		phiCount = fn.Dataflow.PhiCount
		for _, bd := range fn.Dataflow.Blocks {
			facts[bd.Index] = bd
		}
	}

	blocks := make([]blockReport, 0, len(fn.Blocks))
	for _, b := range fn.Blocks {
		bd := facts[b.Index]
		blocks = append(blocks, blockReport{
			Index:     b.Index,
			Label:     b.Label,
			Preds:     b.Preds,
			Phis:      bd.Phis,
			Variables: bd.Variables,
			Instrs:    b.Instrs,
		})
	}

	return map[string]interface{}{
		"function":  fn.Name,
		"registers": fn.Registers,
		"phi_count": phiCount,
		"blocks":    blocks,
	}
}

func describeErrors(diags []domain.Diagnostic) string {
	msg := "source does not compile:"
	for _, d := range diags {
		msg += fmt.Sprintf("\n  %s error at line %d: %s", d.Kind, d.Line, d.Message)
	}
	return msg
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
