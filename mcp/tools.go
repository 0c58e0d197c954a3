package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers all pyjit MCP tools with the server
func RegisterTools(s *server.MCPServer, h *HandlerSet) {
	if h == nil {
		h = NewHandlerSet(nil)
	}

	// Tool 1: lower_code - CFG and register IR of source text
	s.AddTool(mcp.NewTool("lower_code",
		mcp.WithDescription("Compile Python source text and return the placed control flow graph and register IR of every function"),
		mcp.WithString("source",
			mcp.Required(),
			mcp.Description("Python source code to lower")),
		mcp.WithString("filename",
			mcp.Description("File name used in diagnostics (default: <input>)")),
		mcp.WithString("function",
			mcp.Description("Only return this qualified function name, e.g. Widget.grow")),
		mcp.WithString("format",
			mcp.Enum("json", "text", "dot"),
			mcp.Description("Output format (default: json)")),
		mcp.WithBoolean("merge_blocks",
			mcp.Description("Run the block-merge pass (default: from configuration)")),
		mcp.WithBoolean("reuse_registers",
			mcp.Description("Let single-block temporaries share registers (default: from configuration)")),
		mcp.WithBoolean("show_constants",
			mcp.Description("Include the constant pool of each function (default: false)")),
	), h.HandleLowerCode)

	// Tool 2: analyze_dataflow - phi, definedness and liveness of one function
	s.AddTool(mcp.NewTool("analyze_dataflow",
		mcp.WithDescription("Lower Python source text and report, per block of one function, the required phis and the definedness, liveness and type of every user variable"),
		mcp.WithString("source",
			mcp.Required(),
			mcp.Description("Python source code containing the function")),
		mcp.WithString("function",
			mcp.Required(),
			mcp.Description("Qualified name of the function to analyze")),
		mcp.WithBoolean("osr",
			mcp.Description("Treat the entry block as an on-stack-replacement resume point (default: false)")),
		mcp.WithBoolean("types",
			mcp.Description("Run speculative type analysis (default: false)")),
	), h.HandleAnalyzeDataflow)

	// Tool 3: lower_path - summary over files on disk
	s.AddTool(mcp.NewTool("lower_path",
		mcp.WithDescription("Lower every Python file under a path and return compile diagnostics and IR statistics"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to Python code (file or directory)")),
		mcp.WithBoolean("recursive",
			mcp.Description("Recursively walk directories (default: true)")),
		mcp.WithString("output_mode",
			mcp.Enum("summary", "full"),
			mcp.Description("summary returns statistics and diagnostics, full the complete report (default: summary)")),
	), h.HandleLowerPath)
}
