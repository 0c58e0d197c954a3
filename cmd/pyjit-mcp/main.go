package main

import (
	"fmt"
	"log"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ludo-technologies/pyjit/internal/config"
	"github.com/ludo-technologies/pyjit/internal/version"
	"github.com/ludo-technologies/pyjit/mcp"
)

const serverName = "pyjit"

func main() {
	// MCP uses stdout for JSON-RPC
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// PYJIT_CONFIG names a config file; otherwise it is discovered from the working directory
	configPath := os.Getenv("PYJIT_CONFIG")
	cfg, err := config.LoadConfigWithTarget(configPath, ".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	server := mcpserver.NewMCPServer(
		serverName,
		version.Short(),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
	)

	mcp.RegisterTools(server, mcp.NewHandlerSet(mcp.NewDependencies(cfg, configPath)))

	log.Printf("Starting %s MCP server %s\n", serverName, version.Short())
	log.Println("Registered tools:")
	log.Println("  - lower_code: CFG and register IR of source text")
	log.Println("  - analyze_dataflow: phis, definedness and liveness of one function")
	log.Println("  - lower_path: compile diagnostics over files on disk")
	log.Println("Server ready - waiting for MCP client connection...")

	if err := mcpserver.ServeStdio(server); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
