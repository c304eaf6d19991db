package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/ephemera/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Start the Model Context Protocol server for AI assistant integration.

The server communicates over stdio using JSON-RPC and exposes the tools
ingest_document, search_documents and document_status. Use "ephemera serve"
for the streamable HTTP transport.

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "ephemera": {
        "command": "/path/to/ephemera",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	server, err := newMCPServer(cmd)
	if err != nil {
		return err
	}
	return server.Run(cmd.Context())
}

func newMCPServer(cmd *cobra.Command) (*mcp.Server, error) {
	if err := ensureRuntime(cmd.Context()); err != nil {
		return nil, err
	}
	return mcp.NewServer(&mcp.Ports{
		Ingest: ingestService,
		Search: searchService,
		Store:  storeService,
	})
}
