package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nomadai/kbase/internal/adapters/driving/mcp"
	"github.com/nomadai/kbase/internal/logger"
)

var (
	mcpPort int
	mcpHost string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the knowledge base to AI assistants",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Serves the knowledge base over the Model Context Protocol.

Tools: search_knowledge, build_context, ingest_document, list_documents,
delete_document, knowledge_stats. Resources: kbase://documents, kbase://stats
and kbase://documents/{documentId}.

Without --port the server speaks JSON-RPC on stdin/stdout, which is what
desktop assistants expect:

  {"mcpServers": {"kbase": {"command": "kbase", "args": ["mcp", "serve"]}}}

With --port it serves streamable HTTP, for example for the MCP Inspector:

  kbase mcp serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 = use stdio)")
	mcpServeCmd.Flags().StringVar(&mcpHost, "host", "localhost", "HTTP listen host")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	knowledge, err := requireKnowledge(cmd)
	if err != nil {
		return err
	}

	ports := &mcp.Ports{Knowledge: knowledge}
	if settings, err := currentSettings(); err == nil {
		ports.DefaultLimit = settings.Search.Limit
	}

	logger.SetTimestamps(true)
	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if mcpPort <= 0 {
		return server.Run(cmd.Context())
	}
	addr := net.JoinHostPort(mcpHost, strconv.Itoa(mcpPort))
	fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://%s\n", addr)
	return server.RunHTTP(cmd.Context(), addr)
}
