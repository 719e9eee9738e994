package cli

import (
	"github.com/spf13/cobra"

	"courserag/internal/mcpserver"
	"courserag/internal/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve retrieval tools over MCP",
	Long: `Starts a Model Context Protocol server on stdio exposing the
search_course_content and get_course_outline tools and a courses resource.

Client configuration:
  {
    "mcpServers": {
      "courserag": {
        "command": "/path/to/courserag",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := current.loadDocs(ctx); err != nil {
			return err
		}
		server, err := mcpserver.New(tools.NewManager(current.svc), current.svc)
		if err != nil {
			return err
		}
		return server.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
