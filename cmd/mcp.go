package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/issues/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This gives an agent the same list/create/update/delete operations as the
HTTP API, against the configured database. Configure your MCP client with:

  {
    "mcpServers": {
      "issues": { "command": "issues", "args": ["mcp"] }
    }
  }

Available tools: issues_list, issues_create, issues_update, issues_delete`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := getService()
		if err != nil {
			return err
		}
		defer func() { _ = dataStore.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()

		return mcp.NewServer(svc, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
