package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	swmcp "github.com/scriptward/scriptward/internal/mcp"
)

var (
	mcpConfig string
	mcpWatch  bool
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpConfig, "config", "", "Path to config YAML (default: ~/.scriptward/config.yaml)")
	mcpCmd.Flags().BoolVar(&mcpWatch, "watch", false, "Hot-reload the config file while the server runs")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs scriptward as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes the pipeline as tools: script_check, script_score, script_run.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv, err := swmcp.New(swmcp.Config{
		ConfigPath: mcpConfig,
		Watch:      mcpWatch,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "scriptward MCP server running on stdio")
	if mcpConfig != "" {
		fmt.Fprintf(os.Stderr, "Config: %s\n", mcpConfig)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
