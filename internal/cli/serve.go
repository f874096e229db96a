package cli

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Serves the distribution and context selection tools over the MCP stdio
transport. Logs are written to stderr.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Warn("closing storage", "error", err)
		}
	}()

	a.logger.Info("starting MCP server",
		"version", version,
		"storage", a.cfg.Storage.Driver,
		"strategy", a.cfg.Distribution.DefaultStrategy)

	if err := server.ServeStdio(mcp.NewMCPServer("meridian", version, a.server)); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
