package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/config"
	"github.com/rcliao/meridian/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize meridian in the current directory",
	Long:  `Creates a .meridian directory with the task database and default configuration.`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	dir := filepath.Join(cwd, config.Dir)
	if _, err = os.Stat(dir); err == nil {
		return fmt.Errorf("meridian already initialized in this directory")
	}
	if err = os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", config.Dir, err)
	}

	cfgPath := filepath.Join(dir, config.File)
	if err := config.WriteDefault(cfgPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	dbPath := filepath.Join(cwd, config.Default().Storage.Path)
	db, err := storage.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✓ meridian initialized successfully!")
	fmt.Fprintf(out, "  Database: %s\n", dbPath)
	fmt.Fprintf(out, "  Config:   %s\n", cfgPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  meridian agent add <name>      # Register an agent")
	fmt.Fprintln(out, "  meridian task add <title>      # Create a task")
	fmt.Fprintln(out, "  meridian distribute <task-id>  # Assign tasks to agents")
	fmt.Fprintln(out, "  meridian serve                 # Start the MCP server")

	return nil
}
