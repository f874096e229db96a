package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/config"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "Meridian - work distribution and context selection for agent teams",
	Long: `Meridian hands tasks to a pool of agents using round-robin, load-balanced,
skill-matched, priority-based or hybrid strategies, and picks the stored context
most relevant to a query within a token budget.

Run "meridian serve" to expose both as MCP tools over stdio.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "meridian %s\n", version)
	},
}

// SetVersion sets the version string (called from main)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		filepath.Join(config.Dir, config.File), "Path to the config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(distributeCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
