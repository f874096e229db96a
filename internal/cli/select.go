package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/mcp"
	"github.com/rcliao/meridian/internal/selection"
)

var (
	selectMaxTokens  int
	selectProject    string
	selectAggressive bool
	selectJSON       bool
)

var selectCmd = &cobra.Command{
	Use:   "select <query>",
	Short: "Pick the stored context most relevant to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSelect,
}

func init() {
	selectCmd.Flags().IntVarP(&selectMaxTokens, "max-tokens", "m", 0, "Token budget (default: config value)")
	selectCmd.Flags().StringVarP(&selectProject, "project", "p", "", "Restrict the pool to one project")
	selectCmd.Flags().BoolVar(&selectAggressive, "aggressive", false, "Keep expanding past contexts that do not fit")
	selectCmd.Flags().BoolVar(&selectJSON, "json", false, "Print the result as JSON")
}

func runSelect(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.server.LoadContextPool(cmd.Context(), selectProject); err != nil {
		return err
	}

	query := strings.Join(args, " ")
	opts := selection.SelectOptions{AggressiveExpansion: selectAggressive}
	if selectProject != "" {
		opts.Project = &selection.ProjectContext{ID: selectProject}
	}
	result := a.selector.SelectContext(query, selectMaxTokens, opts)

	out := cmd.OutOrStdout()
	if selectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintln(out, mcp.FormatSelectionAsMarkdown(query, result))
	return nil
}
