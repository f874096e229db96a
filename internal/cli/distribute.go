package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/domain"
	"github.com/rcliao/meridian/internal/mcp"
)

var (
	distributeStrategy string
	distributeProject  string
	distributeJSON     bool
)

var distributeCmd = &cobra.Command{
	Use:   "distribute <task-id>...",
	Short: "Assign tasks to available agents",
	Long: `Plans and applies assignments for the given tasks. Tasks that are not todo
or in_progress are skipped. Tasks no agent can take are listed with a reason.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDistribute,
}

func init() {
	distributeCmd.Flags().StringVarP(&distributeStrategy, "strategy", "s", "", "Strategy (round_robin, load_balanced, skill_matched, priority_based, hybrid)")
	distributeCmd.Flags().StringVarP(&distributeProject, "project", "p", "", "Only consider agents of this project")
	distributeCmd.Flags().BoolVar(&distributeJSON, "json", false, "Print the plan as JSON")
}

func runDistribute(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	strategy, err := a.cfg.Strategy()
	if err != nil {
		return err
	}
	if distributeStrategy != "" {
		st, ok := domain.ParseStrategy(distributeStrategy)
		if !ok {
			return fmt.Errorf("unknown strategy %q", distributeStrategy)
		}
		strategy = st
	}

	plan, err := a.distributor.DistributeTasks(cmd.Context(), args, strategy, distributeProject)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if distributeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}
	fmt.Fprintln(out, mcp.FormatPlanAsMarkdown(plan))
	return nil
}
