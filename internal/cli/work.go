package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/domain"
)

var (
	taskProject  string
	taskPriority string
	taskLabels   []string
	taskRole     string
	taskEffort   string

	agentCapabilities []string
	agentMaxTasks     int
	agentProject      string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskAdd,
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage agents",
}

var agentAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentAdd,
}

func init() {
	taskAddCmd.Flags().StringVarP(&taskProject, "project", "p", "", "Project ID")
	taskAddCmd.Flags().StringVar(&taskPriority, "priority", string(domain.PriorityMedium), "Priority (low, medium, high, urgent, critical)")
	taskAddCmd.Flags().StringSliceVarP(&taskLabels, "label", "l", nil, "Label (repeatable)")
	taskAddCmd.Flags().StringVar(&taskRole, "role", "", "Required agent role (developer, tester, ...)")
	taskAddCmd.Flags().StringVar(&taskEffort, "effort", "", "Estimated effort such as 4h, 2d or 1w")
	taskCmd.AddCommand(taskAddCmd)

	agentAddCmd.Flags().StringSliceVar(&agentCapabilities, "capability", nil, "Capability (repeatable)")
	agentAddCmd.Flags().IntVar(&agentMaxTasks, "max-tasks", 1, "Maximum concurrent tasks")
	agentAddCmd.Flags().StringVarP(&agentProject, "project", "p", "", "Project ID")
	agentCmd.AddCommand(agentAddCmd)
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	task := domain.NewTask(taskProject, strings.Join(args, " "), "")
	task.UserID = a.cfg.Distribution.UserID
	task.Priority = domain.Priority(strings.ToLower(taskPriority))
	task.EstimatedEffort = taskEffort
	if len(taskLabels) > 0 {
		task.Labels = taskLabels
	}
	if taskRole != "" {
		if _, ok := domain.ParseRole(strings.ToLower(taskRole)); !ok {
			return fmt.Errorf("unknown role %q", taskRole)
		}
		task.Metadata["required_role"] = taskRole
	}

	if err := a.tasks.Create(context.Background(), task); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), task.ID)
	return nil
}

func runAgentAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	caps := make([]domain.AgentCapability, 0, len(agentCapabilities))
	for _, raw := range agentCapabilities {
		c, ok := domain.ParseCapability(strings.ToLower(raw))
		if !ok {
			return fmt.Errorf("unknown capability %q", raw)
		}
		caps = append(caps, c)
	}

	agent := domain.NewAgent(args[0], agentMaxTasks, caps...)
	agent.UserID = a.cfg.Distribution.UserID
	agent.ProjectID = agentProject
	if err := a.agents.Create(context.Background(), agent); err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), agent.ID)
	return nil
}
