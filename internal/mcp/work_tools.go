package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/rcliao/meridian/internal/domain"
)

func createProjectTool() mcpgo.Tool {
	return mcpgo.NewTool("create_project",
		mcpgo.WithDescription("Create a project. Its goal is folded into the context of every task in it."),
		mcpgo.WithString("name", mcpgo.Required(), mcpgo.Description("Project name")),
		mcpgo.WithString("description", mcpgo.Description("What the project is about")),
		mcpgo.WithString("goal", mcpgo.Description("The outcome the project works towards")),
		mcpgo.WithString("user_id", mcpgo.Description("Owning user")),
	)
}

func (s *Server) handleCreateProject(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcpgo.NewToolResultError("'name' is required"), nil
	}
	if s.projects == nil {
		return mcpgo.NewToolResultError("project storage is not configured"), nil
	}

	project := domain.NewProject(name, req.GetString("description", ""), req.GetString("goal", ""))
	project.UserID = req.GetString("user_id", "")
	if err := s.projects.CreateProject(project); err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("failed to create project: %v", err)), nil
	}
	return jsonResult(project)
}

func createTaskTool() mcpgo.Tool {
	return mcpgo.NewTool("create_task",
		mcpgo.WithDescription("Create a task. Requirement fields are stored in the task metadata and drive agent matching."),
		mcpgo.WithString("title", mcpgo.Required(), mcpgo.Description("Task title")),
		mcpgo.WithString("description", mcpgo.Description("Task description")),
		mcpgo.WithString("project_id", mcpgo.Description("Owning project")),
		mcpgo.WithString("user_id", mcpgo.Description("Owning user")),
		mcpgo.WithString("priority",
			mcpgo.Description("Task priority (default: medium)"),
			mcpgo.Enum("low", "medium", "high", "urgent", "critical"),
		),
		mcpgo.WithString("labels", mcpgo.Description("Comma-separated labels")),
		mcpgo.WithString("dependencies", mcpgo.Description("Comma-separated task IDs this task depends on")),
		mcpgo.WithString("estimated_effort", mcpgo.Description("Effort such as 4h, 2d or 1w")),
		mcpgo.WithString("required_role", mcpgo.Description("Role the assignee must fill, e.g. developer or tester")),
		mcpgo.WithString("required_expertise", mcpgo.Description("Comma-separated capabilities the assignee must have")),
		mcpgo.WithString("preferred_agents", mcpgo.Description("Comma-separated agent IDs to prefer")),
		mcpgo.WithString("excluded_agents", mcpgo.Description("Comma-separated agent IDs to never assign")),
	)
}

func (s *Server) handleCreateTask(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	title := req.GetString("title", "")
	if title == "" {
		return mcpgo.NewToolResultError("'title' is required"), nil
	}

	task := domain.NewTask(req.GetString("project_id", ""), title, req.GetString("description", ""))
	task.UserID = req.GetString("user_id", "")
	task.EstimatedEffort = req.GetString("estimated_effort", "")
	if p := req.GetString("priority", ""); p != "" {
		task.Priority = domain.Priority(strings.ToLower(p))
	}
	if labels := splitList(req.GetString("labels", "")); labels != nil {
		task.Labels = labels
	}
	if deps := splitList(req.GetString("dependencies", "")); deps != nil {
		task.Dependencies = deps
	}

	if role := req.GetString("required_role", ""); role != "" {
		if _, ok := domain.ParseRole(strings.ToLower(role)); !ok {
			return mcpgo.NewToolResultError(fmt.Sprintf("unknown role %q", role)), nil
		}
		task.Metadata["required_role"] = role
	}
	for key, raw := range map[string]string{
		"required_expertise": req.GetString("required_expertise", ""),
		"preferred_agents":   req.GetString("preferred_agents", ""),
		"excluded_agents":    req.GetString("excluded_agents", ""),
	} {
		if list := splitList(raw); list != nil {
			task.Metadata[key] = list
		}
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
	}
	return jsonResult(task)
}

func registerAgentTool() mcpgo.Tool {
	return mcpgo.NewTool("register_agent",
		mcpgo.WithDescription("Register an agent that can receive task assignments."),
		mcpgo.WithString("name", mcpgo.Required(), mcpgo.Description("Agent name")),
		mcpgo.WithString("capabilities", mcpgo.Description("Comma-separated capabilities, e.g. backend_development,testing")),
		mcpgo.WithNumber("max_concurrent_tasks", mcpgo.Description("Concurrency cap (default: 1)")),
		mcpgo.WithNumber("success_rate", mcpgo.Description("Historical success rate, 0-100 (default: 100)")),
		mcpgo.WithNumber("average_task_hours", mcpgo.Description("Average hours per task, if known")),
		mcpgo.WithString("project_id", mcpgo.Description("Project the agent works on")),
		mcpgo.WithString("user_id", mcpgo.Description("Owning user")),
	)
}

func (s *Server) handleRegisterAgent(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcpgo.NewToolResultError("'name' is required"), nil
	}

	var caps []domain.AgentCapability
	for _, raw := range splitList(req.GetString("capabilities", "")) {
		c, ok := domain.ParseCapability(strings.ToLower(raw))
		if !ok {
			return mcpgo.NewToolResultError(fmt.Sprintf("unknown capability %q", raw)), nil
		}
		caps = append(caps, c)
	}

	agent := domain.NewAgent(name, int(req.GetFloat("max_concurrent_tasks", 1)), caps...)
	agent.ProjectID = req.GetString("project_id", "")
	agent.UserID = req.GetString("user_id", "")
	rate := req.GetFloat("success_rate", 100)
	if rate < 0 || rate > 100 {
		return mcpgo.NewToolResultError("'success_rate' must be between 0 and 100"), nil
	}
	agent.SuccessRate = rate
	if hours := req.GetFloat("average_task_hours", 0); hours > 0 {
		agent.AverageTaskDuration = &hours
	}

	if err := s.agents.Create(ctx, agent); err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("failed to register agent: %v", err)), nil
	}
	return jsonResult(agent)
}

func distributeTasksTool() mcpgo.Tool {
	return mcpgo.NewTool("distribute_tasks",
		mcpgo.WithDescription("Assign tasks to available agents with a distribution strategy. "+
			"Tasks that are not todo or in_progress are skipped; tasks no agent can take are reported with a reason."),
		mcpgo.WithString("task_ids", mcpgo.Required(), mcpgo.Description("Comma-separated task IDs")),
		mcpgo.WithString("strategy",
			mcpgo.Description("Distribution strategy (default: server setting)"),
			mcpgo.Enum("round_robin", "load_balanced", "skill_matched", "priority_based", "hybrid"),
		),
		mcpgo.WithString("project_id", mcpgo.Description("Only consider agents of this project")),
		withFormat(),
	)
}

func (s *Server) handleDistributeTasks(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	ids := splitList(req.GetString("task_ids", ""))
	if len(ids) == 0 {
		return mcpgo.NewToolResultError("'task_ids' is required"), nil
	}

	strategy := s.strategy
	if raw := req.GetString("strategy", ""); raw != "" {
		st, ok := domain.ParseStrategy(raw)
		if !ok {
			return mcpgo.NewToolResultError(fmt.Sprintf("unknown strategy %q", raw)), nil
		}
		strategy = st
	}

	plan, err := s.distributor.DistributeTasks(ctx, ids, strategy, req.GetString("project_id", ""))
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("distribution failed: %v", err)), nil
	}
	return render(req, plan, func() string { return FormatPlanAsMarkdown(plan) })
}

func distributionAnalyticsTool() mcpgo.Tool {
	return mcpgo.NewTool("distribution_analytics",
		mcpgo.WithDescription("Summarize past distribution runs: assignment rates per strategy and recent unassignable reasons."),
		withFormat(),
	)
}

func (s *Server) handleDistributionAnalytics(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	a := s.distributor.DistributionAnalytics()
	return render(req, a, func() string { return FormatAnalyticsAsMarkdown(a) })
}
