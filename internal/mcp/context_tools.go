package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/rcliao/meridian/internal/domain"
	"github.com/rcliao/meridian/internal/selection"
)

func selectContextTool() mcpgo.Tool {
	return mcpgo.NewTool("select_context",
		mcpgo.WithDescription("Pick the stored task and project contexts most relevant to a query within a token budget."),
		mcpgo.WithString("query", mcpgo.Required(), mcpgo.Description("What the caller is working on")),
		mcpgo.WithNumber("max_tokens", mcpgo.Description("Token budget (default: server setting)")),
		mcpgo.WithString("project_id", mcpgo.Description("Restrict the pool to one project")),
		mcpgo.WithString("current_task_id", mcpgo.Description("Task being worked on; its dependencies are boosted")),
		mcpgo.WithString("session_id", mcpgo.Description("Session used for predictions")),
		mcpgo.WithString("boost_keywords", mcpgo.Description("Comma-separated keywords to favor")),
		mcpgo.WithString("penalty_keywords", mcpgo.Description("Comma-separated keywords to avoid")),
		mcpgo.WithBoolean("aggressive", mcpgo.Description("Keep expanding past contexts that do not fit")),
		withFormat(),
	)
}

func (s *Server) handleSelectContext(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcpgo.NewToolResultError("'query' is required"), nil
	}

	projectID := req.GetString("project_id", "")
	if _, err := s.LoadContextPool(ctx, projectID); err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	opts := selection.SelectOptions{
		AggressiveExpansion: req.GetBool("aggressive", false),
		SessionID:           req.GetString("session_id", ""),
	}
	if projectID != "" {
		opts.Project = &selection.ProjectContext{ID: projectID}
	}
	boost := splitList(req.GetString("boost_keywords", ""))
	penalty := splitList(req.GetString("penalty_keywords", ""))
	if boost != nil || penalty != nil {
		opts.UserPreferences = &selection.UserPreferences{BoostKeywords: boost, PenaltyKeywords: penalty}
	}
	if id := req.GetString("current_task_id", ""); id != "" {
		task, err := s.tasks.Get(ctx, id)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return mcpgo.NewToolResultError(fmt.Sprintf("task %s not found", id)), nil
		case err != nil:
			return mcpgo.NewToolResultError(fmt.Sprintf("failed to load task: %v", err)), nil
		}
		opts.CurrentTask = &selection.CurrentTask{
			ID:           task.ID,
			ProjectID:    task.ProjectID,
			GitBranchID:  task.GitBranchID,
			Dependencies: append([]string(nil), task.Dependencies...),
		}
	}

	result := s.selector.SelectContext(query, int(req.GetFloat("max_tokens", 0)), opts)
	return render(req, result, func() string { return FormatSelectionAsMarkdown(query, result) })
}

func selectionStatsTool() mcpgo.Tool {
	return mcpgo.NewTool("selection_stats",
		mcpgo.WithDescription("Show context selector performance: timing, hit rate, cache use and component counters."),
	)
}

func (s *Server) handleSelectionStats(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return jsonResult(s.selector.PerformanceStats())
}

func optimizeSelectionTool() mcpgo.Tool {
	return mcpgo.NewTool("optimize_selection",
		mcpgo.WithDescription("Retune the similarity threshold from observed performance and clear an ineffective cache."),
	)
}

func (s *Server) handleOptimizeSelection(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	report := s.selector.OptimizePerformance()
	s.logger.Info("selection optimized", "applied", report.Applied, "threshold", report.SimilarityThreshold)
	return jsonResult(report)
}

func recordToolUsageTool() mcpgo.Tool {
	return mcpgo.NewTool("record_tool_usage",
		mcpgo.WithDescription("Record that a tool was used in a session, optionally touching a context. Feeds predictions."),
		mcpgo.WithString("session_id", mcpgo.Required(), mcpgo.Description("Session ID")),
		mcpgo.WithString("tool_name", mcpgo.Required(), mcpgo.Description("Tool that was used")),
		mcpgo.WithString("context_id", mcpgo.Description("Context the tool touched")),
	)
}

func (s *Server) handleRecordToolUsage(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	tool := req.GetString("tool_name", "")
	if sessionID == "" || tool == "" {
		return mcpgo.NewToolResultError("'session_id' and 'tool_name' are required"), nil
	}
	s.selector.RecordToolUsage(sessionID, tool, req.GetString("context_id", ""))
	return mcpgo.NewToolResultText(fmt.Sprintf("Recorded %s in session %s", tool, sessionID)), nil
}

func endSessionTool() mcpgo.Tool {
	return mcpgo.NewTool("end_session",
		mcpgo.WithDescription("End a tool usage session. Learned patterns are kept."),
		mcpgo.WithString("session_id", mcpgo.Required(), mcpgo.Description("Session ID")),
	)
}

func (s *Server) handleEndSession(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcpgo.NewToolResultError("'session_id' is required"), nil
	}
	s.selector.EndSession(sessionID)
	return mcpgo.NewToolResultText(fmt.Sprintf("Ended session %s", sessionID)), nil
}
