package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rcliao/meridian/internal/distribution"
	"github.com/rcliao/meridian/internal/domain"
	"github.com/rcliao/meridian/internal/selection"
)

func TestFormatPlanAsMarkdown(t *testing.T) {
	plan := domain.NewDistributionPlan(domain.StrategyLoadBalanced)
	plan.Assign("task-123456789", "agent-123456789", "")
	plan.MarkUnassignable("task-999999999", "No available agents with capacity")
	plan.Recommendations = []string{"add agents"}

	md := FormatPlanAsMarkdown(plan)
	assert.Contains(t, md, "**Strategy:** load_balanced")
	assert.Contains(t, md, "**Assigned:** 1 of 2")
	assert.Contains(t, md, "`task-123` → `agent-12` (assignee)")
	assert.Contains(t, md, "`task-999`: No available agents with capacity")
	assert.Contains(t, md, "- add agents")
}

func TestFormatAnalyticsAsMarkdown(t *testing.T) {
	md := FormatAnalyticsAsMarkdown(distribution.Analytics{
		TotalDistributions:        2,
		TotalTasksDistributed:     4,
		TotalTasksAssigned:        3,
		OverallAssignmentRate:     75,
		StrategyUsage:             map[string]int{"round_robin": 1, "hybrid": 1},
		StrategySuccessRates:      map[string]float64{"round_robin": 100, "hybrid": 50},
		RecentUnassignableReasons: []string{"t4: No matching agent found"},
	})

	assert.Contains(t, md, "**Assignment rate:** 75.0%")
	assert.Contains(t, md, "- hybrid: used 1 time(s), 50.0% assigned\n- round_robin: used 1 time(s), 100.0% assigned")
	assert.Contains(t, md, "- t4: No matching agent found")
}

func TestFormatSelectionAsMarkdown(t *testing.T) {
	empty := selection.SelectionResult{Metadata: map[string]any{"selection_method": "semantic", "fallback": false}}
	assert.Contains(t, FormatSelectionAsMarkdown("q", empty), "No relevant context found")

	res := selection.SelectionResult{
		SelectedContexts: []selection.ContextItem{
			{ID: "ctx-1", Data: map[string]any{"title": "Deploy", "header": "Task: Deploy."}},
			{ID: "ctx-2", Data: map[string]any{"name": "Shop"}},
		},
		TotalTokensUsed: 40,
		Metadata:        map[string]any{"selection_method": "fallback", "fallback": true, "error": "boom"},
	}
	md := FormatSelectionAsMarkdown("deploy", res)
	assert.Contains(t, md, "**Method:** fallback")
	assert.Contains(t, md, "⚠️ Fallback selection: boom")
	assert.Contains(t, md, "## 1. Deploy `[ctx-1]`\n   Task: Deploy.")
	assert.Contains(t, md, "## 2. Shop `[ctx-2]`")
}
