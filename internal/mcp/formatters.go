package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/meridian/internal/distribution"
	"github.com/rcliao/meridian/internal/domain"
	"github.com/rcliao/meridian/internal/selection"
)

// FormatPlanAsMarkdown formats a distribution plan as markdown
func FormatPlanAsMarkdown(plan *domain.DistributionPlan) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# 📦 Distribution Plan `[%s]`\n\n", shortID(plan.PlanID)))
	sb.WriteString(fmt.Sprintf("**Strategy:** %s\n", plan.Strategy))
	sb.WriteString(fmt.Sprintf("**Assigned:** %d of %d\n\n", len(plan.Assignments), plan.TotalTasks()))

	if len(plan.Assignments) > 0 {
		sb.WriteString("## ✅ Assignments\n\n")
		for _, a := range plan.Assignments {
			sb.WriteString(fmt.Sprintf("- `%s` → `%s` (%s)\n", shortID(a.TaskID), shortID(a.AgentID), a.Role))
		}
		sb.WriteString("\n")
	}

	if len(plan.UnassignableTasks) > 0 {
		sb.WriteString("## 🚫 Unassignable\n\n")
		for _, id := range plan.UnassignableTasks {
			sb.WriteString(fmt.Sprintf("- `%s`: %s\n", shortID(id), plan.Reasons[id]))
		}
		sb.WriteString("\n")
	}

	if len(plan.Recommendations) > 0 {
		sb.WriteString("## 💡 Recommendations\n\n")
		for _, r := range plan.Recommendations {
			sb.WriteString(fmt.Sprintf("- %s\n", r))
		}
	}

	return strings.TrimSpace(sb.String())
}

// FormatAnalyticsAsMarkdown formats distribution analytics as markdown
func FormatAnalyticsAsMarkdown(a distribution.Analytics) string {
	if a.Message != "" {
		return fmt.Sprintf("📊 **%s**\n\nRun `distribute_tasks` to start collecting analytics", a.Message)
	}

	var sb strings.Builder
	sb.WriteString("# 📊 Distribution Analytics\n\n")
	sb.WriteString(fmt.Sprintf("- **Distributions:** %d\n", a.TotalDistributions))
	sb.WriteString(fmt.Sprintf("- **Tasks distributed:** %d\n", a.TotalTasksDistributed))
	sb.WriteString(fmt.Sprintf("- **Tasks assigned:** %d\n", a.TotalTasksAssigned))
	sb.WriteString(fmt.Sprintf("- **Assignment rate:** %.1f%%\n\n", a.OverallAssignmentRate))

	names := make([]string, 0, len(a.StrategyUsage))
	for name := range a.StrategyUsage {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("## Strategies\n\n")
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("- %s: used %d time(s), %.1f%% assigned\n",
			name, a.StrategyUsage[name], a.StrategySuccessRates[name]))
	}

	if len(a.RecentUnassignableReasons) > 0 {
		sb.WriteString("\n## 🚫 Recent Unassignable Tasks\n\n")
		for _, r := range a.RecentUnassignableReasons {
			sb.WriteString(fmt.Sprintf("- %s\n", r))
		}
	}

	return strings.TrimSpace(sb.String())
}

// FormatSelectionAsMarkdown formats a context selection as markdown
func FormatSelectionAsMarkdown(query string, result selection.SelectionResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# 🧭 Context for \"%s\"\n\n", query))

	method, _ := result.Metadata["selection_method"].(string)
	sb.WriteString(fmt.Sprintf("**Method:** %s | **Tokens:** %d | **Time:** %.1fms | **Size reduction:** %.0f%%\n\n",
		method, result.TotalTokensUsed, result.SelectionTimeMs, result.SizeReductionPercent))

	if fallback, _ := result.Metadata["fallback"].(bool); fallback {
		sb.WriteString(fmt.Sprintf("⚠️ Fallback selection: %v\n\n", result.Metadata["error"]))
	}

	if len(result.SelectedContexts) == 0 {
		sb.WriteString("No relevant context found")
		return sb.String()
	}

	for i, item := range result.SelectedContexts {
		title := firstString(item.Data, "title", "name")
		if title == "" {
			title = item.ID
		}
		sb.WriteString(fmt.Sprintf("## %d. %s `[%s]`\n", i+1, title, shortID(item.ID)))
		if header := firstString(item.Data, "header"); header != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", header))
		}
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String())
}

func firstString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := data[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// shortID trims IDs for display
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
