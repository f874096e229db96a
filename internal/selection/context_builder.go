package selection

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/meridian/internal/domain"
)

type HeaderGenerator struct {
	maxLength int
}

func NewHeaderGenerator(maxLength int) *HeaderGenerator {
	if maxLength <= 0 {
		maxLength = 200
	}
	// room for at least one byte before the ellipsis
	maxLength = max(maxLength, 4)
	return &HeaderGenerator{
		maxLength: maxLength,
	}
}

// Generate condenses a task into a one-paragraph header used for indexing.
func (g *HeaderGenerator) Generate(task *domain.Task, project *domain.Project) string {
	var parts []string

	if project != nil && project.Goal != "" {
		parts = append(parts, fmt.Sprintf("Part of %s.", project.Goal))
	}

	if task.Description != "" {
		parts = append(parts, fmt.Sprintf("Purpose: %s", g.truncate(task.Description, 50)))
	} else if task.Title != "" {
		parts = append(parts, fmt.Sprintf("Task: %s.", task.Title))
	}

	if task.Status != domain.StatusTodo {
		parts = append(parts, fmt.Sprintf("Status: %s.", task.Status))
	}
	if task.Priority != domain.PriorityMedium {
		parts = append(parts, fmt.Sprintf("Priority: %s.", task.Priority))
	}

	if n := len(task.Dependencies); n > 0 {
		if n <= 3 {
			parts = append(parts, fmt.Sprintf("Depends on: %s.", strings.Join(task.Dependencies, ", ")))
		} else {
			parts = append(parts, fmt.Sprintf("Depends on: %s and %d others.",
				strings.Join(task.Dependencies[:3], ", "), n-3))
		}
	}

	if len(task.Labels) > 0 {
		parts = append(parts, fmt.Sprintf("Labels: %s.", strings.Join(task.Labels, ", ")))
	}

	if len(task.Assignees) > 0 {
		parts = append(parts, fmt.Sprintf("Assigned to %s.", strings.Join(task.Assignees, ", ")))
	}

	if len(task.Subtasks) > 0 {
		parts = append(parts, fmt.Sprintf("Has %d subtasks.", len(task.Subtasks)))
	}

	return g.truncate(strings.Join(parts, " "), g.maxLength)
}

func (g *HeaderGenerator) truncate(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}

	cut := maxLength - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}

	// prefer a word boundary
	truncated := text[:cut]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxLength/2 {
		return truncated[:lastSpace] + "..."
	}

	return truncated + "..."
}

// TaskContext turns a task into a task-level context payload. project may be nil.
func (g *HeaderGenerator) TaskContext(task *domain.Task, project *domain.Project) ContextItem {
	data := map[string]any{
		"context_type": ContextTypeTask,
		"title":        task.Title,
		"description":  task.Description,
		"status":       string(task.Status),
		"priority":     string(task.Priority),
		"project_id":   task.ProjectID,
		"header":       g.Generate(task, project),
	}
	if task.Details != "" {
		data["details"] = task.Details
	}
	if task.GitBranchID != "" {
		data["git_branch_id"] = task.GitBranchID
	}
	if task.EstimatedEffort != "" {
		data["estimated_effort"] = task.EstimatedEffort
	}
	if len(task.Assignees) > 0 {
		data["assignees"] = append([]string(nil), task.Assignees...)
	}
	if len(task.Labels) > 0 {
		data["labels"] = append([]string(nil), task.Labels...)
	}
	if len(task.Dependencies) > 0 {
		data["dependencies"] = append([]string(nil), task.Dependencies...)
	}
	return ContextItem{ID: task.ID, Data: data}
}

// ProjectContextItem turns a project into a project-level context payload.
func (g *HeaderGenerator) ProjectContextItem(project *domain.Project) ContextItem {
	data := map[string]any{
		"context_type": ContextTypeProject,
		"name":         project.Name,
		"description":  project.Description,
		"user_id":      project.UserID,
	}
	if project.Goal != "" {
		data["header"] = g.truncate("Goal: "+project.Goal, g.maxLength)
	}
	if len(project.GitBranches) > 0 {
		data["git_branches"] = append([]string(nil), project.GitBranches...)
	}
	return ContextItem{ID: project.ID, Data: data}
}
