package selection

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/rcliao/meridian/internal/domain"
)

func TestHeaderGenerator_Generate(t *testing.T) {
	generator := NewHeaderGenerator(500)

	project := domain.NewProject("Test Project", "A test project", "Build awesome software")
	task := domain.NewTask(project.ID, "Implement authentication", "Add JWT-based authentication to the API")
	task.Dependencies = []string{"setup database", "create user model"}
	task.Labels = []string{"backend", "security"}
	task.Priority = domain.PriorityHigh

	header := generator.Generate(task, project)

	assert.Contains(t, header, "Build awesome software")
	assert.Contains(t, header, "JWT-based authentication")
	assert.Contains(t, header, "Depends on: setup database, create user model.")
	assert.Contains(t, header, "Priority: high")
	assert.Contains(t, header, "Labels: backend, security")
	assert.NotContains(t, header, "Status:")
}

func TestHeaderGenerator_ManyDependenciesAndTruncation(t *testing.T) {
	generator := NewHeaderGenerator(60)

	task := domain.NewTask("project-id", "Deploy to production", "")
	task.Status = domain.StatusBlocked
	task.Dependencies = []string{"a", "b", "c", "d", "e"}

	full := NewHeaderGenerator(500).Generate(task, nil)
	assert.Contains(t, full, "Task: Deploy to production.")
	assert.Contains(t, full, "Status: blocked")
	assert.Contains(t, full, "Depends on: a, b, c and 2 others.")

	short := generator.Generate(task, nil)
	assert.LessOrEqual(t, len(short), 60)
	assert.True(t, len(short) > 3 && short[len(short)-3:] == "...")
}

func TestHeaderGenerator_TruncatesOnRuneBoundary(t *testing.T) {
	task := domain.NewTask("p1", "Déployer héhéhéhéhéhéhéhéhé", "")

	for length := 1; length <= 40; length++ {
		header := NewHeaderGenerator(length).Generate(task, nil)
		assert.True(t, utf8.ValidString(header), "length %d: %q", length, header)
		assert.LessOrEqual(t, len(header), max(length, 4))
		assert.True(t, strings.HasSuffix(header, "..."), "length %d: %q", length, header)
	}

	cjk := domain.NewTask("p1", "部署到生产环境并验证", "")
	header := NewHeaderGenerator(12).Generate(cjk, nil)
	assert.True(t, utf8.ValidString(header))
	assert.Equal(t, "Task: 部...", header)
}

func TestHeaderGenerator_TaskContext(t *testing.T) {
	generator := NewHeaderGenerator(0)

	task := domain.NewTask("p1", "Fix login", "Session cookie expires early")
	task.GitBranchID = "b1"
	task.Assignees = []string{"alice"}
	task.EstimatedEffort = "4h"

	item := generator.TaskContext(task, nil)

	assert.Equal(t, task.ID, item.ID)
	assert.Equal(t, ContextTypeTask, item.Data["context_type"])
	assert.Equal(t, "todo", item.Data["status"])
	assert.Equal(t, "medium", item.Data["priority"])
	assert.Equal(t, "b1", item.Data["git_branch_id"])
	assert.Equal(t, []string{"alice"}, item.Data["assignees"])
	assert.NotEmpty(t, item.Data["header"])
	assert.NotContains(t, item.Data, "labels")

	task.Assignees[0] = "mallory"
	assert.Equal(t, []string{"alice"}, item.Data["assignees"])
}

func TestHeaderGenerator_ProjectContextItem(t *testing.T) {
	generator := NewHeaderGenerator(0)
	project := domain.NewProject("Meridian", "Work distribution", "Ship the engine")
	project.GitBranches = []string{"main"}

	item := generator.ProjectContextItem(project)

	assert.Equal(t, project.ID, item.ID)
	assert.Equal(t, ContextTypeProject, item.Data["context_type"])
	assert.Equal(t, "Goal: Ship the engine", item.Data["header"])
	assert.Equal(t, 0.75, completenessScore(item.Data, ContextTypeProject))
}
