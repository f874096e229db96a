package coordination

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/meridian/internal/domain"
	"github.com/rcliao/meridian/internal/storage"
)

func setup(t *testing.T) (*Service, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store.Tasks(), store.Agents(), logger), store
}

func addAgent(t *testing.T, store *storage.MemoryStorage, a *domain.Agent) *domain.Agent {
	t.Helper()
	require.NoError(t, store.Agents().Create(context.Background(), a))
	return a
}

func TestFindBestAgentForTask_RoleAndSkills(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	tester := addAgent(t, store, domain.NewAgent("tester", 2, domain.CapabilityTesting))
	weak := addAgent(t, store, domain.NewAgent("weak", 2, domain.CapabilityBackendDevelopment))
	weak.Skills["go"] = 0.4
	require.NoError(t, store.Agents().Update(ctx, weak))
	strong := addAgent(t, store, domain.NewAgent("strong", 2, domain.CapabilityBackendDevelopment))
	strong.Skills["go"] = 0.9
	require.NoError(t, store.Agents().Update(ctx, strong))

	task := domain.NewTask("p1", "Build API", "")
	task.Metadata = map[string]any{
		"required_role":   "developer",
		"required_skills": map[string]any{"go": 0.5},
	}

	agent, err := svc.FindBestAgentForTask(ctx, task, domain.RequirementsFromTask(task))
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, strong.ID, agent.ID)

	task.Metadata = map[string]any{"required_role": "tester"}
	agent, err = svc.FindBestAgentForTask(ctx, task, domain.RequirementsFromTask(task))
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, tester.ID, agent.ID)
}

func TestFindBestAgentForTask_PreferredExcludedAndNone(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	a := addAgent(t, store, domain.NewAgent("a", 1, domain.CapabilityGeneralDevelopment))
	b := addAgent(t, store, domain.NewAgent("b", 1, domain.CapabilityGeneralDevelopment))
	b.SuccessRate = 50
	require.NoError(t, store.Agents().Update(ctx, b))

	task := domain.NewTask("p1", "Refactor", "")

	reqs := domain.RequirementsFromTask(task)
	reqs.PreferredAgents = []string{b.ID}
	agent, err := svc.FindBestAgentForTask(ctx, task, reqs)
	require.NoError(t, err)
	assert.Equal(t, b.ID, agent.ID)

	reqs = domain.RequirementsFromTask(task)
	reqs.ExcludedAgents = []string{a.ID}
	agent, err = svc.FindBestAgentForTask(ctx, task, reqs)
	require.NoError(t, err)
	assert.Equal(t, b.ID, agent.ID)

	reqs.ExcludedAgents = []string{a.ID, b.ID}
	agent, err = svc.FindBestAgentForTask(ctx, task, reqs)
	require.NoError(t, err)
	assert.Nil(t, agent)
}

func TestAssignAgentToTask(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	agent := addAgent(t, store, domain.NewAgent("dev", 1, domain.CapabilityBackendDevelopment))
	first := domain.NewTask("p1", "First", "")
	second := domain.NewTask("p1", "Second", "")
	require.NoError(t, store.Tasks().Create(ctx, first))
	require.NoError(t, store.Tasks().Create(ctx, second))

	require.NoError(t, svc.AssignAgentToTask(ctx, first.ID, agent.ID, "assignee", "tester"))
	require.NoError(t, svc.AssignAgentToTask(ctx, first.ID, agent.ID, "assignee", "tester"))

	storedAgent, err := store.Agents().Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, storedAgent.CurrentWorkload)
	assert.Equal(t, []string{first.ID}, storedAgent.ActiveTasks)

	storedTask, err := store.Tasks().Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{agent.ID}, storedTask.Assignees)

	err = svc.AssignAgentToTask(ctx, second.ID, agent.ID, "assignee", "tester")
	assert.ErrorIs(t, err, ErrAgentUnavailable)

	err = svc.AssignAgentToTask(ctx, "missing", agent.ID, "assignee", "tester")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	log := svc.Assignments()
	require.Len(t, log, 1)
	assert.Equal(t, "tester", log[0].AssignedBy)
}

type failingTaskUpdates struct {
	domain.TaskRepository
}

func (failingTaskUpdates) Update(context.Context, *domain.Task) error {
	return errors.New("disk full")
}

func TestAssignAgentToTask_TaskUpdateFailureRestoresAgent(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(failingTaskUpdates{store.Tasks()}, store.Agents(), logger)

	agent := addAgent(t, store, domain.NewAgent("dev", 1, domain.CapabilityBackendDevelopment))
	task := domain.NewTask("p1", "Build", "")
	require.NoError(t, store.Tasks().Create(ctx, task))

	err := svc.AssignAgentToTask(ctx, task.ID, agent.ID, "assignee", "tester")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	stored, err := store.Agents().Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CurrentWorkload)
	assert.Empty(t, stored.ActiveTasks)
	assert.True(t, stored.IsAvailable())
	assert.Empty(t, svc.Assignments())
}

func TestService_UserScoped(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store.Tasks(), store.Agents(), logger, WithUserID("u1"))

	mine := domain.NewAgent("mine", 2, domain.CapabilityTesting)
	mine.UserID = "u1"
	mine.SuccessRate = 50
	other := domain.NewAgent("other", 2, domain.CapabilityTesting)
	other.UserID = "u2"
	other.SuccessRate = 99
	addAgent(t, store, mine)
	addAgent(t, store, other)

	task := domain.NewTask("p1", "Verify", "")
	task.UserID = "u1"
	task.Metadata["required_role"] = "tester"
	require.NoError(t, store.Tasks().Create(ctx, task))
	foreign := domain.NewTask("p1", "Foreign", "")
	foreign.UserID = "u2"
	require.NoError(t, store.Tasks().Create(ctx, foreign))

	found, err := svc.FindBestAgentForTask(ctx, task, domain.RequirementsFromTask(task))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, mine.ID, found.ID)

	assert.ErrorIs(t, svc.AssignAgentToTask(ctx, task.ID, other.ID, "assignee", "tester"), domain.ErrNotFound)
	assert.ErrorIs(t, svc.AssignAgentToTask(ctx, foreign.ID, mine.ID, "assignee", "tester"), domain.ErrNotFound)
	require.NoError(t, svc.AssignAgentToTask(ctx, task.ID, mine.ID, "assignee", "tester"))

	stored, err := store.Agents().Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CurrentWorkload)
}
