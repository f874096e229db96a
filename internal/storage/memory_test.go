package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/meridian/internal/domain"
)

func TestMemoryStorage_TaskOperations(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStorage().Tasks()

	task := domain.NewTask("project-1", "Test Task", "A test task")
	err := repo.Create(ctx, task)
	assert.NoError(t, err)

	// Duplicate creation fails
	err = repo.Create(ctx, task)
	assert.Error(t, err)

	retrieved, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Title, retrieved.Title)

	// Returned tasks are copies
	retrieved.Title = "mutated"
	again, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Task", again.Title)

	retrieved.Status = domain.StatusInProgress
	require.NoError(t, repo.Update(ctx, retrieved))
	updated, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, updated.Status)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStorage_ListPreservesRequestOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStorage().Tasks()

	a := domain.NewTask("p", "A", "")
	b := domain.NewTask("p", "B", "")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	tasks, err := repo.List(ctx, []string{b.ID, "missing", a.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, b.ID, tasks[0].ID)
	assert.Equal(t, a.ID, tasks[1].ID)
}

func TestMemoryStorage_TaskFiltering(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStorage().Tasks()

	task1 := domain.NewTask("project-1", "Task 1", "Description 1")
	task2 := domain.NewTask("project-1", "Task 2", "Description 2")
	task2.Status = domain.StatusInProgress
	task3 := domain.NewTask("project-2", "Task 3", "Description 3")

	require.NoError(t, repo.Create(ctx, task1))
	require.NoError(t, repo.Create(ctx, task2))
	require.NoError(t, repo.Create(ctx, task3))

	project := "project-1"
	tasks, err := repo.Find(ctx, domain.TaskFilter{ProjectID: &project})
	assert.NoError(t, err)
	assert.Len(t, tasks, 2)
	assert.Equal(t, task1.ID, tasks[0].ID)

	status := domain.StatusTodo
	tasks, err = repo.Find(ctx, domain.TaskFilter{ProjectID: &project, Status: &status})
	assert.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task1.ID, tasks[0].ID)
}

func TestMemoryStorage_UserScoping(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	alice := store.Tasks().WithUser("alice")
	bob := store.Tasks().WithUser("bob")

	task := domain.NewTask("p", "Alice's task", "")
	require.NoError(t, alice.Create(ctx, task))

	_, err := bob.Get(ctx, task.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := alice.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)

	// The unscoped view sees everything
	_, err = store.Tasks().Get(ctx, task.ID)
	assert.NoError(t, err)
}

func TestMemoryStorage_AgentOperations(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := store.Agents()

	a1 := domain.NewAgent("a1", 2, domain.CapabilityTesting)
	a1.ProjectID = "p1"
	a2 := domain.NewAgent("a2", 2, domain.CapabilityBackendDevelopment)
	a2.ProjectID = "p2"
	require.NoError(t, repo.Create(ctx, a1))
	require.NoError(t, repo.Create(ctx, a2))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a1.ID, all[0].ID)

	byProject, err := repo.GetByProject(ctx, "p2")
	require.NoError(t, err)
	require.Len(t, byProject, 1)
	assert.Equal(t, a2.ID, byProject[0].ID)

	a1.AssignTask("t1")
	require.NoError(t, repo.Update(ctx, a1))
	got, err := repo.Get(ctx, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentWorkload)

	scoped := repo.WithUser("someone-else")
	others, err := scoped.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestMemoryStorage_ProjectOperations(t *testing.T) {
	store := NewMemoryStorage()

	project := domain.NewProject("Test Project", "A test project", "Test goal")
	assert.NoError(t, store.CreateProject(project))
	assert.Error(t, store.CreateProject(project))

	retrieved, err := store.GetProject(project.ID)
	assert.NoError(t, err)
	assert.Equal(t, project.Name, retrieved.Name)

	projects, err := store.ListProjects()
	assert.NoError(t, err)
	assert.Len(t, projects, 1)

	_, err = store.GetProject("non-existent")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
