package distribution

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/meridian/internal/coordination"
	"github.com/rcliao/meridian/internal/domain"
	"github.com/rcliao/meridian/internal/storage"
)

type boundRepo struct {
	domain.TaskRepository
	user    string
	rebinds int
}

func (r *boundRepo) UserID() string { return r.user }

func (r *boundRepo) ForUser(userID string) domain.TaskRepository {
	r.rebinds++
	return &boundRepo{TaskRepository: r.TaskRepository, user: userID}
}

func TestScopeRepository(t *testing.T) {
	var repo domain.TaskRepository = &boundRepo{user: "alice"}

	assert.Same(t, repo, domain.ScopeRepository(repo, ""))
	assert.Same(t, repo, domain.ScopeRepository(repo, "alice"))

	scoped := domain.ScopeRepository(repo, "bob")
	require.IsType(t, &boundRepo{}, scoped)
	assert.Equal(t, "bob", scoped.(*boundRepo).user)
	assert.Equal(t, 1, repo.(*boundRepo).rebinds)
}

func TestScopeRepository_MemoryWithUser(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	mine := domain.NewTask("p1", "mine", "")
	mine.UserID = "alice"
	theirs := domain.NewTask("p1", "theirs", "")
	theirs.UserID = "bob"
	require.NoError(t, store.Tasks().Create(ctx, mine))
	require.NoError(t, store.Tasks().Create(ctx, theirs))

	var repo domain.TaskRepository = store.Tasks()
	tasks, err := domain.ScopeRepository(repo, "alice").List(ctx, []string{mine.ID, theirs.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, mine.ID, tasks[0].ID)
}

func TestScopeRepository_SQLiteForUser(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "meridian.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	agent := domain.NewAgent("carol-bot", 1)
	agent.UserID = "carol"
	require.NoError(t, db.Agents().Create(ctx, agent))

	var repo domain.AgentRepository = db.Agents()
	all, err := domain.ScopeRepository(repo, "carol").GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	none, err := domain.ScopeRepository(repo, "dave").GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestService_UserScoped(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	coord := &fakeCoordinator{failAssign: make(map[string]error)}

	agent := domain.NewAgent("alice-bot", 5)
	agent.UserID = "alice"
	require.NoError(t, store.Agents().Create(ctx, agent))
	foreign := domain.NewTask("p1", "foreign", "")
	foreign.UserID = "bob"
	require.NoError(t, store.Tasks().Create(ctx, foreign))
	own := domain.NewTask("p1", "own", "")
	own.UserID = "alice"
	require.NoError(t, store.Tasks().Create(ctx, own))

	svc := NewService(store.Tasks(), store.Agents(), coord, WithUserID("alice"), WithLogger(quietLogger()))
	plan, err := svc.DistributeTasks(ctx, []string{own.ID, foreign.ID}, domain.StrategyRoundRobin, "")
	require.NoError(t, err)

	assert.True(t, plan.IsAssigned(own.ID))
	assert.Equal(t, "Task not found", plan.Reasons[foreign.ID])
}

func TestService_UserScopedSkillMatching(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	coord := coordination.NewService(store.Tasks(), store.Agents(), quietLogger(), coordination.WithUserID("alice"))
	svc := NewService(store.Tasks(), store.Agents(), coord, WithUserID("alice"), WithLogger(quietLogger()))

	mine := domain.NewAgent("alice-bot", 2, domain.CapabilityBackendDevelopment)
	mine.UserID = "alice"
	mine.SuccessRate = 50
	other := domain.NewAgent("bob-bot", 2, domain.CapabilityBackendDevelopment)
	other.UserID = "bob"
	other.SuccessRate = 99
	require.NoError(t, store.Agents().Create(ctx, mine))
	require.NoError(t, store.Agents().Create(ctx, other))

	task := domain.NewTask("p1", "own", "")
	task.UserID = "alice"
	require.NoError(t, store.Tasks().Create(ctx, task))

	plan, err := svc.DistributeTasks(ctx, []string{task.ID}, domain.StrategySkillMatched, "")
	require.NoError(t, err)

	require.True(t, plan.IsAssigned(task.ID))
	assert.Equal(t, []string{mine.ID}, agentIDs(plan))

	stored, err := store.Agents().Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CurrentWorkload)
}
