package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rcliao/meridian/internal/domain"
)

// MemoryStorage keeps tasks, agents and projects in process. Repositories
// obtained from it copy entities in and out, so callers never share state
// with the store.
type MemoryStorage struct {
	mu       sync.RWMutex
	tasks    map[string]*domain.Task
	agents   map[string]*domain.Agent
	projects map[string]*domain.Project
	seq      map[string]int
	next     int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks:    make(map[string]*domain.Task),
		agents:   make(map[string]*domain.Agent),
		projects: make(map[string]*domain.Project),
		seq:      make(map[string]int),
	}
}

// Tasks returns an unscoped task repository.
func (ms *MemoryStorage) Tasks() *MemoryTaskRepository {
	return &MemoryTaskRepository{store: ms}
}

// Agents returns an unscoped agent repository.
func (ms *MemoryStorage) Agents() *MemoryAgentRepository {
	return &MemoryAgentRepository{store: ms}
}

// insertion order is kept so that listings are deterministic
func (ms *MemoryStorage) stamp(id string) {
	if _, ok := ms.seq[id]; !ok {
		ms.next++
		ms.seq[id] = ms.next
	}
}

func (ms *MemoryStorage) sortByInsertion(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return ms.seq[ids[i]] < ms.seq[ids[j]]
	})
}

// Project Repository Implementation
func (ms *MemoryStorage) CreateProject(project *domain.Project) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.projects[project.ID]; exists {
		return fmt.Errorf("project with ID %s already exists", project.ID)
	}

	p := *project
	ms.projects[project.ID] = &p
	ms.stamp(project.ID)
	return nil
}

func (ms *MemoryStorage) GetProject(id string) (*domain.Project, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	project, exists := ms.projects[id]
	if !exists {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}

	p := *project
	return &p, nil
}

func (ms *MemoryStorage) ListProjects() ([]*domain.Project, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ids := make([]string, 0, len(ms.projects))
	for id := range ms.projects {
		ids = append(ids, id)
	}
	ms.sortByInsertion(ids)

	result := make([]*domain.Project, 0, len(ids))
	for _, id := range ids {
		p := *ms.projects[id]
		result = append(result, &p)
	}
	return result, nil
}

// MemoryTaskRepository is a task repository view, optionally bound to a user.
type MemoryTaskRepository struct {
	store  *MemoryStorage
	userID string
}

// WithUser returns a view that only sees tasks owned by userID.
func (r *MemoryTaskRepository) WithUser(userID string) domain.TaskRepository {
	return &MemoryTaskRepository{store: r.store, userID: userID}
}

func (r *MemoryTaskRepository) visible(task *domain.Task) bool {
	return r.userID == "" || task.UserID == r.userID
}

func (r *MemoryTaskRepository) Get(_ context.Context, id string) (*domain.Task, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	task, exists := r.store.tasks[id]
	if !exists || !r.visible(task) {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return task.Clone(), nil
}

func (r *MemoryTaskRepository) List(_ context.Context, ids []string) ([]*domain.Task, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		task, exists := r.store.tasks[id]
		if !exists || !r.visible(task) {
			continue
		}
		result = append(result, task.Clone())
	}
	return result, nil
}

func (r *MemoryTaskRepository) Find(_ context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids := make([]string, 0, len(r.store.tasks))
	for id, task := range r.store.tasks {
		if !r.visible(task) {
			continue
		}
		if filter.ProjectID != nil && task.ProjectID != *filter.ProjectID {
			continue
		}
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		ids = append(ids, id)
	}
	r.store.sortByInsertion(ids)

	result := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.store.tasks[id].Clone())
	}
	return result, nil
}

func (r *MemoryTaskRepository) Create(_ context.Context, task *domain.Task) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}

	stored := task.Clone()
	if stored.UserID == "" {
		stored.UserID = r.userID
	}
	r.store.tasks[task.ID] = stored
	r.store.stamp(task.ID)
	return nil
}

func (r *MemoryTaskRepository) Update(_ context.Context, task *domain.Task) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, exists := r.store.tasks[task.ID]
	if !exists || !r.visible(existing) {
		return fmt.Errorf("task %s: %w", task.ID, domain.ErrNotFound)
	}

	stored := task.Clone()
	stored.UserID = existing.UserID
	r.store.tasks[task.ID] = stored
	return nil
}

// MemoryAgentRepository is an agent repository view, optionally bound to a user.
type MemoryAgentRepository struct {
	store  *MemoryStorage
	userID string
}

func (r *MemoryAgentRepository) WithUser(userID string) domain.AgentRepository {
	return &MemoryAgentRepository{store: r.store, userID: userID}
}

func (r *MemoryAgentRepository) visible(agent *domain.Agent) bool {
	return r.userID == "" || agent.UserID == r.userID
}

func (r *MemoryAgentRepository) Get(_ context.Context, id string) (*domain.Agent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	agent, exists := r.store.agents[id]
	if !exists || !r.visible(agent) {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return agent.Clone(), nil
}

func (r *MemoryAgentRepository) GetAll(ctx context.Context) ([]*domain.Agent, error) {
	return r.list(func(*domain.Agent) bool { return true }), nil
}

func (r *MemoryAgentRepository) GetByProject(ctx context.Context, projectID string) ([]*domain.Agent, error) {
	return r.list(func(a *domain.Agent) bool { return a.ProjectID == projectID }), nil
}

func (r *MemoryAgentRepository) list(keep func(*domain.Agent) bool) []*domain.Agent {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids := make([]string, 0, len(r.store.agents))
	for id, agent := range r.store.agents {
		if r.visible(agent) && keep(agent) {
			ids = append(ids, id)
		}
	}
	r.store.sortByInsertion(ids)

	result := make([]*domain.Agent, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.store.agents[id].Clone())
	}
	return result
}

func (r *MemoryAgentRepository) Create(_ context.Context, agent *domain.Agent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.agents[agent.ID]; exists {
		return fmt.Errorf("agent with ID %s already exists", agent.ID)
	}

	stored := agent.Clone()
	if stored.UserID == "" {
		stored.UserID = r.userID
	}
	r.store.agents[agent.ID] = stored
	r.store.stamp(agent.ID)
	return nil
}

func (r *MemoryAgentRepository) Update(_ context.Context, agent *domain.Agent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, exists := r.store.agents[agent.ID]
	if !exists || !r.visible(existing) {
		return fmt.Errorf("agent %s: %w", agent.ID, domain.ErrNotFound)
	}

	stored := agent.Clone()
	stored.UserID = existing.UserID
	r.store.agents[agent.ID] = stored
	return nil
}
