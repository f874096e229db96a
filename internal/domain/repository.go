package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repositories when an entity does not exist
// or is not visible to the bound user.
var ErrNotFound = errors.New("not found")

type TaskFilter struct {
	ProjectID *string
	Status    *TaskStatus
}

type TaskRepository interface {
	Get(ctx context.Context, id string) (*Task, error)
	// List returns the tasks for ids that exist, in the order given. Unknown ids are omitted.
	List(ctx context.Context, ids []string) ([]*Task, error)
	Find(ctx context.Context, filter TaskFilter) ([]*Task, error)
	Create(ctx context.Context, task *Task) error
	Update(ctx context.Context, task *Task) error
}

type AgentRepository interface {
	Get(ctx context.Context, id string) (*Agent, error)
	GetAll(ctx context.Context) ([]*Agent, error)
	GetByProject(ctx context.Context, projectID string) ([]*Agent, error)
	Create(ctx context.Context, agent *Agent) error
	Update(ctx context.Context, agent *Agent) error
}
