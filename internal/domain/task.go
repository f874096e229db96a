package domain

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusReview     TaskStatus = "review"
	StatusTesting    TaskStatus = "testing"
	StatusBlocked    TaskStatus = "blocked"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

var priorityRanks = map[Priority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityUrgent:   4,
	PriorityCritical: 5,
}

// Rank orders priorities from low (1) to critical (5). Unknown labels rank as medium.
func (p Priority) Rank() int {
	if rank, ok := priorityRanks[p]; ok {
		return rank
	}
	return priorityRanks[PriorityMedium]
}

type Task struct {
	ID              string         `json:"id"`
	ProjectID       string         `json:"projectId,omitempty"`
	GitBranchID     string         `json:"gitBranchId,omitempty"`
	UserID          string         `json:"userId,omitempty"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Details         string         `json:"details,omitempty"`
	Status          TaskStatus     `json:"status"`
	Priority        Priority       `json:"priority"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	DueDate         *time.Time     `json:"dueDate,omitempty"`
	Dependencies    []string       `json:"dependencies"`
	Subtasks        []string       `json:"subtasks"`
	Labels          []string       `json:"labels"`
	Assignees       []string       `json:"assignees"`
	EstimatedEffort string         `json:"estimatedEffort,omitempty"`
	Progress        float64        `json:"progress"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func NewTask(projectID, title, description string) *Task {
	now := time.Now()
	return &Task{
		ID:           uuid.New().String(),
		ProjectID:    projectID,
		Title:        title,
		Description:  description,
		Status:       StatusTodo,
		Priority:     PriorityMedium,
		Metadata:     make(map[string]any),
		Dependencies: make([]string, 0),
		Subtasks:     make([]string, 0),
		Labels:       make([]string, 0),
		Assignees:    make([]string, 0),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsDistributable reports whether the task can be handed to an agent.
func (t *Task) IsDistributable() bool {
	return t.Status == StatusTodo || t.Status == StatusInProgress
}

// HasAssignee reports whether agentID is already listed on the task.
func (t *Task) HasAssignee(agentID string) bool {
	for _, a := range t.Assignees {
		if a == agentID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices or maps with t.
func (t *Task) Clone() *Task {
	c := *t
	c.Dependencies = append([]string(nil), t.Dependencies...)
	c.Subtasks = append([]string(nil), t.Subtasks...)
	c.Labels = append([]string(nil), t.Labels...)
	c.Assignees = append([]string(nil), t.Assignees...)
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.DueDate != nil {
		due := *t.DueDate
		c.DueDate = &due
	}
	return &c
}
