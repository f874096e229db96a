package coordination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rcliao/meridian/internal/domain"
)

// ErrAgentUnavailable is returned when an agent is offline or at capacity.
var ErrAgentUnavailable = errors.New("agent unavailable")

const (
	successWeight  = 0.4
	capacityWeight = 0.3
	skillWeight    = 0.3
)

// AssignmentRecord is one entry of the assignment log.
type AssignmentRecord struct {
	TaskID     string    `json:"taskId"`
	AgentID    string    `json:"agentId"`
	Role       string    `json:"role"`
	AssignedBy string    `json:"assignedBy"`
	AssignedAt time.Time `json:"assignedAt"`
}

// Service matches agents to tasks and applies assignments through the repositories.
// When bound to a user, every repository access goes through that user's view.
type Service struct {
	tasks  domain.TaskRepository
	agents domain.AgentRepository
	userID string
	logger *slog.Logger

	mu  sync.Mutex
	log []AssignmentRecord
}

type Option func(*Service)

// WithUserID binds the service to a user's tasks and agents.
func WithUserID(userID string) Option {
	return func(s *Service) { s.userID = userID }
}

func NewService(tasks domain.TaskRepository, agents domain.AgentRepository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		tasks:  tasks,
		agents: agents,
		logger: logger,
		log:    make([]AssignmentRecord, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) repos() (domain.TaskRepository, domain.AgentRepository) {
	return domain.ScopeRepository(s.tasks, s.userID), domain.ScopeRepository(s.agents, s.userID)
}

// FindBestAgentForTask returns the best available agent for the task, or nil
// when no agent satisfies the requirements. A preferred agent that qualifies
// always wins; otherwise agents are ranked by success rate, spare capacity and
// skill proficiency. Ties keep repository order.
func (s *Service) FindBestAgentForTask(ctx context.Context, task *domain.Task, reqs domain.TaskRequirements) (*domain.Agent, error) {
	_, agentsRepo := s.repos()
	agents, err := agentsRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	excluded := toSet(reqs.ExcludedAgents)
	candidates := make([]*domain.Agent, 0, len(agents))
	for _, a := range agents {
		if task.ProjectID != "" && a.ProjectID != "" && a.ProjectID != task.ProjectID {
			continue
		}
		if !a.IsAvailable() || excluded[a.ID] {
			continue
		}
		if qualifies(a, reqs) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	for _, preferred := range reqs.PreferredAgents {
		for _, a := range candidates {
			if a.ID == preferred {
				return a, nil
			}
		}
	}

	best, bestScore := candidates[0], score(candidates[0], reqs)
	for _, a := range candidates[1:] {
		if sc := score(a, reqs); sc > bestScore {
			best, bestScore = a, sc
		}
	}
	return best, nil
}

func qualifies(a *domain.Agent, reqs domain.TaskRequirements) bool {
	if reqs.RequiredRole != nil && !a.SatisfiesRole(*reqs.RequiredRole) {
		return false
	}
	for _, c := range reqs.RequiredExpertise {
		if !a.HasCapability(c) {
			return false
		}
	}
	for skill, threshold := range reqs.RequiredSkills {
		if a.Skills[skill] < threshold {
			return false
		}
	}
	return true
}

func score(a *domain.Agent, reqs domain.TaskRequirements) float64 {
	coverage := 1.0
	if len(reqs.RequiredSkills) > 0 {
		total := 0.0
		for skill := range reqs.RequiredSkills {
			total += a.Skills[skill]
		}
		coverage = total / float64(len(reqs.RequiredSkills))
	}
	spare := 1 - a.WorkloadPercentage()/100
	return a.SuccessRate/100*successWeight + spare*capacityWeight + coverage*skillWeight
}

// AssignAgentToTask records agentID as an assignee of taskID and consumes one
// unit of the agent's capacity. Assigning the same pair twice is a no-op.
// If the task cannot be saved the agent's capacity is given back.
func (s *Service) AssignAgentToTask(ctx context.Context, taskID, agentID, role, assignedBy string) error {
	tasks, agents := s.repos()

	task, err := tasks.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}
	agent, err := agents.Get(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to load agent: %w", err)
	}

	if task.HasAssignee(agentID) {
		return nil
	}
	if !agent.IsAvailable() {
		return fmt.Errorf("agent %s (%d/%d tasks): %w", agent.ID, agent.CurrentWorkload, agent.MaxConcurrentTasks, ErrAgentUnavailable)
	}

	agent.AssignTask(task.ID)
	if err := agents.Update(ctx, agent); err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}

	task.Assignees = append(task.Assignees, agent.ID)
	task.UpdatedAt = time.Now()
	if err := tasks.Update(ctx, task); err != nil {
		if rbErr := releaseAgent(ctx, agents, agent.ID, task.ID); rbErr != nil {
			s.logger.Error("agent capacity not restored", "task_id", task.ID, "agent_id", agent.ID, "error", rbErr)
			return fmt.Errorf("failed to update task: %w (restoring agent: %v)", err, rbErr)
		}
		return fmt.Errorf("failed to update task: %w", err)
	}

	s.mu.Lock()
	s.log = append(s.log, AssignmentRecord{
		TaskID:     task.ID,
		AgentID:    agent.ID,
		Role:       role,
		AssignedBy: assignedBy,
		AssignedAt: time.Now(),
	})
	s.mu.Unlock()

	s.logger.Info("agent assigned", "task_id", task.ID, "agent_id", agent.ID, "role", role, "assigned_by", assignedBy)
	return nil
}

// releaseAgent reloads the agent and frees the slot taken for taskID.
func releaseAgent(ctx context.Context, agents domain.AgentRepository, agentID, taskID string) error {
	agent, err := agents.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if !agent.ReleaseTask(taskID) {
		return nil
	}
	return agents.Update(ctx, agent)
}

// Assignments returns a copy of the assignment log, oldest first.
func (s *Service) Assignments() []AssignmentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AssignmentRecord(nil), s.log...)
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
