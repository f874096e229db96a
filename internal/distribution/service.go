package distribution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rcliao/meridian/internal/domain"
)

// AssignedBy is passed to the coordinator for every executed assignment.
const AssignedBy = "work_distribution_service"

const (
	reasonTaskNotFound = "Task not found"
	reasonNoAgents     = "No available agents"
	reasonNoCapacity   = "No available agents with capacity"
	reasonNoMatch      = "No matching agent found"
)

// Role labels written into plan assignments.
const (
	RoleSpecialist         = "specialist"
	RolePriorityAssignee   = "priority_assignee"
	RolePrioritySpecialist = "priority_specialist"
	RoleSkillMatched       = "skill_matched"
	RoleLoadBalanced       = "load_balanced"
)

// Coordinator finds agents for tasks and applies assignments.
type Coordinator interface {
	FindBestAgentForTask(ctx context.Context, task *domain.Task, reqs domain.TaskRequirements) (*domain.Agent, error)
	AssignAgentToTask(ctx context.Context, taskID, agentID, role, assignedBy string) error
}

type Option func(*Service)

// WithUserID binds the service to a user. Repositories are scoped to that user
// before every use.
func WithUserID(userID string) Option {
	return func(s *Service) { s.userID = userID }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// Service distributes tasks to agents and keeps a bounded history of plans.
//
// Agent performance scores are cached per agent for the lifetime of the
// service and are not refreshed when an agent's success rate changes; call
// ResetPerformanceCache to recompute them.
type Service struct {
	tasks       domain.TaskRepository
	agents      domain.AgentRepository
	coordinator Coordinator
	userID      string
	logger      *slog.Logger

	mu        sync.Mutex
	history   []HistoryRecord
	perfCache map[string]float64
}

func NewService(tasks domain.TaskRepository, agents domain.AgentRepository, coordinator Coordinator, opts ...Option) *Service {
	s := &Service{
		tasks:       tasks,
		agents:      agents,
		coordinator: coordinator,
		history:     make([]HistoryRecord, 0),
		perfCache:   make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// DistributeTasks plans and executes assignments for taskIDs. Tasks that are
// not todo or in_progress are skipped. Unknown IDs and tasks no agent can take
// end up in the plan's unassignable list; assignments the coordinator rejects
// are moved there with the rejection as reason. An empty strategy means hybrid.
// An empty projectID considers every agent.
func (s *Service) DistributeTasks(ctx context.Context, taskIDs []string, strategy domain.DistributionStrategy, projectID string) (*domain.DistributionPlan, error) {
	if strategy == "" {
		strategy = domain.StrategyHybrid
	}
	if _, ok := domain.ParseStrategy(string(strategy)); !ok {
		return nil, fmt.Errorf("unknown distribution strategy %q", strategy)
	}

	tasksRepo := domain.ScopeRepository(s.tasks, s.userID)
	agentsRepo := domain.ScopeRepository(s.agents, s.userID)

	ids := dedupe(taskIDs)
	loaded, err := tasksRepo.List(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	byID := make(map[string]*domain.Task, len(loaded))
	for _, t := range loaded {
		byID[t.ID] = t
	}

	plan := domain.NewDistributionPlan(strategy)
	tasks := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			plan.MarkUnassignable(id, reasonTaskNotFound)
			continue
		}
		if t.IsDistributable() {
			tasks = append(tasks, t)
		}
	}

	pool, err := s.availableAgents(ctx, agentsRepo, projectID)
	if err != nil {
		return nil, err
	}

	switch {
	case len(tasks) == 0:
	case len(pool) == 0:
		for _, t := range tasks {
			plan.MarkUnassignable(t.ID, reasonNoAgents)
		}
	default:
		s.plan(ctx, plan, strategy, tasks, pool)
	}

	s.execute(ctx, plan)
	plan.Recommendations = recommendations(plan, pool)
	s.record(plan)

	s.logger.Info("tasks distributed",
		"plan_id", plan.PlanID,
		"strategy", string(strategy),
		"assigned", len(plan.Assignments),
		"unassignable", len(plan.UnassignableTasks))
	return plan, nil
}

// availableAgents returns clones of the available agents, in repository order.
// Strategies consume capacity on the clones while planning.
func (s *Service) availableAgents(ctx context.Context, repo domain.AgentRepository, projectID string) ([]*domain.Agent, error) {
	var (
		agents []*domain.Agent
		err    error
	)
	if projectID != "" {
		agents, err = repo.GetByProject(ctx, projectID)
	} else {
		agents, err = repo.GetAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agents: %w", err)
	}

	pool := make([]*domain.Agent, 0, len(agents))
	for _, a := range agents {
		if a.IsAvailable() {
			pool = append(pool, a.Clone())
		}
	}
	return pool, nil
}

func (s *Service) plan(ctx context.Context, plan *domain.DistributionPlan, strategy domain.DistributionStrategy, tasks []*domain.Task, pool []*domain.Agent) {
	switch strategy {
	case domain.StrategyRoundRobin:
		roundRobin(plan, tasks, pool)
	case domain.StrategyLoadBalanced:
		loadBalanced(plan, tasks, pool, domain.DefaultAssignmentRole)
	case domain.StrategySkillMatched:
		s.skillMatched(ctx, plan, tasks, pool)
	case domain.StrategyPriorityBased:
		s.priorityBased(plan, tasks, pool, RolePriorityAssignee)
	case domain.StrategyHybrid:
		s.hybrid(plan, tasks, pool)
	}
}

// execute applies every planned assignment. A rejected assignment moves its
// task to the unassignable list and the remaining assignments still run.
func (s *Service) execute(ctx context.Context, plan *domain.DistributionPlan) {
	planned := append([]domain.Assignment(nil), plan.Assignments...)
	for _, a := range planned {
		if err := s.coordinator.AssignAgentToTask(ctx, a.TaskID, a.AgentID, a.Role, AssignedBy); err != nil {
			s.logger.Warn("assignment failed", "task_id", a.TaskID, "agent_id", a.AgentID, "error", err)
			plan.MarkUnassignable(a.TaskID, err.Error())
		}
	}
}

// performanceScore rates an agent in [0, 1] from its success rate and, when
// known, its average task duration. Scores are cached per agent ID.
func (s *Service) performanceScore(agent *domain.Agent) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if score, ok := s.perfCache[agent.ID]; ok {
		return score
	}
	score := agent.SuccessRate / 100
	if agent.AverageTaskDuration != nil && *agent.AverageTaskDuration > 0 {
		hours := *agent.AverageTaskDuration
		score = score*0.7 + min(1.0, 8.0/hours)*0.3
	}
	s.perfCache[agent.ID] = score
	return score
}

// ResetPerformanceCache drops every cached performance score.
func (s *Service) ResetPerformanceCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perfCache = make(map[string]float64)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
