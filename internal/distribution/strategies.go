package distribution

import (
	"context"
	"fmt"
	"sort"

	"github.com/rcliao/meridian/internal/domain"
)

// All strategies plan against cloned agents and call AssignTask on the clone
// they pick, so later picks in the same run see the consumed capacity. Ties
// always go to the earlier agent in pool order.

// roundRobin hands tasks to agents in pool order. An agent without capacity is
// skipped for that task and stays in the rotation.
func roundRobin(plan *domain.DistributionPlan, tasks []*domain.Task, pool []*domain.Agent) {
	cursor := 0
	for _, task := range tasks {
		picked := -1
		for k := 0; k < len(pool); k++ {
			idx := (cursor + k) % len(pool)
			if pool[idx].IsAvailable() {
				picked = idx
				break
			}
		}
		if picked < 0 {
			plan.MarkUnassignable(task.ID, reasonNoCapacity)
			continue
		}
		assign(plan, task, pool[picked], domain.DefaultAssignmentRole)
		cursor = picked + 1
	}
}

// loadBalanced gives each task to the available agent with the lowest
// workload percentage at that moment.
func loadBalanced(plan *domain.DistributionPlan, tasks []*domain.Task, pool []*domain.Agent, role string) {
	for _, task := range tasks {
		agent := leastLoaded(pool)
		if agent == nil {
			plan.MarkUnassignable(task.ID, reasonNoCapacity)
			continue
		}
		assign(plan, task, agent, role)
	}
}

func leastLoaded(pool []*domain.Agent) *domain.Agent {
	var best *domain.Agent
	for _, a := range pool {
		if !a.IsAvailable() {
			continue
		}
		if best == nil || a.WorkloadPercentage() < best.WorkloadPercentage() {
			best = a
		}
	}
	return best
}

// skillMatched asks the coordinator for the best agent per task. The agent
// must belong to the pool and still have capacity in this run.
func (s *Service) skillMatched(ctx context.Context, plan *domain.DistributionPlan, tasks []*domain.Task, pool []*domain.Agent) {
	byID := make(map[string]*domain.Agent, len(pool))
	for _, a := range pool {
		byID[a.ID] = a
	}

	for _, task := range tasks {
		agent, reason := s.matchSpecialist(ctx, task, byID)
		if agent == nil {
			plan.MarkUnassignable(task.ID, reason)
			continue
		}
		assign(plan, task, agent, RoleSpecialist)
	}
}

// matchSpecialist keeps asking the coordinator until it names a pool agent
// with capacity left in this run. Agents it already named are excluded from
// the next question since the coordinator only sees stored workload.
func (s *Service) matchSpecialist(ctx context.Context, task *domain.Task, byID map[string]*domain.Agent) (*domain.Agent, string) {
	reqs := domain.RequirementsFromTask(task)
	tried := make(map[string]bool)

	for {
		found, err := s.coordinator.FindBestAgentForTask(ctx, task, reqs)
		if err != nil {
			s.logger.Warn("agent matching failed", "task_id", task.ID, "error", err)
			return nil, fmt.Sprintf("Agent matching failed: %v", err)
		}
		if found == nil {
			if len(tried) > 0 {
				return nil, fmt.Sprintf("%s with remaining capacity", reasonNoMatch)
			}
			return nil, reasonNoMatch
		}
		if tried[found.ID] {
			return nil, fmt.Sprintf("%s with remaining capacity", reasonNoMatch)
		}
		if agent, ok := byID[found.ID]; ok && agent.IsAvailable() {
			return agent, ""
		}

		tried[found.ID] = true
		reqs.ExcludedAgents = append(append([]string(nil), reqs.ExcludedAgents...), found.ID)
	}
}

// priorityBased handles tasks from the highest priority down, giving each to
// the available agent with the best performance score.
func (s *Service) priorityBased(plan *domain.DistributionPlan, tasks []*domain.Task, pool []*domain.Agent, role string) {
	ordered := append([]*domain.Task(nil), tasks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.Rank() > ordered[j].Priority.Rank()
	})

	for _, task := range ordered {
		var (
			best      *domain.Agent
			bestScore float64
		)
		for _, a := range pool {
			if !a.IsAvailable() {
				continue
			}
			if score := s.performanceScore(a); best == nil || score > bestScore {
				best, bestScore = a, score
			}
		}
		if best == nil {
			plan.MarkUnassignable(task.ID, reasonNoCapacity)
			continue
		}
		assign(plan, task, best, role)
	}
}

// hybrid routes critical tasks through priorityBased, tasks with a required
// role to the first matching agent, and the rest through loadBalanced.
func (s *Service) hybrid(plan *domain.DistributionPlan, tasks []*domain.Task, pool []*domain.Agent) {
	var critical, skilled, rest []*domain.Task
	for _, task := range tasks {
		switch {
		case task.Priority == domain.PriorityCritical:
			critical = append(critical, task)
		case domain.HasRequiredRole(task):
			skilled = append(skilled, task)
		default:
			rest = append(rest, task)
		}
	}

	s.priorityBased(plan, critical, pool, RolePrioritySpecialist)

	for _, task := range skilled {
		reqs := domain.RequirementsFromTask(task)
		var match *domain.Agent
		for _, a := range pool {
			if a.IsAvailable() && agentMatchesRequirements(a, reqs) {
				match = a
				break
			}
		}
		if match == nil {
			plan.MarkUnassignable(task.ID, fmt.Sprintf("No available agent for required role %s", *reqs.RequiredRole))
			continue
		}
		assign(plan, task, match, RoleSkillMatched)
	}

	loadBalanced(plan, rest, pool, RoleLoadBalanced)
}

// agentMatchesRequirements never matches excluded agents and always matches
// preferred ones. Otherwise the agent must satisfy the required role, if any.
func agentMatchesRequirements(agent *domain.Agent, reqs domain.TaskRequirements) bool {
	for _, id := range reqs.ExcludedAgents {
		if id == agent.ID {
			return false
		}
	}
	for _, id := range reqs.PreferredAgents {
		if id == agent.ID {
			return true
		}
	}
	if reqs.RequiredRole == nil {
		return true
	}
	return agent.SatisfiesRole(*reqs.RequiredRole)
}

func assign(plan *domain.DistributionPlan, task *domain.Task, agent *domain.Agent, role string) {
	plan.Assign(task.ID, agent.ID, role)
	agent.AssignTask(task.ID)
}
