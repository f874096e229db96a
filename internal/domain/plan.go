package domain

import (
	"time"

	"github.com/google/uuid"
)

type DistributionStrategy string

const (
	StrategyRoundRobin    DistributionStrategy = "round_robin"
	StrategyLoadBalanced  DistributionStrategy = "load_balanced"
	StrategySkillMatched  DistributionStrategy = "skill_matched"
	StrategyPriorityBased DistributionStrategy = "priority_based"
	StrategyHybrid        DistributionStrategy = "hybrid"
)

func ParseStrategy(s string) (DistributionStrategy, bool) {
	switch st := DistributionStrategy(s); st {
	case StrategyRoundRobin, StrategyLoadBalanced, StrategySkillMatched, StrategyPriorityBased, StrategyHybrid:
		return st, true
	}
	return "", false
}

const DefaultAssignmentRole = "assignee"

type Assignment struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
	Role    string `json:"role"`
}

// DistributionPlan is the result of one distribution run. A task ID is in
// Assignments or UnassignableTasks, never both.
type DistributionPlan struct {
	PlanID            string               `json:"planId"`
	CreatedAt         time.Time            `json:"createdAt"`
	Strategy          DistributionStrategy `json:"strategy"`
	Assignments       []Assignment         `json:"assignments"`
	UnassignableTasks []string             `json:"unassignableTasks"`
	Reasons           map[string]string    `json:"reasons"`
	Recommendations   []string             `json:"recommendations"`
}

func NewDistributionPlan(strategy DistributionStrategy) *DistributionPlan {
	return &DistributionPlan{
		PlanID:            uuid.New().String(),
		CreatedAt:         time.Now(),
		Strategy:          strategy,
		Assignments:       make([]Assignment, 0),
		UnassignableTasks: make([]string, 0),
		Reasons:           make(map[string]string),
		Recommendations:   make([]string, 0),
	}
}

// Assign adds an assignment. An empty role becomes DefaultAssignmentRole.
func (p *DistributionPlan) Assign(taskID, agentID, role string) {
	if role == "" {
		role = DefaultAssignmentRole
	}
	p.removeUnassignable(taskID)
	p.removeAssignment(taskID)
	p.Assignments = append(p.Assignments, Assignment{TaskID: taskID, AgentID: agentID, Role: role})
}

// MarkUnassignable moves taskID out of the assignments, if present, and records reason.
func (p *DistributionPlan) MarkUnassignable(taskID, reason string) {
	p.removeAssignment(taskID)
	if _, exists := p.Reasons[taskID]; !exists {
		p.UnassignableTasks = append(p.UnassignableTasks, taskID)
	}
	p.Reasons[taskID] = reason
}

func (p *DistributionPlan) IsAssigned(taskID string) bool {
	for _, a := range p.Assignments {
		if a.TaskID == taskID {
			return true
		}
	}
	return false
}

func (p *DistributionPlan) TotalTasks() int {
	return len(p.Assignments) + len(p.UnassignableTasks)
}

func (p *DistributionPlan) removeAssignment(taskID string) {
	kept := p.Assignments[:0]
	for _, a := range p.Assignments {
		if a.TaskID != taskID {
			kept = append(kept, a)
		}
	}
	p.Assignments = kept
}

func (p *DistributionPlan) removeUnassignable(taskID string) {
	if _, exists := p.Reasons[taskID]; !exists {
		return
	}
	delete(p.Reasons, taskID)
	kept := p.UnassignableTasks[:0]
	for _, id := range p.UnassignableTasks {
		if id != taskID {
			kept = append(kept, id)
		}
	}
	p.UnassignableTasks = kept
}
