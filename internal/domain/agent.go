package domain

import (
	"github.com/google/uuid"
)

type AgentCapability string

const (
	CapabilityBackendDevelopment  AgentCapability = "backend_development"
	CapabilityFrontendDevelopment AgentCapability = "frontend_development"
	CapabilityGeneralDevelopment  AgentCapability = "general_development"
	CapabilityTesting             AgentCapability = "testing"
	CapabilityDevOps              AgentCapability = "devops"
	CapabilityDocumentation       AgentCapability = "documentation"
	CapabilityArchitecture        AgentCapability = "architecture"
	CapabilityCodeReview          AgentCapability = "code_review"
	CapabilitySecurity            AgentCapability = "security"
	CapabilityDatabase            AgentCapability = "database"
)

var knownCapabilities = map[AgentCapability]bool{
	CapabilityBackendDevelopment:  true,
	CapabilityFrontendDevelopment: true,
	CapabilityGeneralDevelopment:  true,
	CapabilityTesting:             true,
	CapabilityDevOps:              true,
	CapabilityDocumentation:       true,
	CapabilityArchitecture:        true,
	CapabilityCodeReview:          true,
	CapabilitySecurity:            true,
	CapabilityDatabase:            true,
}

// ParseCapability returns the capability for s and false when s is not a known tag.
func ParseCapability(s string) (AgentCapability, bool) {
	c := AgentCapability(s)
	return c, knownCapabilities[c]
}

type AgentRole string

const (
	RoleDeveloper  AgentRole = "developer"
	RoleTester     AgentRole = "tester"
	RoleReviewer   AgentRole = "reviewer"
	RoleArchitect  AgentRole = "architect"
	RoleDevOps     AgentRole = "devops"
	RoleDocumenter AgentRole = "documenter"
)

var knownRoles = map[AgentRole]bool{
	RoleDeveloper:  true,
	RoleTester:     true,
	RoleReviewer:   true,
	RoleArchitect:  true,
	RoleDevOps:     true,
	RoleDocumenter: true,
}

func ParseRole(s string) (AgentRole, bool) {
	r := AgentRole(s)
	return r, knownRoles[r]
}

type Agent struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	UserID              string             `json:"userId,omitempty"`
	ProjectID           string             `json:"projectId,omitempty"`
	Capabilities        []AgentCapability  `json:"capabilities"`
	Skills              map[string]float64 `json:"skills,omitempty"`
	Available           bool               `json:"available"`
	CurrentWorkload     int                `json:"currentWorkload"`
	MaxConcurrentTasks  int                `json:"maxConcurrentTasks"`
	SuccessRate         float64            `json:"successRate"`
	AverageTaskDuration *float64           `json:"averageTaskDuration,omitempty"`
	ActiveTasks         []string           `json:"activeTasks"`
}

func NewAgent(name string, maxConcurrent int, capabilities ...AgentCapability) *Agent {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Agent{
		ID:                 uuid.New().String(),
		Name:               name,
		Capabilities:       capabilities,
		Skills:             make(map[string]float64),
		Available:          true,
		MaxConcurrentTasks: maxConcurrent,
		SuccessRate:        100,
		ActiveTasks:        make([]string, 0),
	}
}

// IsAvailable is true while the agent is online and below its concurrency cap.
func (a *Agent) IsAvailable() bool {
	return a.Available && a.CurrentWorkload < a.MaxConcurrentTasks
}

func (a *Agent) WorkloadPercentage() float64 {
	if a.MaxConcurrentTasks <= 0 {
		return 100
	}
	return float64(a.CurrentWorkload) / float64(a.MaxConcurrentTasks) * 100
}

func (a *Agent) HasCapability(c AgentCapability) bool {
	for _, have := range a.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// AssignTask records taskID as active and bumps the workload.
func (a *Agent) AssignTask(taskID string) {
	for _, id := range a.ActiveTasks {
		if id == taskID {
			return
		}
	}
	a.ActiveTasks = append(a.ActiveTasks, taskID)
	a.CurrentWorkload++
}

// ReleaseTask removes taskID from the active tasks and frees its slot.
// It reports whether the task was active.
func (a *Agent) ReleaseTask(taskID string) bool {
	for i, id := range a.ActiveTasks {
		if id == taskID {
			a.ActiveTasks = append(a.ActiveTasks[:i:i], a.ActiveTasks[i+1:]...)
			if a.CurrentWorkload > 0 {
				a.CurrentWorkload--
			}
			return true
		}
	}
	return false
}

func (a *Agent) Clone() *Agent {
	c := *a
	c.Capabilities = append([]AgentCapability(nil), a.Capabilities...)
	c.ActiveTasks = append([]string(nil), a.ActiveTasks...)
	if a.Skills != nil {
		c.Skills = make(map[string]float64, len(a.Skills))
		for k, v := range a.Skills {
			c.Skills[k] = v
		}
	}
	if a.AverageTaskDuration != nil {
		d := *a.AverageTaskDuration
		c.AverageTaskDuration = &d
	}
	return &c
}

// roleCapabilities lists the capabilities that qualify an agent for a role.
// Roles without an entry accept any agent.
var roleCapabilities = map[AgentRole][]AgentCapability{
	RoleDeveloper: {CapabilityBackendDevelopment, CapabilityGeneralDevelopment},
	RoleTester:    {CapabilityTesting},
}

// SatisfiesRole reports whether the agent has a capability the role requires.
func (a *Agent) SatisfiesRole(role AgentRole) bool {
	required, ok := roleCapabilities[role]
	if !ok {
		return true
	}
	for _, c := range required {
		if a.HasCapability(c) {
			return true
		}
	}
	return false
}
