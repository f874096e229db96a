package domain

import (
	"strconv"
	"strings"
	"time"
)

// TaskRequirements describes what an agent must offer to take a task.
// Build it with RequirementsFromTask; it is not modified afterwards.
type TaskRequirements struct {
	TaskID              string
	RequiredRole        *AgentRole
	RequiredExpertise   []AgentCapability
	RequiredSkills      map[string]float64
	PreferredAgents     []string
	ExcludedAgents      []string
	CollaborationNeeded bool
	EstimatedHours      float64
	Deadline            *time.Time
}

// RequirementsFromTask reads requirement keys out of task.Metadata.
// Values of the wrong shape and unknown role or expertise labels are dropped.
func RequirementsFromTask(task *Task) TaskRequirements {
	req := TaskRequirements{
		TaskID:         task.ID,
		RequiredSkills: make(map[string]float64),
	}
	md := task.Metadata

	if s, ok := md["required_role"].(string); ok {
		if role, known := ParseRole(strings.ToLower(s)); known {
			req.RequiredRole = &role
		}
	}

	for _, tag := range stringList(md["required_expertise"]) {
		if c, known := ParseCapability(strings.ToLower(tag)); known {
			req.RequiredExpertise = append(req.RequiredExpertise, c)
		}
	}

	if skills, ok := md["required_skills"].(map[string]any); ok {
		for name, v := range skills {
			if f, ok := toFloat(v); ok && f >= 0 && f <= 1 {
				req.RequiredSkills[name] = f
			}
		}
	} else if skills, ok := md["required_skills"].(map[string]float64); ok {
		for name, f := range skills {
			if f >= 0 && f <= 1 {
				req.RequiredSkills[name] = f
			}
		}
	}

	req.PreferredAgents = stringList(md["preferred_agents"])
	req.ExcludedAgents = stringList(md["excluded_agents"])

	if b, ok := md["collaboration_needed"].(bool); ok {
		req.CollaborationNeeded = b
	}

	if f, ok := toFloat(md["estimated_hours"]); ok && f >= 0 {
		req.EstimatedHours = f
	} else {
		req.EstimatedHours = ParseEffortHours(task.EstimatedEffort)
	}

	switch d := md["deadline"].(type) {
	case time.Time:
		req.Deadline = &d
	case string:
		if parsed, err := time.Parse(time.RFC3339, d); err == nil {
			req.Deadline = &parsed
		}
	}
	if req.Deadline == nil && task.DueDate != nil {
		due := *task.DueDate
		req.Deadline = &due
	}

	return req
}

// HasRequiredRole reports whether the task metadata names a valid role.
func HasRequiredRole(task *Task) bool {
	return RequirementsFromTask(task).RequiredRole != nil
}

var effortUnits = map[byte]float64{
	'h': 1,
	'd': 8,
	'w': 40,
}

// ParseEffortHours converts effort labels such as "8h", "2d" or "1w" into hours.
// Unparseable input yields 0.
func ParseEffortHours(effort string) float64 {
	effort = strings.TrimSpace(strings.ToLower(effort))
	if len(effort) < 2 {
		return 0
	}
	unit, ok := effortUnits[effort[len(effort)-1]]
	if !ok {
		return 0
	}
	n, err := strconv.ParseFloat(effort[:len(effort)-1], 64)
	if err != nil || n < 0 {
		return 0
	}
	return n * unit
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
