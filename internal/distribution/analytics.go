package distribution

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rcliao/meridian/internal/domain"
)

const (
	maxHistory       = 100
	maxRecentReasons = 10
	emptyHistoryMsg  = "No distribution history available"
)

// HistoryRecord summarizes one distribution run.
type HistoryRecord struct {
	PlanID          string                      `json:"plan_id"`
	Strategy        domain.DistributionStrategy `json:"strategy"`
	CreatedAt       time.Time                   `json:"created_at"`
	TotalTasks      int                         `json:"total_tasks"`
	Assigned        int                         `json:"assigned"`
	Unassignable    int                         `json:"unassignable"`
	Assignments     []domain.Assignment         `json:"assignments"`
	UnassignableIDs []string                    `json:"unassignable_tasks"`
	Reasons         map[string]string           `json:"reasons,omitempty"`
	Recommendations []string                    `json:"recommendations"`
}

// Analytics aggregates the distribution history. Rates are percentages.
// With no history only Message is set.
type Analytics struct {
	Message                   string             `json:"message,omitempty"`
	TotalDistributions        int                `json:"total_distributions"`
	TotalTasksDistributed     int                `json:"total_tasks_distributed"`
	TotalTasksAssigned        int                `json:"total_tasks_assigned"`
	OverallAssignmentRate     float64            `json:"overall_assignment_rate"`
	StrategyUsage             map[string]int     `json:"strategy_usage"`
	StrategySuccessRates      map[string]float64 `json:"strategy_success_rates"`
	RecentUnassignableReasons []string           `json:"recent_unassignable_reasons"`
}

// MarshalJSON renders an empty-history result as just the message.
func (a Analytics) MarshalJSON() ([]byte, error) {
	if a.Message != "" {
		return json.Marshal(map[string]string{"message": a.Message})
	}
	type plain Analytics
	return json.Marshal(plain(a))
}

func (s *Service) record(plan *domain.DistributionPlan) {
	rec := HistoryRecord{
		PlanID:          plan.PlanID,
		Strategy:        plan.Strategy,
		CreatedAt:       plan.CreatedAt,
		TotalTasks:      plan.TotalTasks(),
		Assigned:        len(plan.Assignments),
		Unassignable:    len(plan.UnassignableTasks),
		Assignments:     append([]domain.Assignment(nil), plan.Assignments...),
		UnassignableIDs: append([]string(nil), plan.UnassignableTasks...),
		Reasons:         make(map[string]string, len(plan.Reasons)),
		Recommendations: append([]string(nil), plan.Recommendations...),
	}
	for _, id := range plan.UnassignableTasks {
		rec.Reasons[id] = plan.Reasons[id]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	if len(s.history) > maxHistory {
		s.history = append([]HistoryRecord(nil), s.history[len(s.history)-maxHistory:]...)
	}
}

// History returns the recorded runs, oldest first.
func (s *Service) History() []HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryRecord(nil), s.history...)
}

func (s *Service) DistributionAnalytics() Analytics {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return Analytics{Message: emptyHistoryMsg}
	}

	a := Analytics{
		TotalDistributions:        len(s.history),
		StrategyUsage:             make(map[string]int),
		StrategySuccessRates:      make(map[string]float64),
		RecentUnassignableReasons: make([]string, 0),
	}
	totals := make(map[string]int)
	assigned := make(map[string]int)
	for _, rec := range s.history {
		name := string(rec.Strategy)
		a.StrategyUsage[name]++
		a.TotalTasksDistributed += rec.TotalTasks
		a.TotalTasksAssigned += rec.Assigned
		totals[name] += rec.TotalTasks
		assigned[name] += rec.Assigned
	}
	if a.TotalTasksDistributed > 0 {
		a.OverallAssignmentRate = percent(a.TotalTasksAssigned, a.TotalTasksDistributed)
	}
	for name, total := range totals {
		if total > 0 {
			a.StrategySuccessRates[name] = percent(assigned[name], total)
		} else {
			a.StrategySuccessRates[name] = 0
		}
	}

	for i := len(s.history) - 1; i >= 0 && len(a.RecentUnassignableReasons) < maxRecentReasons; i-- {
		rec := s.history[i]
		for _, id := range rec.UnassignableIDs {
			if len(a.RecentUnassignableReasons) >= maxRecentReasons {
				break
			}
			a.RecentUnassignableReasons = append(a.RecentUnassignableReasons, fmt.Sprintf("%s: %s", id, rec.Reasons[id]))
		}
	}
	return a
}

func percent(part, whole int) float64 {
	return float64(part) / float64(whole) * 100
}

// recommendations inspects a finished plan and the post-planning agent pool.
func recommendations(plan *domain.DistributionPlan, pool []*domain.Agent) []string {
	recs := make([]string, 0)

	if n := len(plan.UnassignableTasks); n > 0 {
		recs = append(recs, fmt.Sprintf("%d task(s) could not be assigned; review agent availability and task requirements", n))
	}
	if len(pool) == 0 && plan.TotalTasks() > 0 {
		recs = append(recs, "No agents are available; add agents or free up capacity")
	}

	if total := len(plan.Assignments); total >= 3 {
		counts := make(map[string]int)
		for _, a := range plan.Assignments {
			counts[a.AgentID]++
		}
		for _, a := range pool {
			if c := counts[a.ID]; c*2 > total {
				recs = append(recs, fmt.Sprintf("Agent %s received %d of %d assignments; consider spreading the load", a.Name, c, total))
			}
		}
	}

	if len(pool) > 0 {
		exhausted := true
		for _, a := range pool {
			if a.IsAvailable() {
				exhausted = false
				break
			}
		}
		if exhausted {
			recs = append(recs, "All agents are at capacity after this distribution")
		}
	}
	return recs
}
