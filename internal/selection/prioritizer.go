package selection

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rcliao/meridian/internal/search"
)

// Context types understood by the prioritizer and the selector.
const (
	ContextTypeTask    = "task"
	ContextTypeBranch  = "branch"
	ContextTypeProject = "project"
	ContextTypeGlobal  = "global"
)

// expectedFields is the completeness checklist per context type.
var expectedFields = map[string][]string{
	ContextTypeTask:    {"title", "description", "status", "priority", "details", "assignees", "labels", "estimated_effort"},
	ContextTypeBranch:  {"git_branch_name", "git_branch_description", "project_id", "assigned_agent_id"},
	ContextTypeProject: {"name", "description", "git_branches", "user_id"},
	ContextTypeGlobal:  {"organization_standards", "security_policies", "coding_standards", "workflow_templates"},
}

var statusPriority = map[string]float64{
	"in_progress": 0.9,
	"review":      0.8,
	"blocked":     0.7,
	"todo":        0.5,
	"done":        0.2,
}

type PrioritizerConfig struct {
	RecencyDecayHours    float64
	FrequencyWindowDays  int
	SizePenaltyThreshold int
	Weights              ScoringWeights
}

func DefaultPrioritizerConfig() PrioritizerConfig {
	return PrioritizerConfig{
		RecencyDecayHours:    24,
		FrequencyWindowDays:  7,
		SizePenaltyThreshold: 4000,
		Weights:              DefaultScoringWeights(),
	}
}

// UserPreferences carries the per-user signals used by the preference factor.
type UserPreferences struct {
	PreferredContextTypes []string           `json:"preferred_context_types,omitempty"`
	BoostKeywords         []string           `json:"boost_keywords,omitempty"`
	PenaltyKeywords       []string           `json:"penalty_keywords,omitempty"`
	AssigneePreferences   map[string]float64 `json:"assignee_preferences,omitempty"`
}

// ProjectContext carries project-level priority multipliers keyed by context type.
type ProjectContext struct {
	ID                  string             `json:"id,omitempty"`
	PriorityMultipliers map[string]float64 `json:"priority_multipliers,omitempty"`
}

// CurrentTask describes the task the caller is working on.
type CurrentTask struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"project_id,omitempty"`
	GitBranchID  string   `json:"git_branch_id,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// ScoreOptions holds the optional inputs of ScoreContext. Nil fields fall back
// to neutral defaults; a nil Weights uses the prioritizer's configured weights.
type ScoreOptions struct {
	UserPreferences *UserPreferences
	Project         *ProjectContext
	CurrentTask     *CurrentTask
	Weights         *ScoringWeights
}

type ScoreMetadata struct {
	EstimatedTokens int        `json:"estimated_tokens"`
	ContextType     string     `json:"context_type"`
	LastAccess      *time.Time `json:"last_access,omitempty"`
}

type ContextScore struct {
	ContextID    string             `json:"context_id"`
	TotalScore   float64            `json:"total_score"`
	Breakdown    map[string]float64 `json:"breakdown"`
	Explanations []string           `json:"explanations"`
	Metadata     ScoreMetadata      `json:"metadata"`
}

// Candidate pairs a context ID with its payload for batch scoring.
type Candidate struct {
	ID   string
	Data map[string]any
}

// ContextPrioritizer scores contexts for a query. The access history is the
// only state it keeps.
type ContextPrioritizer struct {
	config PrioritizerConfig
	now    func() time.Time

	mu            sync.RWMutex
	accessHistory map[string][]time.Time
}

func NewContextPrioritizer(config PrioritizerConfig) *ContextPrioritizer {
	if config.RecencyDecayHours <= 0 {
		config.RecencyDecayHours = 24
	}
	if config.FrequencyWindowDays <= 0 {
		config.FrequencyWindowDays = 7
	}
	if config.SizePenaltyThreshold <= 0 {
		config.SizePenaltyThreshold = 4000
	}
	return &ContextPrioritizer{
		config:        config,
		now:           time.Now,
		accessHistory: make(map[string][]time.Time),
	}
}

func (p *ContextPrioritizer) Weights() ScoringWeights {
	return p.config.Weights
}

// ScoreContext computes the weighted relevance of one context. The result is
// always within [0, 1].
func (p *ContextPrioritizer) ScoreContext(contextID string, data map[string]any, query string, similarity float64, opts ScoreOptions) ContextScore {
	weights := p.config.Weights
	if opts.Weights != nil {
		weights = *opts.Weights
	}

	contextType := ContextTypeOf(data)
	tokens := EstimateTokens(data)
	lastAccess := p.lastAccess(contextID)

	breakdown := map[string]float64{
		FactorSemanticRelevance: p.semanticScore(data, query, similarity),
		FactorRecency:           p.recencyScore(lastAccess),
		FactorFrequency:         p.frequencyScore(contextID),
		FactorCompleteness:      completenessScore(data, contextType),
		FactorSizePenalty:       p.sizePenalty(tokens),
		FactorUserPreference:    preferenceScore(data, contextType, query, opts.UserPreferences),
		FactorProjectPriority:   projectPriorityScore(data, contextType, opts.Project),
		FactorDependencyBoost:   dependencyScore(contextID, data, opts.CurrentTask),
	}

	total := 0.0
	for _, name := range PositiveFactors {
		w, _ := weights.Get(name)
		total += breakdown[name] * w
	}
	total -= breakdown[FactorSizePenalty] * weights.SizePenalty

	score := ContextScore{
		ContextID:    contextID,
		TotalScore:   clamp(total, 0, 1),
		Breakdown:    breakdown,
		Explanations: explain(breakdown, tokens),
		Metadata: ScoreMetadata{
			EstimatedTokens: tokens,
			ContextType:     contextType,
		},
	}
	if lastAccess != nil {
		t := *lastAccess
		score.Metadata.LastAccess = &t
	}
	return score
}

// ScoreContextsBatch scores every candidate and sorts the results by total
// score, best first. Ties keep the input order.
func (p *ContextPrioritizer) ScoreContextsBatch(candidates []Candidate, query string, similarities map[string]float64, opts ScoreOptions) []ContextScore {
	scores := make([]ContextScore, 0, len(candidates))
	for _, c := range candidates {
		scores = append(scores, p.ScoreContext(c.ID, c.Data, query, similarities[c.ID], opts))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].TotalScore > scores[j].TotalScore
	})
	return scores
}

// RecordContextAccess appends an access for contextID. A zero at means now.
// Entries older than twice the frequency window are dropped.
func (p *ContextPrioritizer) RecordContextAccess(contextID string, at time.Time) {
	now := p.now()
	if at.IsZero() {
		at = now
	}
	cutoff := now.Add(-2 * p.window())

	p.mu.Lock()
	defer p.mu.Unlock()

	history := append(p.accessHistory[contextID], at)
	kept := history[:0]
	for _, t := range history {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(p.accessHistory, contextID)
		return
	}
	p.accessHistory[contextID] = kept
}

// AccessCount returns the number of retained accesses for contextID.
func (p *ContextPrioritizer) AccessCount(contextID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.accessHistory[contextID])
}

// AdjustWeightsDynamically derives query-specific weights from the configured
// ones. Feedback maps factor names to deltas; each adjusted weight is clamped
// to [0, 1] before the result is normalized.
func (p *ContextPrioritizer) AdjustWeightsDynamically(query, contextType string, feedback map[string]float64) ScoringWeights {
	w := p.config.Weights

	words := len(strings.Fields(query))
	switch {
	case words > 10:
		w.SemanticRelevance = 0.4
		w.Completeness = 0.15
	case words <= 3:
		w.Recency = 0.2
		w.Frequency = 0.2
	}

	switch contextType {
	case ContextTypeTask:
		w.DependencyBoost = 0.1
		w.ProjectPriority = 0.15
	case ContextTypeGlobal:
		w.Completeness = 0.2
		w.Frequency = 0.05
	}

	names := make([]string, 0, len(feedback))
	for name := range feedback {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if current, ok := w.Get(name); ok {
			w.Set(name, clamp(current+feedback[name], 0, 1))
		}
	}

	return w.Normalize()
}

func (p *ContextPrioritizer) Stats() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()

	accesses := 0
	for _, h := range p.accessHistory {
		accesses += len(h)
	}
	return map[string]any{
		"tracked_contexts":      len(p.accessHistory),
		"recorded_accesses":     accesses,
		"recency_decay_hours":   p.config.RecencyDecayHours,
		"frequency_window_days": p.config.FrequencyWindowDays,
	}
}

func (p *ContextPrioritizer) window() time.Duration {
	return time.Duration(p.config.FrequencyWindowDays) * 24 * time.Hour
}

func (p *ContextPrioritizer) lastAccess(contextID string) *time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	history := p.accessHistory[contextID]
	if len(history) == 0 {
		return nil
	}
	latest := history[0]
	for _, t := range history[1:] {
		if t.After(latest) {
			latest = t
		}
	}
	return &latest
}

func (p *ContextPrioritizer) semanticScore(data map[string]any, query string, similarity float64) float64 {
	text := search.Words(search.SearchableText(data))
	overlap := 0
	for w := range search.Words(query) {
		if text[w] {
			overlap++
		}
	}
	boost := math.Min(0.2, 0.05*float64(overlap))
	return clamp(similarity+boost, 0, 1)
}

func (p *ContextPrioritizer) recencyScore(lastAccess *time.Time) float64 {
	if lastAccess == nil {
		return 0.1
	}
	hours := p.now().Sub(*lastAccess).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-hours / p.config.RecencyDecayHours)
}

func (p *ContextPrioritizer) frequencyScore(contextID string) float64 {
	cutoff := p.now().Add(-p.window())

	p.mu.RLock()
	recent := 0
	for _, t := range p.accessHistory[contextID] {
		if !t.Before(cutoff) {
			recent++
		}
	}
	p.mu.RUnlock()

	if recent == 0 {
		return 0.1
	}
	score := math.Log(float64(recent)+1) / math.Log(float64(p.config.FrequencyWindowDays)+1)
	return clamp(score, 0, 1)
}

func (p *ContextPrioritizer) sizePenalty(tokens int) float64 {
	threshold := p.config.SizePenaltyThreshold
	if tokens <= threshold {
		return 0
	}
	excess := float64(tokens-threshold) / float64(threshold)
	return math.Min(0.5, excess)
}

func completenessScore(data map[string]any, contextType string) float64 {
	fields, ok := expectedFields[contextType]
	if !ok {
		return 0.5
	}
	present := 0
	for _, f := range fields {
		if isPresent(data[f]) {
			present++
		}
	}
	return float64(present) / float64(len(fields))
}

func preferenceScore(data map[string]any, contextType, query string, prefs *UserPreferences) float64 {
	if prefs == nil {
		return 0.5
	}
	score := 0.5
	for _, t := range prefs.PreferredContextTypes {
		if t == contextType {
			score += 0.3
			break
		}
	}

	haystack := strings.ToLower(query + " " + search.SearchableText(data))
	for _, kw := range prefs.BoostKeywords {
		if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
			score += 0.1
		}
	}
	for _, kw := range prefs.PenaltyKeywords {
		if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
			score -= 0.1
		}
	}

	for _, assignee := range stringSlice(data["assignees"]) {
		if v, ok := prefs.AssigneePreferences[assignee]; ok {
			score += v * 0.1
		}
	}
	return clamp(score, 0, 1)
}

func projectPriorityScore(data map[string]any, contextType string, project *ProjectContext) float64 {
	score := 0.5
	if project != nil {
		if m, ok := project.PriorityMultipliers[contextType]; ok {
			score = m
		}
	}
	if contextType == ContextTypeTask {
		status, _ := data["status"].(string)
		if mult, ok := statusPriority[status]; ok {
			score *= mult
		}
	}
	return clamp(score, 0, 1)
}

func dependencyScore(contextID string, data map[string]any, current *CurrentTask) float64 {
	if current == nil {
		return 0
	}
	for _, dep := range current.Dependencies {
		if dep == contextID {
			return 0.8
		}
	}
	if branch, _ := data["git_branch_id"].(string); branch != "" && branch == current.GitBranchID {
		return 0.3
	}
	if project, _ := data["project_id"].(string); project != "" && project == current.ProjectID {
		return 0.1
	}
	return 0
}

func explain(breakdown map[string]float64, tokens int) []string {
	var out []string
	if s := breakdown[FactorSemanticRelevance]; s > 0.7 {
		out = append(out, fmt.Sprintf("High semantic relevance (%.2f)", s))
	} else if s > 0.4 {
		out = append(out, fmt.Sprintf("Moderate semantic relevance (%.2f)", s))
	}
	if breakdown[FactorRecency] > 0.5 {
		out = append(out, "Recently accessed")
	}
	if breakdown[FactorFrequency] > 0.5 {
		out = append(out, "Frequently accessed")
	}
	if breakdown[FactorCompleteness] >= 0.8 {
		out = append(out, "Complete context information")
	}
	if p := breakdown[FactorSizePenalty]; p > 0 {
		out = append(out, fmt.Sprintf("Large context (%d tokens, penalty %.2f)", tokens, p))
	}
	if breakdown[FactorUserPreference] > 0.7 {
		out = append(out, "Matches user preferences")
	}
	if breakdown[FactorProjectPriority] > 0.6 {
		out = append(out, "High project priority")
	}
	switch d := breakdown[FactorDependencyBoost]; {
	case d >= 0.8:
		out = append(out, "Direct dependency of current task")
	case d >= 0.3:
		out = append(out, "Same branch as current task")
	case d > 0:
		out = append(out, "Same project as current task")
	}
	return out
}

// ContextTypeOf reads the context_type field, defaulting to task.
func ContextTypeOf(data map[string]any) string {
	if t, ok := data["context_type"].(string); ok && t != "" {
		return t
	}
	return ContextTypeTask
}

// EstimateTokens approximates token count as a quarter of the JSON size, minimum 1.
func EstimateTokens(data map[string]any) int {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte(fmt.Sprint(data))
	}
	if n := len(raw) / 4; n > 1 {
		return n
	}
	return 1
}

func isPresent(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case []string:
		return len(x) > 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

func stringSlice(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
