package selection

import (
	"fmt"
	"sort"
	"sync"
)

type ContextLevel string

const (
	LevelGlobal  ContextLevel = "global"
	LevelProject ContextLevel = "project"
	LevelBranch  ContextLevel = "branch"
	LevelTask    ContextLevel = "task"
)

// LevelOf maps a context_type to its level. Unknown types are task level.
func LevelOf(contextType string) ContextLevel {
	switch contextType {
	case ContextTypeGlobal:
		return LevelGlobal
	case ContextTypeProject:
		return LevelProject
	case ContextTypeBranch:
		return LevelBranch
	}
	return LevelTask
}

type ExpansionTrigger string

const (
	TriggerSimilarityMatch ExpansionTrigger = "similarity_match"
	TriggerDependencyChain ExpansionTrigger = "dependency_chain"
	TriggerPatternBased    ExpansionTrigger = "pattern_based"
)

// ContextItem is a selected context payload.
type ContextItem struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

type ExpansionCandidate struct {
	ContextID       string           `json:"context_id"`
	ContextData     map[string]any   `json:"context_data"`
	Level           ContextLevel     `json:"level"`
	Trigger         ExpansionTrigger `json:"trigger"`
	RelevanceScore  float64          `json:"relevance_score"`
	EstimatedTokens int              `json:"estimated_tokens"`
}

type ExpansionResult struct {
	ExpandedContexts []ContextItem `json:"expanded_contexts"`
	TotalTokensUsed  int           `json:"total_tokens_used"`
	ExpansionPath    []string      `json:"expansion_path"`
}

// ProgressiveExpander packs candidates into a token budget.
type ProgressiveExpander interface {
	ExpandContextProgressive(current []ContextItem, candidates []ExpansionCandidate, tokenBudget int, aggressive bool) (ExpansionResult, error)
	Stats() map[string]any
}

const conservativeMinRelevance = 0.2

// GreedyExpander adds the most relevant candidates first. Conservative mode
// stops at the first candidate that does not fit; aggressive mode skips it and
// keeps packing.
type GreedyExpander struct {
	mu         sync.Mutex
	expansions int
	packed     int
	skipped    int
}

func NewGreedyExpander() *GreedyExpander {
	return &GreedyExpander{}
}

func (e *GreedyExpander) ExpandContextProgressive(current []ContextItem, candidates []ExpansionCandidate, tokenBudget int, aggressive bool) (ExpansionResult, error) {
	if tokenBudget < 0 {
		return ExpansionResult{}, fmt.Errorf("negative token budget: %d", tokenBudget)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expansions++

	seen := make(map[string]bool, len(current))
	for _, c := range current {
		seen[c.ID] = true
	}

	ordered := make([]ExpansionCandidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RelevanceScore > ordered[j].RelevanceScore
	})

	result := ExpansionResult{
		ExpandedContexts: make([]ContextItem, 0),
		ExpansionPath:    make([]string, 0),
	}
	remaining := tokenBudget
	for _, c := range ordered {
		if seen[c.ContextID] {
			continue
		}
		if !aggressive && c.RelevanceScore < conservativeMinRelevance {
			e.skipped++
			continue
		}
		tokens := c.EstimatedTokens
		if tokens <= 0 {
			tokens = EstimateTokens(c.ContextData)
		}
		if tokens > remaining {
			e.skipped++
			if aggressive {
				continue
			}
			break
		}

		seen[c.ContextID] = true
		remaining -= tokens
		result.TotalTokensUsed += tokens
		result.ExpandedContexts = append(result.ExpandedContexts, ContextItem{ID: c.ContextID, Data: c.ContextData})
		result.ExpansionPath = append(result.ExpansionPath, fmt.Sprintf("%s/%s:%s", c.Level, c.Trigger, c.ContextID))
		e.packed++
	}
	return result, nil
}

func (e *GreedyExpander) Stats() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return map[string]any{
		"expansions":         e.expansions,
		"contexts_packed":    e.packed,
		"candidates_skipped": e.skipped,
	}
}
