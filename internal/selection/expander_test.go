package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id string, relevance float64, tokens int) ExpansionCandidate {
	return ExpansionCandidate{
		ContextID:       id,
		ContextData:     map[string]any{"title": id},
		Level:           LevelTask,
		Trigger:         TriggerSimilarityMatch,
		RelevanceScore:  relevance,
		EstimatedTokens: tokens,
	}
}

func ids(items []ContextItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestGreedyExpander_ConservativeStopsAtFirstMiss(t *testing.T) {
	e := NewGreedyExpander()
	candidates := []ExpansionCandidate{
		candidate("small", 0.5, 50),
		candidate("best", 0.9, 100),
		candidate("big", 0.7, 400),
		candidate("tiny", 0.3, 10),
	}

	res, err := e.ExpandContextProgressive(nil, candidates, 200, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"best"}, ids(res.ExpandedContexts))
	assert.Equal(t, 100, res.TotalTokensUsed)
	assert.Equal(t, []string{"task/similarity_match:best"}, res.ExpansionPath)
}

func TestGreedyExpander_AggressiveKeepsPacking(t *testing.T) {
	e := NewGreedyExpander()
	candidates := []ExpansionCandidate{
		candidate("small", 0.5, 50),
		candidate("best", 0.9, 100),
		candidate("big", 0.7, 400),
		candidate("tiny", 0.1, 10),
	}

	res, err := e.ExpandContextProgressive(nil, candidates, 200, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"best", "small", "tiny"}, ids(res.ExpandedContexts))
	assert.Equal(t, 160, res.TotalTokensUsed)
	assert.LessOrEqual(t, res.TotalTokensUsed, 200)
}

func TestGreedyExpander_SkipsLowRelevanceAndCurrent(t *testing.T) {
	e := NewGreedyExpander()
	current := []ContextItem{{ID: "already"}}
	candidates := []ExpansionCandidate{
		candidate("already", 0.9, 10),
		candidate("noise", 0.1, 10),
		candidate("useful", 0.6, 10),
	}

	res, err := e.ExpandContextProgressive(current, candidates, 100, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"useful"}, ids(res.ExpandedContexts))

	stats := e.Stats()
	assert.Equal(t, 1, stats["expansions"])
	assert.Equal(t, 1, stats["contexts_packed"])
}

func TestGreedyExpander_EstimatesMissingTokens(t *testing.T) {
	e := NewGreedyExpander()
	c := candidate("x", 0.9, 0)

	res, err := e.ExpandContextProgressive(nil, []ExpansionCandidate{c}, 100, false)
	require.NoError(t, err)
	assert.Equal(t, EstimateTokens(c.ContextData), res.TotalTokensUsed)

	_, err = e.ExpandContextProgressive(nil, nil, -1, false)
	assert.Error(t, err)
}

func TestLevelOf(t *testing.T) {
	assert.Equal(t, LevelGlobal, LevelOf("global"))
	assert.Equal(t, LevelProject, LevelOf("project"))
	assert.Equal(t, LevelBranch, LevelOf("branch"))
	assert.Equal(t, LevelTask, LevelOf("task"))
	assert.Equal(t, LevelTask, LevelOf("anything"))
}
