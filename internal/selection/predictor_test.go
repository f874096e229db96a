package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternPredictor_LearnsToolTransitions(t *testing.T) {
	p := NewPatternPredictor(0)

	p.StartSession("s1")
	p.RecordToolUsage("s1", "search", "")
	p.RecordToolUsage("s1", "edit", "auth")
	p.RecordToolUsage("s1", "edit", "auth")
	p.RecordToolUsage("s1", "edit", "db")
	p.EndSession("s1")

	pred, err := p.PredictNextContexts("", []string{"edit"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "db"}, pred.PredictedContexts)
	assert.InDelta(t, 2.0/3.0, pred.Confidence["auth"], 1e-9)

	// search preceded the first edit of auth
	pred, err = p.PredictNextContexts("", []string{"search"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"auth"}, pred.PredictedContexts)
}

func TestPatternPredictor_ExcludesCurrentAndAddsSessionContexts(t *testing.T) {
	p := NewPatternPredictor(0)
	p.RecordToolUsage("s1", "edit", "auth")
	p.RecordToolUsage("s1", "edit", "db")
	p.RecordToolUsage("s1", "read", "notes")

	pred, err := p.PredictNextContexts("auth", nil, "s1")
	require.NoError(t, err)
	assert.NotContains(t, pred.PredictedContexts, "auth")
	assert.ElementsMatch(t, []string{"db", "notes"}, pred.PredictedContexts)
}

func TestPatternPredictor_UnknownSession(t *testing.T) {
	p := NewPatternPredictor(3)

	pred, err := p.PredictNextContexts("", nil, "missing")
	require.NoError(t, err)
	assert.Empty(t, pred.PredictedContexts)

	for _, id := range []string{"a", "b", "c", "d"} {
		p.RecordToolUsage("s", "edit", id)
	}
	pred, err = p.PredictNextContexts("", []string{"edit"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, pred.PredictedContexts)

	stats := p.Stats()
	assert.Equal(t, 1, stats["active_sessions"])
	assert.Equal(t, 2, stats["predictions"])

	p.EndSession("s")
	p.EndSession("s")
	assert.Equal(t, 1, p.Stats()["completed_sessions"])
}
