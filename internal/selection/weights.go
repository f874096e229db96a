package selection

// Factor names used in score breakdowns, weight feedback and configuration.
const (
	FactorSemanticRelevance = "semantic_relevance"
	FactorRecency           = "recency"
	FactorFrequency         = "frequency"
	FactorCompleteness      = "completeness"
	FactorSizePenalty       = "size_penalty"
	FactorUserPreference    = "user_preference"
	FactorProjectPriority   = "project_priority"
	FactorDependencyBoost   = "dependency_boost"
)

// PositiveFactors lists the factors that add to a score, in breakdown order.
var PositiveFactors = []string{
	FactorSemanticRelevance,
	FactorRecency,
	FactorFrequency,
	FactorCompleteness,
	FactorUserPreference,
	FactorProjectPriority,
	FactorDependencyBoost,
}

// ScoringWeights holds one weight per factor. SizePenalty is subtracted.
type ScoringWeights struct {
	SemanticRelevance float64 `json:"semantic_relevance" yaml:"semantic_relevance"`
	Recency           float64 `json:"recency" yaml:"recency"`
	Frequency         float64 `json:"frequency" yaml:"frequency"`
	Completeness      float64 `json:"completeness" yaml:"completeness"`
	SizePenalty       float64 `json:"size_penalty" yaml:"size_penalty"`
	UserPreference    float64 `json:"user_preference" yaml:"user_preference"`
	ProjectPriority   float64 `json:"project_priority" yaml:"project_priority"`
	DependencyBoost   float64 `json:"dependency_boost" yaml:"dependency_boost"`
}

func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		SemanticRelevance: 0.30,
		Recency:           0.15,
		Frequency:         0.15,
		Completeness:      0.10,
		SizePenalty:       0.05,
		UserPreference:    0.10,
		ProjectPriority:   0.10,
		DependencyBoost:   0.05,
	}
}

func (w *ScoringWeights) field(name string) *float64 {
	switch name {
	case FactorSemanticRelevance:
		return &w.SemanticRelevance
	case FactorRecency:
		return &w.Recency
	case FactorFrequency:
		return &w.Frequency
	case FactorCompleteness:
		return &w.Completeness
	case FactorSizePenalty:
		return &w.SizePenalty
	case FactorUserPreference:
		return &w.UserPreference
	case FactorProjectPriority:
		return &w.ProjectPriority
	case FactorDependencyBoost:
		return &w.DependencyBoost
	}
	return nil
}

// Get returns the weight for a factor name, and false for unknown names.
func (w ScoringWeights) Get(name string) (float64, bool) {
	if f := w.field(name); f != nil {
		return *f, true
	}
	return 0, false
}

// Set assigns the weight for a factor name. Unknown names are ignored.
func (w *ScoringWeights) Set(name string, value float64) bool {
	f := w.field(name)
	if f == nil {
		return false
	}
	*f = value
	return true
}

// Normalize rescales the positive weights to sum to 1. SizePenalty is kept as is.
// Weights that are all zero are returned unchanged.
func (w ScoringWeights) Normalize() ScoringWeights {
	total := 0.0
	for _, name := range PositiveFactors {
		v, _ := w.Get(name)
		total += v
	}
	if total <= 0 {
		return w
	}

	out := w
	for _, name := range PositiveFactors {
		v, _ := w.Get(name)
		out.Set(name, v/total)
	}
	return out
}
