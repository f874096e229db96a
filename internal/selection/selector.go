package selection

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rcliao/meridian/internal/search"
)

// SemanticMatcher embeds text and ranks indexed contexts by similarity.
type SemanticMatcher interface {
	GenerateEmbedding(text string) ([]float64, error)
	IndexContexts(items []search.Item) error
	FindSimilarContexts(query string, topK int, minSimilarity float64) ([]search.Match, error)
	Stats() map[string]any
}

const (
	defaultMaxTokens     = 2000
	maxSemanticResults   = 20
	maxExpansionInputs   = 15
	fallbackContextLimit = 10
	resultCacheCap       = 100
	resultCacheKeep      = 80
	hitOverlapThreshold  = 0.3
	metricsSmoothing     = 0.1
)

type SelectorConfig struct {
	MaxSelectionTime    time.Duration
	TargetHitRate       float64
	TargetSizeReduction float64
	SimilarityThreshold float64
	CacheTTL            time.Duration
	DefaultMaxTokens    int
}

func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		MaxSelectionTime:    200 * time.Millisecond,
		TargetHitRate:       0.9,
		TargetSizeReduction: 0.5,
		SimilarityThreshold: 0.5,
		CacheTTL:            300 * time.Second,
		DefaultMaxTokens:    defaultMaxTokens,
	}
}

type SelectOptions struct {
	UserPreferences     *UserPreferences
	CurrentTask         *CurrentTask
	Project             *ProjectContext
	AggressiveExpansion bool
	SessionID           string
}

type SelectionResult struct {
	SelectedContexts     []ContextItem  `json:"selected_contexts"`
	TotalTokensUsed      int            `json:"total_tokens_used"`
	SelectionTimeMs      float64        `json:"selection_time_ms"`
	HitRateEstimate      float64        `json:"hit_rate_estimate"`
	SizeReductionPercent float64        `json:"size_reduction_percent"`
	Metadata             map[string]any `json:"metadata"`
}

func (r SelectionResult) clone() SelectionResult {
	out := r
	out.SelectedContexts = append([]ContextItem(nil), r.SelectedContexts...)
	out.Metadata = make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// OptimizationReport lists the self-tuning actions one OptimizePerformance call took.
type OptimizationReport struct {
	Applied             []string `json:"applied"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	CacheCleared        bool     `json:"cache_cleared"`
}

type cachedResult struct {
	result SelectionResult
	at     time.Time
	seq    int
}

// movingAverage is an exponential moving average seeded with its first sample.
type movingAverage struct {
	value  float64
	seeded bool
}

func (m *movingAverage) add(v float64) {
	if !m.seeded {
		m.value, m.seeded = v, true
		return
	}
	m.value = metricsSmoothing*v + (1-metricsSmoothing)*m.value
}

type SelectorOption func(*IntelligentContextSelector)

func WithMatcher(m SemanticMatcher) SelectorOption {
	return func(s *IntelligentContextSelector) { s.matcher = m }
}

func WithPrioritizer(p *ContextPrioritizer) SelectorOption {
	return func(s *IntelligentContextSelector) { s.prioritizer = p }
}

func WithExpander(e ProgressiveExpander) SelectorOption {
	return func(s *IntelligentContextSelector) { s.expander = e }
}

func WithPredictor(p PredictiveLoader) SelectorOption {
	return func(s *IntelligentContextSelector) { s.predictor = p }
}

func WithLogger(l *slog.Logger) SelectorOption {
	return func(s *IntelligentContextSelector) { s.logger = l }
}

// IntelligentContextSelector picks the contexts most relevant to a query
// within a token budget. One selection runs at a time per instance.
type IntelligentContextSelector struct {
	config      SelectorConfig
	matcher     SemanticMatcher
	prioritizer *ContextPrioritizer
	expander    ProgressiveExpander
	predictor   PredictiveLoader
	logger      *slog.Logger
	now         func() time.Time

	mu         sync.Mutex
	pool       []ContextItem
	byID       map[string]ContextItem
	poolTokens int
	threshold  float64

	cache    map[string]cachedResult
	cacheSeq int

	selections   int
	fallbacks    int
	cacheHits    int
	avgTimeMs    movingAverage
	avgHitRate   movingAverage
	avgReduction movingAverage
	cacheHitRate movingAverage
}

func NewIntelligentContextSelector(config SelectorConfig, opts ...SelectorOption) *IntelligentContextSelector {
	defaults := DefaultSelectorConfig()
	if config.MaxSelectionTime <= 0 {
		config.MaxSelectionTime = defaults.MaxSelectionTime
	}
	if config.TargetHitRate <= 0 {
		config.TargetHitRate = defaults.TargetHitRate
	}
	if config.TargetSizeReduction <= 0 {
		config.TargetSizeReduction = defaults.TargetSizeReduction
	}
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = defaults.SimilarityThreshold
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.DefaultMaxTokens <= 0 {
		config.DefaultMaxTokens = defaults.DefaultMaxTokens
	}

	s := &IntelligentContextSelector{
		config:    config,
		now:       time.Now,
		byID:      make(map[string]ContextItem),
		threshold: config.SimilarityThreshold,
		cache:     make(map[string]cachedResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.matcher == nil {
		s.matcher = search.NewSemanticIndex(0)
	}
	if s.prioritizer == nil {
		s.prioritizer = NewContextPrioritizer(DefaultPrioritizerConfig())
	}
	if s.expander == nil {
		s.expander = NewGreedyExpander()
	}
	if s.predictor == nil {
		s.predictor = NewPatternPredictor(0)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// LoadAvailableContexts replaces the selection pool. Items with a duplicate ID
// are ignored. Cached results are dropped.
func (s *IntelligentContextSelector) LoadAvailableContexts(items []ContextItem) error {
	pool := make([]ContextItem, 0, len(items))
	byID := make(map[string]ContextItem, len(items))
	indexed := make([]search.Item, 0, len(items))
	tokens := 0
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if _, dup := byID[item.ID]; dup {
			continue
		}
		pool = append(pool, item)
		byID[item.ID] = item
		indexed = append(indexed, search.Item{ID: item.ID, ContextData: item.Data})
		tokens += EstimateTokens(item.Data)
	}

	if err := s.matcher.IndexContexts(indexed); err != nil {
		return fmt.Errorf("failed to index contexts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = pool
	s.byID = byID
	s.poolTokens = tokens
	s.cache = make(map[string]cachedResult)
	s.logger.Debug("loaded contexts", "count", len(pool), "tokens", tokens)
	return nil
}

// SelectContext returns the best contexts for query within maxTokens. It never
// fails: errors and panics degrade to the first contexts that fit, with
// Metadata["fallback"] set.
func (s *IntelligentContextSelector) SelectContext(query string, maxTokens int, opts SelectOptions) SelectionResult {
	if maxTokens <= 0 {
		maxTokens = s.config.DefaultMaxTokens
	}
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.guardedSelect(query, maxTokens, opts, start)
	if err != nil {
		return s.fallback(query, maxTokens, start, err)
	}
	return result
}

func (s *IntelligentContextSelector) guardedSelect(query string, maxTokens int, opts SelectOptions, start time.Time) (result SelectionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("selection panicked: %v", r)
		}
	}()
	return s.selectContext(query, maxTokens, opts, start)
}

func (s *IntelligentContextSelector) selectContext(query string, maxTokens int, opts SelectOptions, start time.Time) (SelectionResult, error) {
	key := cacheKey(query, maxTokens)
	if cached, ok := s.cache[key]; ok && s.now().Sub(cached.at) < s.config.CacheTTL {
		s.cacheHits++
		s.cacheHitRate.add(1)
		out := cached.result.clone()
		out.SelectionTimeMs = elapsedMs(start)
		out.Metadata["cache_used"] = true
		return out, nil
	}
	s.cacheHitRate.add(0)

	var (
		selected []ContextItem
		used     int
		method   string
		path     []string
	)
	semanticCount := 0

	if len(s.pool) > 0 {
		if _, err := s.matcher.GenerateEmbedding(query); err != nil {
			return SelectionResult{}, fmt.Errorf("failed to embed query: %w", err)
		}
		topK := min(maxSemanticResults, len(s.pool))
		matches, err := s.matcher.FindSimilarContexts(query, topK, 0.7*s.threshold)
		if err != nil {
			return SelectionResult{}, fmt.Errorf("failed to find similar contexts: %w", err)
		}
		semanticCount = len(matches)

		if len(matches) > 0 {
			expansion, err := s.expandSemantic(query, maxTokens, matches, opts)
			if err != nil {
				return SelectionResult{}, err
			}
			selected, used, path, method = expansion.ExpandedContexts, expansion.TotalTokensUsed, expansion.ExpansionPath, "semantic"
		}
	}

	if method == "" {
		var err error
		selected, used, err = s.predictive(maxTokens, opts)
		if err != nil {
			return SelectionResult{}, err
		}
		method = "predictive"
	}
	if selected == nil {
		selected = make([]ContextItem, 0)
	}
	if path == nil {
		path = make([]string, 0)
	}

	result := SelectionResult{
		SelectedContexts:     selected,
		TotalTokensUsed:      used,
		SelectionTimeMs:      elapsedMs(start),
		HitRateEstimate:      hitRate(query, selected),
		SizeReductionPercent: sizeReduction(used, s.poolTokens),
		Metadata: map[string]any{
			"query":               query,
			"max_tokens":          maxTokens,
			"available_contexts":  len(s.pool),
			"semantic_candidates": semanticCount,
			"selected_count":      len(selected),
			"selection_method":    method,
			"expansion_path":      path,
			"cache_used":          false,
			"fallback":            false,
		},
	}

	s.selections++
	s.avgTimeMs.add(result.SelectionTimeMs)
	s.avgHitRate.add(result.HitRateEstimate)
	s.avgReduction.add(result.SizeReductionPercent)
	s.store(key, result)

	if result.SelectionTimeMs > float64(s.config.MaxSelectionTime.Milliseconds()) {
		s.logger.Warn("selection exceeded time budget", "query", query, "elapsed_ms", result.SelectionTimeMs, "budget_ms", s.config.MaxSelectionTime.Milliseconds())
	}
	if len(selected) > 0 && result.HitRateEstimate < s.config.TargetHitRate {
		s.logger.Warn("selection below hit-rate target", "query", query, "hit_rate", result.HitRateEstimate, "target", s.config.TargetHitRate)
	}
	return result.clone(), nil
}

func (s *IntelligentContextSelector) expandSemantic(query string, maxTokens int, matches []search.Match, opts SelectOptions) (ExpansionResult, error) {
	candidates := make([]Candidate, 0, len(matches))
	similarities := make(map[string]float64, len(matches))
	data := make(map[string]map[string]any, len(matches))
	for _, m := range matches {
		candidates = append(candidates, Candidate{ID: m.Item.ID, Data: m.Item.ContextData})
		similarities[m.Item.ID] = m.SimilarityScore
		data[m.Item.ID] = m.Item.ContextData
	}

	scores := s.prioritizer.ScoreContextsBatch(candidates, query, similarities, ScoreOptions{
		UserPreferences: opts.UserPreferences,
		Project:         opts.Project,
		CurrentTask:     opts.CurrentTask,
	})
	if len(scores) > maxExpansionInputs {
		scores = scores[:maxExpansionInputs]
	}

	expansion := make([]ExpansionCandidate, 0, len(scores))
	for _, sc := range scores {
		expansion = append(expansion, ExpansionCandidate{
			ContextID:       sc.ContextID,
			ContextData:     data[sc.ContextID],
			Level:           LevelOf(sc.Metadata.ContextType),
			Trigger:         triggerFor(sc),
			RelevanceScore:  sc.TotalScore,
			EstimatedTokens: sc.Metadata.EstimatedTokens,
		})
	}

	result, err := s.expander.ExpandContextProgressive(nil, expansion, maxTokens, opts.AggressiveExpansion)
	if err != nil {
		return ExpansionResult{}, fmt.Errorf("failed to expand contexts: %w", err)
	}
	return result, nil
}

func triggerFor(score ContextScore) ExpansionTrigger {
	switch {
	case score.Breakdown[FactorSemanticRelevance] > 0.7:
		return TriggerSimilarityMatch
	case score.Breakdown[FactorDependencyBoost] > 0.3:
		return TriggerDependencyChain
	}
	return TriggerPatternBased
}

func (s *IntelligentContextSelector) predictive(maxTokens int, opts SelectOptions) ([]ContextItem, int, error) {
	current := ""
	if opts.CurrentTask != nil {
		current = opts.CurrentTask.ID
	}
	prediction, err := s.predictor.PredictNextContexts(current, nil, opts.SessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to predict contexts: %w", err)
	}

	selected := make([]ContextItem, 0)
	used := 0
	for _, id := range prediction.PredictedContexts {
		item, ok := s.byID[id]
		if !ok {
			continue
		}
		tokens := EstimateTokens(item.Data)
		if used+tokens > maxTokens {
			continue
		}
		selected = append(selected, item)
		used += tokens
	}
	return selected, used, nil
}

func (s *IntelligentContextSelector) fallback(query string, maxTokens int, start time.Time, cause error) SelectionResult {
	s.fallbacks++
	s.logger.Error("context selection failed, using fallback", "query", query, "error", cause)

	selected := make([]ContextItem, 0)
	used := 0
	for _, item := range s.pool {
		if len(selected) >= fallbackContextLimit {
			break
		}
		tokens := EstimateTokens(item.Data)
		if used+tokens > maxTokens {
			continue
		}
		selected = append(selected, item)
		used += tokens
	}

	return SelectionResult{
		SelectedContexts:     selected,
		TotalTokensUsed:      used,
		SelectionTimeMs:      elapsedMs(start),
		HitRateEstimate:      hitRate(query, selected),
		SizeReductionPercent: sizeReduction(used, s.poolTokens),
		Metadata: map[string]any{
			"query":            query,
			"max_tokens":       maxTokens,
			"selection_method": "fallback",
			"fallback":         true,
			"error":            cause.Error(),
			"cache_used":       false,
		},
	}
}

func (s *IntelligentContextSelector) store(key string, result SelectionResult) {
	s.cacheSeq++
	s.cache[key] = cachedResult{result: result.clone(), at: s.now(), seq: s.cacheSeq}
	if len(s.cache) <= resultCacheCap {
		return
	}

	entries := make([]struct {
		key string
		c   cachedResult
	}, 0, len(s.cache))
	for k, c := range s.cache {
		entries = append(entries, struct {
			key string
			c   cachedResult
		}{k, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].c.at.Equal(entries[j].c.at) {
			return entries[i].c.at.After(entries[j].c.at)
		}
		return entries[i].c.seq > entries[j].c.seq
	})
	for _, e := range entries[resultCacheKeep:] {
		delete(s.cache, e.key)
	}
}

// StartSession, RecordToolUsage and EndSession feed the predictive loader.
// A tool use with a context ID also counts as an access of that context.
func (s *IntelligentContextSelector) StartSession(sessionID string) {
	s.predictor.StartSession(sessionID)
}

func (s *IntelligentContextSelector) RecordToolUsage(sessionID, toolName, contextID string) {
	s.predictor.RecordToolUsage(sessionID, toolName, contextID)
	if contextID != "" {
		s.prioritizer.RecordContextAccess(contextID, time.Time{})
	}
}

func (s *IntelligentContextSelector) EndSession(sessionID string) {
	s.predictor.EndSession(sessionID)
}

func (s *IntelligentContextSelector) PerformanceStats() map[string]any {
	s.mu.Lock()
	selector := map[string]any{
		"total_selections":      s.selections,
		"fallbacks":             s.fallbacks,
		"cache_hits":            s.cacheHits,
		"cache_size":            len(s.cache),
		"cache_hit_rate":        s.cacheHitRate.value,
		"avg_selection_time_ms": s.avgTimeMs.value,
		"avg_hit_rate":          s.avgHitRate.value,
		"avg_size_reduction":    s.avgReduction.value,
		"similarity_threshold":  s.threshold,
		"available_contexts":    len(s.pool),
	}
	targets := map[string]any{
		"max_selection_time_ms": s.config.MaxSelectionTime.Milliseconds(),
		"hit_rate":              s.config.TargetHitRate,
		"size_reduction":        s.config.TargetSizeReduction,
		"time_target_met":       s.avgTimeMs.value <= float64(s.config.MaxSelectionTime.Milliseconds()),
		"hit_rate_target_met":   s.avgHitRate.value >= s.config.TargetHitRate,
		"size_target_met":       s.avgReduction.value >= s.config.TargetSizeReduction,
	}
	s.mu.Unlock()

	return map[string]any{
		"selector":         selector,
		"targets":          targets,
		"prioritizer":      s.prioritizer.Stats(),
		"semantic_matcher": s.matcher.Stats(),
		"expander":         s.expander.Stats(),
		"predictor":        s.predictor.Stats(),
	}
}

// OptimizePerformance tunes the similarity threshold from historical averages
// and clears an ineffective cache.
func (s *IntelligentContextSelector) OptimizePerformance() OptimizationReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := OptimizationReport{Applied: make([]string, 0)}
	if s.selections > 0 {
		budget := float64(s.config.MaxSelectionTime.Milliseconds())
		if s.avgTimeMs.value > 0.8*budget {
			s.threshold = math.Min(0.8, round2(s.threshold+0.05))
			report.Applied = append(report.Applied, fmt.Sprintf("raised similarity threshold to %.2f", s.threshold))
		}
		if s.avgHitRate.value < 0.8*s.config.TargetHitRate {
			s.threshold = math.Max(0.3, round2(s.threshold-0.05))
			report.Applied = append(report.Applied, fmt.Sprintf("lowered similarity threshold to %.2f", s.threshold))
		}
	}
	if s.cacheHitRate.value < 0.1 && len(s.cache) > 10 {
		s.cache = make(map[string]cachedResult)
		report.CacheCleared = true
		report.Applied = append(report.Applied, "cleared result cache")
	}
	report.SimilarityThreshold = s.threshold

	if len(report.Applied) > 0 {
		s.logger.Info("selector tuned", "actions", report.Applied)
	}
	return report
}

func cacheKey(query string, maxTokens int) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:]) + ":" + strconv.Itoa(maxTokens)
}

func hitRate(query string, selected []ContextItem) float64 {
	if len(selected) == 0 {
		return 0
	}
	hits := 0
	for _, item := range selected {
		if search.WordOverlap(query, search.SearchableText(item.Data)) >= hitOverlapThreshold {
			hits++
		}
	}
	return float64(hits) / float64(len(selected))
}

func sizeReduction(used, poolTokens int) float64 {
	if poolTokens <= 0 {
		return 0
	}
	return math.Max(0, 1-float64(used)/float64(poolTokens))
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
