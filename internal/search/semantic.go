package search

import (
	"hash/fnv"
	"math"
	"sort"
	"sync"
)

const (
	DefaultDimensions    = 256
	defaultQueryCacheCap = 256
)

// Item is one indexed context. ContextData is the payload returned to callers.
type Item struct {
	ID          string         `json:"id"`
	ContextData map[string]any `json:"contextData"`
}

type Match struct {
	Item            Item    `json:"item"`
	SimilarityScore float64 `json:"similarityScore"`
}

type indexedItem struct {
	item      Item
	embedding []float64
}

// SemanticIndex ranks contexts by cosine similarity of hashed term-frequency
// vectors. Query embeddings are memoized up to a fixed number of entries.
type SemanticIndex struct {
	mu         sync.RWMutex
	dimensions int
	items      []indexedItem

	cacheMu     sync.Mutex
	queryCache  map[string][]float64
	cacheOrder  []string
	cacheHits   int
	cacheMisses int
	queries     int
}

func NewSemanticIndex(dimensions int) *SemanticIndex {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &SemanticIndex{
		dimensions: dimensions,
		queryCache: make(map[string][]float64),
	}
}

// GenerateEmbedding returns an L2-normalized vector for text. Text without
// usable terms yields the zero vector.
func (s *SemanticIndex) GenerateEmbedding(text string) ([]float64, error) {
	vec := make([]float64, s.dimensions)
	for term, count := range terms(text) {
		h := fnv.New32a()
		h.Write([]byte(term))
		sum := h.Sum32()
		sign := 1.0
		if sum&1 == 1 {
			sign = -1.0
		}
		vec[int(sum>>1)%s.dimensions] += sign * (1 + math.Log(float64(count)))
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// IndexContexts replaces the indexed pool with items.
func (s *SemanticIndex) IndexContexts(items []Item) error {
	indexed := make([]indexedItem, 0, len(items))
	for _, item := range items {
		emb, err := s.GenerateEmbedding(itemText(item.ContextData))
		if err != nil {
			return err
		}
		indexed = append(indexed, indexedItem{item: item, embedding: emb})
	}

	s.mu.Lock()
	s.items = indexed
	s.mu.Unlock()
	return nil
}

// FindSimilarContexts returns up to topK items whose similarity to query is at
// least minSimilarity, best first. Equal scores keep index order.
func (s *SemanticIndex) FindSimilarContexts(query string, topK int, minSimilarity float64) ([]Match, error) {
	q, err := s.queryEmbedding(query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	matches := make([]Match, 0)
	for _, it := range s.items {
		score := cosine(q, it.embedding)
		if score <= 0 || score < minSimilarity {
			continue
		}
		matches = append(matches, Match{Item: it.item, SimilarityScore: score})
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].SimilarityScore > matches[j].SimilarityScore
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *SemanticIndex) queryEmbedding(query string) ([]float64, error) {
	s.cacheMu.Lock()
	s.queries++
	if emb, ok := s.queryCache[query]; ok {
		s.cacheHits++
		s.cacheMu.Unlock()
		return emb, nil
	}
	s.cacheMisses++
	s.cacheMu.Unlock()

	emb, err := s.GenerateEmbedding(query)
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if _, ok := s.queryCache[query]; !ok {
		if len(s.cacheOrder) >= defaultQueryCacheCap {
			oldest := s.cacheOrder[0]
			s.cacheOrder = s.cacheOrder[1:]
			delete(s.queryCache, oldest)
		}
		s.cacheOrder = append(s.cacheOrder, query)
	}
	s.queryCache[query] = emb
	return emb, nil
}

func (s *SemanticIndex) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *SemanticIndex) Stats() map[string]any {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	hitRate := 0.0
	if s.queries > 0 {
		hitRate = float64(s.cacheHits) / float64(s.queries)
	}
	return map[string]any{
		"indexed_items":        s.Size(),
		"dimensions":           s.dimensions,
		"queries":              s.queries,
		"embedding_cache_hits": s.cacheHits,
		"embedding_cache_miss": s.cacheMisses,
		"embedding_cache_rate": hitRate,
		"cached_embeddings":    len(s.queryCache),
	}
}

func itemText(data map[string]any) string {
	text := SearchableText(data)
	if header, ok := data["header"].(string); ok && header != "" {
		text += " " + header
	}
	return text
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}
