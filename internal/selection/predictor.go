package selection

import (
	"sort"
	"sync"
	"time"
)

// Prediction lists likely-next context IDs, best first.
type Prediction struct {
	PredictedContexts []string           `json:"predicted_contexts"`
	Confidence        map[string]float64 `json:"confidence"`
}

// PredictiveLoader predicts contexts from session tool usage.
type PredictiveLoader interface {
	StartSession(sessionID string)
	RecordToolUsage(sessionID, toolName, contextID string)
	EndSession(sessionID string)
	PredictNextContexts(currentContext string, recentTools []string, sessionID string) (Prediction, error)
	Stats() map[string]any
}

const (
	defaultMaxPredictions = 10
	recentToolWindow      = 5
	sessionContextWeight  = 0.5
)

type toolUse struct {
	tool      string
	contextID string
	at        time.Time
}

type session struct {
	startedAt time.Time
	uses      []toolUse
}

// PatternPredictor learns which contexts are touched after which tools and
// ranks contexts for the tools a caller used most recently.
type PatternPredictor struct {
	mu             sync.Mutex
	maxPredictions int
	sessions       map[string]*session
	// transitions[tool][contextID] counts contexts touched at or right after tool.
	transitions map[string]map[string]int
	firstSeen   map[string]int
	seq         int

	completed   int
	predictions int
}

func NewPatternPredictor(maxPredictions int) *PatternPredictor {
	if maxPredictions <= 0 {
		maxPredictions = defaultMaxPredictions
	}
	return &PatternPredictor{
		maxPredictions: maxPredictions,
		sessions:       make(map[string]*session),
		transitions:    make(map[string]map[string]int),
		firstSeen:      make(map[string]int),
	}
}

func (p *PatternPredictor) StartSession(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[sessionID]; !ok {
		p.sessions[sessionID] = &session{startedAt: time.Now()}
	}
}

// RecordToolUsage appends a tool use to the session, starting it if needed.
// A non-empty contextID is credited to this tool and to the one before it.
func (p *PatternPredictor) RecordToolUsage(sessionID, toolName, contextID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[sessionID]
	if !ok {
		s = &session{startedAt: time.Now()}
		p.sessions[sessionID] = s
	}

	if contextID != "" {
		p.credit(toolName, contextID)
		if n := len(s.uses); n > 0 && s.uses[n-1].tool != toolName {
			p.credit(s.uses[n-1].tool, contextID)
		}
	}
	s.uses = append(s.uses, toolUse{tool: toolName, contextID: contextID, at: time.Now()})
}

func (p *PatternPredictor) credit(tool, contextID string) {
	counts, ok := p.transitions[tool]
	if !ok {
		counts = make(map[string]int)
		p.transitions[tool] = counts
	}
	counts[contextID]++
	if _, ok := p.firstSeen[contextID]; !ok {
		p.firstSeen[contextID] = p.seq
		p.seq++
	}
}

// EndSession drops the session. Learned transitions are kept.
func (p *PatternPredictor) EndSession(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[sessionID]; ok {
		delete(p.sessions, sessionID)
		p.completed++
	}
}

// PredictNextContexts ranks contexts learned for recentTools, then adds the
// session's own recent contexts. With no recentTools the session's last tools
// are used. currentContext is never predicted.
func (p *PatternPredictor) PredictNextContexts(currentContext string, recentTools []string, sessionID string) (Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.predictions++

	s := p.sessions[sessionID]
	if len(recentTools) == 0 && s != nil {
		start := len(s.uses) - recentToolWindow
		if start < 0 {
			start = 0
		}
		for _, u := range s.uses[start:] {
			recentTools = append(recentTools, u.tool)
		}
	}

	scores := make(map[string]float64)
	for _, tool := range recentTools {
		counts := p.transitions[tool]
		total := 0
		for _, c := range counts {
			total += c
		}
		for id, c := range counts {
			if id != currentContext {
				scores[id] += float64(c) / float64(total)
			}
		}
	}

	ranked := make([]string, 0, len(scores))
	for id := range scores {
		ranked = append(ranked, id)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if scores[ranked[i]] != scores[ranked[j]] {
			return scores[ranked[i]] > scores[ranked[j]]
		}
		return p.firstSeen[ranked[i]] < p.firstSeen[ranked[j]]
	})

	pred := Prediction{PredictedContexts: make([]string, 0), Confidence: make(map[string]float64)}
	norm := float64(len(recentTools))
	for _, id := range ranked {
		if len(pred.PredictedContexts) >= p.maxPredictions {
			break
		}
		pred.PredictedContexts = append(pred.PredictedContexts, id)
		pred.Confidence[id] = clamp(scores[id]/norm, 0, 1)
	}

	if s != nil {
		for i := len(s.uses) - 1; i >= 0 && len(pred.PredictedContexts) < p.maxPredictions; i-- {
			id := s.uses[i].contextID
			if id == "" || id == currentContext {
				continue
			}
			if _, ok := pred.Confidence[id]; ok {
				continue
			}
			pred.PredictedContexts = append(pred.PredictedContexts, id)
			pred.Confidence[id] = sessionContextWeight
		}
	}
	return pred, nil
}

func (p *PatternPredictor) Stats() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{
		"active_sessions":    len(p.sessions),
		"completed_sessions": p.completed,
		"learned_tools":      len(p.transitions),
		"predictions":        p.predictions,
	}
}
