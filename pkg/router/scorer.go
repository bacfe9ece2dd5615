package router

import (
	"sort"

	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/intent"
	"github.com/zen-systems/switchboard/pkg/registry"
)

// ScoredModel is one ranked candidate.
type ScoredModel struct {
	Model      registry.ModelDescriptor `json:"-"`
	ModelID    string                   `json:"model_id"`
	Score      float64                  `json:"score"`
	Capability float64                  `json:"capability"`
	Latency    float64                  `json:"latency"`
	Cost       float64                  `json:"cost"`
	Historical float64                  `json:"historical"`
}

// Scorer ranks registry candidates against an intent.
type Scorer struct {
	cfg config.ScoringConfig
}

// NewScorer creates a scorer with the given tuning.
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score rates one model for one intent, in [0,1]. reward is the model's
// historical reward; nil means no history (neutral).
func (s *Scorer) Score(m registry.ModelDescriptor, it intent.Intent, reward *float64) ScoredModel {
	capability := s.capabilityScore(m, it)
	latency := 1 - normalize(float64(m.AvgLatencyMs), float64(s.cfg.LatencyFloorMs), float64(s.cfg.LatencyCeilMs))
	cost := 1 - normalize(m.CostPer1K, s.cfg.CostFloor, s.cfg.CostCeil)

	historical := s.cfg.HistoricalNeutral
	if reward != nil {
		historical = clamp(*reward, 0, 1)
	}

	quality := s.cfg.CapabilityWeight*capability + (1-s.cfg.CapabilityWeight)*historical
	w := s.weightsFor(it.Priority)
	score := w.Quality*quality + w.Speed*latency + w.Cost*cost

	return ScoredModel{
		Model:      m,
		ModelID:    m.ID,
		Score:      score,
		Capability: capability,
		Latency:    latency,
		Cost:       cost,
		Historical: historical,
	}
}

// Rank scores candidates and sorts them descending. Models whose context
// window cannot hold the estimated input are excluded before scoring.
// Ties keep input (registry) order.
func (s *Scorer) Rank(models []registry.ModelDescriptor, it intent.Intent, rewards map[string]float64) []ScoredModel {
	var ranked []ScoredModel
	for _, m := range models {
		if m.MaxContext < it.EstimatedInputTokens {
			continue
		}
		var reward *float64
		if r, ok := rewards[m.ID]; ok {
			reward = &r
		}
		ranked = append(ranked, s.Score(m, it, reward))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func (s *Scorer) capabilityScore(m registry.ModelDescriptor, it intent.Intent) float64 {
	required, ok := s.cfg.Required[string(it.TaskType)]
	if !ok || len(required) == 0 {
		return s.cfg.CapabilityNeutral
	}
	matched := 0
	for _, tag := range required {
		if m.HasStrength(registry.Capability(tag)) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

func (s *Scorer) weightsFor(p intent.Priority) config.Weights {
	if w, ok := s.cfg.Weights[string(p)]; ok {
		return w
	}
	if w, ok := s.cfg.Weights["balanced"]; ok {
		return w
	}
	return config.Weights{Quality: 0.4, Speed: 0.3, Cost: 0.3}
}

func normalize(v, floor, ceil float64) float64 {
	if ceil <= floor {
		return 0
	}
	return (clamp(v, floor, ceil) - floor) / (ceil - floor)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
