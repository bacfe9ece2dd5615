// Package router decides which model answers a request: classify the
// intent, score the candidates, apply hard overrides, and occasionally
// explore the runner-up to gather reward data.
package router

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/intent"
	"github.com/zen-systems/switchboard/pkg/registry"
)

// topK is how many ranked candidates a decision retains for audit.
const topK = 5

// Decision captures one routing outcome.
type Decision struct {
	Model    registry.ModelDescriptor `json:"model"`
	Intent   intent.Intent            `json:"intent"`
	Ranked   []ScoredModel            `json:"ranked,omitempty"`
	Reason   string                   `json:"reason"`
	Explored bool                     `json:"explored"`
}

// Request is one routing input.
type Request struct {
	Message        string
	ContextSummary string

	// AvailableProviders restricts candidates; empty means all.
	AvailableProviders []string

	// Rewards maps registry model id to historical reward in [0,1].
	Rewards map[string]float64
}

// Router composes the classifier and scorer into route decisions.
type Router struct {
	registry   *registry.Registry
	classifier *intent.Classifier
	scorer     *Scorer
	epsilon    float64
	logger     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a router. rng must be non-nil; it is injected so routing is
// reproducible under test.
func New(reg *registry.Registry, classifier *intent.Classifier, cfg *config.Routing, rng *rand.Rand, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	epsilon := 0.0
	if cfg.Epsilon != nil {
		epsilon = *cfg.Epsilon
	}
	return &Router{
		registry:   reg,
		classifier: classifier,
		scorer:     NewScorer(cfg.Scoring),
		epsilon:    epsilon,
		rng:        rng,
		logger:     logger,
	}
}

// Route picks a model for the request. It degrades gracefully: when
// scoring yields no candidates the first available model is used. It only
// fails when the provider filter leaves nothing to choose from.
func (r *Router) Route(ctx context.Context, req Request) (*Decision, error) {
	it := r.classifier.Classify(ctx, req.Message, req.ContextSummary)
	return r.RouteIntent(it, req)
}

// RouteIntent routes an already-classified intent. Exposed so pipeline
// stages can reuse one classification across stage-specific routes.
func (r *Router) RouteIntent(it intent.Intent, req Request) (*Decision, error) {
	candidates := r.registry.FilterProviders(req.AvailableProviders)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no models available for providers %v", req.AvailableProviders)
	}

	// Hard override: web-required requests only consider web-capable
	// models. Scoring still applies inside the reduced set.
	if it.RequiresWeb {
		var webCapable []registry.ModelDescriptor
		for _, m := range candidates {
			if m.WebCapable() {
				webCapable = append(webCapable, m)
			}
		}
		if len(webCapable) > 0 {
			candidates = webCapable
		}
	}

	ranked := r.scorer.Rank(candidates, it, req.Rewards)
	if len(ranked) == 0 {
		// Graceful degradation: nothing survived context filtering.
		chosen := candidates[0]
		r.logger.Warn("scoring yielded no candidates, degrading to first available",
			zap.String("model", chosen.ID),
			zap.String("task_type", string(it.TaskType)))
		return &Decision{
			Model:  chosen,
			Intent: it,
			Reason: fmt.Sprintf("no scored candidates for %s; degraded to first available model %s", it.TaskType, chosen.ID),
		}, nil
	}

	pick := 0
	explored := false
	if len(ranked) > 1 && r.roll() < r.epsilon {
		pick = 1
		explored = true
	}

	chosen := ranked[pick]
	reason := fmt.Sprintf("%s/%s: %s scored %.3f (capability %.2f, latency %.2f, cost %.2f)",
		it.TaskType, it.Priority, chosen.ModelID, chosen.Score, chosen.Capability, chosen.Latency, chosen.Cost)
	if explored {
		reason += "; exploration pick (second-ranked)"
	}

	top := ranked
	if len(top) > topK {
		top = top[:topK]
	}

	r.logger.Debug("route decision",
		zap.String("model", chosen.ModelID),
		zap.String("task_type", string(it.TaskType)),
		zap.Float64("score", chosen.Score),
		zap.Bool("explored", explored))

	return &Decision{
		Model:    chosen.Model,
		Intent:   it,
		Ranked:   top,
		Reason:   reason,
		Explored: explored,
	}, nil
}

func (r *Router) roll() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}
