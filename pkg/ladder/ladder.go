// Package ladder executes an ordered chain of (provider, model) rungs
// until one succeeds or the chain is exhausted. Each attempt is
// individually time-bounded; transient failures back off with jitter
// before retrying a rung, and the default posture prefers moving to the
// next rung over retrying a slow or broken one.
package ladder

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/intent"
)

// Rung is one step in a fallback chain.
type Rung struct {
	Provider  adapter.Provider `json:"provider"`
	Model     string           `json:"model"`
	Rationale string           `json:"rationale,omitempty"`
}

// AttemptReport records one external call attempt.
type AttemptReport struct {
	Provider  adapter.Provider `json:"provider"`
	Model     string           `json:"model"`
	Retries   int              `json:"retries"`
	LatencyMs int64            `json:"latency_ms"`
	TimedOut  bool             `json:"timed_out,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// AttemptResult is the outcome of a ladder run. On success Response is
// set; on exhaustion Err is set and Response is nil.
type AttemptResult struct {
	Provider     adapter.Provider   `json:"provider"`
	Model        string             `json:"model"`
	Response     *adapter.Response  `json:"response,omitempty"`
	Usage        adapter.Usage      `json:"usage"`
	LatencyMs    int64              `json:"latency_ms"`
	TTFTMs       int64              `json:"ttft_ms,omitempty"`
	FallbackUsed bool               `json:"fallback_used"`
	RungIndex    int                `json:"rung_index"`
	Reports      []AttemptReport    `json:"reports,omitempty"`
	Err          error              `json:"-"`
}

// ExhaustedError reports that every rung was tried and failed. This is a
// terminal, reportable failure, not a silent default.
type ExhaustedError struct {
	Reports []AttemptReport
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fallback ladder exhausted: %d attempts across %d rungs failed",
		len(e.Reports), countRungs(e.Reports))
}

func countRungs(reports []AttemptReport) int {
	seen := make(map[string]bool)
	for _, r := range reports {
		seen[string(r.Provider)+"/"+r.Model] = true
	}
	return len(seen)
}

// Ladder runs fallback chains over a set of adapters.
type Ladder struct {
	adapters adapter.Set
	resolver ModelValidityResolver
	cfg      config.LadderConfig
	logger   *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a ladder. rng drives backoff jitter and is injected for
// reproducible tests.
func New(adapters adapter.Set, resolver ModelValidityResolver, cfg config.LadderConfig, rng *rand.Rand, logger *zap.Logger) *Ladder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ladder{
		adapters: adapters,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
		rng:      rng,
	}
}

// ChainFor returns the configured chain for a task type, restricted to
// providers that are actually configured. Task types without a chain use
// the "default" chain.
func (l *Ladder) ChainFor(task intent.TaskType) []Rung {
	rungs, ok := l.cfg.Chains[string(task)]
	if !ok {
		rungs = l.cfg.Chains["default"]
	}

	var out []Rung
	for _, r := range rungs {
		p, err := adapter.ParseProvider(r.Provider)
		if err != nil {
			l.logger.Warn("chain references unknown provider", zap.String("provider", r.Provider))
			continue
		}
		if _, configured := l.adapters[p]; !configured {
			continue
		}
		out = append(out, Rung{Provider: p, Model: r.Model, Rationale: r.Rationale})
	}
	return out
}

// Do attempts each rung under the per-attempt timeout until one succeeds.
// The requested model is validated per rung and replaced with the
// provider's default when invalid. On exhaustion both the returned result
// (with Err set, no content) and the error describe the failure.
func (l *Ladder) Do(ctx context.Context, chain []Rung, req adapter.Request) (*AttemptResult, error) {
	if len(chain) == 0 {
		err := fmt.Errorf("fallback chain is empty")
		return &AttemptResult{Err: err}, err
	}

	timeout := time.Duration(l.cfg.PerAttemptTimeoutMs) * time.Millisecond
	var reports []AttemptReport

	for rungIdx, rung := range chain {
		adapterImpl, ok := l.adapters[rung.Provider]
		if !ok {
			reports = append(reports, AttemptReport{
				Provider: rung.Provider, Model: rung.Model,
				Error: "provider not configured",
			})
			continue
		}

		model := l.sanitizeModel(rung)

		for retry := 0; retry <= l.cfg.MaxRetriesPerRung; retry++ {
			if err := ctx.Err(); err != nil {
				return &AttemptResult{Reports: reports, Err: err}, err
			}

			attemptCtx := ctx
			var cancel context.CancelFunc
			if timeout > 0 {
				attemptCtx, cancel = context.WithTimeout(ctx, timeout)
			}
			start := time.Now()
			resp, err := adapterImpl.Complete(attemptCtx, model, req)
			latency := time.Since(start)
			if cancel != nil {
				cancel()
			}

			if err == nil {
				result := &AttemptResult{
					Provider:     rung.Provider,
					Model:        model,
					Response:     resp,
					Usage:        resp.Usage,
					LatencyMs:    resp.LatencyMs,
					TTFTMs:       resp.TTFTMs,
					FallbackUsed: rungIdx > 0,
					RungIndex:    rungIdx,
					Reports:      reports,
				}
				if rungIdx > 0 {
					l.logger.Info("fallback rung succeeded",
						zap.String("provider", string(rung.Provider)),
						zap.String("model", model),
						zap.Int("rung", rungIdx))
				}
				return result, nil
			}

			timedOut := errors.Is(err, context.DeadlineExceeded)
			reports = append(reports, AttemptReport{
				Provider:  rung.Provider,
				Model:     model,
				Retries:   retry,
				LatencyMs: latency.Milliseconds(),
				TimedOut:  timedOut,
				Error:     err.Error(),
			})
			l.logger.Warn("ladder attempt failed",
				zap.String("provider", string(rung.Provider)),
				zap.String("model", model),
				zap.Int("rung", rungIdx),
				zap.Int("retry", retry),
				zap.Bool("timed_out", timedOut),
				zap.Error(err))

			// Non-transient errors will not improve with a retry of the
			// same rung; move on.
			if !adapter.IsTransient(err) || retry == l.cfg.MaxRetriesPerRung {
				break
			}

			if err := l.backoff(ctx, retry); err != nil {
				return &AttemptResult{Reports: reports, Err: err}, err
			}
		}
	}

	exhausted := &ExhaustedError{Reports: reports}
	return &AttemptResult{Reports: reports, Err: exhausted}, exhausted
}

// sanitizeModel validates the requested model against the provider's
// registry, falling back to the provider default when invalid.
func (l *Ladder) sanitizeModel(rung Rung) string {
	if l.resolver == nil || l.resolver.IsValid(rung.Provider, rung.Model) {
		return rung.Model
	}
	if def, ok := l.resolver.DefaultModel(rung.Provider); ok {
		l.logger.Warn("requested model invalid, using provider default",
			zap.String("provider", string(rung.Provider)),
			zap.String("requested", rung.Model),
			zap.String("default", def))
		return def
	}
	return rung.Model
}

// backoff sleeps for an exponentially growing, jittered interval, or
// returns early when ctx is done.
func (l *Ladder) backoff(ctx context.Context, attempt int) error {
	base := time.Duration(l.cfg.BaseBackoffMs) * time.Millisecond
	max := time.Duration(l.cfg.MaxBackoffMs) * time.Millisecond

	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}

	// Half fixed, half jitter, so concurrent retries spread out.
	l.mu.Lock()
	jitter := time.Duration(l.rng.Int63n(int64(d/2) + 1))
	l.mu.Unlock()
	d = d/2 + jitter

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
