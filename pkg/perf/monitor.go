// Package perf records per-request timing and token metrics in a bounded
// in-memory history and summarizes them as percentiles for dashboards.
package perf

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/config"
)

// ErrorClass buckets a failed request for the summary.
type ErrorClass string

const (
	ErrorNone        ErrorClass = ""
	ErrorTimeout     ErrorClass = "timeout"
	ErrorRateLimited ErrorClass = "rate_limited"
	ErrorProvider    ErrorClass = "provider"
	ErrorExhausted   ErrorClass = "exhausted"
)

// Sample is one request's performance record. Never mutated after
// creation.
type Sample struct {
	Start            time.Time  `json:"start"`
	QueueWaitMs      int64      `json:"queue_wait_ms,omitempty"`
	TTFTMs           int64      `json:"ttft_ms,omitempty"`
	EndToEndMs       int64      `json:"end_to_end_ms"`
	PromptTokens     int        `json:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens"`
	Provider         string     `json:"provider"`
	Model            string     `json:"model"`
	Error            ErrorClass `json:"error,omitempty"`
	Streaming        bool       `json:"streaming,omitempty"`
	Coalesced        bool       `json:"coalesced,omitempty"`
}

// ModelStats aggregates samples for one model.
type ModelStats struct {
	Count        int   `json:"count"`
	Errors       int   `json:"errors"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
}

// Summary is a point-in-time aggregate over the retained history.
type Summary struct {
	Count             int                   `json:"count"`
	Errors            int                   `json:"errors"`
	ErrorRate         float64               `json:"error_rate"`
	LatencyP50Ms      int64                 `json:"latency_p50_ms"`
	LatencyP95Ms      int64                 `json:"latency_p95_ms"`
	LatencyP99Ms      int64                 `json:"latency_p99_ms"`
	TTFTP50Ms         int64                 `json:"ttft_p50_ms,omitempty"`
	TTFTP95Ms         int64                 `json:"ttft_p95_ms,omitempty"`
	TotalTokens       int                   `json:"total_tokens"`
	ByModel           map[string]ModelStats `json:"by_model,omitempty"`
	CoalesceLeaders   int64                 `json:"coalesce_leaders"`
	CoalesceFollowers int64                 `json:"coalesce_followers"`
}

// Sink receives pushed summaries.
type Sink interface {
	Flush(Summary) error
}

// Monitor keeps a bounded ring of samples. Writes are append plus
// size-cap eviction under a short mutex.
type Monitor struct {
	mu      sync.Mutex
	samples []Sample
	next    int
	full    bool

	leaders   int64
	followers int64

	logger *zap.Logger
}

// NewMonitor creates a monitor retaining the configured history size.
func NewMonitor(cfg config.PerfConfig, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.HistorySize
	if size <= 0 {
		size = 1000
	}
	return &Monitor{
		samples: make([]Sample, size),
		logger:  logger,
	}
}

// Record appends a sample, evicting the oldest when full.
func (m *Monitor) Record(s Sample) {
	m.mu.Lock()
	m.samples[m.next] = s
	m.next++
	if m.next == len(m.samples) {
		m.next = 0
		m.full = true
	}
	m.mu.Unlock()
}

// SetCoalesceCounts stores the coalescer's cumulative leader/follower
// counts for the next summary.
func (m *Monitor) SetCoalesceCounts(leaders, followers int64) {
	m.mu.Lock()
	m.leaders = leaders
	m.followers = followers
	m.mu.Unlock()
}

// Summary aggregates the retained history.
func (m *Monitor) Summary() Summary {
	samples := m.snapshot()

	m.mu.Lock()
	leaders, followers := m.leaders, m.followers
	m.mu.Unlock()

	sum := Summary{
		Count:             len(samples),
		ByModel:           make(map[string]ModelStats),
		CoalesceLeaders:   leaders,
		CoalesceFollowers: followers,
	}
	if len(samples) == 0 {
		return sum
	}

	var latencies, ttfts []int64
	latencyTotals := make(map[string]int64)
	for _, s := range samples {
		latencies = append(latencies, s.EndToEndMs)
		if s.TTFTMs > 0 {
			ttfts = append(ttfts, s.TTFTMs)
		}
		sum.TotalTokens += s.PromptTokens + s.CompletionTokens

		stats := sum.ByModel[s.Model]
		stats.Count++
		if s.Error != ErrorNone {
			stats.Errors++
			sum.Errors++
		}
		latencyTotals[s.Model] += s.EndToEndMs
		sum.ByModel[s.Model] = stats
	}
	for model, stats := range sum.ByModel {
		if stats.Count > 0 {
			stats.AvgLatencyMs = latencyTotals[model] / int64(stats.Count)
			sum.ByModel[model] = stats
		}
	}

	sum.ErrorRate = float64(sum.Errors) / float64(sum.Count)
	sum.LatencyP50Ms = percentile(latencies, 50)
	sum.LatencyP95Ms = percentile(latencies, 95)
	sum.LatencyP99Ms = percentile(latencies, 99)
	if len(ttfts) > 0 {
		sum.TTFTP50Ms = percentile(ttfts, 50)
		sum.TTFTP95Ms = percentile(ttfts, 95)
	}
	return sum
}

// Rewards derives a per-model historical reward (success rate) from the
// retained history, feeding the router's scoring loop.
func (m *Monitor) Rewards() map[string]float64 {
	samples := m.snapshot()
	counts := make(map[string]int)
	successes := make(map[string]int)
	for _, s := range samples {
		if s.Model == "" {
			continue
		}
		counts[s.Model]++
		if s.Error == ErrorNone {
			successes[s.Model]++
		}
	}
	rewards := make(map[string]float64, len(counts))
	for model, n := range counts {
		rewards[model] = float64(successes[model]) / float64(n)
	}
	return rewards
}

// Push flushes the current summary to a sink.
func (m *Monitor) Push(sink Sink) error {
	return sink.Flush(m.Summary())
}

func (m *Monitor) snapshot() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		out := make([]Sample, m.next)
		copy(out, m.samples[:m.next])
		return out
	}
	out := make([]Sample, 0, len(m.samples))
	out = append(out, m.samples[m.next:]...)
	out = append(out, m.samples[:m.next]...)
	return out
}

// percentile returns the p-th percentile of values (nearest-rank).
func percentile(values []int64, p int) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// LogSink writes summaries to the structured log.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) Flush(sum Summary) error {
	s.Logger.Info("performance summary",
		zap.Int("count", sum.Count),
		zap.Float64("error_rate", sum.ErrorRate),
		zap.Int64("latency_p50_ms", sum.LatencyP50Ms),
		zap.Int64("latency_p95_ms", sum.LatencyP95Ms),
		zap.Int64("latency_p99_ms", sum.LatencyP99Ms),
		zap.Int64("coalesce_leaders", sum.CoalesceLeaders),
		zap.Int64("coalesce_followers", sum.CoalesceFollowers))
	return nil
}
