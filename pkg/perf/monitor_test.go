package perf

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/switchboard/pkg/config"
)

func newTestMonitor(historySize int) *Monitor {
	return NewMonitor(config.PerfConfig{HistorySize: historySize}, nil)
}

func TestSummaryPercentiles(t *testing.T) {
	m := newTestMonitor(100)
	for i := 1; i <= 100; i++ {
		m.Record(Sample{
			Start:      time.Now(),
			EndToEndMs: int64(i * 10),
			Provider:   "mock",
			Model:      "mock-1",
		})
	}

	sum := m.Summary()
	require.Equal(t, 100, sum.Count)
	require.Equal(t, int64(500), sum.LatencyP50Ms)
	require.Equal(t, int64(950), sum.LatencyP95Ms)
	require.Equal(t, int64(990), sum.LatencyP99Ms)
	require.Zero(t, sum.Errors)
}

func TestSummaryErrorRateAndByModel(t *testing.T) {
	m := newTestMonitor(100)
	for i := 0; i < 8; i++ {
		m.Record(Sample{EndToEndMs: 100, Model: "a", Provider: "mock"})
	}
	for i := 0; i < 2; i++ {
		m.Record(Sample{EndToEndMs: 300, Model: "a", Provider: "mock", Error: ErrorTimeout})
	}
	m.Record(Sample{EndToEndMs: 50, Model: "b", Provider: "mock"})

	sum := m.Summary()
	require.Equal(t, 11, sum.Count)
	require.Equal(t, 2, sum.Errors)
	require.InDelta(t, 2.0/11.0, sum.ErrorRate, 1e-9)

	require.Equal(t, 10, sum.ByModel["a"].Count)
	require.Equal(t, 2, sum.ByModel["a"].Errors)
	require.Equal(t, int64((8*100+2*300)/10), sum.ByModel["a"].AvgLatencyMs)
	require.Equal(t, 1, sum.ByModel["b"].Count)
}

func TestHistoryIsBounded(t *testing.T) {
	m := newTestMonitor(10)
	for i := 0; i < 25; i++ {
		m.Record(Sample{EndToEndMs: int64(i), Model: fmt.Sprintf("m%d", i)})
	}

	sum := m.Summary()
	require.Equal(t, 10, sum.Count, "history must hold at most the configured size")

	// Only the newest 10 samples survive.
	_, oldPresent := sum.ByModel["m0"]
	require.False(t, oldPresent)
	_, newPresent := sum.ByModel["m24"]
	require.True(t, newPresent)
}

func TestRewardsAreSuccessRates(t *testing.T) {
	m := newTestMonitor(100)
	for i := 0; i < 3; i++ {
		m.Record(Sample{EndToEndMs: 100, Model: "good"})
	}
	m.Record(Sample{EndToEndMs: 100, Model: "good", Error: ErrorProvider})
	m.Record(Sample{EndToEndMs: 100, Model: "bad", Error: ErrorExhausted})

	rewards := m.Rewards()
	require.InDelta(t, 0.75, rewards["good"], 1e-9)
	require.InDelta(t, 0.0, rewards["bad"], 1e-9)
	_, unknown := rewards["never-seen"]
	require.False(t, unknown)
}

func TestTTFTOnlyFromStreamedSamples(t *testing.T) {
	m := newTestMonitor(100)
	m.Record(Sample{EndToEndMs: 100, TTFTMs: 40, Model: "a"})
	m.Record(Sample{EndToEndMs: 100, Model: "a"}) // no TTFT

	sum := m.Summary()
	require.Equal(t, int64(40), sum.TTFTP50Ms)
}

func TestCoalesceCountsSurfaceInSummary(t *testing.T) {
	m := newTestMonitor(10)
	m.SetCoalesceCounts(3, 9)
	sum := m.Summary()
	require.Equal(t, int64(3), sum.CoalesceLeaders)
	require.Equal(t, int64(9), sum.CoalesceFollowers)
}

func TestMonitorConcurrentUse(t *testing.T) {
	m := newTestMonitor(50)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m.SetCoalesceCounts(int64(i), int64(i*2))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m.Record(Sample{EndToEndMs: int64(i), Model: "a", Provider: "mock"})
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = m.Summary()
				_ = m.Rewards()
			}
		}()
	}
	wg.Wait()

	sum := m.Summary()
	require.Equal(t, int64(199), sum.CoalesceLeaders)
	require.Equal(t, int64(398), sum.CoalesceFollowers)
	require.Equal(t, 50, sum.Count)
}

func TestPercentileNearestRank(t *testing.T) {
	values := []int64{10, 20, 30, 40}
	require.Equal(t, int64(20), percentile(values, 50))
	require.Equal(t, int64(40), percentile(values, 95))
	require.Equal(t, int64(10), percentile(values, 1))
	require.Zero(t, percentile(nil, 50))
}
