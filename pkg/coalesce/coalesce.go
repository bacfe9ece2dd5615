// Package coalesce merges concurrent identical requests into a single
// upstream execution. The first caller for a fingerprint becomes the
// leader and runs the call; everyone else waiting on the same fingerprint
// gets a copy of the leader's result or error.
package coalesce

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/config"
)

// Fingerprint identifies "the same logical request". Only the newest
// message participates so the key stays stable as a conversation grows.
func Fingerprint(provider, model, threadID, lastMessage string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(threadID))
	h.Write([]byte{0})
	h.Write([]byte(lastMessage))
	return hex.EncodeToString(h.Sum(nil))
}

// entry is one in-flight or recently-completed execution. The result
// fields are written exactly once, before done is closed.
type entry[V any] struct {
	done      chan struct{}
	val       V
	err       error        // leader's error, as the leader saw it
	shared    *LeaderError // single wrapper handed to every follower
	createdAt time.Time
}

// Group deduplicates executions by fingerprint. The zero value is not
// usable; construct with NewGroup.
type Group[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]

	successTTL time.Duration
	failureTTL time.Duration
	logger     *zap.Logger

	leaders   atomic.Int64
	followers atomic.Int64
}

// Stats reports leader/follower counts for the metrics sink.
type Stats struct {
	Leaders   int64 `json:"leaders"`
	Followers int64 `json:"followers"`
}

// NewGroup creates a coalescing group. Completed entries linger for the
// success TTL (failure TTL when the leader errored, so retries are
// prompt) and are then garbage-collected.
func NewGroup[V any](cfg config.CoalesceConfig, logger *zap.Logger) *Group[V] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group[V]{
		entries:    make(map[string]*entry[V]),
		successTTL: time.Duration(cfg.SuccessTTLMs) * time.Millisecond,
		failureTTL: time.Duration(cfg.FailureTTLMs) * time.Millisecond,
		logger:     logger,
	}
}

// Do executes leaderFn under the fingerprint key, coalescing concurrent
// callers. The returned bool is true when this caller was a follower and
// received a shared result. Followers stop waiting when their own context
// is cancelled; the leader's execution is unaffected by follower
// cancellation.
//
// The lock is held only to create or locate the entry — never while
// waiting, never while leaderFn runs.
func (g *Group[V]) Do(ctx context.Context, key string, leaderFn func(context.Context) (V, error)) (V, bool, error) {
	g.mu.Lock()
	if e, ok := g.entries[key]; ok {
		g.mu.Unlock()
		g.followers.Add(1)
		return g.wait(ctx, e)
	}

	e := &entry[V]{
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	g.entries[key] = e
	g.mu.Unlock()
	g.leaders.Add(1)

	val, err := leaderFn(ctx)

	// The result slot is written exactly once, before the broadcast.
	e.val = val
	e.err = err
	if err != nil {
		e.shared = &LeaderError{Err: err}
	}
	close(e.done)

	ttl := g.successTTL
	if err != nil {
		ttl = g.failureTTL
	}
	time.AfterFunc(ttl, func() {
		g.mu.Lock()
		if cur, ok := g.entries[key]; ok && cur == e {
			delete(g.entries, key)
		}
		g.mu.Unlock()
	})

	short := key
	if len(short) > 8 {
		short = short[:8]
	}
	g.logger.Debug("coalesce leader finished",
		zap.String("fingerprint", short),
		zap.Bool("failed", err != nil),
		zap.Duration("ttl", ttl))

	return val, false, err
}

func (g *Group[V]) wait(ctx context.Context, e *entry[V]) (V, bool, error) {
	select {
	case <-e.done:
		if e.shared != nil {
			return e.val, true, e.shared
		}
		return e.val, true, nil
	case <-ctx.Done():
		var zero V
		return zero, true, ctx.Err()
	}
}

// Stats returns cumulative leader/follower counts.
func (g *Group[V]) Stats() Stats {
	return Stats{Leaders: g.leaders.Load(), Followers: g.followers.Load()}
}

// Pending returns how many fingerprints currently have an entry.
func (g *Group[V]) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// LeaderError marks a follower's copy of the leader's failure. Every
// follower waiting on the fingerprint receives the identical underlying
// error.
type LeaderError struct {
	Err error
}

func (e *LeaderError) Error() string {
	return fmt.Sprintf("coalesced leader call failed: %v", e.Err)
}

func (e *LeaderError) Unwrap() error { return e.Err }
