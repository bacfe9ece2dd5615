// Package collab runs the six-stage collaboration pipeline: Analyst,
// Researcher, Creator, Critic, Council, Synthesizer. Stage order is fixed
// and no stage is ever skipped; the synthesizer's draft must pass the
// quality gates before it leaves the pipeline.
package collab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/gate"
)

// StageRole names a pipeline stage.
type StageRole string

const (
	StageAnalyst     StageRole = "analyst"
	StageResearcher  StageRole = "researcher"
	StageCreator     StageRole = "creator"
	StageCritic      StageRole = "critic"
	StageCouncil     StageRole = "council"
	StageSynthesizer StageRole = "synthesizer"
)

// StageOrder is the fixed execution order.
func StageOrder() []StageRole {
	return []StageRole{
		StageAnalyst, StageResearcher, StageCreator,
		StageCritic, StageCouncil, StageSynthesizer,
	}
}

// StageRecord captures one stage's execution for audit. Exactly six are
// produced per run, in stage order. Model is the registry id, the key
// used for rewards and performance samples; Upstream is the provider's
// model name.
type StageRecord struct {
	Role      StageRole     `json:"role"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Upstream  string        `json:"upstream,omitempty"`
	Content   string        `json:"content"`
	Usage     adapter.Usage `json:"usage"`
	LatencyMs int64         `json:"latency_ms"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
}

// CouncilVerdict is the Council stage's strict-schema judgment over the
// creator drafts. No extra fields are permitted.
type CouncilVerdict struct {
	BestDraftIndex int      `json:"best_draft_index"`
	Reasoning      string   `json:"reasoning"`
	MustKeep       []string `json:"must_keep"`
	MustFix        []string `json:"must_fix"`
	Speculative    []string `json:"speculative"`
}

// VerdictError reports a malformed Council verdict. It is fatal for the
// run: a bad verdict is never coerced into a guess.
type VerdictError struct {
	Reason string
	Err    error
}

func (e *VerdictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed council verdict: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed council verdict: %s", e.Reason)
}

func (e *VerdictError) Unwrap() error { return e.Err }

// parseVerdict decodes and validates a Council response against the
// strict schema. draftCount bounds best_draft_index.
func parseVerdict(content string, draftCount int) (*CouncilVerdict, error) {
	trimmed := stripFences(content)

	// required-field presence is checked through pointers so a missing
	// index is distinguishable from index 0.
	var raw struct {
		BestDraftIndex *int     `json:"best_draft_index"`
		Reasoning      *string  `json:"reasoning"`
		MustKeep       []string `json:"must_keep"`
		MustFix        []string `json:"must_fix"`
		Speculative    []string `json:"speculative"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, &VerdictError{Reason: "invalid JSON", Err: err}
	}

	if raw.BestDraftIndex == nil {
		return nil, &VerdictError{Reason: "missing best_draft_index"}
	}
	if *raw.BestDraftIndex < 0 || *raw.BestDraftIndex >= draftCount {
		return nil, &VerdictError{
			Reason: fmt.Sprintf("best_draft_index %d out of range [0,%d)", *raw.BestDraftIndex, draftCount),
		}
	}
	if raw.Reasoning == nil || *raw.Reasoning == "" {
		return nil, &VerdictError{Reason: "missing reasoning"}
	}

	return &CouncilVerdict{
		BestDraftIndex: *raw.BestDraftIndex,
		Reasoning:      *raw.Reasoning,
		MustKeep:       raw.MustKeep,
		MustFix:        raw.MustFix,
		Speculative:    raw.Speculative,
	}, nil
}

// OutcomeStatus reports how the pipeline concluded.
type OutcomeStatus string

const (
	// OutcomeOK means the first synthesis passed the gates.
	OutcomeOK OutcomeStatus = "ok"
	// OutcomeRepaired means one repair pass was needed.
	OutcomeRepaired OutcomeStatus = "repaired"
	// OutcomeFallback means the strongest-model retry was needed.
	OutcomeFallback OutcomeStatus = "fallback"
	// OutcomeClarify means the pipeline is asking one clarifying question.
	OutcomeClarify OutcomeStatus = "clarify"
	// OutcomeUnsatisfiable means a stated constraint cannot be met.
	OutcomeUnsatisfiable OutcomeStatus = "unsatisfiable"
)

// Request is one collaboration input.
type Request struct {
	Message        string
	ContextSummary string
	ThreadID       string
	Lexicon        *gate.LexiconLock
	Contract       *gate.OutputContract
}

// Result is the pipeline output.
type Result struct {
	RunID   string          `json:"run_id"`
	Status  OutcomeStatus   `json:"status"`
	Answer  string          `json:"answer,omitempty"`
	Clarify string          `json:"clarifying_question,omitempty"`
	Unmet   []string        `json:"unmet_constraints,omitempty"`
	Gates   []gate.Result   `json:"gates,omitempty"`
	Verdict *CouncilVerdict `json:"verdict,omitempty"`
	Stages  []StageRecord   `json:"stages"`
}

// RunRecord is the audit bundle handed to the persistence collaborator
// at run end. The core performs no durable writes itself.
type RunRecord struct {
	ID        string          `json:"id"`
	Message   string          `json:"message"`
	ThreadID  string          `json:"thread_id,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Stages    []StageRecord   `json:"stages"`
	Verdict   *CouncilVerdict `json:"verdict,omitempty"`
	Status    OutcomeStatus   `json:"status"`
	Answer    string          `json:"answer,omitempty"`
	Error     string          `json:"error,omitempty"`
}
