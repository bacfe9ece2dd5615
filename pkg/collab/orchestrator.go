package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/gate"
	"github.com/zen-systems/switchboard/pkg/intent"
	"github.com/zen-systems/switchboard/pkg/perf"
	"github.com/zen-systems/switchboard/pkg/registry"
	"github.com/zen-systems/switchboard/pkg/repair"
	"github.com/zen-systems/switchboard/pkg/router"
)

// Options wires an Orchestrator. Router, Classifier, Adapters, Registry,
// Validator and Recorder are required; Monitor is optional.
type Options struct {
	Router     *router.Router
	Classifier *intent.Classifier
	Adapters   adapter.Set
	Registry   *registry.Registry
	Validator  *gate.Validator
	Recorder   Recorder
	Monitor    *perf.Monitor
	Config     config.CollabConfig
	Logger     *zap.Logger
}

// Orchestrator drives the six-stage pipeline.
type Orchestrator struct {
	router     *router.Router
	classifier *intent.Classifier
	adapters   adapter.Set
	registry   *registry.Registry
	validator  *gate.Validator
	recorder   Recorder
	monitor    *perf.Monitor
	cfg        config.CollabConfig
	logger     *zap.Logger
}

// New creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Router == nil || opts.Classifier == nil || len(opts.Adapters) == 0 ||
		opts.Registry == nil || opts.Validator == nil {
		return nil, fmt.Errorf("collab: router, classifier, adapters, registry and validator are required")
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		router:     opts.Router,
		classifier: opts.Classifier,
		adapters:   opts.Adapters,
		registry:   opts.Registry,
		validator:  opts.Validator,
		recorder:   opts.Recorder,
		monitor:    opts.Monitor,
		cfg:        opts.Config,
		logger:     opts.Logger,
	}, nil
}

type creatorResult struct {
	modelID string
	resp    *adapter.Response
	err     error
	elapsed time.Duration
}

// Run executes the pipeline. The six stage records are handed to the
// recorder at run end regardless of outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	record := &RunRecord{
		ID:        uuid.NewString(),
		Message:   req.Message,
		ThreadID:  req.ThreadID,
		StartedAt: time.Now(),
	}
	defer func() {
		record.EndedAt = time.Now()
		if err := o.recorder.RecordRun(context.WithoutCancel(ctx), record); err != nil {
			o.logger.Warn("run record persistence failed", zap.String("run_id", record.ID), zap.Error(err))
		}
	}()

	fail := func(err error) (*Result, error) {
		record.Error = err.Error()
		return nil, err
	}

	it := o.classifier.Classify(ctx, req.Message, req.ContextSummary)
	estTokens := it.EstimatedInputTokens

	// Stage 1: Analyst.
	analysis, rec, err := o.routeAndCall(ctx, StageAnalyst, intent.Intent{
		TaskType:             intent.TaskDeepReasoning,
		Priority:             intent.PrioritySpeed,
		EstimatedInputTokens: estTokens,
	}, req, analystPrompt(req))
	if err != nil {
		return fail(fmt.Errorf("analyst stage: %w", err))
	}
	record.Stages = append(record.Stages, rec)

	// Stage 2: Researcher.
	research, rec, err := o.routeAndCall(ctx, StageResearcher, intent.Intent{
		TaskType:             intent.TaskWebResearch,
		RequiresWeb:          it.RequiresWeb,
		Priority:             intent.PriorityQuality,
		EstimatedInputTokens: estTokens,
	}, req, researcherPrompt(req, analysis))
	if err != nil {
		return fail(fmt.Errorf("researcher stage: %w", err))
	}
	record.Stages = append(record.Stages, rec)

	// Stage 3: Creators, in parallel. One timeout per creator call; a
	// slow or failed creator never cancels its siblings.
	drafts, draftModels, rec, err := o.runCreators(ctx, req, analysis, research)
	if err != nil {
		return fail(err)
	}
	record.Stages = append(record.Stages, rec)

	// Stage 4: Critic.
	critique, rec, err := o.routeAndCall(ctx, StageCritic, intent.Intent{
		TaskType:             intent.TaskDeepReasoning,
		Priority:             intent.PriorityQuality,
		EstimatedInputTokens: estTokens,
	}, req, criticPrompt(req, drafts))
	if err != nil {
		return fail(fmt.Errorf("critic stage: %w", err))
	}
	record.Stages = append(record.Stages, rec)

	// Stage 5: Council. Mandatory; a malformed verdict fails the run.
	// The stage record is kept even when the verdict is rejected.
	verdict, rec, err := o.runCouncil(ctx, req, drafts, critique)
	if rec.Role != "" {
		record.Stages = append(record.Stages, rec)
	}
	if err != nil {
		return fail(err)
	}
	record.Verdict = verdict

	o.logger.Info("council verdict",
		zap.Int("best_draft", verdict.BestDraftIndex),
		zap.String("best_model", draftModels[verdict.BestDraftIndex]),
		zap.Int("must_fix", len(verdict.MustFix)))

	// Stage 6: Synthesizer, then the gate ladder.
	result, rec, err := o.runSynthesizer(ctx, req, it, drafts[verdict.BestDraftIndex], verdict)
	if err != nil {
		return fail(err)
	}
	record.Stages = append(record.Stages, rec)

	result.RunID = record.ID
	result.Verdict = verdict
	result.Stages = record.Stages
	record.Status = result.Status
	record.Answer = result.Answer

	return result, nil
}

// routeAndCall routes a stage intent and executes the stage call under
// the stage timeout.
func (o *Orchestrator) routeAndCall(ctx context.Context, role StageRole, stageIntent intent.Intent, req Request, prompt string) (string, StageRecord, error) {
	decision, err := o.router.RouteIntent(stageIntent, router.Request{
		Message:            req.Message,
		AvailableProviders: o.adapters.AvailableProviders(),
		Rewards:            o.rewards(),
	})
	if err != nil {
		return "", StageRecord{}, err
	}

	resp, elapsed, err := o.call(ctx, decision.Model, prompt, nil, o.stageTimeout())
	if err != nil {
		return "", StageRecord{}, err
	}
	return resp.Content, o.stageRecord(role, decision.Model, resp, elapsed), nil
}

func (o *Orchestrator) runCreators(ctx context.Context, req Request, analysis, research string) ([]string, []string, StageRecord, error) {
	pool := o.creatorPool()
	prompt := creatorPrompt(req, analysis, research)
	timeout := time.Duration(o.cfg.CreatorTimeoutMs) * time.Millisecond

	start := time.Now()
	results := make([]creatorResult, len(pool))
	var g errgroup.Group
	for i, m := range pool {
		g.Go(func() error {
			resp, elapsed, err := o.call(ctx, m, prompt, nil, timeout)
			results[i] = creatorResult{modelID: m.ID, resp: resp, err: err, elapsed: elapsed}
			return nil // individual creator failures are tolerated
		})
	}
	_ = g.Wait()

	var drafts []string
	var draftModels []string
	var draftUpstreams []string
	var usage adapter.Usage
	var content strings.Builder
	for i, r := range results {
		if r.err != nil {
			o.logger.Warn("creator failed", zap.String("model", r.modelID), zap.Error(r.err))
			continue
		}
		fmt.Fprintf(&content, "Draft %d (%s):\n%s\n\n", len(drafts), r.modelID, r.resp.Content)
		drafts = append(drafts, r.resp.Content)
		draftModels = append(draftModels, r.modelID)
		draftUpstreams = append(draftUpstreams, pool[i].UpstreamName)
		usage.PromptTokens += r.resp.Usage.PromptTokens
		usage.CompletionTokens += r.resp.Usage.CompletionTokens
		usage.TotalTokens += r.resp.Usage.TotalTokens
	}
	if len(drafts) == 0 {
		return nil, nil, StageRecord{}, fmt.Errorf("creator stage: every creator in the pool failed")
	}

	end := time.Now()
	rec := StageRecord{
		Role:      StageCreator,
		Model:     strings.Join(draftModels, ","),
		Upstream:  strings.Join(draftUpstreams, ","),
		Content:   strings.TrimSpace(content.String()),
		Usage:     usage,
		LatencyMs: end.Sub(start).Milliseconds(),
		StartedAt: start,
		EndedAt:   end,
	}
	return drafts, draftModels, rec, nil
}

func (o *Orchestrator) runCouncil(ctx context.Context, req Request, drafts []string, critique string) (*CouncilVerdict, StageRecord, error) {
	model, err := o.strongestModel()
	if err != nil {
		return nil, StageRecord{}, err
	}

	// Temperature 0: the verdict must be a judgment, not a sample.
	resp, elapsed, err := o.call(ctx, model, councilPrompt(req, drafts, critique), adapter.Temp(0), o.stageTimeout())
	if err != nil {
		return nil, StageRecord{}, fmt.Errorf("council stage: %w", err)
	}
	rec := o.stageRecord(StageCouncil, model, resp, elapsed)

	verdict, err := parseVerdict(resp.Content, len(drafts))
	if err != nil {
		return nil, rec, err
	}
	return verdict, rec, nil
}

// runSynthesizer produces the final answer and drives the bounded gate
// ladder: repair once, then strongest-model retry, then either one
// clarifying question or an explicit unsatisfiable-constraint statement.
// A failing draft is never silently emitted.
func (o *Orchestrator) runSynthesizer(ctx context.Context, req Request, it intent.Intent, bestDraft string, verdict *CouncilVerdict) (*Result, StageRecord, error) {
	decision, err := o.router.RouteIntent(intent.Intent{
		TaskType:             it.TaskType,
		RequiresWeb:          false,
		Priority:             intent.PriorityQuality,
		EstimatedInputTokens: it.EstimatedInputTokens,
	}, router.Request{
		Message:            req.Message,
		AvailableProviders: o.adapters.AvailableProviders(),
		Rewards:            o.rewards(),
	})
	if err != nil {
		return nil, StageRecord{}, err
	}
	synthModel := decision.Model

	start := time.Now()
	var usage adapter.Usage
	addUsage := func(u adapter.Usage) {
		usage.PromptTokens += u.PromptTokens
		usage.CompletionTokens += u.CompletionTokens
		usage.TotalTokens += u.TotalTokens
	}

	resp, _, err := o.call(ctx, synthModel, synthesizerPrompt(req, bestDraft, verdict), nil, o.stageTimeout())
	if err != nil {
		return nil, StageRecord{}, fmt.Errorf("synthesizer stage: %w", err)
	}
	addUsage(resp.Usage)
	draft := resp.Content
	lastModel := synthModel

	validate := func(d string) (bool, []string, []gate.Result) {
		return o.validator.ValidateAll(gate.Input{
			Draft:    d,
			Request:  req.Message,
			Lexicon:  req.Lexicon,
			Contract: req.Contract,
		})
	}

	status := OutcomeOK
	passed, violations, gateResults := validate(draft)

	if !passed {
		// Repair once: fix only what was flagged.
		o.logger.Info("synthesis failed gates, repairing",
			zap.Int("violations", len(violations)))
		resp, _, err = o.call(ctx, synthModel, repair.RepairPrompt(draft, violations), nil, o.stageTimeout())
		if err != nil {
			return nil, StageRecord{}, fmt.Errorf("synthesizer repair: %w", err)
		}
		addUsage(resp.Usage)
		draft = resp.Content
		status = OutcomeRepaired
		passed, violations, gateResults = validate(draft)
	}

	if !passed {
		// One more synthesis on the strongest available model.
		strongest, serr := o.strongestModel()
		if serr != nil {
			return nil, StageRecord{}, serr
		}
		o.logger.Info("repair failed gates, falling back to strongest model",
			zap.String("model", strongest.ID),
			zap.Int("violations", len(violations)))
		resp, _, err = o.call(ctx, strongest, repair.EscalationPrompt(req.Message, draft, violations), nil, o.stageTimeout())
		if err != nil {
			return nil, StageRecord{}, fmt.Errorf("synthesizer fallback: %w", err)
		}
		addUsage(resp.Usage)
		draft = resp.Content
		lastModel = strongest
		status = OutcomeFallback
		passed, violations, gateResults = validate(draft)
	}

	end := time.Now()
	rec := StageRecord{
		Role:      StageSynthesizer,
		Provider:  lastModel.Provider,
		Model:     lastModel.ID,
		Upstream:  lastModel.UpstreamName,
		Content:   draft,
		Usage:     usage,
		LatencyMs: end.Sub(start).Milliseconds(),
		StartedAt: start,
		EndedAt:   end,
	}

	result := &Result{Status: status, Gates: gateResults}
	if passed {
		result.Answer = draft
		return result, rec, nil
	}

	// The ladder is exhausted. Hard constraint violations (lexicon,
	// output contract) cannot be satisfied; anything else earns exactly
	// one clarifying question.
	if hard := hardViolations(violations); len(hard) > 0 {
		result.Status = OutcomeUnsatisfiable
		result.Unmet = hard
	} else {
		result.Status = OutcomeClarify
		result.Clarify = clarifyingQuestion(violations)
	}
	return result, rec, nil
}

// hardViolations selects the violations no rewording can fix.
func hardViolations(violations []string) []string {
	var out []string
	for _, v := range violations {
		if strings.HasPrefix(v, "Gate B") || strings.HasPrefix(v, "Gate C") {
			out = append(out, v)
		}
	}
	return out
}

func clarifyingQuestion(violations []string) string {
	detail := "the expected structure of the answer"
	if len(violations) > 0 {
		detail = violations[0]
	}
	return fmt.Sprintf("I could not produce an answer that passes all quality checks (%s). What structure and level of detail should the final answer have?", detail)
}

// call executes one model invocation under its own timeout and records a
// performance sample.
func (o *Orchestrator) call(ctx context.Context, m registry.ModelDescriptor, prompt string, temperature *float64, timeout time.Duration) (*adapter.Response, time.Duration, error) {
	provider, err := adapter.ParseProvider(m.Provider)
	if err != nil {
		return nil, 0, err
	}
	adapterImpl, ok := o.adapters[provider]
	if !ok {
		return nil, 0, fmt.Errorf("provider %s not configured", m.Provider)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := adapterImpl.Complete(ctx, m.UpstreamName, adapter.Request{
		Messages:    []adapter.Message{{Role: "user", Content: prompt}},
		Temperature: temperature,
	})
	elapsed := time.Since(start)

	if o.monitor != nil {
		sample := perf.Sample{
			Start:      start,
			EndToEndMs: elapsed.Milliseconds(),
			Provider:   m.Provider,
			Model:      m.ID,
		}
		if resp != nil {
			sample.PromptTokens = resp.Usage.PromptTokens
			sample.CompletionTokens = resp.Usage.CompletionTokens
			sample.TTFTMs = resp.TTFTMs
		}
		if err != nil {
			sample.Error = classifyError(err)
		}
		o.monitor.Record(sample)
	}

	if err != nil {
		return nil, elapsed, err
	}
	return resp, elapsed, nil
}

func classifyError(err error) perf.ErrorClass {
	switch {
	case adapter.IsRateLimited(err):
		return perf.ErrorRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return perf.ErrorTimeout
	default:
		return perf.ErrorProvider
	}
}

func (o *Orchestrator) stageRecord(role StageRole, m registry.ModelDescriptor, resp *adapter.Response, elapsed time.Duration) StageRecord {
	end := time.Now()
	return StageRecord{
		Role:      role,
		Provider:  m.Provider,
		Model:     m.ID,
		Upstream:  m.UpstreamName,
		Content:   resp.Content,
		Usage:     resp.Usage,
		LatencyMs: elapsed.Milliseconds(),
		StartedAt: end.Add(-elapsed),
		EndedAt:   end,
	}
}

// creatorPool resolves the configured pool to descriptors, skipping
// models whose provider is not configured. Falls back to the strongest
// model alone when the pool resolves empty.
func (o *Orchestrator) creatorPool() []registry.ModelDescriptor {
	var pool []registry.ModelDescriptor
	for _, id := range o.cfg.CreatorPool {
		m, ok := o.registry.ByID(id)
		if !ok {
			o.logger.Warn("creator pool references unknown model", zap.String("model", id))
			continue
		}
		if p, err := adapter.ParseProvider(m.Provider); err != nil {
			continue
		} else if _, configured := o.adapters[p]; !configured {
			continue
		}
		pool = append(pool, m)
	}
	if len(pool) == 0 {
		if m, err := o.strongestModel(); err == nil {
			pool = append(pool, m)
		}
	}
	return pool
}

// strongestModel resolves the configured strongest model, degrading to
// the first configured registry model.
func (o *Orchestrator) strongestModel() (registry.ModelDescriptor, error) {
	if m, ok := o.registry.ByID(o.cfg.StrongestModel); ok {
		if p, err := adapter.ParseProvider(m.Provider); err == nil {
			if _, configured := o.adapters[p]; configured {
				return m, nil
			}
		}
	}
	for _, m := range o.registry.All() {
		if p, err := adapter.ParseProvider(m.Provider); err == nil {
			if _, configured := o.adapters[p]; configured {
				return m, nil
			}
		}
	}
	return registry.ModelDescriptor{}, fmt.Errorf("no configured model available for council")
}

func (o *Orchestrator) stageTimeout() time.Duration {
	return time.Duration(o.cfg.StageTimeoutMs) * time.Millisecond
}

func (o *Orchestrator) rewards() map[string]float64 {
	if o.monitor == nil {
		return nil
	}
	return o.monitor.Rewards()
}
