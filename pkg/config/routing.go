package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Routing holds the tuned routing and resilience configuration. The
// numeric defaults are hand-calibrated heuristics; changing them is a
// tuning exercise, not a code change.
type Routing struct {
	// Epsilon is a pointer so an explicit 0 (fully greedy) survives the
	// defaulting pass.
	Epsilon    *float64         `yaml:"epsilon,omitempty"`
	Scoring    ScoringConfig    `yaml:"scoring,omitempty"`
	Classifier ClassifierConfig `yaml:"classifier,omitempty"`
	Coalesce   CoalesceConfig   `yaml:"coalesce,omitempty"`
	Ladder     LadderConfig     `yaml:"ladder,omitempty"`
	Collab     CollabConfig     `yaml:"collab,omitempty"`
	Perf       PerfConfig       `yaml:"perf,omitempty"`
}

// Weights blends the quality, speed and cost components of a score.
type Weights struct {
	Quality float64 `yaml:"quality"`
	Speed   float64 `yaml:"speed"`
	Cost    float64 `yaml:"cost"`
}

// ScoringConfig tunes the model scorer.
type ScoringConfig struct {
	// Weights maps an intent priority ("quality", "speed", "cost",
	// "balanced") to its blend.
	Weights map[string]Weights `yaml:"weights,omitempty"`

	// Latency normalization window, milliseconds.
	LatencyFloorMs int `yaml:"latency_floor_ms,omitempty"`
	LatencyCeilMs  int `yaml:"latency_ceil_ms,omitempty"`

	// Cost normalization window, dollars per 1k tokens.
	CostFloor float64 `yaml:"cost_floor,omitempty"`
	CostCeil  float64 `yaml:"cost_ceil,omitempty"`

	// Required maps a task type to the capability tags it needs.
	Required map[string][]string `yaml:"required,omitempty"`

	// Neutral scores used when no mapping or history exists.
	CapabilityNeutral float64 `yaml:"capability_neutral,omitempty"`
	HistoricalNeutral float64 `yaml:"historical_neutral,omitempty"`

	// CapabilityWeight is the capability share of the quality component;
	// the remainder is historical reward.
	CapabilityWeight float64 `yaml:"capability_weight,omitempty"`
}

// ClassifierConfig selects the cheap model used for intent classification.
type ClassifierConfig struct {
	Provider  string `yaml:"provider,omitempty"`
	Model     string `yaml:"model,omitempty"`
	TimeoutMs int    `yaml:"timeout_ms,omitempty"`
}

// CoalesceConfig tunes the request coalescer's entry lifetimes.
type CoalesceConfig struct {
	SuccessTTLMs int `yaml:"success_ttl_ms,omitempty"`
	FailureTTLMs int `yaml:"failure_ttl_ms,omitempty"`
}

// ChainRung is one step in a fallback chain.
type ChainRung struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Rationale string `yaml:"rationale,omitempty"`
}

// LadderConfig tunes the fallback ladder.
type LadderConfig struct {
	PerAttemptTimeoutMs int `yaml:"per_attempt_timeout_ms,omitempty"`
	MaxRetriesPerRung   int `yaml:"max_retries_per_rung,omitempty"`
	BaseBackoffMs       int `yaml:"base_backoff_ms,omitempty"`
	MaxBackoffMs        int `yaml:"max_backoff_ms,omitempty"`

	// Chains maps a task type to its ordered rungs. "default" is the
	// chain used when a task type has no entry.
	Chains map[string][]ChainRung `yaml:"chains,omitempty"`
}

// CollabConfig tunes the collaboration pipeline.
type CollabConfig struct {
	// CreatorPool lists the registry model ids that draft in parallel.
	CreatorPool []string `yaml:"creator_pool,omitempty"`

	StageTimeoutMs   int `yaml:"stage_timeout_ms,omitempty"`
	CreatorTimeoutMs int `yaml:"creator_timeout_ms,omitempty"`

	// StrongestModel is the registry model id used for the Council stage
	// and for the post-repair synthesis fallback.
	StrongestModel string `yaml:"strongest_model,omitempty"`

	// Default gate inputs, applied when a request carries none.
	ForbiddenTerms     []string `yaml:"forbidden_terms,omitempty"`
	RequiredHeadings   []string `yaml:"required_headings,omitempty"`
	RequiredBlockCount int      `yaml:"required_block_count,omitempty"`
}

// PerfConfig tunes the performance monitor.
type PerfConfig struct {
	HistorySize int `yaml:"history_size,omitempty"`
}

// LoadRouting reads routing configuration from a YAML file and fills in
// defaults for anything unset.
func LoadRouting(path string) (*Routing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Routing
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyRoutingDefaults(&cfg)
	return &cfg, nil
}

// DefaultRouting returns the default routing configuration.
func DefaultRouting() *Routing {
	cfg := &Routing{}
	applyRoutingDefaults(cfg)
	return cfg
}

func applyRoutingDefaults(cfg *Routing) {
	if cfg.Epsilon == nil {
		eps := 0.10
		cfg.Epsilon = &eps
	}

	s := &cfg.Scoring
	if s.Weights == nil {
		s.Weights = map[string]Weights{
			"quality":  {Quality: 0.6, Speed: 0.2, Cost: 0.2},
			"speed":    {Quality: 0.3, Speed: 0.5, Cost: 0.2},
			"cost":     {Quality: 0.3, Speed: 0.2, Cost: 0.5},
			"balanced": {Quality: 0.4, Speed: 0.3, Cost: 0.3},
		}
	}
	if s.LatencyFloorMs == 0 {
		s.LatencyFloorMs = 500
	}
	if s.LatencyCeilMs == 0 {
		s.LatencyCeilMs = 4000
	}
	if s.CostFloor == 0 {
		s.CostFloor = 0.0005
	}
	if s.CostCeil == 0 {
		s.CostCeil = 0.005
	}
	if s.Required == nil {
		s.Required = map[string][]string{
			"web_research":      {"web"},
			"deep_reasoning":    {"reasoning"},
			"coding":            {"code"},
			"math":              {"math", "reasoning"},
			"summarization":     {"summarize"},
			"document_analysis": {"documents"},
			"creative_writing":  {"creative"},
		}
	}
	if s.CapabilityNeutral == 0 {
		s.CapabilityNeutral = 0.3
	}
	if s.HistoricalNeutral == 0 {
		s.HistoricalNeutral = 0.5
	}
	if s.CapabilityWeight == 0 {
		s.CapabilityWeight = 0.7
	}

	if cfg.Classifier.Provider == "" {
		cfg.Classifier.Provider = "google"
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "gemini-2.0-flash"
	}
	if cfg.Classifier.TimeoutMs == 0 {
		cfg.Classifier.TimeoutMs = 4000
	}

	if cfg.Coalesce.SuccessTTLMs == 0 {
		cfg.Coalesce.SuccessTTLMs = 30000
	}
	if cfg.Coalesce.FailureTTLMs == 0 {
		cfg.Coalesce.FailureTTLMs = 2000
	}

	l := &cfg.Ladder
	if l.PerAttemptTimeoutMs == 0 {
		l.PerAttemptTimeoutMs = 6000
	}
	if l.BaseBackoffMs == 0 {
		l.BaseBackoffMs = 200
	}
	if l.MaxBackoffMs == 0 {
		l.MaxBackoffMs = 2000
	}
	if l.Chains == nil {
		l.Chains = defaultChains()
	}

	c := &cfg.Collab
	if len(c.CreatorPool) == 0 {
		c.CreatorPool = []string{"claude-sonnet", "gpt-thinking", "gemini-pro"}
	}
	if c.StageTimeoutMs == 0 {
		c.StageTimeoutMs = 60000
	}
	if c.CreatorTimeoutMs == 0 {
		c.CreatorTimeoutMs = 45000
	}
	if c.StrongestModel == "" {
		c.StrongestModel = "claude-opus"
	}

	if cfg.Perf.HistorySize == 0 {
		cfg.Perf.HistorySize = 1000
	}
}

func defaultChains() map[string][]ChainRung {
	return map[string][]ChainRung{
		"coding": {
			{Provider: "openai", Model: "gpt-5.2-codex", Rationale: "fast general coder"},
			{Provider: "anthropic", Model: "claude-sonnet-4-20250514", Rationale: "reliable reasoning"},
			{Provider: "deepseek", Model: "deepseek-chat", Rationale: "cost-effective alternative"},
			{Provider: "openai", Model: "gpt-5.2-instant", Rationale: "general fallback"},
		},
		"web_research": {
			{Provider: "google", Model: "gemini-2.0-pro", Rationale: "web grounding"},
			{Provider: "google", Model: "gemini-2.0-flash", Rationale: "fast web grounding"},
			{Provider: "openai", Model: "gpt-5.2-thinking", Rationale: "reasoning fallback"},
		},
		"deep_reasoning": {
			{Provider: "anthropic", Model: "claude-opus-4-20250514", Rationale: "strongest reasoning"},
			{Provider: "openai", Model: "gpt-5.2-thinking", Rationale: "reasoning alternative"},
			{Provider: "deepseek", Model: "deepseek-reasoner", Rationale: "cost-effective reasoning"},
			{Provider: "anthropic", Model: "claude-sonnet-4-20250514", Rationale: "general fallback"},
		},
		"math": {
			{Provider: "openai", Model: "gpt-5.2-thinking", Rationale: "math reasoning"},
			{Provider: "deepseek", Model: "deepseek-reasoner", Rationale: "cost-effective reasoning"},
			{Provider: "anthropic", Model: "claude-opus-4-20250514", Rationale: "strongest fallback"},
		},
		"summarization": {
			{Provider: "google", Model: "gemini-2.0-flash", Rationale: "fast summarizer"},
			{Provider: "openai", Model: "gpt-5.2-thinking", Rationale: "careful summarizer"},
		},
		"document_analysis": {
			{Provider: "google", Model: "gemini-2.0-pro", Rationale: "long context"},
			{Provider: "anthropic", Model: "claude-sonnet-4-20250514", Rationale: "careful reader"},
		},
		"creative_writing": {
			{Provider: "anthropic", Model: "claude-opus-4-20250514", Rationale: "strongest prose"},
			{Provider: "anthropic", Model: "claude-sonnet-4-20250514", Rationale: "prose alternative"},
			{Provider: "openai", Model: "gpt-5.2-instant", Rationale: "general fallback"},
		},
		"default": {
			{Provider: "openai", Model: "gpt-5.2-instant", Rationale: "fast general"},
			{Provider: "google", Model: "gemini-2.0-flash", Rationale: "fast alternative"},
			{Provider: "deepseek", Model: "deepseek-chat", Rationale: "cost-effective fallback"},
		},
	}
}
