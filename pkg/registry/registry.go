// Package registry holds the static model catalogue: which models exist,
// what they are good at, and what they cost. Pure data, loaded once at
// process start.
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Capability tags a model strength the scorer can match against.
type Capability string

const (
	CapChat      Capability = "chat"
	CapCode      Capability = "code"
	CapReasoning Capability = "reasoning"
	CapWeb       Capability = "web"
	CapMath      Capability = "math"
	CapSummarize Capability = "summarize"
	CapDocuments Capability = "documents"
	CapCreative  Capability = "creative"
	CapFast      Capability = "fast"
)

// ModelDescriptor describes one upstream model. Immutable after load.
type ModelDescriptor struct {
	ID           string       `yaml:"id"`
	Provider     string       `yaml:"provider"`
	DisplayName  string       `yaml:"display_name"`
	UpstreamName string       `yaml:"upstream_name"`
	MaxContext   int          `yaml:"max_context"`
	AvgLatencyMs int          `yaml:"avg_latency_ms"`
	CostPer1K    float64      `yaml:"cost_per_1k"`
	Strengths    []Capability `yaml:"strengths"`
}

// HasStrength reports whether the model carries the given capability tag.
func (m ModelDescriptor) HasStrength(c Capability) bool {
	for _, s := range m.Strengths {
		if s == c {
			return true
		}
	}
	return false
}

// WebCapable reports whether the model can ground answers in web search.
func (m ModelDescriptor) WebCapable() bool {
	return m.HasStrength(CapWeb)
}

// Registry is the loaded model catalogue.
type Registry struct {
	models     []ModelDescriptor
	byID       map[string]int
	byUpstream map[string]int
}

// New builds a registry from descriptors, preserving input order.
// Input order is the tie-break order used by the scorer.
func New(models []ModelDescriptor) (*Registry, error) {
	r := &Registry{
		models:     make([]ModelDescriptor, 0, len(models)),
		byID:       make(map[string]int, len(models)),
		byUpstream: make(map[string]int, len(models)),
	}
	for _, m := range models {
		if m.ID == "" || m.Provider == "" || m.UpstreamName == "" {
			return nil, fmt.Errorf("registry: model %q missing id, provider or upstream_name", m.ID)
		}
		if m.MaxContext <= 0 {
			return nil, fmt.Errorf("registry: model %s has non-positive max_context", m.ID)
		}
		if _, dup := r.byID[m.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate model id %s", m.ID)
		}
		r.byID[m.ID] = len(r.models)
		r.byUpstream[m.Provider+"/"+m.UpstreamName] = len(r.models)
		r.models = append(r.models, m)
	}
	return r, nil
}

// Load reads a model catalogue from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file struct {
		Models []ModelDescriptor `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", path, err)
	}
	return New(file.Models)
}

// All returns every model in registry order.
func (r *Registry) All() []ModelDescriptor {
	out := make([]ModelDescriptor, len(r.models))
	copy(out, r.models)
	return out
}

// ByID returns the model with the given id.
func (r *Registry) ByID(id string) (ModelDescriptor, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return ModelDescriptor{}, false
	}
	return r.models[idx], true
}

// ByUpstream returns the model a provider serves under the given
// upstream name. Reward and sample keys are registry ids, so callers
// holding only the upstream name resolve it here first.
func (r *Registry) ByUpstream(provider, upstream string) (ModelDescriptor, bool) {
	idx, ok := r.byUpstream[provider+"/"+upstream]
	if !ok {
		return ModelDescriptor{}, false
	}
	return r.models[idx], true
}

// FilterProviders returns models whose provider is in the given set.
// An empty set means no filtering.
func (r *Registry) FilterProviders(providers []string) []ModelDescriptor {
	if len(providers) == 0 {
		return r.All()
	}
	allowed := make(map[string]bool, len(providers))
	for _, p := range providers {
		allowed[p] = true
	}
	var out []ModelDescriptor
	for _, m := range r.models {
		if allowed[m.Provider] {
			out = append(out, m)
		}
	}
	return out
}

// WebCapable returns the subset of models that can use web search.
func (r *Registry) WebCapable() []ModelDescriptor {
	var out []ModelDescriptor
	for _, m := range r.models {
		if m.WebCapable() {
			out = append(out, m)
		}
	}
	return out
}

// ProviderModels returns the ids of models served by a provider, in
// registry order. The first entry is the provider's default model.
func (r *Registry) ProviderModels(provider string) []string {
	var out []string
	for _, m := range r.models {
		if m.Provider == provider {
			out = append(out, m.UpstreamName)
		}
	}
	return out
}

// Default returns the built-in catalogue. Latency and cost figures are
// tuning inputs for the scorer, not billing data.
func Default() *Registry {
	r, err := New([]ModelDescriptor{
		{
			ID: "claude-sonnet", Provider: "anthropic",
			DisplayName: "Claude Sonnet 4", UpstreamName: "claude-sonnet-4-20250514",
			MaxContext: 200000, AvgLatencyMs: 1800, CostPer1K: 0.003,
			Strengths: []Capability{CapCode, CapChat, CapReasoning, CapDocuments},
		},
		{
			ID: "claude-opus", Provider: "anthropic",
			DisplayName: "Claude Opus 4", UpstreamName: "claude-opus-4-20250514",
			MaxContext: 200000, AvgLatencyMs: 3200, CostPer1K: 0.015,
			Strengths: []Capability{CapReasoning, CapCode, CapCreative, CapMath},
		},
		{
			ID: "gpt-instant", Provider: "openai",
			DisplayName: "GPT-5.2 Instant", UpstreamName: "gpt-5.2-instant",
			MaxContext: 128000, AvgLatencyMs: 600, CostPer1K: 0.0005,
			Strengths: []Capability{CapChat, CapFast},
		},
		{
			ID: "gpt-thinking", Provider: "openai",
			DisplayName: "GPT-5.2 Thinking", UpstreamName: "gpt-5.2-thinking",
			MaxContext: 196000, AvgLatencyMs: 2600, CostPer1K: 0.0035,
			Strengths: []Capability{CapReasoning, CapMath, CapSummarize},
		},
		{
			ID: "gpt-codex", Provider: "openai",
			DisplayName: "GPT-5.2 Codex", UpstreamName: "gpt-5.2-codex",
			MaxContext: 128000, AvgLatencyMs: 1500, CostPer1K: 0.002,
			Strengths: []Capability{CapCode},
		},
		{
			ID: "gemini-pro", Provider: "google",
			DisplayName: "Gemini 2.0 Pro", UpstreamName: "gemini-2.0-pro",
			MaxContext: 1000000, AvgLatencyMs: 1200, CostPer1K: 0.001,
			Strengths: []Capability{CapWeb, CapDocuments, CapSummarize, CapReasoning},
		},
		{
			ID: "gemini-flash", Provider: "google",
			DisplayName: "Gemini 2.0 Flash", UpstreamName: "gemini-2.0-flash",
			MaxContext: 1000000, AvgLatencyMs: 500, CostPer1K: 0.0005,
			Strengths: []Capability{CapChat, CapFast, CapWeb, CapSummarize},
		},
		{
			ID: "deepseek-chat", Provider: "deepseek",
			DisplayName: "DeepSeek Chat", UpstreamName: "deepseek-chat",
			MaxContext: 64000, AvgLatencyMs: 1400, CostPer1K: 0.0006,
			Strengths: []Capability{CapChat},
		},
		{
			ID: "deepseek-reasoner", Provider: "deepseek",
			DisplayName: "DeepSeek Reasoner", UpstreamName: "deepseek-reasoner",
			MaxContext: 64000, AvgLatencyMs: 2800, CostPer1K: 0.001,
			Strengths: []Capability{CapReasoning, CapMath},
		},
	})
	if err != nil {
		panic(err) // built-in catalogue is validated by tests
	}
	return r
}
