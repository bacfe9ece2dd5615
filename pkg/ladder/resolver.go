package ladder

import (
	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/registry"
)

// ModelValidityResolver sanitizes requested models per rung.
type ModelValidityResolver interface {
	// IsValid reports whether the provider serves the model.
	IsValid(provider adapter.Provider, model string) bool

	// DefaultModel returns the provider's default model.
	DefaultModel(provider adapter.Provider) (string, bool)

	// FallbackModel returns an alternative to the current model, if the
	// provider has one.
	FallbackModel(provider adapter.Provider, current string) (string, bool)
}

// RegistryResolver resolves model validity from the model catalogue. The
// first registry entry for a provider is its default model.
type RegistryResolver struct {
	reg *registry.Registry
}

// NewRegistryResolver creates a resolver backed by the catalogue.
func NewRegistryResolver(reg *registry.Registry) *RegistryResolver {
	return &RegistryResolver{reg: reg}
}

func (r *RegistryResolver) IsValid(provider adapter.Provider, model string) bool {
	for _, m := range r.reg.ProviderModels(string(provider)) {
		if m == model {
			return true
		}
	}
	return false
}

func (r *RegistryResolver) DefaultModel(provider adapter.Provider) (string, bool) {
	models := r.reg.ProviderModels(string(provider))
	if len(models) == 0 {
		return "", false
	}
	return models[0], true
}

func (r *RegistryResolver) FallbackModel(provider adapter.Provider, current string) (string, bool) {
	for _, m := range r.reg.ProviderModels(string(provider)) {
		if m != current {
			return m, true
		}
	}
	return "", false
}
