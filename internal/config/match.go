package config

import "github.com/crystaldolphin/companion/internal/providers"

// Endpoint is the resolved completion endpoint for the configured model.
type Endpoint struct {
	Spec    *providers.ProviderSpec // nil when nothing in the registry matched
	APIBase string
}

// Label returns a display name for status output.
func (e Endpoint) Label() string {
	if e.Spec == nil {
		return "custom"
	}
	return e.Spec.Label()
}

// ResolveEndpoint works out which registry entry serves the configured model.
//
// Priority:
//  1. A configured apiBase that identifies a known endpoint.
//  2. The model name: an explicit "name/" prefix, then keywords.
//
// The API base is the configured one, else the matched spec's default.
func (c *Config) ResolveEndpoint() Endpoint {
	p := c.Provider
	spec := providers.FindByBase(p.APIBase)
	if spec == nil {
		spec = providers.FindByModel(p.Model)
	}

	base := p.APIBase
	if base == "" && spec != nil {
		base = spec.DefaultAPIBase
	}
	return Endpoint{Spec: spec, APIBase: base}
}

// Ready reports whether the provider section has enough to make a request:
// an API key, or an endpoint that runs locally without one.
func (c *Config) Ready() bool {
	if c.Provider.APIKey != "" {
		return true
	}
	e := c.ResolveEndpoint()
	return e.Spec != nil && e.Spec.IsLocal
}
