package providers

import "strings"

// ProviderSpec is the metadata record for one OpenAI-compatible endpoint.
type ProviderSpec struct {
	Name           string   // config/model prefix, e.g. "deepseek"
	Keywords       []string // model-name keywords for matching (lowercase)
	DisplayName    string   // shown in `companion status`
	DefaultAPIBase string   // fallback base URL when none is configured
	BaseKeyword    string   // substring of api_base that identifies the endpoint
	IsGateway      bool     // routes "vendor/model" names itself
	IsLocal        bool     // local deployment, no API key required
}

// Label returns the display name, defaulting to Title-cased Name.
func (s ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return strings.ToTitle(s.Name[:1]) + s.Name[1:]
}

// Providers is the registry. Order = match priority.
var Providers = []ProviderSpec{
	{
		Name:           "openrouter",
		Keywords:       []string{"openrouter"},
		DisplayName:    "OpenRouter",
		DefaultAPIBase: "https://openrouter.ai/api/v1",
		BaseKeyword:    "openrouter",
		IsGateway:      true,
	},
	{
		Name:           "openai",
		Keywords:       []string{"gpt", "o1", "o3", "o4"},
		DisplayName:    "OpenAI",
		DefaultAPIBase: "https://api.openai.com/v1",
	},
	{
		Name:           "deepseek",
		Keywords:       []string{"deepseek"},
		DisplayName:    "DeepSeek",
		DefaultAPIBase: "https://api.deepseek.com",
		BaseKeyword:    "deepseek",
	},
	{
		Name:           "groq",
		Keywords:       []string{"groq"},
		DisplayName:    "Groq",
		DefaultAPIBase: "https://api.groq.com/openai/v1",
		BaseKeyword:    "groq",
	},
	{
		Name:           "ollama",
		Keywords:       []string{"ollama", "llama"},
		DisplayName:    "Ollama",
		DefaultAPIBase: "http://localhost:11434/v1",
		BaseKeyword:    ":11434",
		IsLocal:        true,
	},
	{
		Name:        "vllm",
		Keywords:    []string{"vllm"},
		DisplayName: "vLLM/Local",
		IsLocal:     true,
	},
}

// FindByName returns the ProviderSpec whose Name equals name.
func FindByName(name string) *ProviderSpec {
	for i := range Providers {
		if Providers[i].Name == name {
			return &Providers[i]
		}
	}
	return nil
}

// FindByModel matches a model name to a spec: an explicit "name/" prefix
// wins, then the first keyword hit.
func FindByModel(model string) *ProviderSpec {
	lower := strings.ToLower(model)
	if i := strings.Index(lower, "/"); i >= 0 {
		if s := FindByName(lower[:i]); s != nil {
			return s
		}
	}
	for i := range Providers {
		for _, kw := range Providers[i].Keywords {
			if strings.Contains(lower, kw) {
				return &Providers[i]
			}
		}
	}
	return nil
}

// FindByBase detects the endpoint from a configured api_base URL.
func FindByBase(apiBase string) *ProviderSpec {
	if apiBase == "" {
		return nil
	}
	lower := strings.ToLower(apiBase)
	for i := range Providers {
		if kw := Providers[i].BaseKeyword; kw != "" && strings.Contains(lower, kw) {
			return &Providers[i]
		}
	}
	return nil
}
