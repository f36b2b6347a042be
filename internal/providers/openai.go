package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/crystaldolphin/companion/internal/schema"
)

// responseHeaderTimeout bounds the wait for the first byte of a response.
// A stream's body is bounded only by the request context.
const responseHeaderTimeout = 2 * time.Minute

// ExecuteToolName is the function the model calls to request code execution.
const ExecuteToolName = "execute"

var executeTool = map[string]any{
	"type": "function",
	"function": map[string]any{
		"name":        ExecuteToolName,
		"description": "Executes code on the user's machine and returns the output.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "The programming language",
					"enum":        []string{"python", "shell"},
				},
				"code": map[string]any{
					"type":        "string",
					"description": "The code to execute",
				},
			},
			"required": []string{"language", "code"},
		},
	},
}

// OpenAIProvider streams completions from any OpenAI-compatible
// /chat/completions endpoint.
type OpenAIProvider struct {
	apiKey       string
	apiBase      string
	defaultModel string
	extraHeaders map[string]string
	spec         *ProviderSpec
	httpClient   *http.Client
}

// NewOpenAIProvider constructs a provider from raw config values.
// The caller extracts these from config.Config to avoid an import cycle.
func NewOpenAIProvider(apiKey, apiBase, defaultModel string, extraHeaders map[string]string) *OpenAIProvider {
	spec := FindByModel(defaultModel)
	if g := FindByBase(apiBase); g != nil {
		spec = g
	}

	effectiveBase := apiBase
	if effectiveBase == "" {
		if spec != nil && spec.DefaultAPIBase != "" {
			effectiveBase = spec.DefaultAPIBase
		} else {
			effectiveBase = "https://api.openai.com/v1"
		}
	}

	return &OpenAIProvider{
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(effectiveBase, "/"),
		defaultModel: defaultModel,
		extraHeaders: extraHeaders,
		spec:         spec,
		httpClient:   newStreamingClient(responseHeaderTimeout),
	}
}

// newStreamingClient returns a client without an overall timeout, so long
// streams are not cut off while the body is still being read.
func newStreamingClient(headerTimeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: tr}
}

func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

// APIBase returns the resolved endpoint base URL.
func (p *OpenAIProvider) APIBase() string { return p.apiBase }

// Stream implements Provider. A non-200 response is returned as an error so
// the retry wrapper can try again.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (DeltaStream, error) {
	model := req.Options.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := map[string]any{
		"model":       p.resolveModel(model),
		"messages":    buildWireMessages(req.System, req.Messages),
		"max_tokens":  maxTokens,
		"temperature": req.Options.Temperature,
		"stream":      true,
		"tools":       []any{executeTool},
		"tool_choice": "auto",
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, friendlyHTTPError(resp.StatusCode, raw))
	}

	return newSSEStream(resp.Body), nil
}

// resolveModel strips a known provider prefix ("deepseek/deepseek-chat")
// unless the endpoint is a gateway that routes on it.
func (p *OpenAIProvider) resolveModel(model string) string {
	if p.spec != nil && p.spec.IsGateway {
		return model
	}
	if i := strings.Index(model, "/"); i >= 0 {
		if FindByName(strings.ToLower(model[:i])) != nil {
			return model[i+1:]
		}
	}
	return model
}

// buildWireMessages converts the conversation to the OpenAI wire format.
// Execution requests are folded back into the assistant text so the model
// sees what ran and what it printed.
func buildWireMessages(system string, messages schema.Messages) []map[string]any {
	out := make([]map[string]any, 0, len(messages.Messages)+1)
	if system != "" {
		out = append(out, map[string]any{"role": "system", "content": system})
	}
	for _, m := range messages.Messages {
		content := m.Content
		if m.Code != "" {
			content += fmt.Sprintf("\n\n```%s\n%s\n```", m.Language, m.Code)
		}
		if m.Output != "" {
			content += "\n\nOutput:\n" + m.Output
		}
		out = append(out, map[string]any{"role": string(m.Role), "content": content})
	}
	return out
}

func friendlyHTTPError(code int, body []byte) string {
	if code == http.StatusTooManyRequests {
		return "rate limit exceeded"
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
