package unifiedllm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
// It translates between the unified types and gollm's API.
type GollmAdapter struct {
	name  string
	llm   gollm.LLM
	model string
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	name        string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithName sets the identifier the adapter reports from Name, when it should
// differ from the gollm provider (e.g. "gemini" served by "google-openai").
func WithName(name string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.name = name
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given gollm provider.
// If apiKey is empty, gollm will attempt to read it from environment variables.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		name:        provider,
		apiKey:      apiKey,
		maxTokens:   8192,
		temperature: 0.2,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(cfg.name); info != nil {
			model = info.ID
		} else {
			return nil, &ConfigurationError{SDKError: SDKError{
				Message: fmt.Sprintf("no model configured and no catalog default for provider %q", cfg.name),
			}}
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // Retry owns backoff.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}

	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("failed to create gollm LLM for provider %s", provider),
			Cause:   err,
		}}
	}

	return &GollmAdapter{
		name:  cfg.name,
		llm:   llm,
		model: model,
	}, nil
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.name
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)

	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}

	return a.buildResponse(req, text), nil
}

// translateRequest folds the unified messages into a single gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt string
	var userParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.TextContent() + "\n"
		case RoleUser:
			userParts = append(userParts, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				userParts = append(userParts, "[Assistant]: "+text)
			}
		}
	}

	promptOpts := []gollm.PromptOption{}
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}

	return gollm.NewPrompt(strings.Join(userParts, "\n"), promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// buildResponse constructs a unified Response from the generated text.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	// gollm doesn't expose provider usage; estimate from text length.
	input := estimateTokens(req)
	output := len(text) / 4

	return &Response{
		ID:       "resp_" + uuid.New().String()[:8],
		Model:    model,
		Provider: a.name,
		Message:  AssistantMessage(text),
		FinishReason: FinishReason{
			Reason: "stop",
			Raw:    "stop",
		},
		Usage: Usage{
			InputTokens:  input,
			OutputTokens: output,
			TotalTokens:  input + output,
		},
	}
}

var statusCodePattern = regexp.MustCompile(`\b([45]\d\d)\b`)

// translateError converts a gollm error into the unified error hierarchy.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	msgLower := strings.ToLower(msg)

	// Gemini reports exhausted quota as 429 RESOURCE_EXHAUSTED.
	if strings.Contains(msgLower, "resource_exhausted") || strings.Contains(msgLower, "quota") {
		return &QuotaExceededError{ProviderError: ProviderError{
			SDKError: SDKError{Message: msg, Cause: err}, Provider: a.name, StatusCode: 429,
		}}
	}

	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return ErrorFromStatusCode(code, msg, a.name, "", err)
	}

	pe := ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: a.name}
	switch {
	case strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid key") || strings.Contains(msgLower, "invalid api key"):
		pe.StatusCode = 401
		return &AuthenticationError{ProviderError: pe}
	case strings.Contains(msgLower, "forbidden"):
		pe.StatusCode = 403
		return &AccessDeniedError{ProviderError: pe}
	case strings.Contains(msgLower, "not found"):
		pe.StatusCode = 404
		return &NotFoundError{ProviderError: pe}
	case strings.Contains(msgLower, "rate limit") || strings.Contains(msgLower, "too many requests"):
		pe.StatusCode = 429
		return &RateLimitError{ProviderError: pe}
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		pe.StatusCode = 413
		return &ContextLengthError{ProviderError: pe}
	case strings.Contains(msgLower, "internal server"):
		pe.StatusCode = 500
		return &ServerError{ProviderError: pe}
	case strings.Contains(msgLower, "timeout"):
		return &RequestTimeoutError{SDKError: pe.SDKError}
	case strings.Contains(msgLower, "content filter") || strings.Contains(msgLower, "safety"):
		return &ContentFilterError{ProviderError: pe}
	default:
		return &pe
	}
}

// estimateTokens provides a rough token count estimate from request messages.
func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.TextContent()) / 4
	}
	if total == 0 {
		total = 10
	}
	return total
}

// CatalogProvider maps a gollm provider name onto the provider identifier
// used by the model catalog, e.g. "google-openai" serves "gemini" models.
func CatalogProvider(gollmProvider string) string {
	p := strings.ToLower(gollmProvider)
	switch {
	case strings.Contains(p, "google"), strings.Contains(p, "gemini"):
		return "gemini"
	case strings.Contains(p, "anthropic"):
		return "anthropic"
	case strings.Contains(p, "openai"):
		return "openai"
	}
	return p
}
