package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID                   string   `json:"id"`
	Provider             string   `json:"provider"`
	DisplayName          string   `json:"display_name"`
	ContextWindow        int      `json:"context_window"`
	MaxOutput            *int     `json:"max_output,omitempty"`
	InputCostPerMillion  *float64 `json:"input_cost_per_million,omitempty"`
	OutputCostPerMillion *float64 `json:"output_cost_per_million,omitempty"`
	Aliases              []string `json:"aliases,omitempty"`
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// Models is the built-in model catalog. The first entry per provider is the
// default for that provider.
var Models = []ModelInfo{
	// Gemini
	{
		ID: "gemini-1.5-pro", Provider: "gemini", DisplayName: "Gemini 1.5 Pro",
		ContextWindow: 2097152, MaxOutput: intPtr(8192),
		InputCostPerMillion: floatPtr(1.25), OutputCostPerMillion: floatPtr(5.0),
		Aliases: []string{"gemini-pro", "gemini-1.5-pro-latest"},
	},
	{
		ID: "gemini-1.5-flash", Provider: "gemini", DisplayName: "Gemini 1.5 Flash",
		ContextWindow: 1048576, MaxOutput: intPtr(8192),
		InputCostPerMillion: floatPtr(0.075), OutputCostPerMillion: floatPtr(0.30),
		Aliases: []string{"gemini-flash", "gemini-1.5-flash-latest"},
	},
	{
		ID: "gemini-2.0-flash", Provider: "gemini", DisplayName: "Gemini 2.0 Flash",
		ContextWindow: 1048576, MaxOutput: intPtr(8192),
		InputCostPerMillion: floatPtr(0.10), OutputCostPerMillion: floatPtr(0.40),
	},
	{
		ID: "gemini-2.5-pro", Provider: "gemini", DisplayName: "Gemini 2.5 Pro",
		ContextWindow: 1048576, MaxOutput: intPtr(65536),
		InputCostPerMillion: floatPtr(1.25), OutputCostPerMillion: floatPtr(10.0),
	},

	// OpenAI
	{
		ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o Mini",
		ContextWindow: 128000, MaxOutput: intPtr(16384),
		InputCostPerMillion: floatPtr(0.15), OutputCostPerMillion: floatPtr(0.60),
	},

	// Anthropic
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: intPtr(16384),
		InputCostPerMillion: floatPtr(3.0), OutputCostPerMillion: floatPtr(15.0),
		Aliases: []string{"sonnet", "claude-sonnet"},
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// GetLatestModel returns the default model for a provider, or nil.
func GetLatestModel(provider string) *ModelInfo {
	for i := range Models {
		if Models[i].Provider == provider {
			return &Models[i]
		}
	}
	return nil
}

// Cost returns the USD price of usage at this model's rates. Models without
// pricing cost nothing.
func (m ModelInfo) Cost(usage Usage) float64 {
	var cost float64
	if m.InputCostPerMillion != nil {
		cost += float64(usage.InputTokens) * *m.InputCostPerMillion / 1_000_000
	}
	if m.OutputCostPerMillion != nil {
		cost += float64(usage.OutputTokens) * *m.OutputCostPerMillion / 1_000_000
	}
	return cost
}
