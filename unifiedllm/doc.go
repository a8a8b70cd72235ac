// Package unifiedllm provides a small provider-agnostic LLM client that wraps
// the gollm library (github.com/teilomillet/gollm).
//
// # Architecture
//
//   - ProviderAdapter: the interface every backend implements (GollmAdapter
//     is the production one; tests supply fakes).
//   - Client: routes requests to a registered adapter and applies middleware.
//   - Retry: bounded retry of rate-limited calls with linear backoff, ending
//     in QuotaExhaustedError when the budget runs out.
//   - Errors: a typed hierarchy (RateLimitError, ServerError, ...) that
//     adapters translate provider failures into.
//
// # Quick Start
//
//	adapter, err := unifiedllm.NewGollmAdapter("google-openai", apiKey,
//	    unifiedllm.WithModel("gemini-1.5-pro"))
//	if err != nil {
//	    return err
//	}
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("gemini", adapter))
//
//	resp, err := unifiedllm.Retry(ctx, unifiedllm.DefaultRetryPolicy(),
//	    func(ctx context.Context) (*unifiedllm.Response, error) {
//	        return client.Complete(ctx, unifiedllm.Request{
//	            Model:    "gemini-1.5-pro",
//	            Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	        })
//	    })
//
// # Model Catalog
//
// A built-in catalog of known models carries context sizes and pricing:
//
//	info := unifiedllm.GetModelInfo("gemini-1.5-pro")
//	cost := info.Cost(resp.Usage)
package unifiedllm
