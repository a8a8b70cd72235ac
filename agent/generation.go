package agent

import (
	"context"
	"time"

	"github.com/martinemde/repairagent/eventlog"
	"github.com/martinemde/repairagent/unifiedllm"
)

const (
	// MaxAttempts is the total number of generation calls per run.
	MaxAttempts = 3
	// BackoffBase is the wait after the first rate-limited attempt. The wait
	// after attempt n is BackoffBase*n.
	BackoffBase = 45 * time.Second
)

// Backend is the model endpoint a GenerationClient calls.
// *unifiedllm.Client satisfies it.
type Backend interface {
	Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error)
}

// GenerationClient sends one prompt to the backend, retrying rate-limited
// calls and recording each rate-limit failure in the event log.
type GenerationClient struct {
	backend  Backend
	recorder eventlog.Recorder
	model    string
	provider string
	sleep    func(ctx context.Context, d time.Duration) error
}

// GenerationOption configures a GenerationClient.
type GenerationOption func(*GenerationClient)

// WithModel sets the model requested from the backend.
func WithModel(model string) GenerationOption {
	return func(g *GenerationClient) { g.model = model }
}

// WithProviderName routes requests to a named provider on the backend.
func WithProviderName(name string) GenerationOption {
	return func(g *GenerationClient) { g.provider = name }
}

// WithSleep replaces the backoff timer. Tests use it to avoid real waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) GenerationOption {
	return func(g *GenerationClient) { g.sleep = sleep }
}

// NewGenerationClient returns a client that calls backend and records to rec.
func NewGenerationClient(backend Backend, rec eventlog.Recorder, opts ...GenerationOption) *GenerationClient {
	g := &GenerationClient{backend: backend, recorder: rec}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateWithRetry sends prompt and returns the model's reply.
//
// A rate-limited attempt n < MaxAttempts is logged with its wait of
// BackoffBase*n before sleeping. When the final attempt is also rate limited
// it is logged with wait_seconds 0 and exhausted true, and the call returns
// *unifiedllm.QuotaExhaustedError. Other errors are returned at once.
func (g *GenerationClient) GenerateWithRetry(ctx context.Context, prompt string) (*unifiedllm.Response, error) {
	req := unifiedllm.Request{
		Model:    g.model,
		Provider: g.provider,
		Messages: []unifiedllm.Message{unifiedllm.UserMessage(prompt)},
	}

	policy := unifiedllm.RetryPolicy{
		MaxAttempts: MaxAttempts,
		BaseDelay:   BackoffBase,
		Sleep:       g.sleep,
		OnRetry: func(err error, attempt int, delay time.Duration) error {
			return g.recorder.Record(eventlog.TypeRateLimit, map[string]any{
				"attempt":      attempt,
				"max_attempts": MaxAttempts,
				"wait_seconds": delay.Seconds(),
				"error":        err.Error(),
			})
		},
		OnExhausted: func(err error, attempt int) error {
			return g.recorder.Record(eventlog.TypeRateLimit, map[string]any{
				"attempt":      attempt,
				"max_attempts": MaxAttempts,
				"wait_seconds": float64(0),
				"exhausted":    true,
				"error":        err.Error(),
			})
		},
	}

	return unifiedllm.Retry(ctx, policy, func(ctx context.Context) (*unifiedllm.Response, error) {
		return g.backend.Complete(ctx, req)
	})
}
