package unifiedllm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Middleware wraps a provider call. It receives the request and a next function
// that calls the downstream handler, and returns the response.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client holds registered provider adapters, routes requests by provider
// identifier, and applies middleware.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
	middleware      []Middleware
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider adapter.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[name] = adapter
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]ProviderAdapter),
	}
	for _, opt := range opts {
		opt(c)
	}
	// If no default and exactly one provider, use it.
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// resolveProvider determines which provider adapter to use for a request.
func (c *Client) resolveProvider(req Request) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		// Try to infer from model catalog.
		if info := GetModelInfo(req.Model); info != nil {
			name = info.Provider
		}
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}

	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return adapter, nil
}

// Complete sends a blocking request through middleware to the resolved provider.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}

	if req.Provider == "" {
		req.Provider = adapter.Name()
	}

	handler := func(ctx context.Context, r Request) (*Response, error) {
		return adapter.Complete(ctx, r)
	}

	// Apply middleware in reverse order so first registered runs first.
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, r Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}

	return handler(ctx, req)
}

// Close releases resources held by all registered providers.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, adapter := range c.providers {
		if closer, ok := adapter.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LoggingMiddleware logs one line per provider call.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		attrs := []any{
			slog.String("provider", req.Provider),
			slog.String("model", req.Model),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.WarnContext(ctx, "llm call failed", append(attrs, slog.String("error", err.Error()))...)
			return nil, err
		}
		logger.InfoContext(ctx, "llm call completed", append(attrs,
			slog.String("response_id", resp.ID),
			slog.Int("output_tokens", resp.Usage.OutputTokens))...)
		return resp, nil
	}
}
