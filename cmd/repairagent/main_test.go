package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/repairagent/agent"
	"github.com/martinemde/repairagent/config"
	"github.com/martinemde/repairagent/eventlog"
	"github.com/martinemde/repairagent/unifiedllm"
)

type fakeBackend struct {
	text string
}

func (f fakeBackend) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	return &unifiedllm.Response{
		ID:      "resp_fake",
		Model:   req.Model,
		Message: unifiedllm.AssistantMessage(f.text),
		Usage:   unifiedllm.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
	}, nil
}

func TestRunAgentEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.APIKey = "secret"
	cfg.TaskID = "task-1"
	cfg.SandboxRoot = filepath.Join(dir, "testbed")
	cfg.LogFile = filepath.Join(dir, "agent.log")

	events := eventlog.New(cfg.LogFile)
	var diag bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&diag, nil))
	result, err := runAgent(context.Background(), &cfg, fakeBackend{text: "```python\nfixed = True\n```"}, events, logger)
	require.NoError(t, err)
	assert.Equal(t, "resp_fake", result.ResponseID)
	assert.Contains(t, diag.String(), "event_log="+cfg.LogFile)
	assert.Contains(t, diag.String(), "sandbox_root="+cfg.SandboxRoot)

	written, err := os.ReadFile(filepath.Join(cfg.SandboxRoot, cfg.TargetFile))
	require.NoError(t, err)
	assert.Equal(t, "fixed = True", string(written))

	// The metrics command reads what the run produced.
	out := filepath.Join(dir, "result.json")
	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"metrics", "--log", cfg.LogFile, "--marker", filepath.Join(dir, "post_verification.log"), "--out", out})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "wrote "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, false, got["resolved"])
	assert.InDelta(t, 0.000375, got["total_cost_usd"], 1e-12)
	assert.Equal(t, map[string]any{"input": float64(100), "output": float64(50)}, got["tokens"])
	assert.Equal(t, map[string]any{"read": float64(0), "write": float64(1), "bash": float64(0)}, got["tool_usage"])
	assert.GreaterOrEqual(t, got["duration_seconds"], float64(0))
}

// rateLimitedBackend always answers 429.
type rateLimitedBackend struct{ calls int }

func (b *rateLimitedBackend) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	b.calls++
	return nil, unifiedllm.ErrorFromStatusCode(429, "Resource has been exhausted", "gemini", "RESOURCE_EXHAUSTED", nil)
}

// runEnv points every path the run command touches into a temp dir.
func runEnv(t *testing.T) (logFile, root string) {
	t.Helper()
	dir := t.TempDir()
	logFile = filepath.Join(dir, "agent.log")
	root = filepath.Join(dir, "testbed")
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("AGENT_LOG_FILE", logFile)
	t.Setenv("AGENT_SANDBOX_ROOT", root)
	t.Setenv("LOG_LEVEL", "error")
	return logFile, root
}

func factoryFor(backend agent.Backend) backendFactory {
	return func(cfg *config.Config, logger *slog.Logger) (agent.Backend, error) {
		return backend, nil
	}
}

func TestRunCommandQuotaExhaustedStopsGracefully(t *testing.T) {
	logFile, _ := runEnv(t)
	backend := &rateLimitedBackend{}
	var waits []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	cmd := newRunCmd(factoryFor(backend), agent.WithSleep(sleep))
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "Agent stopped:")
	assert.Equal(t, agent.MaxAttempts, backend.calls)
	assert.Equal(t, []time.Duration{45 * time.Second, 90 * time.Second}, waits)

	events, _, err := eventlog.ReadFile(logFile)
	require.NoError(t, err)
	var types []eventlog.Type
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []eventlog.Type{
		eventlog.TypeRequest,
		eventlog.TypeRateLimit, eventlog.TypeRateLimit, eventlog.TypeRateLimit,
		eventlog.TypeError,
	}, types)
}

func TestRunCommandWritesTarget(t *testing.T) {
	_, root := runEnv(t)

	cmd := newRunCmd(factoryFor(fakeBackend{text: "```python\nok = 1\n```"}))
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "Agent finished: File written successfully.")
	data, err := os.ReadFile(filepath.Join(root, config.Default().TargetFile))
	require.NoError(t, err)
	assert.Equal(t, "ok = 1", string(data))
}

func TestRunCommandBackendFactoryError(t *testing.T) {
	logFile, _ := runEnv(t)
	boom := errors.New("no such provider")
	cmd := newRunCmd(func(cfg *config.Config, logger *slog.Logger) (agent.Backend, error) {
		return nil, boom
	})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{})

	require.ErrorIs(t, cmd.Execute(), boom)
	events, _, err := eventlog.ReadFile(logFile)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventlog.TypeError, events[0].Type)
}

func TestRunCommandMissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	dir := t.TempDir()
	logFile := filepath.Join(dir, "agent.log")
	t.Setenv("AGENT_LOG_FILE", logFile)

	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"run"})

	err := cmd.Execute()
	var cfgErr *unifiedllm.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.NoFileExists(t, logFile)
}

func TestMetricsCommandTextfile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "result.json")
	prom := filepath.Join(dir, "agent.prom")

	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"metrics", "--log", filepath.Join(dir, "missing.log"), "--marker", filepath.Join(dir, "m"), "--out", out, "--textfile", prom})
	require.NoError(t, cmd.Execute())

	assert.FileExists(t, out)
	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), "repairagent_resolved 0")
}
