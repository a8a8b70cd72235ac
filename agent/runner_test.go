package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/martinemde/repairagent/eventlog"
	"github.com/martinemde/repairagent/sandbox"
	"github.com/martinemde/repairagent/unifiedllm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	resp    *unifiedllm.Response
	err     error
	prompts []string
}

func (s *stubGenerator) GenerateWithRetry(ctx context.Context, prompt string) (*unifiedllm.Response, error) {
	s.prompts = append(s.prompts, prompt)
	return s.resp, s.err
}

type failingWriter struct{ err error }

func (f failingWriter) Write(path, content string) (string, error) { return "", f.err }

type runFixture struct {
	root    string
	logPath string
	log     *eventlog.Log
	box     *sandbox.Sandbox
}

func newRunFixture(t *testing.T) runFixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "testbed")
	require.NoError(t, os.MkdirAll(root, 0o755))
	logPath := filepath.Join(dir, "agent.log")
	log := eventlog.New(logPath)
	return runFixture{root: root, logPath: logPath, log: log, box: sandbox.New(root, log)}
}

func (f runFixture) types(t *testing.T) []eventlog.Type {
	t.Helper()
	events, warnings, err := eventlog.ReadFile(f.logPath)
	require.NoError(t, err)
	require.Empty(t, warnings)
	out := make([]eventlog.Type, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

var defaultOpts = RunnerOptions{
	TaskID:     "openlibrary-42",
	TargetPath: "openlibrary/core/imports.py",
	Goal:       "Improve ISBN import logic",
}

func TestRunWritesExtractedCode(t *testing.T) {
	f := newRunFixture(t)
	gen := &stubGenerator{resp: okResponse("Here you go:\n```python\nprint('hi')\n```\nThanks")}
	runner := NewRunner(defaultOpts, f.log, gen, f.box, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, ExitCode(err))
	assert.Equal(t, sandbox.WriteStatus, result.Status)
	assert.Equal(t, "resp_1", result.ResponseID)
	assert.Equal(t, len("print('hi')"), result.Bytes)

	written, err := os.ReadFile(filepath.Join(f.root, "openlibrary", "core", "imports.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", string(written))

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Task ID: openlibrary-42")
	assert.Contains(t, gen.prompts[0], "openlibrary/core/imports.py")

	assert.Equal(t, []eventlog.Type{
		eventlog.TypeRequest, eventlog.TypeResponse, eventlog.TypeToolUse,
	}, f.types(t))
}

func TestRunRecordsRawResponse(t *testing.T) {
	f := newRunFixture(t)
	raw := "```python\nx = 1\n```"
	runner := NewRunner(defaultOpts, f.log, &stubGenerator{resp: okResponse(raw)}, f.box, nil)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	events, _, err := eventlog.ReadFile(f.logPath)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, BuildInstruction(defaultOpts.TaskID, defaultOpts.Goal, defaultOpts.TargetPath), events[0].ContentString())

	content := events[1].ContentMap()
	assert.Equal(t, raw, content["text"])
	assert.Equal(t, "gemini-1.5-pro", content["model"])
	usage, ok := content["usage"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(40), usage["input_tokens"])
	assert.Equal(t, float64(12), usage["output_tokens"])
}

func TestRunQuotaExhaustedIsGraceful(t *testing.T) {
	f := newRunFixture(t)
	exhausted := &unifiedllm.QuotaExhaustedError{
		SDKError: unifiedllm.SDKError{Message: "rate limited on all 3 attempts"},
		Attempts: 3,
	}
	runner := NewRunner(defaultOpts, f.log, &stubGenerator{err: exhausted}, f.box, nil)

	result, err := runner.Run(context.Background())
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, unifiedllm.IsQuotaExhausted(err))
	assert.Equal(t, 0, ExitCode(err))

	assert.Equal(t, []eventlog.Type{eventlog.TypeRequest, eventlog.TypeError}, f.types(t))
	assert.NoFileExists(t, filepath.Join(f.root, "openlibrary", "core", "imports.py"))
}

func TestRunBackendErrorFails(t *testing.T) {
	f := newRunFixture(t)
	backendErr := unifiedllm.ErrorFromStatusCode(500, "internal", "gemini", "", nil)
	runner := NewRunner(defaultOpts, f.log, &stubGenerator{err: backendErr}, f.box, nil)

	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, backendErr)
	assert.Equal(t, 1, ExitCode(err))

	events, _, readErr := eventlog.ReadFile(f.logPath)
	require.NoError(t, readErr)
	require.Len(t, events, 2)
	assert.Equal(t, eventlog.TypeError, events[1].Type)
	assert.Equal(t, backendErr.Error(), events[1].ContentString())
}

func TestRunWriteErrorLoggedAfterResponse(t *testing.T) {
	f := newRunFixture(t)
	writeErr := &sandbox.WriteError{Path: "x", Op: "write", Err: os.ErrPermission}
	runner := NewRunner(defaultOpts, f.log, &stubGenerator{resp: okResponse("code")}, failingWriter{writeErr}, nil)

	_, err := runner.Run(context.Background())
	var we *sandbox.WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, 1, ExitCode(err))

	assert.Equal(t, []eventlog.Type{
		eventlog.TypeRequest, eventlog.TypeResponse, eventlog.TypeError,
	}, f.types(t))
}

func TestRunPathEscapeFails(t *testing.T) {
	f := newRunFixture(t)
	opts := defaultOpts
	opts.TargetPath = "../outside.py"
	runner := NewRunner(opts, f.log, &stubGenerator{resp: okResponse("code")}, f.box, nil)

	_, err := runner.Run(context.Background())
	var pv *sandbox.PathViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, 1, ExitCode(err))
	assert.Equal(t, []eventlog.Type{
		eventlog.TypeRequest, eventlog.TypeResponse, eventlog.TypeError,
	}, f.types(t))
}

func TestRunJoinsRecordFailure(t *testing.T) {
	rec := &memRecorder{failOn: eventlog.TypeError}
	genErr := errors.New("backend down")
	runner := NewRunner(defaultOpts, rec, &stubGenerator{err: genErr}, failingWriter{}, nil)

	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, genErr)
	assert.Contains(t, err.Error(), "recording error event")
	assert.Equal(t, 1, ExitCode(err))
}

func TestRunQuotaExhaustedWithLostErrorEventFails(t *testing.T) {
	rec := &memRecorder{failOn: eventlog.TypeError}
	exhausted := &unifiedllm.QuotaExhaustedError{
		SDKError: unifiedllm.SDKError{Message: "rate limited on all 3 attempts"},
		Attempts: 3,
	}
	runner := NewRunner(defaultOpts, rec, &stubGenerator{err: exhausted}, failingWriter{}, nil)

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, unifiedllm.IsQuotaExhausted(err))

	var logErr *EventLogError
	require.ErrorAs(t, err, &logErr)
	assert.Equal(t, eventlog.TypeError, logErr.Type)
	assert.Equal(t, 1, ExitCode(err))
}

func TestRunRequestRecordFailure(t *testing.T) {
	rec := &memRecorder{failOn: eventlog.TypeRequest}
	gen := &stubGenerator{resp: okResponse("x")}
	runner := NewRunner(defaultOpts, rec, gen, failingWriter{}, nil)

	_, err := runner.Run(context.Background())
	var logErr *EventLogError
	require.ErrorAs(t, err, &logErr)
	assert.Equal(t, eventlog.TypeRequest, logErr.Type)
	assert.Empty(t, gen.prompts)
	assert.Equal(t, 1, ExitCode(err))
	require.Len(t, rec.ofType(eventlog.TypeError), 1)
}

func TestRunnerDefaultsTaskID(t *testing.T) {
	gen := &stubGenerator{resp: okResponse("x")}
	runner := NewRunner(RunnerOptions{TargetPath: "a.py"}, &memRecorder{}, gen, failingWriter{}, nil)
	assert.NotEmpty(t, runner.ID())

	_, _ = runner.Run(context.Background())
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Task ID: unknown")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 0, ExitCode(&unifiedllm.QuotaExhaustedError{}))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 1, ExitCode(&unifiedllm.RateLimitError{}))
	assert.Equal(t, 1, ExitCode(errors.Join(
		&unifiedllm.QuotaExhaustedError{},
		&EventLogError{Type: eventlog.TypeError, Err: errors.New("disk full")})))
}
