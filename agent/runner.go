package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/martinemde/repairagent/codeblock"
	"github.com/martinemde/repairagent/eventlog"
	"github.com/martinemde/repairagent/unifiedllm"
)

// Generator produces the model's reply to a prompt.
type Generator interface {
	GenerateWithRetry(ctx context.Context, prompt string) (*unifiedllm.Response, error)
}

// Writer applies file content inside the sandbox.
type Writer interface {
	Write(path, content string) (string, error)
}

// RunnerOptions describes the single task a Runner performs.
type RunnerOptions struct {
	TaskID     string
	TargetPath string // relative to the sandbox root
	Goal       string
}

// Result summarises a successful run.
type Result struct {
	Status     string
	Target     string
	Bytes      int
	ResponseID string
}

// EventLogError reports an event that could not be recorded. A run that
// loses part of its audit trail always fails, whatever else went wrong.
type EventLogError struct {
	Type eventlog.Type
	Err  error
}

func (e *EventLogError) Error() string {
	return fmt.Sprintf("recording %s event: %v", e.Type, e.Err)
}

func (e *EventLogError) Unwrap() error { return e.Err }

// Runner drives one request, response, write cycle.
type Runner struct {
	id       string
	opts     RunnerOptions
	recorder eventlog.Recorder
	gen      Generator
	writer   Writer
	logger   *slog.Logger
}

// NewRunner wires a Runner. A nil logger discards diagnostics.
func NewRunner(opts RunnerOptions, rec eventlog.Recorder, gen Generator, w Writer, logger *slog.Logger) *Runner {
	if opts.TaskID == "" {
		opts.TaskID = "unknown"
	}
	id := uuid.New().String()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		id:       id,
		opts:     opts,
		recorder: rec,
		gen:      gen,
		writer:   w,
		logger:   logger.With(slog.String("run_id", id), slog.String("task_id", opts.TaskID)),
	}
}

// ID returns the run identifier attached to diagnostics.
func (r *Runner) ID() string { return r.id }

// Run builds the instruction, asks the model once (with rate-limit retries),
// and writes the extracted code to the target file. Every failure is recorded
// as a single error event before it is returned.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	instruction := BuildInstruction(r.opts.TaskID, r.opts.Goal, r.opts.TargetPath)
	if err := r.recorder.Record(eventlog.TypeRequest, instruction); err != nil {
		return nil, r.fail(ctx, &EventLogError{Type: eventlog.TypeRequest, Err: err})
	}
	r.logger.InfoContext(ctx, "requesting generation", slog.String("target", r.opts.TargetPath))

	resp, err := r.gen.GenerateWithRetry(ctx, instruction)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	raw := resp.Text()
	if err := r.recorder.Record(eventlog.TypeResponse, responseContent(resp)); err != nil {
		return nil, r.fail(ctx, &EventLogError{Type: eventlog.TypeResponse, Err: err})
	}

	code := codeblock.Extract(raw)
	r.logger.DebugContext(ctx, "extracted code",
		slog.String("language", codeblock.Language(raw)),
		slog.Int("bytes", len(code)))

	status, err := r.writer.Write(r.opts.TargetPath, code)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	r.logger.InfoContext(ctx, "agent finished", slog.String("status", status))
	return &Result{
		Status:     status,
		Target:     r.opts.TargetPath,
		Bytes:      len(code),
		ResponseID: resp.ID,
	}, nil
}

func (r *Runner) fail(ctx context.Context, err error) error {
	if unifiedllm.IsQuotaExhausted(err) {
		r.logger.WarnContext(ctx, "quota exhausted, giving up", slog.String("error", err.Error()))
	} else {
		r.logger.ErrorContext(ctx, "run failed", slog.String("error", err.Error()))
	}
	if logErr := r.recorder.Record(eventlog.TypeError, err.Error()); logErr != nil {
		return errors.Join(err, &EventLogError{Type: eventlog.TypeError, Err: logErr})
	}
	return err
}

func responseContent(resp *unifiedllm.Response) map[string]any {
	return map[string]any{
		"text":        resp.Text(),
		"model":       resp.Model,
		"response_id": resp.ID,
		"usage": map[string]any{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
			"total_tokens":  resp.Usage.TotalTokens,
		},
	}
}

// ExitCode maps the outcome of Run to a process exit status. Running out of
// rate-limit retries is a graceful stop, not a failure, unless recording
// that outcome failed too.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var logErr *EventLogError
	if errors.As(err, &logErr) {
		return 1
	}
	if unifiedllm.IsQuotaExhausted(err) {
		return 0
	}
	return 1
}
