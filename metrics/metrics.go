// Package metrics summarises an agent event log into the result record the
// evaluation harness reads, and optionally into Prometheus textfile gauges.
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/martinemde/repairagent/eventlog"
	"github.com/martinemde/repairagent/unifiedllm"
)

const (
	DefaultLogPath    = "agent.log"
	DefaultMarkerPath = "post_verification.log"
	DefaultOutPath    = "result.json"
)

// Tokens totals model usage across responses.
type Tokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Result is the per-run summary.
type Result struct {
	Resolved        bool           `json:"resolved"`
	DurationSeconds float64        `json:"duration_seconds"`
	TotalCostUSD    float64        `json:"total_cost_usd"`
	Tokens          Tokens         `json:"tokens"`
	ToolUsage       map[string]int `json:"tool_usage"`

	RateLimits int `json:"-"`
	Errors     int `json:"-"`
	Skipped    int `json:"-"` // unreadable log lines
}

// Options locates the inputs.
type Options struct {
	LogPath    string
	MarkerPath string
}

// toolCategories folds tool names into the buckets the harness reports.
var toolCategories = map[string]string{
	"write_file": "write",
	"edit_file":  "write",
	"read_file":  "read",
	"read":       "read",
	"write":      "write",
	"shell":      "bash",
	"bash":       "bash",
}

func newResult() *Result {
	return &Result{ToolUsage: map[string]int{"read": 0, "write": 0, "bash": 0}}
}

// Extract reads the event log and marker file. A missing log yields an
// all-zero result so a run that never started still reports.
func Extract(opts Options) (*Result, error) {
	if opts.LogPath == "" {
		opts.LogPath = DefaultLogPath
	}
	if opts.MarkerPath == "" {
		opts.MarkerPath = DefaultMarkerPath
	}

	res := newResult()
	if _, err := os.Stat(opts.MarkerPath); err == nil {
		res.Resolved = true
	}

	events, warnings, err := eventlog.ReadFile(opts.LogPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, nil
		}
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	res.Skipped = len(warnings)
	res.add(events)
	return res, nil
}

func (r *Result) add(events []eventlog.Event) {
	if len(events) == 0 {
		return
	}
	first, last := events[0].Timestamp, events[0].Timestamp
	for _, ev := range events {
		if ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}

		switch ev.Type {
		case eventlog.TypeResponse:
			r.addResponse(ev)
		case eventlog.TypeToolUse:
			tool, _ := ev.ContentMap()["tool"].(string)
			if cat, ok := toolCategories[tool]; ok {
				r.ToolUsage[cat]++
			} else if tool != "" {
				r.ToolUsage[tool]++
			}
		case eventlog.TypeRateLimit:
			r.RateLimits++
		case eventlog.TypeError:
			r.Errors++
		}
	}
	r.DurationSeconds = last.Sub(first).Seconds()
}

// addResponse accounts tokens and cost. Responses logged as bare text carry
// no usage and count for nothing.
func (r *Result) addResponse(ev eventlog.Event) {
	content := ev.ContentMap()
	if content == nil {
		return
	}
	usageMap, _ := content["usage"].(map[string]any)
	usage := unifiedllm.Usage{
		InputTokens:  intField(usageMap, "input_tokens"),
		OutputTokens: intField(usageMap, "output_tokens"),
	}
	r.Tokens.Input += usage.InputTokens
	r.Tokens.Output += usage.OutputTokens

	model, _ := content["model"].(string)
	if info := unifiedllm.GetModelInfo(model); info != nil {
		r.TotalCostUSD += info.Cost(usage)
	}
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// WriteJSON writes the result as indented JSON.
func (r *Result) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}
