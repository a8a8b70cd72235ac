// Package eventlog records agent activity as an append-only JSONL file.
//
// Every call to Record opens the log, appends exactly one line and closes it
// again, so a reader running alongside the agent always sees a consistent
// prefix of complete records.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	TypeRequest   Type = "request"
	TypeResponse  Type = "response"
	TypeToolUse   Type = "tool_use"
	TypeRateLimit Type = "rate_limit"
	TypeError     Type = "error"
)

// Known reports whether t is one of the event types the agent writes.
func (t Type) Known() bool {
	switch t {
	case TypeRequest, TypeResponse, TypeToolUse, TypeRateLimit, TypeError:
		return true
	}
	return false
}

// Event is one line of the log.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      Type      `json:"type"`
	Content   any       `json:"content"`
}

// Recorder is implemented by anything that can persist events.
type Recorder interface {
	Record(t Type, content any) error
}

// Log appends events to a file on disk.
type Log struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New returns a Log writing to path. The file is created on first write.
func New(path string, opts ...Option) *Log {
	l := &Log{
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Record appends one event. The whole line goes out in a single write so
// concurrent appenders from other processes never interleave mid-record.
func (l *Log) Record(t Type, content any) error {
	event := Event{
		Timestamp: l.now().UTC(),
		Type:      t,
		Content:   content,
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventlog: encode %s event: %w", t, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("eventlog: open %s: %w", l.path, err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("eventlog: append to %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("eventlog: close %s: %w", l.path, err)
	}
	return nil
}
