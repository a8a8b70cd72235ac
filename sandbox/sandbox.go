// Package sandbox confines agent file writes to a single checkout directory.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/martinemde/repairagent/eventlog"
)

// ToolWriteFile is the tool name recorded for every sandboxed write.
const ToolWriteFile = "write_file"

// WriteStatus is returned by a successful Write.
const WriteStatus = "File written successfully."

// PathViolationError is returned when a path resolves outside the sandbox root.
type PathViolationError struct {
	Path     string
	Resolved string
	Root     string
}

func (e *PathViolationError) Error() string {
	return fmt.Sprintf("sandbox: path %q resolves to %s, outside root %s", e.Path, e.Resolved, e.Root)
}

// WriteError wraps a filesystem failure during a sandboxed write.
type WriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("sandbox: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Sandbox resolves relative paths against a fixed root and writes files there.
type Sandbox struct {
	root string
	rec  eventlog.Recorder
}

// New creates a Sandbox rooted at root. Every write is recorded on rec.
func New(root string, rec eventlog.Recorder) *Sandbox {
	return &Sandbox{
		root: filepath.Clean(root),
		rec:  rec,
	}
}

// Root returns the sandbox root directory.
func (s *Sandbox) Root() string { return s.root }

// Resolve maps path onto the sandbox. Absolute paths are accepted only when
// they already lie under the root.
func (s *Sandbox) Resolve(path string) (string, error) {
	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(s.root, resolved)
	}
	rel, err := filepath.Rel(s.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &PathViolationError{Path: path, Resolved: resolved, Root: s.root}
	}
	return resolved, nil
}

// Write stores content at path inside the sandbox, creating parent
// directories and overwriting any existing file. The tool_use event is
// recorded before the filesystem is touched.
func (s *Sandbox) Write(path string, content string) (string, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return "", err
	}
	if resolved == s.root {
		return "", &WriteError{Path: path, Op: "write", Err: fmt.Errorf("path names the sandbox root")}
	}

	if err := s.rec.Record(eventlog.TypeToolUse, map[string]any{
		"tool": ToolWriteFile,
		"path": path,
	}); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return "", &WriteError{Path: path, Op: "mkdir", Err: err}
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return "", &WriteError{Path: path, Op: "write", Err: err}
	}
	return WriteStatus, nil
}
