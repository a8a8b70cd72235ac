package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

const maxLineBytes = 16 * 1024 * 1024

// ReadFile loads every event from a log in file order.
//
// A line that fails to decode (typically the last one, torn by a crash) is
// passed through jsonrepair once. Lines that still cannot be decoded are
// skipped and reported in warnings; only I/O failures are returned as err.
func ReadFile(path string) (events []Event, warnings []error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		event, decodeErr := decodeLine(line)
		if decodeErr != nil {
			warnings = append(warnings, fmt.Errorf("line %d: %w", lineNo, decodeErr))
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return events, warnings, fmt.Errorf("eventlog: read %s: %w", path, err)
	}
	return events, warnings, nil
}

func decodeLine(line string) (Event, error) {
	var event Event
	err := json.Unmarshal([]byte(line), &event)
	if err == nil {
		return event, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(line)
	if repairErr != nil {
		return Event{}, fmt.Errorf("decode: %w", err)
	}
	event = Event{}
	if err := json.Unmarshal([]byte(repaired), &event); err != nil {
		return Event{}, fmt.Errorf("decode repaired line: %w", err)
	}
	if event.Type == "" || event.Timestamp.IsZero() {
		return Event{}, fmt.Errorf("repaired line is missing timestamp or type")
	}
	if !event.Type.Known() {
		return Event{}, fmt.Errorf("repaired line has unknown type %q", event.Type)
	}
	return event, nil
}

// ContentMap returns the event content as a JSON object, or nil when the
// content is a plain string or some other shape.
func (e Event) ContentMap() map[string]any {
	m, _ := e.Content.(map[string]any)
	return m
}

// ContentString returns string content, or "" for structured content.
func (e Event) ContentString() string {
	s, _ := e.Content.(string)
	return s
}
