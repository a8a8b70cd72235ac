package agent

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultGoal is used when no goal is configured.
const DefaultGoal = "Improve ISBN import logic by using local staged records"

var languages = map[string]string{
	".py":   "Python",
	".go":   "Go",
	".js":   "JavaScript",
	".jsx":  "JavaScript",
	".ts":   "TypeScript",
	".tsx":  "TypeScript",
	".rb":   "Ruby",
	".java": "Java",
	".rs":   "Rust",
	".c":    "C",
	".h":    "C",
	".cc":   "C++",
	".cpp":  "C++",
	".sh":   "shell",
}

// LanguageFor names the language of a source file by its extension.
func LanguageFor(path string) string {
	if lang, ok := languages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "source"
}

// BuildInstruction renders the single prompt sent to the model.
func BuildInstruction(taskID, goal, target string) string {
	if taskID == "" {
		taskID = "unknown"
	}
	if goal == "" {
		goal = DefaultGoal
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an AI SWE-bench agent. Task ID: %s\n", taskID)
	fmt.Fprintf(&sb, "Target: %s in %s\n", goal, target)
	fmt.Fprintf(&sb, "Provide the full updated %s code for that file.\n", LanguageFor(target))
	return sb.String()
}
