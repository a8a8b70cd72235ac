// Package codeblock pulls source code out of free-text model replies.
//
// It is a best-effort heuristic, not a markdown parser. Precedence:
//
//  1. the first fence opened with a language tag (```python),
//  2. the first pair of plain fences,
//  3. the whole reply, unchanged.
package codeblock

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const fence = "```"

// Extract returns the code carried by raw. It never fails: when no fence is
// present the reply itself is treated as code.
func Extract(raw string) string {
	if start, _, ok := taggedOpening(raw); ok {
		return between(raw, start)
	}
	if idx := strings.Index(raw, fence); idx >= 0 {
		return between(raw, idx+len(fence))
	}
	return raw
}

// Language returns the tag of the first tagged fence in raw, or "".
func Language(raw string) string {
	_, tag, _ := taggedOpening(raw)
	return tag
}

// taggedOpening finds the first opening fence immediately followed by a
// letter and returns the offset just past its tag. Fences pair up in order,
// so a closing fence is never read as an opener even when text follows it.
func taggedOpening(raw string) (contentStart int, tag string, ok bool) {
	offset := 0
	for {
		idx := strings.Index(raw[offset:], fence)
		if idx < 0 {
			return 0, "", false
		}
		afterFence := offset + idx + len(fence)
		r, _ := utf8.DecodeRuneInString(raw[afterFence:])
		if unicode.IsLetter(r) {
			end := afterFence + strings.IndexFunc(raw[afterFence:], isTagEnd)
			if end < afterFence {
				end = len(raw)
			}
			return end, raw[afterFence:end], true
		}
		closing := strings.Index(raw[afterFence:], fence)
		if closing < 0 {
			return 0, "", false
		}
		offset = afterFence + closing + len(fence)
	}
}

// isTagEnd reports whether r terminates a fence info tag.
func isTagEnd(r rune) bool {
	return unicode.IsSpace(r) || r == '`'
}

// between returns the trimmed text from start up to the next fence. An
// unclosed block yields everything after start.
func between(raw string, start int) string {
	body := raw[start:]
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
