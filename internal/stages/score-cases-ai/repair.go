// internal/stages/score-cases-ai/repair.go
package scorecasesai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	codeFenceRe     = regexp.MustCompile("(?s)```(?:json)?\n?(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// repairJSON extracts a parseable JSON value from a model completion. It
// strips code fences and control characters, narrows to the outermost
// array or object, and retries once with trailing commas removed.
func repairJSON(raw string) (json.RawMessage, error) {
	text := raw

	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = stripControlChars(text)
	text = strings.TrimSpace(text)

	if narrowed, ok := outermost(text, '[', ']'); ok {
		text = narrowed
	} else if narrowed, ok := outermost(text, '{', '}'); ok {
		text = narrowed
	}

	if text == "" {
		return nil, fmt.Errorf("no JSON payload in response")
	}

	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}

	repaired := trailingCommaRe.ReplaceAllString(text, "$1")
	if json.Valid([]byte(repaired)) {
		return json.RawMessage(repaired), nil
	}

	return nil, fmt.Errorf("unparseable JSON payload")
}

func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// outermost returns the substring from the first open delimiter to the last
// close delimiter.
func outermost(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
