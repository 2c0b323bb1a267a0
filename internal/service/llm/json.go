package llm

import (
	"encoding/json"
	stderrors "errors"
	"strings"
)

// ErrNoJSONObject is returned when a model reply holds no parseable object.
var ErrNoJSONObject = stderrors.New("no JSON object found in model reply")

// ExtractJSONObject pulls the first valid JSON object out of a model reply.
// It accepts ```json fenced blocks, bare ``` fences, and unfenced replies
// with prose around the object.
func ExtractJSONObject(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrNoJSONObject
	}

	candidates := make([]string, 0, 2)
	if body, ok := fencedBlock(trimmed); ok {
		candidates = append(candidates, body)
	}
	candidates = append(candidates, trimmed)

	for _, candidate := range candidates {
		if obj, ok := firstValidObject(candidate); ok {
			return obj, nil
		}
	}
	return "", ErrNoJSONObject
}

// fencedBlock returns the body of the first markdown code fence. A
// ```json fence is preferred over an earlier untagged one.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```json")
	if start >= 0 {
		start += len("```json")
	} else {
		start = strings.Index(s, "```")
		if start < 0 {
			return "", false
		}
		start += len("```")
		// skip an info string such as ```JSON or ```javascript
		if nl := strings.IndexByte(s[start:], '\n'); nl >= 0 && !strings.ContainsAny(s[start:start+nl], "{[") {
			start += nl + 1
		}
	}

	body := s[start:]
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body), true
}

// firstValidObject scans for balanced {...} spans, honoring JSON string
// escapes, and returns the first one that parses.
func firstValidObject(s string) (string, bool) {
	for offset := 0; offset < len(s); {
		rel := strings.IndexByte(s[offset:], '{')
		if rel < 0 {
			return "", false
		}
		start := offset + rel
		if end, ok := matchBrace(s, start); ok {
			obj := s[start : end+1]
			if json.Valid([]byte(obj)) {
				return obj, true
			}
		}
		offset = start + 1
	}
	return "", false
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
