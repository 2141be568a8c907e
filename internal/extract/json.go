// Package extract pulls structured JSON out of free-form model output.
// Models asked for a JSON object frequently wrap it in prose or code fences;
// Object tolerates both.
package extract

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoObject is returned when no JSON object can be found in the input.
var ErrNoObject = errors.New("no JSON object found in text")

// Object decodes the first JSON object embedded in raw text. The whole input
// is tried first; on failure the first balanced {...} span is located and
// decoded. Non-object payloads (arrays, scalars) fail with ErrNoObject.
func Object(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(stripFences(raw))
	if trimmed == "" {
		return nil, ErrNoObject
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj, nil
	}

	span, ok := objectSpan(trimmed)
	if !ok {
		return nil, ErrNoObject
	}
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return nil, ErrNoObject
	}
	return obj, nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop an optional language tag on the fence line.
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return trimmed
}

// objectSpan locates the first balanced top-level JSON object, tracking
// string literals and escapes so braces inside values don't break balance.
func objectSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
