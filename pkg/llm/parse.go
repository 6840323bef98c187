package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON decodes the first JSON object or array found in text into T.
// Markdown code fences around the payload are tolerated.
func ParseJSON[T any](text string) (T, error) {
	var out T
	payload, ok := extractJSON(text)
	if !ok {
		return out, fmt.Errorf("%w: no JSON payload found", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

func extractJSON(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return "", false
	}
	return s[start : end+1], true
}
