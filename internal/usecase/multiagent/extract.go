package multiagent

import (
	"encoding/json"
	"strings"
)

// ParseReason says why a classification reply was or was not usable.
type ParseReason string

const (
	ParseOK             ParseReason = "ok"
	ParseNoObject       ParseReason = "no_object"
	ParseUnbalanced     ParseReason = "unbalanced"
	ParseInvalidJSON    ParseReason = "invalid_json"
	ParseUpstreamFailed ParseReason = "upstream_failed"
)

// extractObject finds the first balanced {...} block in text and decodes
// it. Braces inside JSON string literals do not count toward depth.
func extractObject(text string) (map[string]any, ParseReason) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ParseNoObject
	}

	end := -1
	depth := 0
	inString := false
	escaped := false
scan:
	for i := start; i < len(text); i++ {
		c := text[i]
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
				end = i
				break scan
			}
		}
	}
	if end < 0 {
		return nil, ParseUnbalanced
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, ParseInvalidJSON
	}
	return obj, ParseOK
}
