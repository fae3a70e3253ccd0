package utils

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject finds the first top-level JSON object in model output,
// stripping the markdown fences models like to wrap JSON in. Returns the
// empty string when no balanced object exists.
func ExtractJSONObject(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			content = rest[:end]
		} else {
			content = rest
		}
	}

	start := strings.Index(content, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return content[start : i+1]
				}
			}
		}
	}
	return ""
}

// DecodeJSONObject extracts and unmarshals the first JSON object in model
// output into dst. Returns false when no usable object was found.
func DecodeJSONObject(content string, dst any) bool {
	payload := ExtractJSONObject(content)
	if payload == "" {
		return false
	}
	return json.Unmarshal([]byte(payload), dst) == nil
}
