// Package perception extracts compact messages out of free-form language
// model output. Models narrate around their JSON, wrap it in code fences,
// or emit several objects in a row; the scanner tolerates all of that and
// keeps only candidates that decode and carry the mandatory type key.
package perception

import (
	"encoding/json"
	"strings"

	"goldbox/internal/compact"
	"goldbox/internal/logging"
)

// ExtractCompactMessages scans text for brace-delimited JSON object
// candidates and decodes each one. Malformed candidates are skipped
// individually; they never fail the whole parse. When no valid object is
// found, the entire input is wrapped as a single synthetic chat message —
// a defined fallback, not an error path.
func ExtractCompactMessages(text string) []compact.Message {
	var messages []compact.Message

	for _, candidate := range scanObjects(text) {
		var m compact.Message
		if err := json.Unmarshal([]byte(candidate), &m); err != nil {
			logging.PerceptionDebug("skipping malformed candidate: %v", err)
			continue
		}
		if m.Type() == "" {
			logging.PerceptionDebug("skipping object without type key")
			continue
		}
		messages = append(messages, m)
	}

	if len(messages) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		logging.PerceptionDebug("no embedded objects, wrapping %d chars as chat message", len(trimmed))
		return []compact.Message{{
			compact.KeyType:    compact.TypeChatMessage,
			compact.KeyContent: trimmed,
		}}
	}

	logging.Perception("extracted %d compact messages", len(messages))
	return messages
}

// scanObjects returns every balanced top-level {...} span in the text.
// The scan counts brace depth and is aware of JSON string literals and
// escapes, which is sufficient for the nesting depth of typical model
// output; it does not attempt full JSON validation, that is the decoder's
// job.
func scanObjects(text string) []string {
	var spans []string

	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue // stray closer, tolerate
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}

	return spans
}
