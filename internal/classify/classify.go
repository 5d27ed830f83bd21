// Package classify assigns a compact type code to raw message HTML by
// matching marker CSS classes in priority order.
//
// Order is a correctness contract: a dice roll or inline roll can be
// nested inside a card's markup, and a card can be nested inside a plain
// chat message, so dice markers are checked first, card markers second,
// and the plain chat-message code is the fallback.
package classify

import (
	"regexp"
	"strings"

	"goldbox/internal/compact"
	"goldbox/internal/logging"
)

// Rule pairs a type code with the patterns that select it.
type Rule struct {
	Type     string
	Patterns []*regexp.Regexp
}

// rules is evaluated top to bottom; the first match wins.
var rules = []Rule{
	{
		Type: compact.TypeDiceRoll,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bdice-roll\b`),
			regexp.MustCompile(`(?i)\binline-roll\b`),
			regexp.MustCompile(`(?i)\broll-result\b`),
		},
	},
	{
		Type: compact.TypeCardDisplay,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bcard-display\b`),
		},
	},
	{
		Type: compact.TypeChatCard,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bchat-card\b`),
			// Dynamic card flavors: activation-card, item-card, spell-card...
			regexp.MustCompile(`(?i)\b[a-z]+-card\b`),
		},
	},
	{
		Type: compact.TypeWhisper,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bwhisper\b`),
		},
	},
	{
		Type: compact.TypeGMNote,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bgm-note\b`),
			regexp.MustCompile(`(?i)\bgm-only\b`),
		},
	},
	{
		Type: compact.TypeChatMessage,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bchat-message\b`),
		},
	},
}

// Classify returns the type code of the first matching rule, or the
// chat-message code when nothing matches. Pure function, no side effects.
func Classify(raw string) string {
	// Marker classes only appear in attribute values; lower once so the
	// debug log shows what actually matched.
	haystack := strings.ToLower(raw)

	for _, rule := range rules {
		for _, pat := range rule.Patterns {
			if pat.MatchString(haystack) {
				logging.ClassifyDebug("matched %q as %s", pat.String(), rule.Type)
				return rule.Type
			}
		}
	}

	return compact.TypeChatMessage
}
