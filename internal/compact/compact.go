// Package compact defines the token-efficient wire format exchanged with
// the language model: compact messages keyed by short abbreviations, the
// closed set of builtin type codes, and the WireObject shape consumed by
// the game-client renderer.
//
// The abbreviation table and the three builtin message schemas are a wire
// contract shared with the external renderer. Do not change existing keys
// or codes; add new ones only.
package compact

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// TYPE CODES
// =============================================================================

// Builtin message type codes. Every compact message carries exactly one of
// these under the mandatory key "t".
const (
	TypeDiceRoll    = "dr" // dice roll result
	TypeChatMessage = "cm" // plain chat message
	TypeChatCard    = "cc" // dynamic item/spell/ability card
	TypeCardDisplay = "cd" // card rendered for display only (no actions)
	TypeWhisper     = "wp" // private whisper
	TypeGMNote      = "gm" // GM-only note
)

// TypeNames maps each type code to the full type name used on the
// expanded wire object.
var TypeNames = map[string]string{
	TypeDiceRoll:    "dice-roll",
	TypeChatMessage: "chat-message",
	TypeChatCard:    "chat-card",
	TypeCardDisplay: "card-display",
	TypeWhisper:     "whisper",
	TypeGMNote:      "gm-note",
}

// TypeCodeFor resolves a full type name back to its code, defaulting to
// the chat-message code for anything unrecognized.
func TypeCodeFor(name string) string {
	for code, full := range TypeNames {
		if full == name {
			return code
		}
	}
	if KnownTypes[name] {
		return name
	}
	return TypeChatMessage
}

// KnownTypes is the closed set of builtin type codes.
var KnownTypes = map[string]bool{
	TypeDiceRoll:    true,
	TypeChatMessage: true,
	TypeChatCard:    true,
	TypeCardDisplay: true,
	TypeWhisper:     true,
	TypeGMNote:      true,
}

// =============================================================================
// ABBREVIATED KEYS
// =============================================================================

// Short keys used inside compact messages. The meaning of a key is
// type-dependent: "f" is a dice formula on a dice roll but the nested
// field map on a card; "a" is an author on a chat message but actions on
// a card.
const (
	KeyType      = "t"  // message type code (mandatory)
	KeySpeaker   = "s"  // speaker name
	KeyAuthor    = "a"  // author (chat) / actions (card)
	KeyContent   = "c"  // message content
	KeyFormula   = "f"  // dice formula (dr) / field map (cc, cd)
	KeyResults   = "r"  // individual die results
	KeyTotal     = "tt" // roll total
	KeyFlavor    = "ft" // flavor text
	KeyName      = "n"  // card name
	KeyDesc      = "d"  // description
	KeyActions   = "at" // card actions
	KeyTimestamp = "ts" // unix timestamp (seconds)
)

// KeyNames maps each abbreviated key to its full field name, used when
// rendering field documentation for the prompt builder.
var KeyNames = map[string]string{
	KeyType:      "type",
	KeySpeaker:   "speaker",
	KeyAuthor:    "author",
	KeyContent:   "content",
	KeyFormula:   "formula",
	KeyResults:   "results",
	KeyTotal:     "total",
	KeyFlavor:    "flavor_text",
	KeyName:      "name",
	KeyDesc:      "description",
	KeyActions:   "actions",
	KeyTimestamp: "timestamp",
}

// =============================================================================
// COMPACT MESSAGE
// =============================================================================

// Message is a single compact message: short keys to JSON-shaped values.
// It always contains KeyType; everything else is type-dependent.
type Message map[string]any

// Type returns the message's type code, or "" when absent.
func (m Message) Type() string {
	t, _ := m[KeyType].(string)
	return t
}

// IsCard reports whether the message is one of the card types that carry
// a cache-coded field map under KeyFormula.
func (m Message) IsCard() bool {
	t := m.Type()
	return t == TypeChatCard || t == TypeCardDisplay
}

// Fields returns the nested card field map, or nil for non-card messages.
func (m Message) Fields() map[string]any {
	f, _ := m[KeyFormula].(map[string]any)
	return f
}

// Clone returns a deep copy of the message. Values are copied through the
// JSON variant kinds, so shared nested maps are never aliased.
func (m Message) Clone() Message {
	out := make(Message, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

// Encode renders the message as a single JSON object with no insignificant
// whitespace.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("encode compact message: %w", err)
	}
	return data, nil
}

// Decode parses a single JSON object into a Message. The object must carry
// the mandatory type key.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode compact message: %w", err)
	}
	if m.Type() == "" {
		return nil, fmt.Errorf("decode compact message: missing %q key", KeyType)
	}
	return m, nil
}

// =============================================================================
// WIRE OBJECT
// =============================================================================

// WireObject is the expanded shape handed to the game-client renderer
// after a compact message is decoded back into full field names.
type WireObject struct {
	Type     string      `json:"type"`
	CardType string      `json:"cardType,omitempty"`
	Content  WireContent `json:"content"`
}

// WireContent carries the decoded fields plus the card name when present.
type WireContent struct {
	Fields map[string]any `json:"fields"`
	Name   string         `json:"name,omitempty"`
}
