// Package extract implements per-type field extraction over sanitized
// message HTML: dice rolls, plain chat messages, and dynamic cards.
//
// Dice and chat extraction carry static selector knowledge, including
// legacy-selector fallbacks for markup emitted by older client versions.
// Card extraction has no static per-field knowledge at all: structure is
// discovered at runtime by the CardAnalyzer collaborator and aliased
// through the schema cache.
package extract

import (
	"errors"
	"fmt"
)

// ErrAnalyzerUnavailable is returned when card extraction is attempted
// without a dynamic analyzer. Card translation fails fast rather than
// degrading to a guessed static schema.
var ErrAnalyzerUnavailable = errors.New("extract: card analyzer unavailable")

// AnalyzedField is one field discovered by the dynamic analyzer.
type AnalyzedField struct {
	Value any
	Type  string // "string", "number", "bool", "list", "map"
}

// Analysis is the dynamic analyzer's view of one card.
type Analysis struct {
	CardType   string
	Fields     map[string]AnalyzedField
	Metadata   map[string]string
	Confidence float64
}

// CardAnalyzer discovers the structure of a card from its raw HTML.
// Implementations must be safe for concurrent use.
type CardAnalyzer interface {
	Analyze(rawHTML string) (*Analysis, error)
}

// fieldError reports which part of extraction failed; it wraps the cause
// so callers can errors.Is on sentinels.
func fieldError(what string, err error) error {
	return fmt.Errorf("extract %s: %w", what, err)
}
