package extract

import (
	"fmt"

	"goldbox/internal/logging"
	"goldbox/internal/schema"
)

// CardResult is the outcome of dynamic card extraction: discovered fields
// keyed by their cache-assigned codes, plus the identifying metadata.
type CardResult struct {
	CardType   string
	Name       string
	Fields     map[string]any // code -> value
	Confidence float64
}

// ChatCard runs the dynamic analyzer over raw card HTML and aliases every
// discovered field through the schema cache. There is no static fallback:
// a missing analyzer is a hard failure.
func ChatCard(rawHTML string, analyzer CardAnalyzer, cache *schema.Cache, cardTypeHint string) (*CardResult, error) {
	if analyzer == nil {
		return nil, ErrAnalyzerUnavailable
	}

	analysis, err := analyzer.Analyze(rawHTML)
	if err != nil {
		return nil, fieldError("chat-card", err)
	}

	cardType := cardTypeHint
	if cardType == "" {
		cardType = analysis.CardType
	}
	if cardType == "" {
		return nil, fieldError("chat-card", fmt.Errorf("analyzer reported no card type"))
	}

	infos := make(map[string]schema.FieldInfo, len(analysis.Fields))
	for name, f := range analysis.Fields {
		infos[name] = schema.FieldInfo{
			ValueType:  f.Type,
			Confidence: analysis.Confidence,
		}
	}

	nameToCode, _, err := cache.GenerateCodes(cardType, infos)
	if err != nil {
		return nil, fieldError("chat-card", err)
	}

	coded := make(map[string]any, len(analysis.Fields))
	for name, f := range analysis.Fields {
		coded[nameToCode[name]] = f.Value
		cache.UpdateUsage(cardType, name)
	}

	logging.TranslatorDebug("card %s: %d fields coded (confidence %.2f)",
		cardType, len(coded), analysis.Confidence)

	return &CardResult{
		CardType:   cardType,
		Name:       analysis.Metadata["name"],
		Fields:     coded,
		Confidence: analysis.Confidence,
	}, nil
}
