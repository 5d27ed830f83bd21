// Package analyzer provides the default dynamic card analyzer: a
// heuristic DOM walk that discovers a card's type, name and fields with
// no prior schema knowledge. The translator treats it as a collaborator
// behind the extract.CardAnalyzer interface, so a richer implementation
// can be injected without touching the translation core.
package analyzer

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"goldbox/internal/extract"
	"goldbox/internal/logging"
	"goldbox/internal/sanitize"
)

// Heuristic is a stateless, concurrency-safe CardAnalyzer.
type Heuristic struct{}

// New returns the default analyzer.
func New() *Heuristic {
	return &Heuristic{}
}

var _ extract.CardAnalyzer = (*Heuristic)(nil)

// Analyze walks the card DOM and returns discovered structure.
func (h *Heuristic) Analyze(rawHTML string) (*extract.Analysis, error) {
	doc, err := sanitize.Parse(rawHTML)
	if err != nil {
		return nil, fmt.Errorf("analyzer: parse: %w", err)
	}

	analysis := &extract.Analysis{
		CardType: cardTypeFromClasses(doc),
		Fields:   make(map[string]extract.AnalyzedField),
		Metadata: make(map[string]string),
	}

	labeled := 0

	// Card name: an explicit card-name element, else the first heading.
	if name := cardName(doc); name != "" {
		analysis.Metadata["name"] = name
	}

	// Definition lists are the strongest structural signal.
	labeled += collectDefinitionLists(doc, analysis.Fields)

	// data-field attributes: <span data-field="damage">1d8</span>
	labeled += collectDataFields(doc, analysis.Fields)

	// "Label: value" list items and property spans.
	collectLabeledText(doc, analysis.Fields)

	// The description block, when present, becomes its own field.
	if desc := sanitize.FindByClass(doc, "card-description"); desc != nil {
		if text := sanitize.NodeText(desc); text != "" {
			analysis.Fields["description"] = extract.AnalyzedField{Value: text, Type: "string"}
		}
	}

	if len(analysis.Fields) == 0 {
		// A card with no discoverable fields still carries its text.
		if text := sanitize.NodeText(doc); text != "" {
			analysis.Fields["content"] = extract.AnalyzedField{Value: text, Type: "string"}
		}
	}

	// Confidence scales with how much of the card had explicit structure.
	analysis.Confidence = 0.5
	if len(analysis.Fields) > 0 {
		analysis.Confidence += 0.5 * float64(labeled) / float64(len(analysis.Fields))
		if analysis.Confidence > 1.0 {
			analysis.Confidence = 1.0
		}
	}

	logging.TranslatorDebug("analyzer: %s -> %d fields, confidence %.2f",
		analysis.CardType, len(analysis.Fields), analysis.Confidence)

	return analysis, nil
}

// cardTypeFromClasses returns the first CSS class ending in "-card",
// which is how the client tags card flavors (activation-card, item-card).
func cardTypeFromClasses(doc *html.Node) string {
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode {
			for _, class := range strings.Fields(sanitize.Attr(n, "class")) {
				lower := strings.ToLower(class)
				if strings.HasSuffix(lower, "-card") && lower != "chat-card" {
					found = lower
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if found == "" {
		return "chat-card"
	}
	return found
}

func cardName(doc *html.Node) string {
	if n := sanitize.FindByClass(doc, "card-name"); n != nil {
		return sanitize.NodeText(n)
	}
	for _, tag := range []string{"h1", "h2", "h3", "h4"} {
		if n := sanitize.FindByTag(doc, tag); n != nil {
			return sanitize.NodeText(n)
		}
	}
	return ""
}

// collectDefinitionLists reads <dt>/<dd> pairs. Returns how many fields
// it added.
func collectDefinitionLists(doc *html.Node, fields map[string]extract.AnalyzedField) int {
	added := 0
	for _, dl := range sanitize.FindAllByTag(doc, "dl") {
		var pendingName string
		for c := dl.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "dt":
				pendingName = normalizeFieldName(sanitize.NodeText(c))
			case "dd":
				if pendingName == "" {
					continue
				}
				value, vtype := typeValue(sanitize.NodeText(c))
				fields[pendingName] = extract.AnalyzedField{Value: value, Type: vtype}
				pendingName = ""
				added++
			}
		}
	}
	return added
}

func collectDataFields(doc *html.Node, fields map[string]extract.AnalyzedField) int {
	added := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if name := sanitize.Attr(n, "data-field"); name != "" {
				value, vtype := typeValue(sanitize.NodeText(n))
				fields[normalizeFieldName(name)] = extract.AnalyzedField{Value: value, Type: vtype}
				added++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return added
}

// collectLabeledText parses "Label: value" shapes out of list items and
// property spans. Weakest signal, so it never overwrites a field found by
// a structural pass.
func collectLabeledText(doc *html.Node, fields map[string]extract.AnalyzedField) {
	candidates := sanitize.FindAllByTag(doc, "li")
	for _, class := range []string{"card-prop", "property"} {
		candidates = append(candidates, sanitize.FindAllByClass(doc, class)...)
	}

	for _, n := range candidates {
		text := sanitize.NodeText(n)
		idx := strings.Index(text, ":")
		if idx <= 0 || idx > 32 {
			continue
		}
		name := normalizeFieldName(text[:idx])
		if name == "" {
			continue
		}
		if _, exists := fields[name]; exists {
			continue
		}
		value, vtype := typeValue(strings.TrimSpace(text[idx+1:]))
		fields[name] = extract.AnalyzedField{Value: value, Type: vtype}
	}
}

// normalizeFieldName lower-cases a label and joins words with
// underscores: "Spell Level" -> "spell_level".
func normalizeFieldName(label string) string {
	label = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":"))
	words := strings.Fields(strings.ToLower(label))
	return strings.Join(words, "_")
}

// typeValue infers a value's kind from its text form.
func typeValue(text string) (any, string) {
	trimmed := strings.TrimSpace(text)
	if n, err := strconv.Atoi(trimmed); err == nil {
		return n, "number"
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f, "number"
	}
	if strings.EqualFold(trimmed, "true") || strings.EqualFold(trimmed, "false") {
		return strings.EqualFold(trimmed, "true"), "bool"
	}
	return trimmed, "string"
}
