package extract

import (
	"errors"
	"regexp"
	"strconv"

	"golang.org/x/net/html"

	"goldbox/internal/compact"
	"goldbox/internal/logging"
	"goldbox/internal/sanitize"
)

var firstIntPattern = regexp.MustCompile(`-?\d+`)

// Selector precedence for dice markup. The primary selector is what the
// current client emits; the legacy fallbacks keep older session logs
// translating. Order matters and is part of the compatibility contract.
var (
	totalClasses   = []string{"dice-total", "roll-total", "result-total"}
	formulaClasses = []string{"dice-formula", "formula"}
	flavorClasses  = []string{"flavor-text", "dice-flavor"}
	dieClasses     = []string{"die", "roll"}
)

// DiceRoll extracts flavor text, formula, total and individual die results
// from a parsed dice-roll fragment.
func DiceRoll(doc *html.Node) (map[string]any, error) {
	fields := make(map[string]any)

	if flavor := textByClasses(doc, flavorClasses); flavor != "" {
		fields[compact.KeyFlavor] = flavor
	}
	if formula := textByClasses(doc, formulaClasses); formula != "" {
		fields[compact.KeyFormula] = formula
	}

	// The total element may wrap icon markup, so take the first integer
	// in its text rather than the whole string.
	if totalText := textByClasses(doc, totalClasses); totalText != "" {
		if m := firstIntPattern.FindString(totalText); m != "" {
			total, err := strconv.Atoi(m)
			if err == nil {
				fields[compact.KeyTotal] = total
			}
		}
	}

	if results := dieResults(doc); len(results) > 0 {
		fields[compact.KeyResults] = results
	}

	if _, hasTotal := fields[compact.KeyTotal]; !hasTotal {
		if _, hasFormula := fields[compact.KeyFormula]; !hasFormula {
			return nil, fieldError("dice-roll", errors.New("no total or formula found"))
		}
	}

	logging.TranslatorDebug("dice-roll extracted %d fields", len(fields))
	return fields, nil
}

// textByClasses tries each class in precedence order and returns the text
// of the first match.
func textByClasses(doc *html.Node, classes []string) string {
	for _, class := range classes {
		if n := sanitize.FindByClass(doc, class); n != nil {
			if text := sanitize.NodeText(n); text != "" {
				return text
			}
		}
	}
	return ""
}

// dieResults collects individual die values in document order.
func dieResults(doc *html.Node) []any {
	for _, class := range dieClasses {
		nodes := sanitize.FindAllByClass(doc, class)
		if len(nodes) == 0 {
			continue
		}
		var results []any
		for _, n := range nodes {
			m := firstIntPattern.FindString(sanitize.NodeText(n))
			if m == "" {
				continue
			}
			if v, err := strconv.Atoi(m); err == nil {
				results = append(results, v)
			}
		}
		if len(results) > 0 {
			return results
		}
	}
	return nil
}
