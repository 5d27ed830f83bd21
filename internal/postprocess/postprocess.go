// Package postprocess compresses a batch of compact messages with three
// ordered passes: pattern consolidation, duplicate-value abbreviation,
// and per-card redundancy elimination.
//
// The order is load-bearing. Consolidation must see the original numbered
// fields before abbreviation could replace their values with tokens, and
// redundancy comparison benefits from running over already-abbreviated
// (shorter) values. Running the full pipeline on its own output is a
// no-op.
package postprocess

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"goldbox/internal/compact"
	"goldbox/internal/logging"
)

// Batch is the unit the passes operate on: an ordered sequence of compact
// messages plus the batch-scoped value dictionary produced by the
// abbreviation pass. The dictionary must travel with the batch through
// transmission and decode; it is never merged into the schema cache.
type Batch struct {
	ID        string            `json:"id"`
	Messages  []compact.Message `json:"messages"`
	ValueDict map[string]any    `json:"value_dict,omitempty"`
}

// Processor applies the compression passes.
type Processor struct {
	// MinRedundancyLength is the minimum trimmed string length for a
	// field to participate in redundancy elimination.
	MinRedundancyLength int

	// ContainmentRatio is the minimum share of a field's text that must
	// appear inside another field of the same card for the shorter one
	// to be dropped.
	ContainmentRatio float64
}

// New returns a Processor with the standard thresholds.
func New() *Processor {
	return &Processor{
		MinRedundancyLength: 20,
		ContainmentRatio:    0.9,
	}
}

// Process runs all three passes in order over the messages and returns
// the finished batch. Input messages are not mutated.
func (p *Processor) Process(messages []compact.Message) *Batch {
	timer := logging.StartTimer(logging.CategoryPostProcess, "Process")
	defer timer.Stop()

	batch := &Batch{
		ID:       uuid.NewString(),
		Messages: make([]compact.Message, len(messages)),
	}
	for i, msg := range messages {
		batch.Messages[i] = msg.Clone()
	}

	for _, msg := range batch.Messages {
		consolidatePatterns(msg)
	}
	batch.ValueDict = abbreviateDuplicates(batch.Messages)
	for _, msg := range batch.Messages {
		p.eliminateRedundancy(msg)
	}

	logging.PostProcessDebug("batch %s: %d messages, %d dictionary entries",
		batch.ID, len(batch.Messages), len(batch.ValueDict))

	return batch
}

// =============================================================================
// PASS 1: PATTERN CONSOLIDATION
// =============================================================================

var numberedCodePattern = regexp.MustCompile(`^(.*?)(\d+)$`)

// consolidatePatterns groups card field codes of shape <base><N> by base
// and replaces each multi-member group with a single <base>_array field
// holding the values in ascending-suffix order. A group with exactly one
// member stays untouched.
func consolidatePatterns(msg compact.Message) {
	fields := msg.Fields()
	if fields == nil {
		return
	}

	type member struct {
		key    string
		suffix int
	}
	groups := make(map[string][]member)

	for key := range fields {
		m := numberedCodePattern.FindStringSubmatch(key)
		if m == nil || m[1] == "" {
			continue
		}
		suffix, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		groups[m[1]] = append(groups[m[1]], member{key: key, suffix: suffix})
	}

	for base, members := range groups {
		if len(members) < 2 {
			continue
		}
		// Suffixes need not be contiguous; order is by suffix value.
		sort.Slice(members, func(i, j int) bool { return members[i].suffix < members[j].suffix })

		values := make([]any, 0, len(members))
		for _, m := range members {
			values = append(values, fields[m.key])
			delete(fields, m.key)
		}
		fields[base+"_array"] = values
	}
}

// =============================================================================
// PASS 2: DUPLICATE-VALUE ABBREVIATION
// =============================================================================

// abbreviateDuplicates canonicalizes every field value across the batch,
// assigns a monotonically increasing @v<N> token to each value occurring
// more than once, and replaces all its occurrences. Returns the
// token -> original value dictionary.
func abbreviateDuplicates(messages []compact.Message) map[string]any {
	type occurrence struct {
		fields map[string]any
		key    string
	}
	type valueGroup struct {
		original    any
		occurrences []occurrence
		firstSeen   int
	}

	groups := make(map[string]*valueGroup)
	order := 0

	collect := func(fields map[string]any) {
		// Deterministic token numbering: visit keys in sorted order.
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if k == compact.KeyType || k == compact.KeyTimestamp {
				// Type codes and timestamps stay literal on the wire.
				continue
			}
			v := fields[k]
			if isToken(v) {
				// Already abbreviated by an earlier run; idempotence.
				continue
			}
			if !worthAbbreviating(v) {
				continue
			}
			canon := compact.CanonicalKey(v)
			g, ok := groups[canon]
			if !ok {
				g = &valueGroup{original: v, firstSeen: order}
				order++
				groups[canon] = g
			}
			g.occurrences = append(g.occurrences, occurrence{fields: fields, key: k})
		}
	}

	for _, msg := range messages {
		if card := msg.Fields(); card != nil {
			collect(card)
			continue
		}
		collect(msg)
	}

	// Duplicated values only, tokens assigned in first-seen order.
	duplicated := make([]*valueGroup, 0)
	for _, g := range groups {
		if len(g.occurrences) > 1 {
			duplicated = append(duplicated, g)
		}
	}
	sort.Slice(duplicated, func(i, j int) bool { return duplicated[i].firstSeen < duplicated[j].firstSeen })

	dict := make(map[string]any)
	for i, g := range duplicated {
		token := fmt.Sprintf("@v%d", i)
		dict[token] = g.original
		for _, occ := range g.occurrences {
			occ.fields[occ.key] = token
		}
	}
	return dict
}

// worthAbbreviating gates pass 2 to values that actually shrink when
// replaced by a token: a @v<N> token costs at least four characters on
// the wire, so tiny scalars are left literal.
func worthAbbreviating(v any) bool {
	switch compact.KindOf(v) {
	case compact.KindString:
		s, _ := v.(string)
		return len(s) > 6
	case compact.KindList, compact.KindMap:
		return true
	default:
		return false
	}
}

// isToken reports whether a value is already a @v<N> abbreviation token.
func isToken(v any) bool {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "@v") {
		return false
	}
	_, err := strconv.Atoi(s[2:])
	return err == nil
}

// =============================================================================
// PASS 3: REDUNDANCY ELIMINATION
// =============================================================================

// eliminateRedundancy drops string fields of one card whose value is
// contained in another field's value with a high enough containment
// ratio. Single-card scope only; this pass is one-way lossy and the
// decode path never reconstructs a dropped field.
func (p *Processor) eliminateRedundancy(msg compact.Message) {
	fields := msg.Fields()
	if fields == nil {
		return
	}

	type candidate struct {
		key   string
		value string
		lower string
	}
	var candidates []candidate
	for key, v := range fields {
		s, ok := v.(string)
		if !ok || isToken(s) {
			continue
		}
		trimmed := strings.TrimSpace(s)
		if len(trimmed) <= p.MinRedundancyLength {
			continue
		}
		candidates = append(candidates, candidate{key: key, value: trimmed, lower: strings.ToLower(trimmed)})
	}
	// Stable iteration so the equal-length tiebreak is deterministic.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].key < candidates[j].key })

	dropped := make(map[string]bool)
	for _, a := range candidates {
		for _, b := range candidates {
			if a.key == b.key || dropped[a.key] || dropped[b.key] {
				continue
			}

			if len(a.value) == len(b.value) {
				// Effectively identical values: keep the field with the
				// longer code name, drop the other.
				if a.lower != b.lower {
					continue
				}
				switch {
				case len(a.key) < len(b.key):
					dropped[a.key] = true
				case len(b.key) < len(a.key):
					dropped[b.key] = true
				case a.key < b.key:
					dropped[a.key] = true
				}
				continue
			}

			if len(a.value) > len(b.value) {
				continue
			}
			if containmentRatio(a.lower, b.lower) >= p.ContainmentRatio {
				dropped[a.key] = true
				logging.PostProcessDebug("dropped redundant field %s (contained in %s)", a.key, b.key)
			}
		}
	}

	for key := range dropped {
		delete(fields, key)
	}
}

// containmentRatio is the share of a's text found inside b: 1.0 when b
// contains a outright, otherwise the longest prefix or suffix of a that
// appears in b, relative to a's length.
func containmentRatio(a, b string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if strings.Contains(b, a) {
		return 1.0
	}
	longest := 0
	for n := len(a) - 1; n > longest; n-- {
		if strings.Contains(b, a[:n]) || strings.Contains(b, a[len(a)-n:]) {
			longest = n
			break
		}
	}
	return float64(longest) / float64(len(a))
}
