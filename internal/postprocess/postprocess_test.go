package postprocess

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldbox/internal/compact"
)

func card(fields map[string]any) compact.Message {
	return compact.Message{
		compact.KeyType:    compact.TypeChatCard,
		compact.KeyFormula: fields,
	}
}

// =============================================================================
// PASS 1: PATTERN CONSOLIDATION
// =============================================================================

func TestConsolidation_NumberedSiblings(t *testing.T) {
	msg := card(map[string]any{
		"dmg1": 3,
		"dmg2": 5,
		"dmg7": 1,
		"hlt":  20,
	})

	consolidatePatterns(msg)
	fields := msg.Fields()

	// Ordered by suffix (1, 2, 7), not contiguously.
	arr, ok := fields["dmg_array"].([]any)
	require.True(t, ok, "dmg_array missing: %v", fields)
	assert.Equal(t, []any{3, 5, 1}, arr)

	for _, gone := range []string{"dmg1", "dmg2", "dmg7"} {
		if _, still := fields[gone]; still {
			t.Errorf("numbered key %s should have been removed", gone)
		}
	}
	assert.Equal(t, 20, fields["hlt"], "unrelated field must survive")
}

func TestConsolidation_LoneMemberUntouched(t *testing.T) {
	msg := card(map[string]any{"dmg1": 3})

	consolidatePatterns(msg)
	fields := msg.Fields()

	assert.Equal(t, 3, fields["dmg1"], "single-member group must never be wrapped")
	if _, exists := fields["dmg_array"]; exists {
		t.Error("no array should be created for a lone member")
	}
}

func TestConsolidation_NonCardMessageUntouched(t *testing.T) {
	msg := compact.Message{
		compact.KeyType:    compact.TypeChatMessage,
		compact.KeyContent: "dmg1 and dmg2",
	}
	consolidatePatterns(msg)
	assert.Equal(t, "dmg1 and dmg2", msg[compact.KeyContent])
}

// =============================================================================
// PASS 2: DUPLICATE-VALUE ABBREVIATION
// =============================================================================

func TestAbbreviation_SharedValueAcrossCards(t *testing.T) {
	shared := "Longsword, a simple melee weapon with a sharp blade."
	a := card(map[string]any{"dsc": shared, "wgh": 4})
	b := card(map[string]any{"dsc": shared, "chr": 3})

	dict := abbreviateDuplicates([]compact.Message{a, b})

	require.Len(t, dict, 1)
	tokA, okA := a.Fields()["dsc"].(string)
	tokB, okB := b.Fields()["dsc"].(string)
	require.True(t, okA && okB)
	assert.Equal(t, tokA, tokB, "both occurrences must receive the same token")
	assert.Equal(t, shared, dict[tokA])

	// Values occurring once are untouched.
	assert.Equal(t, 4, a.Fields()["wgh"])
	assert.Equal(t, 3, b.Fields()["chr"])
}

func TestAbbreviation_TokensAreMonotonic(t *testing.T) {
	msgs := []compact.Message{
		card(map[string]any{"aaa": "first duplicated value", "bbb": "second duplicated value"}),
		card(map[string]any{"ccc": "first duplicated value", "ddd": "second duplicated value"}),
	}

	dict := abbreviateDuplicates(msgs)
	require.Len(t, dict, 2)
	assert.Equal(t, "first duplicated value", dict["@v0"])
	assert.Equal(t, "second duplicated value", dict["@v1"])
}

func TestAbbreviation_NestedValuesCanonicalized(t *testing.T) {
	// Same nested map with different key order must count as one value.
	v1 := map[string]any{"kind": "slashing", "amount": []any{1, 6}}
	v2 := map[string]any{"amount": []any{1, 6}, "kind": "slashing"}
	a := card(map[string]any{"dmg": v1})
	b := card(map[string]any{"dmg": v2})

	dict := abbreviateDuplicates([]compact.Message{a, b})
	require.Len(t, dict, 1)
	assert.Equal(t, a.Fields()["dmg"], b.Fields()["dmg"])
}

func TestAbbreviation_SkipsTypeAndTimestamp(t *testing.T) {
	msgs := []compact.Message{
		{compact.KeyType: "cm", compact.KeyTimestamp: int64(1700000000), compact.KeyContent: "identical message body"},
		{compact.KeyType: "cm", compact.KeyTimestamp: int64(1700000000), compact.KeyContent: "identical message body"},
	}

	dict := abbreviateDuplicates(msgs)
	require.Len(t, dict, 1)
	assert.Equal(t, "cm", msgs[0][compact.KeyType], "type codes stay literal")
	assert.Equal(t, int64(1700000000), msgs[0][compact.KeyTimestamp])
}

// =============================================================================
// PASS 3: REDUNDANCY ELIMINATION
// =============================================================================

func TestRedundancy_ContainedFieldDropped(t *testing.T) {
	p := New()
	msg := card(map[string]any{
		"d":     "A simple blade dealing 1d4 piercing damage.",
		"desc2": "A simple blade dealing 1d4 piercing damage. Extra flavor.",
	})

	p.eliminateRedundancy(msg)
	fields := msg.Fields()

	if _, still := fields["d"]; still {
		t.Error("contained field d should have been dropped")
	}
	assert.Contains(t, fields["desc2"], "Extra flavor")
}

func TestRedundancy_EqualLengthKeepsLongerCode(t *testing.T) {
	same := "Identical description text here."
	p := New()
	msg := card(map[string]any{"d": same, "desc": same})

	p.eliminateRedundancy(msg)
	fields := msg.Fields()

	if _, still := fields["d"]; still {
		t.Error("shorter code d should have been dropped")
	}
	assert.Equal(t, same, fields["desc"])
}

func TestRedundancy_ShortFieldsIgnored(t *testing.T) {
	p := New()
	msg := card(map[string]any{"a": "short", "b": "short and longer"})

	p.eliminateRedundancy(msg)
	assert.Len(t, msg.Fields(), 2, "fields at or under the length floor are never compared")
}

func TestRedundancy_BelowRatioKept(t *testing.T) {
	p := New()
	msg := card(map[string]any{
		"d":     "A gleaming sword with emerald pommel stones.",
		"desc2": "A gleaming sword, but this text diverges entirely into other details.",
	})

	p.eliminateRedundancy(msg)
	assert.Len(t, msg.Fields(), 2, "partial overlap below the ratio threshold must keep both fields")
}

func TestRedundancy_IsSingleCardScoped(t *testing.T) {
	text := "A simple blade dealing 1d4 piercing damage."
	a := card(map[string]any{"d": text})
	b := card(map[string]any{"dsc": text + " Extra."})

	p := New()
	batch := p.Process([]compact.Message{a, b})

	// Same text lives on two different cards: never cross-compared.
	for _, msg := range batch.Messages {
		assert.Len(t, msg.Fields(), 1)
	}
}

// =============================================================================
// FULL PIPELINE
// =============================================================================

func TestProcess_Idempotent(t *testing.T) {
	shared := "Longsword, a simple melee weapon with a sharp blade."
	msgs := []compact.Message{
		card(map[string]any{"dmg1": 3, "dmg2": 5, "dmg7": 1, "dsc": shared}),
		card(map[string]any{"dsc": shared, "d": "A blade.", "hlt": 12}),
	}

	p := New()
	first := p.Process(msgs)
	second := p.Process(first.Messages)

	if diff := cmp.Diff(first.Messages, second.Messages); diff != "" {
		t.Errorf("second run changed the batch (-first +second):\n%s", diff)
	}
	assert.Empty(t, second.ValueDict, "second run should find nothing left to abbreviate")
}

func TestProcess_DoesNotMutateInput(t *testing.T) {
	msgs := []compact.Message{
		card(map[string]any{"dmg1": 3, "dmg2": 5}),
	}

	p := New()
	_ = p.Process(msgs)

	if _, ok := msgs[0].Fields()["dmg1"]; !ok {
		t.Error("input message was mutated by Process")
	}
}

func TestProcess_StampsBatchID(t *testing.T) {
	p := New()
	a := p.Process(nil)
	b := p.Process(nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("batch IDs must be unique and non-empty: %q vs %q", a.ID, b.ID)
	}
}
