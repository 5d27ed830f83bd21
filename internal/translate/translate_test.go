package translate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"goldbox/internal/analyzer"
	"goldbox/internal/compact"
	"goldbox/internal/extract"
	"goldbox/internal/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Unix(1700000000, 0) }
}

func newTranslator() *Translator {
	return New(schema.NewCache(), analyzer.New(), WithClock(fixedClock()))
}

const diceRollHTML = `
<div class="dice-roll">
  <div class="flavor-text">Attack roll</div>
  <div class="dice-formula">1d20 + 5</div>
  <ol><li class="die">12</li></ol>
  <h4 class="dice-total"><i class="icon"></i> 17</h4>
</div>`

const chatMessageHTML = `
<div class="chat-message">
  <span class="title">Agnes</span>
  <span class="subtitle">GM</span>
  <p>The door creaks open.</p>
</div>`

const itemCardHTML = `
<div class="chat-card item-card">
  <h3 class="card-name">Longsword</h3>
  <dl>
    <dt>Damage</dt><dd>1d8</dd>
    <dt>Weight</dt><dd>3</dd>
  </dl>
</div>`

func TestHTMLToCompact_DiceRoll(t *testing.T) {
	tr := newTranslator()

	msg, err := tr.HTMLToCompact(diceRollHTML, "")
	require.NoError(t, err)

	assert.Equal(t, compact.TypeDiceRoll, msg.Type())
	assert.Equal(t, "1d20 + 5", msg[compact.KeyFormula])
	assert.Equal(t, 17, msg[compact.KeyTotal])
	assert.Equal(t, "Attack roll", msg[compact.KeyFlavor])
	assert.Equal(t, int64(1700000000), msg[compact.KeyTimestamp])
}

func TestHTMLToCompact_ChatMessage(t *testing.T) {
	tr := newTranslator()

	msg, err := tr.HTMLToCompact(chatMessageHTML, "")
	require.NoError(t, err)

	assert.Equal(t, compact.TypeChatMessage, msg.Type())
	assert.Equal(t, "Agnes", msg[compact.KeySpeaker])
	assert.Equal(t, "GM", msg[compact.KeyAuthor])
	assert.Equal(t, "The door creaks open.", msg[compact.KeyContent])
}

func TestHTMLToCompact_Card(t *testing.T) {
	tr := newTranslator()

	msg, err := tr.HTMLToCompact(itemCardHTML, "")
	require.NoError(t, err)

	assert.Equal(t, compact.TypeChatCard, msg.Type())
	assert.Equal(t, "Longsword", msg[compact.KeyName])

	fields := msg.Fields()
	require.NotNil(t, fields)
	assert.Len(t, fields, 2)
}

func TestHTMLToCompact_CardWithoutAnalyzerFailsFast(t *testing.T) {
	tr := New(schema.NewCache(), nil, WithClock(fixedClock()))

	_, err := tr.HTMLToCompact(itemCardHTML, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, extract.ErrAnalyzerUnavailable), "got %v", err)

	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestHTMLToCompact_FailureReturnsNoPartialMessage(t *testing.T) {
	tr := newTranslator()

	msg, err := tr.HTMLToCompact(`<div class="dice-roll"><p>nothing here</p></div>`, "")
	require.Error(t, err)
	assert.Nil(t, msg, "a failed translation must never return a partial message")
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestRoundTrip_DiceRoll(t *testing.T) {
	tr := newTranslator()

	msg, err := tr.HTMLToCompact(diceRollHTML, "")
	require.NoError(t, err)

	wire, err := tr.CompactToWebSocket(msg, "", nil)
	require.NoError(t, err)

	assert.Equal(t, "dice-roll", wire.Type)
	assert.Equal(t, "1d20 + 5", wire.Content.Fields["formula"])
	assert.Equal(t, 17, wire.Content.Fields["total"])
	assert.Equal(t, "Attack roll", wire.Content.Fields["flavor_text"])
}

func TestRoundTrip_ChatMessage(t *testing.T) {
	tr := newTranslator()

	msg, err := tr.HTMLToCompact(chatMessageHTML, "")
	require.NoError(t, err)

	wire, err := tr.CompactToWebSocket(msg, "", nil)
	require.NoError(t, err)

	assert.Equal(t, "chat-message", wire.Type)
	assert.Equal(t, "Agnes", wire.Content.Fields["speaker"])
	assert.Equal(t, "The door creaks open.", wire.Content.Fields["content"])
}

func TestRoundTrip_Card(t *testing.T) {
	tr := newTranslator()

	msg, err := tr.HTMLToCompact(itemCardHTML, "")
	require.NoError(t, err)

	wire, err := tr.CompactToWebSocket(msg, "item-card", nil)
	require.NoError(t, err)

	assert.Equal(t, "chat-card", wire.Type)
	assert.Equal(t, "item-card", wire.CardType)
	assert.Equal(t, "Longsword", wire.Content.Name)
	assert.Equal(t, "1d8", wire.Content.Fields["damage"])
	assert.Equal(t, 3, wire.Content.Fields["weight"])
}

func TestCompactToWebSocket_ValueDictResolution(t *testing.T) {
	tr := newTranslator()
	cache := tr.cache
	n2c, _, err := cache.GenerateCodes("item-card", map[string]schema.FieldInfo{
		"description": {ValueType: "string"},
	})
	require.NoError(t, err)

	msg := compact.Message{
		compact.KeyType: compact.TypeChatCard,
		compact.KeyFormula: map[string]any{
			n2c["description"]: "@v0",
		},
	}
	dict := map[string]any{"@v0": "A shared description of remarkable length."}

	wire, err := tr.CompactToWebSocket(msg, "item-card", dict)
	require.NoError(t, err)
	assert.Equal(t, "A shared description of remarkable length.", wire.Content.Fields["description"])
}

func TestCompactToWebSocket_UnresolvedCodeFallsBackToLiteral(t *testing.T) {
	tr := newTranslator()

	msg := compact.Message{
		compact.KeyType: compact.TypeChatCard,
		compact.KeyFormula: map[string]any{
			"zzz": "mystery value",
		},
	}

	wire, err := tr.CompactToWebSocket(msg, "item-card", nil)
	require.NoError(t, err)
	// Cache miss is defined fallback behavior: data is never dropped.
	assert.Equal(t, "mystery value", wire.Content.Fields["zzz"])
}

func TestCompactToWebSocket_ConsolidatedArrayResolvesThroughBase(t *testing.T) {
	tr := newTranslator()
	n2c, _, err := tr.cache.GenerateCodes("monster-card", map[string]schema.FieldInfo{
		"damage": {ValueType: "number"},
	})
	require.NoError(t, err)

	arrayCode := n2c["damage"] + "_array"
	msg := compact.Message{
		compact.KeyType:    compact.TypeChatCard,
		compact.KeyFormula: map[string]any{arrayCode: []any{3, 5, 1}},
	}

	wire, err := tr.CompactToWebSocket(msg, "monster-card", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{3, 5, 1}, wire.Content.Fields["damage_array"])
}

func TestCompactToWebSocket_MissingType(t *testing.T) {
	tr := newTranslator()
	_, err := tr.CompactToWebSocket(compact.Message{"c": "no type"}, "", nil)
	require.Error(t, err)
}

// =============================================================================
// BATCH ENCODE
// =============================================================================

func TestEncodeBatch_SkipAndContinue(t *testing.T) {
	tr := newTranslator()

	fragments := []string{
		chatMessageHTML,
		`<div class="dice-roll"><p>broken roll</p></div>`, // fails
		diceRollHTML,
	}

	msgs, errs := tr.EncodeBatch(context.Background(), fragments)
	assert.Len(t, msgs, 2, "good fragments must survive a bad sibling")
	require.Len(t, errs, 1)

	var decodeErr *DecodeError
	assert.True(t, errors.As(errs[0], &decodeErr))
}

func TestEncodeBatch_PreservesOrder(t *testing.T) {
	tr := newTranslator()

	var fragments []string
	for i := 0; i < 20; i++ {
		fragments = append(fragments, fmt.Sprintf(`<div class="chat-message"><p>message %02d</p></div>`, i))
	}

	msgs, errs := tr.EncodeBatch(context.Background(), fragments)
	require.Empty(t, errs)
	require.Len(t, msgs, 20)
	for i, msg := range msgs {
		assert.Equal(t, fmt.Sprintf("message %02d", i), msg[compact.KeyContent])
	}
}

// =============================================================================
// API MESSAGE PATH
// =============================================================================

func TestFromAPIMessages(t *testing.T) {
	tr := newTranslator()

	msgs := tr.FromAPIMessages([]map[string]any{
		{"type": "chat-message", "speaker": "Agnes", "content": "<p>hello there</p>", "timestamp": float64(1690000000)},
		{"type": "dice-roll", "text": "rolled a 17"},
		{"type": "mystery-kind", "content": "still translates"},
		{"type": "chat-message"}, // nothing to say, skipped
	})

	require.Len(t, msgs, 3)

	assert.Equal(t, compact.TypeChatMessage, msgs[0].Type())
	assert.Equal(t, "Agnes", msgs[0][compact.KeySpeaker])
	assert.Equal(t, "hello there", msgs[0][compact.KeyContent], "HTML in API content is sanitized")
	assert.Equal(t, int64(1690000000), msgs[0][compact.KeyTimestamp])

	assert.Equal(t, compact.TypeDiceRoll, msgs[1].Type())
	assert.Equal(t, int64(1700000000), msgs[1][compact.KeyTimestamp], "missing timestamp is stamped")

	assert.Equal(t, compact.TypeChatMessage, msgs[2].Type(), "unknown types degrade to chat-message")
}

// =============================================================================
// FIELD DOCUMENTATION
// =============================================================================

func TestGenerateFieldDocumentation(t *testing.T) {
	tr := newTranslator()

	_, err := tr.HTMLToCompact(itemCardHTML, "")
	require.NoError(t, err)

	doc := tr.GenerateFieldDocumentation("item-card")
	assert.Contains(t, doc, "item-card")
	assert.Contains(t, doc, "damage")
	assert.Contains(t, doc, "weight")
	assert.Contains(t, doc, "used 1x")

	empty := tr.GenerateFieldDocumentation("never-seen")
	assert.Contains(t, empty, "never-seen")
}
