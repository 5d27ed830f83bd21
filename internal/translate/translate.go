// Package translate orchestrates the bidirectional translation between
// rich message HTML and the compact wire format: classifier in front,
// type-specific extractors behind it, schema cache for card field codes.
package translate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"goldbox/internal/classify"
	"goldbox/internal/compact"
	"goldbox/internal/extract"
	"goldbox/internal/logging"
	"goldbox/internal/sanitize"
	"goldbox/internal/schema"
)

// DecodeError is the typed failure for one HTML fragment. Extraction
// never returns a guessed or partial compact message in place of one.
type DecodeError struct {
	Type string // type code the fragment classified as
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("translate: decode %s fragment: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Translator converts between raw HTML and compact messages. Safe for
// concurrent use: all mutable state lives in the injected schema cache.
type Translator struct {
	cache         *schema.Cache
	analyzer      extract.CardAnalyzer
	maxConcurrent int
	now           func() time.Time
}

// Option configures a Translator.
type Option func(*Translator)

// WithMaxConcurrent bounds parallelism during batch encoding.
func WithMaxConcurrent(n int) Option {
	return func(t *Translator) {
		if n > 0 {
			t.maxConcurrent = n
		}
	}
}

// WithClock substitutes the timestamp source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(t *Translator) { t.now = now }
}

// New creates a Translator. The analyzer may be nil, in which case card
// translation fails fast with extract.ErrAnalyzerUnavailable.
func New(cache *schema.Cache, analyzer extract.CardAnalyzer, opts ...Option) *Translator {
	t := &Translator{
		cache:         cache,
		analyzer:      analyzer,
		maxConcurrent: 4,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// =============================================================================
// ENCODE PATH
// =============================================================================

// HTMLToCompact classifies raw HTML, dispatches to the matching
// extractor, and stamps the type code and a timestamp. cardType is an
// optional hint for card fragments whose type is already known.
func (t *Translator) HTMLToCompact(rawHTML, cardType string) (compact.Message, error) {
	timer := logging.StartTimer(logging.CategoryTranslator, "HTMLToCompact")
	defer timer.Stop()

	typeCode := classify.Classify(rawHTML)

	msg := compact.Message{}
	switch typeCode {
	case compact.TypeDiceRoll:
		doc, err := sanitize.Parse(rawHTML)
		if err != nil {
			return nil, &DecodeError{Type: typeCode, Err: err}
		}
		fields, err := extract.DiceRoll(doc)
		if err != nil {
			return nil, &DecodeError{Type: typeCode, Err: err}
		}
		for k, v := range fields {
			msg[k] = v
		}

	case compact.TypeChatCard, compact.TypeCardDisplay:
		result, err := extract.ChatCard(rawHTML, t.analyzer, t.cache, cardType)
		if err != nil {
			return nil, &DecodeError{Type: typeCode, Err: err}
		}
		msg[compact.KeyFormula] = result.Fields
		if result.Name != "" {
			msg[compact.KeyName] = result.Name
		}

	default:
		// chat-message and its whisper / gm-note variants share markup.
		doc, err := sanitize.Parse(rawHTML)
		if err != nil {
			return nil, &DecodeError{Type: typeCode, Err: err}
		}
		fields, err := extract.ChatMessage(doc)
		if err != nil {
			return nil, &DecodeError{Type: typeCode, Err: err}
		}
		for k, v := range fields {
			msg[k] = v
		}
	}

	msg[compact.KeyType] = typeCode
	msg[compact.KeyTimestamp] = t.now().Unix()

	return msg, nil
}

// EncodeBatch translates many fragments with bounded concurrency.
// Fragment failures are recovered locally: the failed fragment is skipped
// and reported in the returned error slice while the rest of the batch
// proceeds.
func (t *Translator) EncodeBatch(ctx context.Context, fragments []string) ([]compact.Message, []error) {
	results := make([]compact.Message, len(fragments))
	errs := make([]error, len(fragments))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(t.maxConcurrent)

	for i, raw := range fragments {
		i, raw := i, raw
		g.Go(func() error {
			msg, err := t.HTMLToCompact(raw, "")
			if err != nil {
				errs[i] = err
				logging.Translator("batch fragment %d skipped: %v", i, err)
				return nil
			}
			results[i] = msg
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	out := make([]compact.Message, 0, len(fragments))
	var failures []error
	for i := range fragments {
		if errs[i] != nil {
			failures = append(failures, errs[i])
			continue
		}
		out = append(out, results[i])
	}
	return out, failures
}

// =============================================================================
// DECODE PATH
// =============================================================================

// CompactToWebSocket expands a compact message into the wire object the
// game client renders. When valueDict is supplied, every @v<N> token is
// resolved first. Card field codes map back to field names through the
// schema cache; an unresolved code falls back to the raw code as the
// field key and records a resolution miss, never dropping data.
func (t *Translator) CompactToWebSocket(msg compact.Message, cardType string, valueDict map[string]any) (*compact.WireObject, error) {
	typeCode := msg.Type()
	if typeCode == "" {
		return nil, &DecodeError{Type: "?", Err: fmt.Errorf("missing type key")}
	}

	resolved := resolveTokens(msg.Clone(), valueDict).(compact.Message)

	wire := &compact.WireObject{
		Type:     typeName(typeCode),
		CardType: cardType,
		Content:  compact.WireContent{Fields: make(map[string]any)},
	}

	if resolved.IsCard() {
		if cardType == "" {
			cardType = "chat-card"
			wire.CardType = cardType
		}
		for code, value := range resolved.Fields() {
			wire.Content.Fields[t.resolveCode(cardType, code)] = value
		}
		if name, ok := resolved[compact.KeyName].(string); ok {
			wire.Content.Name = name
		}
		return wire, nil
	}

	for key, value := range resolved {
		switch key {
		case compact.KeyType:
			continue
		case compact.KeyName:
			if s, ok := value.(string); ok {
				wire.Content.Name = s
				continue
			}
		}
		if full, ok := compact.KeyNames[key]; ok {
			wire.Content.Fields[full] = value
		} else {
			wire.Content.Fields[key] = value
		}
	}
	return wire, nil
}

// resolveCode maps one stored code back to a field name. Consolidated
// array codes resolve through their base code so a "f2_array" key decodes
// as "<base name>_array".
func (t *Translator) resolveCode(cardType, code string) string {
	if name, ok := t.cache.ReverseLookupCode(cardType, code); ok {
		return name
	}
	if base, found := strings.CutSuffix(code, "_array"); found {
		if name, ok := t.cache.ReverseLookupCode(cardType, base); ok {
			return name + "_array"
		}
	}
	// A defined fallback, not an error: keep the code as a literal key.
	logging.Get(logging.CategorySchema).Warn("resolution miss: %s.%s used as literal key", cardType, code)
	return code
}

// resolveTokens replaces @v<N> string values with their dictionary entry,
// recursively through nested lists and maps.
func resolveTokens(v any, dict map[string]any) any {
	if len(dict) == 0 {
		return v
	}
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "@v") {
			if original, ok := dict[val]; ok {
				return original
			}
		}
		return val
	case compact.Message:
		for k, item := range val {
			val[k] = resolveTokens(item, dict)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = resolveTokens(item, dict)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = resolveTokens(item, dict)
		}
		return val
	default:
		return val
	}
}

func typeName(code string) string {
	if name, ok := compact.TypeNames[code]; ok {
		return name
	}
	return code
}

// =============================================================================
// API MESSAGE PATH
// =============================================================================

// FromAPIMessages converts already-structured relay messages into the
// same compact shape the HTML path emits. Unknown message types become
// chat messages; empty entries are skipped.
func (t *Translator) FromAPIMessages(apiMessages []map[string]any) []compact.Message {
	out := make([]compact.Message, 0, len(apiMessages))

	for _, api := range apiMessages {
		msg := compact.Message{}

		typeName, _ := api["type"].(string)
		msg[compact.KeyType] = compact.TypeCodeFor(typeName)

		if s, ok := api["speaker"].(string); ok && s != "" {
			msg[compact.KeySpeaker] = s
		}
		if a, ok := api["author"].(string); ok && a != "" {
			msg[compact.KeyAuthor] = a
		}
		if c, ok := api["content"].(string); ok && c != "" {
			msg[compact.KeyContent] = sanitize.Text(c)
		} else if txt, ok := api["text"].(string); ok && txt != "" {
			msg[compact.KeyContent] = sanitize.Text(txt)
		}
		if ts, ok := api["timestamp"].(float64); ok {
			msg[compact.KeyTimestamp] = int64(ts)
		} else {
			msg[compact.KeyTimestamp] = t.now().Unix()
		}

		if len(msg) <= 2 {
			// Only type and timestamp: nothing worth transmitting.
			continue
		}
		out = append(out, msg)
	}

	return out
}

// =============================================================================
// FIELD DOCUMENTATION
// =============================================================================

// GenerateFieldDocumentation renders the current code/field vocabulary of
// a card type as text for the prompt builder, teaching the model what
// each code means.
func (t *Translator) GenerateFieldDocumentation(cardType string) string {
	fs, ok := t.cache.GetCachedMapping(cardType)
	if !ok || len(fs) == 0 {
		return fmt.Sprintf("No field codes cached for card type %q yet.", cardType)
	}

	type entry struct {
		code string
		name string
		m    schema.FieldMapping
	}
	entries := make([]entry, 0, len(fs))
	for name, m := range fs {
		entries = append(entries, entry{code: m.Code, name: name, m: m})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].code < entries[j].code })

	var sb strings.Builder
	fmt.Fprintf(&sb, "Field codes for card type %q:\n", cardType)
	for _, e := range entries {
		fmt.Fprintf(&sb, "  %s = %s", e.code, e.name)
		if e.m.ValueType != "" {
			fmt.Fprintf(&sb, " (%s)", e.m.ValueType)
		}
		if e.m.UsageCount > 0 {
			fmt.Fprintf(&sb, " [used %dx]", e.m.UsageCount)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
