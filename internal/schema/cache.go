// Package schema owns the per-card-type field code registry: the single
// piece of shared mutable state in the translation core.
//
// Within one card type the field-name/code relation is a stable bijection
// for the lifetime of the cache. A code, once assigned, never changes
// meaning and is never reassigned to a different field name.
//
// Code synthesis is deterministic and name-derived: the field name's stem
// is abbreviated to a short consonant-favored form and any numeric suffix
// the name carries is preserved verbatim (damage -> dmg, dmg1 -> dmg1,
// spell_level -> spl). Preserving the suffix matters: the batch
// post-processor consolidates numbered sibling codes by their shared
// base, so numbered fields must stay visibly numbered on the wire, and
// unnumbered fields must never receive digit-ending codes. Collisions
// within a card type are resolved by deterministically extending the
// alphabetic part, never the digits.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"goldbox/internal/logging"
)

// FieldMapping records everything known about one field of a card type.
type FieldMapping struct {
	// Code is the short alias used on the wire.
	Code string

	// ValueType tags the field's value kind as reported by the analyzer
	// ("string", "number", "bool", "list", "map").
	ValueType string

	// Confidence is the analyzer's confidence at first sighting (0.0-1.0).
	Confidence float64

	// UsageCount tracks how often the field has been translated.
	// Telemetry only; never affects code assignment.
	UsageCount int
}

// FieldSchema maps field names to their mappings for one card type.
type FieldSchema map[string]FieldMapping

// FieldInfo describes a field at registration time.
type FieldInfo struct {
	ValueType  string
	Confidence float64
}

// Cache is the process-wide schema registry. Reads run concurrently;
// first-sighting writes are serialized behind the write lock.
type Cache struct {
	mu      sync.RWMutex
	schemas map[string]FieldSchema       // card type -> field schema
	reverse map[string]map[string]string // card type -> code -> field name
	store   *Store                       // optional persistence, may be nil
}

// NewCache creates an empty in-memory cache.
func NewCache() *Cache {
	return &Cache{
		schemas: make(map[string]FieldSchema),
		reverse: make(map[string]map[string]string),
	}
}

// NewPersistentCache opens (or creates) a SQLite-backed cache at path and
// loads any previously persisted mappings.
func NewPersistentCache(path string) (*Cache, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}

	c := NewCache()
	c.store = store

	rows, err := store.LoadAll()
	if err != nil {
		store.Close()
		return nil, err
	}
	for _, row := range rows {
		c.restore(row)
	}

	logging.Schema("loaded %d persisted field mappings from %s", len(rows), path)
	return c, nil
}

// restore installs a persisted row without going through code synthesis.
func (c *Cache) restore(row StoredField) {
	fs, ok := c.schemas[row.CardType]
	if !ok {
		fs = make(FieldSchema)
		c.schemas[row.CardType] = fs
		c.reverse[row.CardType] = make(map[string]string)
	}
	fs[row.FieldName] = FieldMapping{
		Code:       row.Code,
		ValueType:  row.ValueType,
		Confidence: row.Confidence,
		UsageCount: row.UsageCount,
	}
	c.reverse[row.CardType][row.Code] = row.FieldName
}

// GenerateCodes returns the code for every given field of the card type,
// synthesizing and registering codes for names seen for the first time.
// Idempotent and monotonic: the same name always yields the same code no
// matter what other fields were registered in between.
func (c *Cache) GenerateCodes(cardType string, fields map[string]FieldInfo) (nameToCode, codeToName map[string]string, err error) {
	if cardType == "" {
		return nil, nil, fmt.Errorf("schema: card type required")
	}

	nameToCode = make(map[string]string, len(fields))
	codeToName = make(map[string]string, len(fields))

	c.mu.Lock()
	defer c.mu.Unlock()

	fs, ok := c.schemas[cardType]
	if !ok {
		fs = make(FieldSchema)
		c.schemas[cardType] = fs
		c.reverse[cardType] = make(map[string]string)
	}

	// Assign new codes in sorted name order so a single call with
	// multiple unseen fields is deterministic.
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mapping, seen := fs[name]
		if !seen {
			code := synthesizeCode(c.reverse[cardType], name)

			info := fields[name]
			mapping = FieldMapping{
				Code:       code,
				ValueType:  info.ValueType,
				Confidence: info.Confidence,
			}
			fs[name] = mapping
			c.reverse[cardType][code] = name

			logging.SchemaDebug("new field %s.%s -> %s (%s)", cardType, name, code, info.ValueType)

			if c.store != nil {
				if err := c.store.Upsert(cardType, name, mapping); err != nil {
					// Write failures are operator-visible and fatal for
					// the operation, never silently swallowed.
					return nil, nil, fmt.Errorf("schema: persist %s.%s: %w", cardType, name, err)
				}
			}
		}
		nameToCode[name] = mapping.Code
		codeToName[mapping.Code] = name
	}

	return nameToCode, codeToName, nil
}

// GetCachedMapping returns a copy of the field schema for a card type.
// The second result is false when the card type has never been seen.
func (c *Cache) GetCachedMapping(cardType string) (FieldSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fs, ok := c.schemas[cardType]
	if !ok {
		return nil, false
	}
	out := make(FieldSchema, len(fs))
	for name, mapping := range fs {
		out[name] = mapping
	}
	return out, true
}

// ReverseLookupCode resolves a code back to its field name. A miss is a
// defined, non-fatal outcome: callers fall back to treating the code as a
// literal field key.
func (c *Cache) ReverseLookupCode(cardType, code string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	codes, ok := c.reverse[cardType]
	if !ok {
		return "", false
	}
	name, ok := codes[code]
	return name, ok
}

// UpdateUsage increments the usage counter for telemetry. It never
// affects code assignment and is a no-op for unknown fields.
func (c *Cache) UpdateUsage(cardType, fieldName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs, ok := c.schemas[cardType]
	if !ok {
		return
	}
	mapping, ok := fs[fieldName]
	if !ok {
		return
	}
	mapping.UsageCount++
	fs[fieldName] = mapping

	if c.store != nil {
		if err := c.store.UpdateUsage(cardType, fieldName, mapping.UsageCount); err != nil {
			logging.Get(logging.CategorySchema).Warn("usage persist failed for %s.%s: %v", cardType, fieldName, err)
		}
	}
}

// CardTypes returns the known card types in sorted order.
func (c *Cache) CardTypes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.schemas))
	for ct := range c.schemas {
		out = append(out, ct)
	}
	sort.Strings(out)
	return out
}

// Reset clears every mapping. Explicit operator action only (new
// session); the cache is never garbage-collected mid-session.
func (c *Cache) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.schemas = make(map[string]FieldSchema)
	c.reverse = make(map[string]map[string]string)

	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			return fmt.Errorf("schema: reset store: %w", err)
		}
	}
	logging.Schema("cache reset")
	return nil
}

// Close releases the persistence handle, if any.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

// synthesizeCode derives the code for an unseen field name, guaranteed
// unique among the codes already assigned for the card type. The numeric
// suffix of the name, if any, is carried into the code unchanged.
func synthesizeCode(assigned map[string]string, name string) string {
	stem, digits := splitNumericSuffix(name)
	base := abbreviate(stem)

	candidate := base + digits
	for {
		if _, taken := assigned[candidate]; !taken {
			return candidate
		}
		// Extend the alphabetic part only; the digits are load-bearing.
		base = extendBase(base, stem)
		candidate = base + digits
	}
}

// splitNumericSuffix splits "dmg7" into ("dmg", "7"); names without a
// trailing number return ("name", "").
func splitNumericSuffix(name string) (stem, digits string) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	return name[:i], name[i:]
}

// isVowel for abbreviation purposes.
func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// abbreviate shortens a name stem to at most three letters, favoring the
// leading character and subsequent consonants: "damage" -> "dmg",
// "health" -> "hlt", "spell_level" -> "spl". Short stems pass through.
func abbreviate(stem string) string {
	var letters []rune
	for _, r := range strings.ToLower(stem) {
		if unicode.IsLetter(r) {
			letters = append(letters, r)
		}
	}
	if len(letters) == 0 {
		return "x"
	}
	if len(letters) <= 3 {
		return string(letters)
	}

	out := []rune{letters[0]}
	for _, r := range letters[1:] {
		if len(out) == 3 {
			break
		}
		if !isVowel(r) {
			out = append(out, r)
		}
	}
	// Stems like "aeiou" may not yield enough consonants.
	for _, r := range letters[1:] {
		if len(out) == 3 {
			break
		}
		if isVowel(r) {
			out = append(out, r)
		}
	}
	return string(out)
}

// extendBase appends the next unused letter of the stem, falling back to
// "x" once the stem is exhausted. Strictly lengthens the base, so the
// synthesis loop always terminates.
func extendBase(base, stem string) string {
	var letters []rune
	for _, r := range strings.ToLower(stem) {
		if unicode.IsLetter(r) {
			letters = append(letters, r)
		}
	}
	if len(base) < len(letters) {
		return base + string(letters[len(base)])
	}
	return base + "x"
}
