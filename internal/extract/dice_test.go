package extract

import (
	"errors"
	"testing"

	"goldbox/internal/compact"
	"goldbox/internal/sanitize"
)

func TestDiceRoll_PrimarySelectors(t *testing.T) {
	raw := `
<div class="dice-roll">
  <div class="flavor-text">Attack with longsword</div>
  <div class="dice-formula">1d20 + 5</div>
  <ol class="dice-results">
    <li class="die">12</li>
  </ol>
  <h4 class="dice-total"><i class="fas fa-dice"></i> 17</h4>
</div>`
	doc, err := sanitize.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	fields, err := DiceRoll(doc)
	if err != nil {
		t.Fatalf("DiceRoll failed: %v", err)
	}

	if got := fields[compact.KeyFlavor]; got != "Attack with longsword" {
		t.Errorf("flavor = %v", got)
	}
	if got := fields[compact.KeyFormula]; got != "1d20 + 5" {
		t.Errorf("formula = %v", got)
	}
	// Total element wraps icon markup; only the first integer counts.
	if got := fields[compact.KeyTotal]; got != 17 {
		t.Errorf("total = %v, want 17", got)
	}
	results, ok := fields[compact.KeyResults].([]any)
	if !ok || len(results) != 1 || results[0] != 12 {
		t.Errorf("results = %v, want [12]", fields[compact.KeyResults])
	}
}

func TestDiceRoll_LegacyFallbackSelectors(t *testing.T) {
	raw := `
<div class="dice-roll">
  <span class="formula">2d6</span>
  <span class="roll-total">9</span>
  <span class="roll">4</span>
  <span class="roll">5</span>
</div>`
	doc, _ := sanitize.Parse(raw)

	fields, err := DiceRoll(doc)
	if err != nil {
		t.Fatalf("DiceRoll failed: %v", err)
	}
	if got := fields[compact.KeyFormula]; got != "2d6" {
		t.Errorf("formula = %v, want 2d6", got)
	}
	if got := fields[compact.KeyTotal]; got != 9 {
		t.Errorf("total = %v, want 9", got)
	}
	results, _ := fields[compact.KeyResults].([]any)
	if len(results) != 2 {
		t.Errorf("results = %v, want two dice", results)
	}
}

func TestDiceRoll_NegativeTotal(t *testing.T) {
	doc, _ := sanitize.Parse(`<div class="dice-roll"><span class="dice-total">-2</span></div>`)
	fields, err := DiceRoll(doc)
	if err != nil {
		t.Fatalf("DiceRoll failed: %v", err)
	}
	if got := fields[compact.KeyTotal]; got != -2 {
		t.Errorf("total = %v, want -2", got)
	}
}

func TestDiceRoll_NoRollMarkup(t *testing.T) {
	doc, _ := sanitize.Parse(`<div class="dice-roll"><p>nothing rolled</p></div>`)
	if _, err := DiceRoll(doc); err == nil {
		t.Error("expected error for roll with no total and no formula")
	}
}

func TestFieldError_Wraps(t *testing.T) {
	base := errors.New("boom")
	if !errors.Is(fieldError("dice-roll", base), base) {
		t.Error("fieldError must wrap its cause")
	}
}
