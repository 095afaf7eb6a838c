package rules

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tradescript/tradescript/pkg/dsl"
)

func TestParseRuleSet(t *testing.T) {
	raw := json.RawMessage(`{
		"entry": [
			{"left": "close", "operator": ">", "right": "sma(close,20)"},
			{"left": "volume", "operator": ">", "right": 1000000}
		],
		"exit": [
			{"left": "rsi(close,14)", "operator": ">", "right": 70}
		]
	}`)

	rs, err := ParseRuleSet(raw)
	if err != nil {
		t.Fatalf("ParseRuleSet failed: %v", err)
	}
	if len(rs.Entry) != 2 || len(rs.Exit) != 1 {
		t.Fatalf("expected 2 entry / 1 exit rules, got %d / %d", len(rs.Entry), len(rs.Exit))
	}
	if rs.Entry[1].Right != float64(1000000) {
		t.Errorf("expected numeric right operand, got %#v", rs.Entry[1].Right)
	}
}

func TestParseRuleSetEmpty(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage("null")} {
		rs, err := ParseRuleSet(raw)
		if err != nil {
			t.Fatalf("ParseRuleSet(%q) failed: %v", raw, err)
		}
		if len(rs.Entry) != 0 || len(rs.Exit) != 0 {
			t.Errorf("expected empty rule set for %q", raw)
		}
	}
}

func TestParseRuleSetBadJSON(t *testing.T) {
	if _, err := ParseRuleSet(json.RawMessage(`{"entry": "nope"}`)); err == nil {
		t.Fatal("expected error for malformed rule JSON")
	}
}

func TestToDSL(t *testing.T) {
	rs := RuleSet{
		Entry: []Rule{
			{Left: "close", Operator: ">", Right: "sma(close,20)"},
			{Left: "volume", Operator: ">", Right: float64(1500000)},
		},
		Exit: []Rule{
			{Left: "rsi(14)", Operator: ">", Right: float64(70)},
		},
	}

	got := ToDSL(rs)
	want := "ENTRY: close > sma(close,20) AND volume > 1500000\nEXIT: rsi(close,14) > 70"
	if got != want {
		t.Errorf("ToDSL mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestToDSLEmptySides(t *testing.T) {
	got := ToDSL(RuleSet{})
	if got != "ENTRY: TRUE\nEXIT: FALSE" {
		t.Errorf("empty rule set should render TRUE/FALSE, got %q", got)
	}
}

func TestToDSLDedupes(t *testing.T) {
	rs := RuleSet{
		Entry: []Rule{
			{Left: "close", Operator: ">", Right: float64(100)},
			{Left: "close", Operator: ">", Right: float64(100)},
			{Left: "rsi(14)", Operator: "<", Right: float64(30)},
			{Left: "rsi(close,14)", Operator: "<", Right: float64(30)},
		},
	}
	got := ToDSL(rs)
	if strings.Count(got, "close > 100") != 1 {
		t.Errorf("duplicate comparison not removed: %q", got)
	}
	if strings.Count(got, "rsi(close,14) < 30") != 1 {
		t.Errorf("shorthand duplicate not removed: %q", got)
	}
}

func TestToDSLCrossAndPct(t *testing.T) {
	rs := RuleSet{
		Entry: []Rule{
			{Left: "close", Operator: "CROSS_ABOVE", Right: "sma(close,50)"},
			{Left: "volume", Operator: "PCT_INCREASE", Right: map[string]any{"period": float64(5), "pct": float64(20)}},
		},
		Exit: []Rule{
			{Left: "close", Operator: "CROSS_BELOW", Right: "low", TimeModifier: "yesterday"},
		},
	}
	got := ToDSL(rs)
	want := "ENTRY: CROSS_ABOVE(close, sma(close,50)) AND PCT_INCREASE(volume, 5, 20)\nEXIT: CROSS_BELOW(close, low)"
	if got != want {
		t.Errorf("ToDSL mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

// The canonicalizer's whole contract is that the strict parser accepts
// its output.
func TestToDSLOutputParses(t *testing.T) {
	sets := []RuleSet{
		{},
		{
			Entry: []Rule{
				{Left: "close", Operator: ">", Right: "sma(close,20)"},
				{Left: "rsi(14)", Operator: "<", Right: float64(30)},
				{Left: "volume", Operator: "PCT_INCREASE", Right: map[string]any{"period": float64(7), "pct": float64(12.5)}},
			},
			Exit: []Rule{
				{Left: "close", Operator: "CROSS_BELOW", Right: "sma(close,20)"},
			},
		},
	}
	for _, rs := range sets {
		text := ToDSL(rs)
		if _, err := dsl.Parse(text); err != nil {
			t.Errorf("canonical text %q does not parse: %v", text, err)
		}
	}
}

func TestValidate(t *testing.T) {
	rs := RuleSet{
		Entry: []Rule{
			{Left: "close", Operator: ">", Right: float64(100)},
			{Left: "", Operator: ">", Right: float64(1)},
			{Left: "close", Operator: "BETWIXT", Right: float64(1)},
			{Left: "volume", Operator: "PCT_INCREASE", Right: map[string]any{"pct": float64(10)}},
		},
		Exit: []Rule{
			{Left: "close", Operator: "<"},
		},
	}

	problems := Validate(rs)
	if len(problems) != 4 {
		t.Fatalf("expected 4 problems, got %d: %v", len(problems), problems)
	}
	wantFragments := []string{
		"entry[1]: missing left operand",
		`entry[2]: unknown operator "BETWIXT"`,
		"entry[3]: PCT_INCREASE requires",
		"exit[0]: missing right operand",
	}
	for i, frag := range wantFragments {
		if !strings.Contains(problems[i], frag) {
			t.Errorf("problem %d: expected to contain %q, got %q", i, frag, problems[i])
		}
	}
}

func TestValidateClean(t *testing.T) {
	rs := RuleSet{
		Entry: []Rule{{Left: "close", Operator: ">", Right: float64(100)}},
		Exit:  []Rule{{Left: "close", Operator: "CROSS_BELOW", Right: "sma(close,20)"}},
	}
	if problems := Validate(rs); len(problems) != 0 {
		t.Errorf("expected no problems, got %v", problems)
	}
}
