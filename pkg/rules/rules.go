// Package rules defines the structured rule documents produced by the
// rule-builder front ends (the nl package or an external UI) and turns
// them into canonical DSL text for the parser.
//
// A Rule is a flat JSON object; the Right operand may be a number, a
// string (series name or indicator shorthand), or for PCT_INCREASE an
// object with period and pct fields.
package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Rule represents a single structured condition.
type Rule struct {
	Left         string `json:"left"`
	Operator     string `json:"operator"`
	Right        any    `json:"right,omitempty"`
	TimeModifier string `json:"time_modifier,omitempty"`
}

// RuleSet groups entry and exit rules.
type RuleSet struct {
	Entry []Rule `json:"entry"`
	Exit  []Rule `json:"exit"`
}

// knownOperators are the operators the canonicalizer understands.
var knownOperators = map[string]bool{
	">": true, "<": true, ">=": true, "<=": true, "==": true,
	"CROSS_ABOVE": true, "CROSS_BELOW": true,
	"PCT_INCREASE": true,
}

// ParseRuleSet parses raw JSON into a RuleSet.
func ParseRuleSet(raw json.RawMessage) (RuleSet, error) {
	var rs RuleSet
	if len(raw) == 0 || string(raw) == "null" {
		return rs, nil
	}
	if err := json.Unmarshal(raw, &rs); err != nil {
		return rs, fmt.Errorf("parsing rule JSON: %w", err)
	}
	return rs, nil
}

// rsiShorthand matches the rsi(N) shorthand emitted by loose front
// ends; it normalizes to rsi(close,N).
var rsiShorthand = regexp.MustCompile(`(?i)^rsi\(\s*(\d+)\s*\)$`)

func normalizeOperand(s string) string {
	if m := rsiShorthand.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		return fmt.Sprintf("rsi(close,%s)", m[1])
	}
	return s
}

// normalizeRule normalizes operand shorthands in place.
func normalizeRule(r Rule) Rule {
	r.Left = normalizeOperand(r.Left)
	if s, ok := r.Right.(string); ok {
		r.Right = normalizeOperand(s)
	}
	return r
}

// ruleKey builds the deduplication key for a rule.
func ruleKey(r Rule) string {
	switch {
	case strings.HasPrefix(r.Operator, "CROSS_"):
		return fmt.Sprintf("cross|%s|%s|%v|%s", r.Operator, r.Left, r.Right, r.TimeModifier)
	case r.Operator == "PCT_INCREASE":
		period, pct, _ := pctArgs(r.Right)
		return fmt.Sprintf("pct|%s|%d|%v", r.Left, period, pct)
	default:
		return fmt.Sprintf("cmp|%s|%s|%v", r.Left, r.Operator, r.Right)
	}
}

// dedupe drops repeated rules while preserving order.
func dedupe(in []Rule) []Rule {
	seen := make(map[string]bool, len(in))
	out := make([]Rule, 0, len(in))
	for _, r := range in {
		k := ruleKey(r)
		if !seen[k] {
			seen[k] = true
			out = append(out, r)
		}
	}
	return out
}

// pctArgs extracts the period and pct fields from a PCT_INCREASE right
// operand (a JSON object decoded as map[string]any).
func pctArgs(right any) (int, float64, bool) {
	m, ok := right.(map[string]any)
	if !ok {
		return 0, 0, false
	}
	period, okP := toFloat(m["period"])
	pct, okC := toFloat(m["pct"])
	if !okP || !okC || period < 1 {
		return 0, 0, false
	}
	return int(period), pct, true
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}

// formatOperand renders a right operand as DSL text.
func formatOperand(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprint(val)
	}
}

// ruleText renders one rule as canonical DSL text.
func ruleText(r Rule) string {
	switch {
	case strings.HasPrefix(r.Operator, "CROSS_"):
		return fmt.Sprintf("%s(%s, %s)", r.Operator, r.Left, formatOperand(r.Right))
	case r.Operator == "PCT_INCREASE":
		period, pct, _ := pctArgs(r.Right)
		return fmt.Sprintf("PCT_INCREASE(%s, %d, %s)",
			r.Left, period, strconv.FormatFloat(pct, 'f', -1, 64))
	default:
		return fmt.Sprintf("%s %s %s", r.Left, r.Operator, formatOperand(r.Right))
	}
}

// ToDSL converts a RuleSet to canonical DSL text. Rules within a side
// are joined with AND; a side with no rules renders as TRUE (entry) or
// FALSE (exit) so the parsed strategy stays total.
func ToDSL(rs RuleSet) string {
	entry := make([]Rule, 0, len(rs.Entry))
	for _, r := range rs.Entry {
		entry = append(entry, normalizeRule(r))
	}
	exit := make([]Rule, 0, len(rs.Exit))
	for _, r := range rs.Exit {
		exit = append(exit, normalizeRule(r))
	}
	entry = dedupe(entry)
	exit = dedupe(exit)

	entryText := "TRUE"
	if len(entry) > 0 {
		parts := make([]string, len(entry))
		for i, r := range entry {
			parts[i] = ruleText(r)
		}
		entryText = strings.Join(parts, " AND ")
	}

	exitText := "FALSE"
	if len(exit) > 0 {
		parts := make([]string, len(exit))
		for i, r := range exit {
			parts[i] = ruleText(r)
		}
		exitText = strings.Join(parts, " AND ")
	}

	return fmt.Sprintf("ENTRY: %s\nEXIT: %s", entryText, exitText)
}

// Validate checks a RuleSet for structural issues and returns
// human-readable problems, empty when the set is well formed.
func Validate(rs RuleSet) []string {
	var errs []string
	errs = append(errs, validateSide("entry", rs.Entry)...)
	errs = append(errs, validateSide("exit", rs.Exit)...)
	return errs
}

func validateSide(side string, ruleList []Rule) []string {
	var errs []string
	for i, r := range ruleList {
		path := fmt.Sprintf("%s[%d]", side, i)
		if r.Left == "" {
			errs = append(errs, fmt.Sprintf("%s: missing left operand", path))
		}
		if r.Operator == "" {
			errs = append(errs, fmt.Sprintf("%s: missing operator", path))
			continue
		}
		if !knownOperators[r.Operator] {
			errs = append(errs, fmt.Sprintf("%s: unknown operator %q", path, r.Operator))
			continue
		}
		if r.Operator == "PCT_INCREASE" {
			if _, _, ok := pctArgs(r.Right); !ok {
				errs = append(errs, fmt.Sprintf("%s: PCT_INCREASE requires right operand with period >= 1 and pct", path))
			}
			continue
		}
		if r.Right == nil {
			errs = append(errs, fmt.Sprintf("%s: missing right operand", path))
		}
	}
	return errs
}
