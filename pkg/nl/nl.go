// Package nl maps free-form natural-language trading descriptions to
// structured rule sets via regexp heuristics.
//
// The mapper is deliberately shallow: it recognizes a fixed set of
// phrasings (moving-average comparisons, volume thresholds, RSI
// comparisons, cross events, volume percentage increases) and assigns
// each matched rule to the entry or exit side. Anything it does not
// recognize is silently ignored; the output feeds the rules package,
// whose canonical text the strict DSL parser then checks.
package nl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tradescript/tradescript/pkg/rules"
)

var (
	numberMillion = regexp.MustCompile(`^([\d.]+)\s*million$`)
	numberBillion = regexp.MustCompile(`^([\d.]+)\s*billion$`)
	numberPercent = regexp.MustCompile(`^([\d.]+)%$`)
	numberPlain   = regexp.MustCompile(`^([\d.]+)`)

	smaPattern = regexp.MustCompile(
		`(close|open|high|low)\s*(?:price\s*)?(?:is\s*)?(above|below|>|<)\s*(?:the\s*)?(\d{1,3})-day\s*moving\s*average`)
	volumePattern = regexp.MustCompile(
		`volume\s*(?:is\s*)?(above|below|>|<)\s*([\d.]+(?:\s*(?:million|billion))?)`)
	rsiPattern = regexp.MustCompile(
		`rsi\s*\(\s*(\d{1,2})\s*\)\s*(?:is\s*)?(above|below|>|<)\s*(\d{1,3})`)
	crossPattern = regexp.MustCompile(
		`(price|close)\s*cross(?:es)?\s*(above|below)\s*yesterday'?s\s*(high|low)`)
	volumePctPattern = regexp.MustCompile(
		`volume\s+.*?increase(?:s)?\s+by\s+(?:more\s+than\s+)?([\d.]+)\s*(?:%|percent)\s*(?:compared\s+to|vs|versus)\s*(last week|last 7 days|last 7|last 5)`)
)

// ParseNumber interprets numeric phrases such as "1.5 million",
// "2 billion", "30%", or plain digits. Returns false when the text is
// not a recognizable number.
func ParseNumber(text string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.ReplaceAll(s, ",", "")

	if m := numberMillion.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		return v * 1_000_000, err == nil
	}
	if m := numberBillion.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		return v * 1_000_000_000, err == nil
	}
	if m := numberPercent.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		return v, err == nil
	}
	if m := numberPlain.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		return v, err == nil
	}
	return 0, false
}

// MapRules extracts structured rules from a natural-language strategy
// description and splits them into entry and exit sides.
func MapRules(text string) rules.RuleSet {
	nl := strings.ToLower(strings.TrimSpace(text))

	var matched []rules.Rule
	matched = append(matched, matchSMA(nl)...)
	matched = append(matched, matchVolume(nl)...)
	matched = append(matched, matchRSI(nl)...)
	matched = append(matched, matchCross(nl)...)
	matched = append(matched, matchVolumePctIncrease(nl)...)

	var rs rules.RuleSet
	for _, r := range matched {
		switch {
		case r.Operator == "PCT_INCREASE":
			// Percentage spikes read as entry triggers.
			rs.Entry = append(rs.Entry, r)
		case strings.HasPrefix(r.Left, "rsi") && r.Operator == "<":
			// Oversold RSI reads as an exit condition.
			rs.Exit = append(rs.Exit, r)
		default:
			rs.Entry = append(rs.Entry, r)
		}
	}
	return rs
}

func comparisonOp(word string) string {
	if word == "above" || word == ">" {
		return ">"
	}
	return "<"
}

func matchSMA(nl string) []rules.Rule {
	var out []rules.Rule
	for _, m := range smaPattern.FindAllStringSubmatch(nl, -1) {
		series := m[1]
		days, _ := strconv.Atoi(m[3])
		out = append(out, rules.Rule{
			Left:     series,
			Operator: comparisonOp(m[2]),
			Right:    fmt.Sprintf("sma(%s,%d)", series, days),
		})
	}
	return out
}

func matchVolume(nl string) []rules.Rule {
	var out []rules.Rule
	for _, m := range volumePattern.FindAllStringSubmatch(nl, -1) {
		num, ok := ParseNumber(m[2])
		if !ok {
			continue
		}
		out = append(out, rules.Rule{
			Left:     "volume",
			Operator: comparisonOp(m[1]),
			Right:    num,
		})
	}
	return out
}

func matchRSI(nl string) []rules.Rule {
	var out []rules.Rule
	for _, m := range rsiPattern.FindAllStringSubmatch(nl, -1) {
		n, _ := strconv.Atoi(m[1])
		threshold, _ := strconv.Atoi(m[3])
		out = append(out, rules.Rule{
			Left:     fmt.Sprintf("rsi(close,%d)", n),
			Operator: comparisonOp(m[2]),
			Right:    float64(threshold),
		})
	}
	return out
}

func matchCross(nl string) []rules.Rule {
	var out []rules.Rule
	for _, m := range crossPattern.FindAllStringSubmatch(nl, -1) {
		op := "CROSS_ABOVE"
		if m[2] == "below" {
			op = "CROSS_BELOW"
		}
		out = append(out, rules.Rule{
			Left:         m[1],
			Operator:     op,
			Right:        m[3],
			TimeModifier: "yesterday",
		})
	}
	return out
}

func matchVolumePctIncrease(nl string) []rules.Rule {
	var out []rules.Rule
	for _, m := range volumePctPattern.FindAllStringSubmatch(nl, -1) {
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		// "last week" means 5 trading days; "last 7 days" means 7.
		period := 5
		if strings.Contains(m[2], "7") {
			period = 7
		}
		out = append(out, rules.Rule{
			Left:     "volume",
			Operator: "PCT_INCREASE",
			Right:    map[string]any{"period": float64(period), "pct": pct},
		})
	}
	return out
}
