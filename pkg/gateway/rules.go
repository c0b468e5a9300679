package gateway

import (
	"fmt"
	"regexp"
	"strings"
)

// minMultiplier and maxMultiplier bound the valid margin range (spec.md
// §4.E: "values outside [1.0, 3.0] SHOULD be rejected at config load").
const (
	minMultiplier = 1.0
	maxMultiplier = 3.0
)

// RawRule is the unvalidated, uncompiled form of a margin rule, as read
// from configuration.
type RawRule struct {
	Provider   string
	Pattern    string
	Multiplier float64
}

// rule is a compiled margin rule.
type rule struct {
	provider   string
	pattern    string
	multiplier float64
	re         *regexp.Regexp
}

// RuleSet holds the ordered, compiled margin rules plus the default
// margin applied when nothing matches.
type RuleSet struct {
	rules         []rule
	defaultMargin float64
}

// NewRuleSet compiles raw and validates every multiplier is within
// [1.0, 3.0], returning ErrInvalidMultiplier on the first violation.
// Rules are matched in the order given (spec.md §4.E, "ordered list").
func NewRuleSet(raw []RawRule, defaultMargin float64) (*RuleSet, error) {
	if defaultMargin < minMultiplier || defaultMargin > maxMultiplier {
		return nil, fmt.Errorf("%w: default margin %g", ErrInvalidMultiplier, defaultMargin)
	}

	rules := make([]rule, 0, len(raw))
	for _, r := range raw {
		if r.Multiplier < minMultiplier || r.Multiplier > maxMultiplier {
			return nil, fmt.Errorf("%w: rule %s/%s multiplier %g", ErrInvalidMultiplier, r.Provider, r.Pattern, r.Multiplier)
		}
		re, err := compileGlob(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling margin rule pattern %q: %w", r.Pattern, err)
		}
		rules = append(rules, rule{provider: r.Provider, pattern: r.Pattern, multiplier: r.Multiplier, re: re})
	}

	return &RuleSet{rules: rules, defaultMargin: defaultMargin}, nil
}

// compileGlob translates a glob pattern into an anchored regexp by
// treating '*' as '.*' and escaping everything else (spec.md §4.E).
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		if r == '*' {
			b.WriteString(".*")
		} else {
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// Resolve returns the margin for (provider, modelPattern): the multiplier
// of the first matching rule, or the default margin (spec.md §4.E,
// "margin = matchingRule(provider, modelPattern) ?? defaultMargin").
func (rs *RuleSet) Resolve(provider, modelPattern string) float64 {
	for _, r := range rs.rules {
		if r.provider != provider {
			continue
		}
		if r.re.MatchString(modelPattern) {
			return r.multiplier
		}
	}
	return rs.defaultMargin
}
