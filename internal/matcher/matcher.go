package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/collectarr/collectarr/internal/models"
)

// patternKind describes how a single pattern participates in matching.
type patternKind int

const (
	// kindRegex patterns match name, number and epg attributes as
	// case-insensitive regular expressions.
	kindRegex patternKind = iota

	// kindNumeric patterns (pure digits, optionally a range) match the
	// channel number as exact whole tokens, never substrings, and are
	// skipped for name matching.
	kindNumeric
)

type pattern struct {
	raw    string
	kind   patternKind
	tokens map[string]struct{} // exact numeric tokens, kind == kindNumeric
	re     *regexp.Regexp      // nil when compilation failed
}

// Compiled is one rule's pattern set, compiled once per cycle.
// Malformed patterns fail closed: they match nothing and surface in
// Warnings instead of aborting the cycle.
type Compiled struct {
	rule     models.Rule
	patterns []pattern
	Warnings []string
}

// Compile prepares a rule for evaluation against the channel inventory.
func Compile(rule models.Rule) *Compiled {
	c := &Compiled{rule: rule}

	for _, raw := range rule.Patterns {
		p := pattern{raw: raw}

		if tokens, ok := ExpandRange(raw); ok {
			p.kind = kindNumeric
			p.tokens = tokens
		} else if tok, ok := numericToken(raw); ok {
			p.kind = kindNumeric
			p.tokens = map[string]struct{}{tok: {}}
		}

		// Numeric patterns still get a compiled regex so they can be
		// applied to epg attributes; a failed compile only disables the
		// regex paths for that pattern.
		re, err := compilePattern(raw)
		if err != nil {
			if p.kind == kindRegex {
				c.Warnings = append(c.Warnings,
					fmt.Sprintf("rule %q: invalid pattern %q: %v", rule.Name, raw, err))
				continue
			}
		} else {
			p.re = re
		}

		c.patterns = append(c.patterns, p)
	}

	return c
}

// compilePattern compiles a pattern case-insensitively. Inline flags in
// the pattern (e.g. "(?-i:Foo)") can restore case sensitivity locally.
func compilePattern(raw string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + raw)
}

// numericToken reports whether the pattern, with "." and "," stripped,
// consists only of digits. The returned token is the canonical channel
// number form, so "400.0" and "400" compare equal.
func numericToken(raw string) (string, bool) {
	stripped := strings.NewReplacer(".", "", ",", "").Replace(raw)
	if stripped == "" {
		return "", false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	n, err := models.ParseChannelNumber(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return "", false
	}
	return n.String(), true
}

// Matches reports whether the channel matches the rule: at least one
// pattern under at least one enabled match type. An empty pattern list
// or empty match-type set matches nothing.
func (c *Compiled) Matches(ch models.Channel) bool {
	if len(c.patterns) == 0 || len(c.rule.MatchTypes) == 0 {
		return false
	}
	if !c.rule.MatchesSource(ch.SourceID) {
		return false
	}

	matchName := c.rule.HasMatchType(models.MatchTypeName)
	matchNumber := c.rule.HasMatchType(models.MatchTypeNumber)
	matchEPG := c.rule.HasMatchType(models.MatchTypeEPG)

	number := ch.CanonicalNumber()

	for _, p := range c.patterns {
		if matchName && p.kind == kindRegex && p.re != nil && p.re.MatchString(ch.Name) {
			return true
		}

		if matchNumber {
			switch p.kind {
			case kindNumeric:
				if _, ok := p.tokens[number]; ok {
					return true
				}
			case kindRegex:
				if p.re != nil && p.re.MatchString(number) {
					return true
				}
			}
		}

		if matchEPG && p.re != nil {
			if (ch.Callsign != "" && p.re.MatchString(ch.Callsign)) ||
				(ch.Affiliate != "" && p.re.MatchString(ch.Affiliate)) {
				return true
			}
		}
	}

	return false
}

// MatchAll filters the inventory down to the channels matching the
// rule, preserving inventory order.
func (c *Compiled) MatchAll(channels []models.Channel) []models.Channel {
	var matched []models.Channel
	for _, ch := range channels {
		if c.Matches(ch) {
			matched = append(matched, ch)
		}
	}
	return matched
}
