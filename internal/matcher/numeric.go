package matcher

import (
	"strconv"
	"strings"
)

// maxRangeTokens bounds number-range expansion. Larger ranges fall back
// to generic regex treatment rather than allocating huge token sets.
const maxRangeTokens = 10000

// ExpandRange detects number-range patterns of the form "START-END" and
// expands them into the set of exact numeric tokens covering the
// inclusive range.
//
// Supported shapes:
//   - integer ranges: "100-103" -> {100, 101, 102, 103}
//   - decimal ranges sharing the integer part: "5.1-5.3" -> {5.1, 5.2, 5.3}
//
// Decimal ranges spanning different integer parts (e.g. "5.8-6.2") are
// not expanded; the pattern is treated as a generic regex by the caller.
func ExpandRange(raw string) (map[string]struct{}, bool) {
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return nil, false
	}

	start, startOK := parseRangeBound(parts[0])
	end, endOK := parseRangeBound(parts[1])
	if !startOK || !endOK {
		return nil, false
	}

	if !start.hasMinor && !end.hasMinor {
		return expandIntegers(start.major, end.major)
	}

	if start.hasMinor && end.hasMinor && start.major == end.major {
		return expandFractions(start.major, start.minor, end.minor)
	}

	return nil, false
}

type rangeBound struct {
	major    int
	minor    int
	hasMinor bool
}

// parseRangeBound accepts a numeric token with at most one decimal
// point. Unlike models.ParseChannelNumber it keeps ".0" significant so
// "5.0-5.3" expands as a fractional range.
func parseRangeBound(s string) (rangeBound, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return rangeBound{}, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return rangeBound{}, false
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return rangeBound{}, false
	}

	b := rangeBound{major: major}
	if len(parts) == 2 {
		minor, err := strconv.Atoi(parts[1])
		if err != nil {
			return rangeBound{}, false
		}
		b.minor = minor
		b.hasMinor = true
	}

	return b, true
}

func expandIntegers(start, end int) (map[string]struct{}, bool) {
	if start > end || end-start+1 > maxRangeTokens {
		return nil, false
	}
	tokens := make(map[string]struct{}, end-start+1)
	for n := start; n <= end; n++ {
		tokens[strconv.Itoa(n)] = struct{}{}
	}
	return tokens, true
}

func expandFractions(major, startMinor, endMinor int) (map[string]struct{}, bool) {
	if startMinor > endMinor || endMinor-startMinor+1 > maxRangeTokens {
		return nil, false
	}
	tokens := make(map[string]struct{}, endMinor-startMinor+1)
	for m := startMinor; m <= endMinor; m++ {
		if m == 0 {
			tokens[strconv.Itoa(major)] = struct{}{}
			continue
		}
		tokens[strconv.Itoa(major)+"."+strconv.Itoa(m)] = struct{}{}
	}
	return tokens, true
}
