package sorter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/collectarr/collectarr/internal/models"
)

// eventNameRe classifies event-placeholder channels: generic names like
// "Event 03" that begin with a literal Event token.
var eventNameRe = regexp.MustCompile(`(?i)^\s*event\b`)

// Sort orders a channel set per the rule's declared sort order and
// returns a new slice. Every order is total and stable: no channel is
// dropped or duplicated, and ties break by channel ID ascending.
//
// An invalid custom regex order falls back to alpha_asc; the returned
// error is non-fatal and should be surfaced as a sync warning.
func Sort(channels []models.Channel, order string) ([]models.Channel, error) {
	out := make([]models.Channel, len(channels))
	copy(out, channels)

	switch {
	case order == "" || order == models.SortNone:
		return out, nil

	case order == models.SortAlphaAsc:
		sortAlpha(out, false)

	case order == models.SortAlphaDesc:
		sortAlpha(out, true)

	case order == models.SortNumberAsc:
		sortNumber(out, false)

	case order == models.SortNumberDesc:
		sortNumber(out, true)

	case order == models.SortEventsLast:
		out = sortEventsLast(out)

	case strings.HasPrefix(order, models.SortRegexPrefix):
		pattern := strings.TrimPrefix(order, models.SortRegexPrefix)
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			sortAlpha(out, false)
			return out, fmt.Errorf("invalid sort regex %q: %w", pattern, err)
		}
		out = sortCustomRegex(out, re)

	default:
		sortAlpha(out, false)
		return out, fmt.Errorf("unknown sort order %q", order)
	}

	return out, nil
}

// IsEventPlaceholder reports whether a channel name is a generic event
// stand-in pending a live schedule substitution.
func IsEventPlaceholder(name string) bool {
	return eventNameRe.MatchString(name)
}

func sortAlpha(channels []models.Channel, desc bool) {
	sort.SliceStable(channels, func(i, j int) bool {
		a := strings.ToLower(channels[i].Name)
		b := strings.ToLower(channels[j].Name)
		if a != b {
			if desc {
				return a > b
			}
			return a < b
		}
		return channels[i].ID < channels[j].ID
	})
}

func sortNumber(channels []models.Channel, desc bool) {
	sort.SliceStable(channels, func(i, j int) bool {
		a, aOK := channels[i].ParsedNumber()
		b, bOK := channels[j].ParsedNumber()

		// Channels without a parseable number sort after numbered ones.
		if aOK != bOK {
			return aOK
		}
		if aOK && bOK && a != b {
			if desc {
				return b.Less(a)
			}
			return a.Less(b)
		}
		return channels[i].ID < channels[j].ID
	})
}

// sortEventsLast places named channels (alpha_asc) before event
// placeholders (alpha_asc).
func sortEventsLast(channels []models.Channel) []models.Channel {
	var named, events []models.Channel
	for _, ch := range channels {
		if IsEventPlaceholder(ch.Name) {
			events = append(events, ch)
		} else {
			named = append(named, ch)
		}
	}
	sortAlpha(named, false)
	sortAlpha(events, false)
	return append(named, events...)
}

// sortCustomRegex places channels whose name matches the regex first.
// Both partitions are alpha-sorted for determinism.
func sortCustomRegex(channels []models.Channel, re *regexp.Regexp) []models.Channel {
	var matching, rest []models.Channel
	for _, ch := range channels {
		if re.MatchString(ch.Name) {
			matching = append(matching, ch)
		} else {
			rest = append(rest, ch)
		}
	}
	sortAlpha(matching, false)
	sortAlpha(rest, false)
	return append(matching, rest...)
}
