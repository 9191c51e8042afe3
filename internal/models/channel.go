package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Channel represents a single channel from the DVR inventory.
// Channels are read-only for the sync engine: one snapshot is taken at
// the start of a cycle and never mutated.
type Channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Number     string `json:"number"`
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	Callsign   string `json:"callsign,omitempty"`
	Affiliate  string `json:"affiliate,omitempty"`
}

// ChannelNumber is a parsed channel number such as 400 or 5.1,
// modeled as a major/minor integer pair.
type ChannelNumber struct {
	Major    int
	Minor    int
	HasMinor bool
}

// ParseChannelNumber parses a channel number string like "400" or "5.1".
func ParseChannelNumber(s string) (ChannelNumber, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChannelNumber{}, fmt.Errorf("empty channel number")
	}

	parts := strings.SplitN(s, ".", 2)
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return ChannelNumber{}, fmt.Errorf("invalid channel number %q: %w", s, err)
	}

	n := ChannelNumber{Major: major}
	if len(parts) == 2 {
		minor, err := strconv.Atoi(parts[1])
		if err != nil {
			return ChannelNumber{}, fmt.Errorf("invalid channel number %q: %w", s, err)
		}
		n.Minor = minor
		// "400.0" normalizes to plain "400"
		n.HasMinor = minor != 0
	}

	return n, nil
}

// String returns the canonical form, e.g. "400" or "5.1".
func (n ChannelNumber) String() string {
	if n.HasMinor {
		return fmt.Sprintf("%d.%d", n.Major, n.Minor)
	}
	return strconv.Itoa(n.Major)
}

// Less reports whether n orders before other numerically.
func (n ChannelNumber) Less(other ChannelNumber) bool {
	if n.Major != other.Major {
		return n.Major < other.Major
	}
	return n.Minor < other.Minor
}

// ParsedNumber returns the channel's parsed number. The second return
// value is false when the number is missing or unparseable.
func (c Channel) ParsedNumber() (ChannelNumber, bool) {
	n, err := ParseChannelNumber(c.Number)
	if err != nil {
		return ChannelNumber{}, false
	}
	return n, true
}

// CanonicalNumber returns the canonical string form of the channel's
// number, falling back to the raw value when it cannot be parsed.
func (c Channel) CanonicalNumber() string {
	if n, ok := c.ParsedNumber(); ok {
		return n.String()
	}
	return strings.TrimSpace(c.Number)
}
