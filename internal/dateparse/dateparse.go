// Package dateparse reads cutoff timestamps sent by terminals.
//
// Parsing is tolerant: malformed or empty input yields no time at all rather
// than an error or a default date.
package dateparse

import (
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// Layouts accepted in addition to ISO 8601, as sent by older terminals.
var localLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02",
}

// Parser parses cutoff values. Values without a zone are read in Location.
type Parser struct {
	Location *time.Location
}

// New returns a Parser for the given location. A nil location means UTC.
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{Location: loc}
}

// Parse returns the time encoded in raw and true, or the zero time and false
// when raw is empty or malformed.
func (p *Parser) Parse(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	if t, err := iso8601.ParseInLocation([]byte(raw), loc); err == nil {
		return valid(t)
	}

	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return valid(t)
		}
	}

	return time.Time{}, false
}

func valid(t time.Time) (time.Time, bool) {
	if t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}
