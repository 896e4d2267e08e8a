package usecase

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// absoluteLayouts are tried before natural-language parsing.
// Layouts without an offset are read in the configured zone.
var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 3:04 PM",
	"2006-01-02 3PM",
	"2006-01-02",
	"January 2, 2006 3:04 PM",
	"January 2, 2006 3:04PM",
	"January 2, 2006 3 PM",
	"January 2, 2006 3PM",
	"January 2, 2006 15:04",
	"January 2, 2006",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04PM",
	"Jan 2, 2006 3 PM",
	"Jan 2, 2006 3PM",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"2 January 2006 15:04",
	"2 January 2006 3:04 PM",
	"2 January 2006 3PM",
	"2 January 2006",
	"Monday, January 2, 2006 3:04 PM",
	"Monday, January 2, 2006",
}

var (
	// a time of day counts only with a meridiem, minutes, or a leading "at"
	timeOfDayRe = regexp.MustCompile(`(?i)\b(at\s+)?(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\b\.?|\b(at\s+)?(\d{1,2})(?::(\d{2}))?\b`)
	yearRe      = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// Normalizer turns loosely formatted date/time text into absolute times in one zone
type Normalizer struct {
	loc    *time.Location
	now    func() time.Time
	parser *when.Parser
}

// NewNormalizer creates a Normalizer resolving relative phrases against the wall clock
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	return &Normalizer{
		loc:    loc,
		now:    time.Now,
		parser: w,
	}
}

// WithClock replaces the reference clock used for relative phrases
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Location returns the configured zone
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize returns false for blank text or text nothing could resolve.
// A false result means "no date extracted", not a failure.
func (n *Normalizer) Normalize(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	// Go only parses upper-case meridiems; month names match case-insensitively
	cleaned := strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(text, " at ", " ")), " "))
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, cleaned, n.loc); err == nil {
			return t, true
		}
	}

	base := n.now().In(n.loc)
	r, err := n.parser.Parse(text, base)
	if err != nil || r == nil {
		return time.Time{}, false
	}

	// keep the resolved wall clock, pinned to the configured zone
	t := r.Time
	year, hour, minute, sec := t.Year(), t.Hour(), t.Minute(), t.Second()

	// when may match only a prefix such as "June 1" or "tomorrow"; apply
	// an explicit year or time of day left in the rest of the text
	rest := unmatched(text, r.Index, r.Text)
	if y := yearRe.FindString(rest); y != "" {
		year, _ = strconv.Atoi(y)
		rest = strings.Replace(rest, y, " ", 1)
	}
	if h, m, ok := timeOfDay(rest); ok {
		hour, minute, sec = h, m, 0
	}
	return time.Date(year, t.Month(), t.Day(), hour, minute, sec, 0, n.loc), true
}

func unmatched(text string, index int, matched string) string {
	if index < 0 || index+len(matched) > len(text) {
		return ""
	}
	return text[:index] + " " + text[index+len(matched):]
}

// timeOfDay finds "at 5", "2pm", "3:30 pm" or "14:00" in s
func timeOfDay(s string) (hour, minute int, ok bool) {
	for _, m := range timeOfDayRe.FindAllStringSubmatch(s, -1) {
		at, h, mm, meridiem := m[1], m[2], m[3], m[4]
		if h == "" {
			at, h, mm = m[5], m[6], m[7]
		}
		if at == "" && mm == "" && meridiem == "" {
			continue
		}
		hour, _ = strconv.Atoi(h)
		minute = 0
		if mm != "" {
			minute, _ = strconv.Atoi(mm)
		}
		switch strings.ToLower(meridiem) {
		case "p":
			if hour < 1 || hour > 12 {
				continue
			}
			if hour < 12 {
				hour += 12
			}
		case "a":
			if hour < 1 || hour > 12 {
				continue
			}
			if hour == 12 {
				hour = 0
			}
		}
		if hour > 23 || minute > 59 {
			continue
		}
		return hour, minute, true
	}
	return 0, 0, false
}
