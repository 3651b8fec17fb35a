// Package recurrence expands booking repetition rules into concrete
// occurrence spans. Expansion is a pure function of its inputs so the
// same request always yields the same series.
package recurrence

import (
	"fmt"
	"time"
)

// Frequency enumerates the supported repetition frequencies.
type Frequency int

const (
	FrequencyNever Frequency = iota
	FrequencyDay
	FrequencyWeek
	FrequencyMonth
	FrequencyYear
)

// MaxOccurrences bounds a single expansion. Requests beyond the cap are
// rejected outright rather than truncated.
const MaxOccurrences = 100

var frequencyNames = map[Frequency]string{
	FrequencyNever: "never",
	FrequencyDay:   "day",
	FrequencyWeek:  "week",
	FrequencyMonth: "month",
	FrequencyYear:  "year",
}

func (f Frequency) String() string {
	if name, ok := frequencyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

// ParseFrequency maps the wire value to a Frequency.
func ParseFrequency(value string) (Frequency, error) {
	for freq, name := range frequencyNames {
		if name == value {
			return freq, nil
		}
	}
	return FrequencyNever, fmt.Errorf("unknown frequency %q", value)
}

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	_, ok := frequencyNames[f]
	return ok
}

// Span is a single occurrence time span.
type Span struct {
	Start time.Time
	End   time.Time
}

// MonthPattern selects how month/year series pick their day.
type MonthPattern int

const (
	// PatternDayOfMonth repeats on the anchor's day of month. When the
	// anchor is the last day of its month, later occurrences land on the
	// last day of theirs.
	PatternDayOfMonth MonthPattern = iota
	// PatternWeekdayOrdinal repeats on the anchor's "nth weekday" (for
	// example the second Tuesday). A fifth weekday clamps to the last one
	// in months that only have four.
	PatternWeekdayOrdinal
)

// Rule captures the parameters of one expansion.
type Rule struct {
	Frequency Frequency
	Interval  int
	// Pattern only applies to month and year frequencies.
	Pattern MonthPattern
}

type invalidRuleError struct {
	reason string
}

func (e invalidRuleError) Error() string {
	return "invalid recurrence: " + e.reason
}

// IsInvalidRule reports whether err describes a malformed or oversized rule.
func IsInvalidRule(err error) bool {
	_, ok := err.(invalidRuleError)
	return ok
}

// Generate expands (start, end, rule) into the ordered occurrence series.
// The first occurrence is exactly (start, start time-of-day .. end
// time-of-day); each later one preserves the time of day and duration.
// end bounds the series: the last occurrence starts on or before end's date.
func Generate(start, end time.Time, rule Rule) ([]Span, error) {
	if !end.After(start) {
		return nil, invalidRuleError{reason: "end must be after start"}
	}
	if !rule.Frequency.Valid() {
		return nil, invalidRuleError{reason: fmt.Sprintf("unknown frequency %d", int(rule.Frequency))}
	}

	if rule.Frequency == FrequencyNever {
		return []Span{{Start: start, End: end}}, nil
	}
	if rule.Interval < 1 {
		return nil, invalidRuleError{reason: "interval must be at least 1"}
	}

	duration := timeOfDay(end) - timeOfDay(start)
	if duration <= 0 {
		return nil, invalidRuleError{reason: "end time of day must be after start time of day for repeating bookings"}
	}

	lastDate := dateOnly(end)
	anchor := newMonthAnchor(start)

	var spans []Span
	current := start
	for step := 0; !dateOnly(current).After(lastDate); step++ {
		if len(spans) >= MaxOccurrences {
			return nil, invalidRuleError{reason: fmt.Sprintf("series exceeds %d occurrences", MaxOccurrences)}
		}
		spans = append(spans, Span{Start: current, End: current.Add(duration)})

		next, ok := nextStart(start, step+1, rule, anchor)
		if !ok {
			break
		}
		current = next
	}
	return spans, nil
}

func nextStart(start time.Time, step int, rule Rule, anchor monthAnchor) (time.Time, bool) {
	switch rule.Frequency {
	case FrequencyDay:
		return start.AddDate(0, 0, step*rule.Interval), true
	case FrequencyWeek:
		return start.AddDate(0, 0, step*rule.Interval*7), true
	case FrequencyMonth:
		return anchor.shift(start, step*rule.Interval, rule.Pattern), true
	case FrequencyYear:
		return anchor.shift(start, step*rule.Interval*12, rule.Pattern), true
	default:
		return time.Time{}, false
	}
}

// monthAnchor keeps the properties of the series anchor needed to place
// month/year occurrences.
type monthAnchor struct {
	day        int
	weekday    time.Weekday
	ordinal    int // 1-based nth weekday within the month
	lastOfKind bool
	lastDay    bool
}

func newMonthAnchor(start time.Time) monthAnchor {
	ordinal := (start.Day()-1)/7 + 1
	daysInAnchor := daysInMonth(start.Year(), start.Month())
	return monthAnchor{
		day:        start.Day(),
		weekday:    start.Weekday(),
		ordinal:    ordinal,
		lastOfKind: start.Day()+7 > daysInAnchor,
		lastDay:    start.Day() == daysInAnchor,
	}
}

func (a monthAnchor) shift(start time.Time, months int, pattern MonthPattern) time.Time {
	year, month := addMonths(start.Year(), start.Month(), months)
	switch pattern {
	case PatternWeekdayOrdinal:
		day := nthWeekday(year, month, a.weekday, a.ordinal, a.lastOfKind)
		return replaceDate(start, year, month, day)
	default:
		day := a.day
		if limit := daysInMonth(year, month); a.lastDay || day > limit {
			day = daysInMonth(year, month)
		}
		return replaceDate(start, year, month, day)
	}
}

// nthWeekday returns the day of month of the nth given weekday. When
// lastOfKind is set, or the month has no nth one, it falls back to the
// last such weekday of the month.
func nthWeekday(year int, month time.Month, weekday time.Weekday, ordinal int, lastOfKind bool) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	day := 1 + offset + (ordinal-1)*7
	limit := daysInMonth(year, month)
	if lastOfKind || day > limit {
		last := 1 + offset
		for last+7 <= limit {
			last += 7
		}
		return last
	}
	return day
}

func addMonths(year int, month time.Month, months int) (int, time.Month) {
	total := year*12 + int(month) - 1 + months
	return total / 12, time.Month(total%12 + 1)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func replaceDate(t time.Time, year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}
