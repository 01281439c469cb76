// Package cron implements a minimal 5-field cron expression parser and
// next-occurrence evaluator with one-minute granularity.
//
// A Schedule is a pure value: parsing never touches the clock and Next()
// has no side effects. The supported grammar is the classic
// minute/hour/day-of-month/month/day-of-week form with lists, ranges and
// steps, plus the usual @shortcuts (see Shortcuts).
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError reports an invalid cron expression. Commands that accept user
// schedules surface its message verbatim, so keep reasons readable.
type ParseError struct {
	Expr   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid cron expression %q: %s", e.Expr, e.Reason)
}

// Shortcuts maps the supported @-shortcuts to their 5-field expansion.
// @midnight/@daily and @yearly/@annually are aliases.
var Shortcuts = map[string]string{
	"@minutely": "* * * * *",
	"@hourly":   "0 * * * *",
	"@midnight": "0 0 * * *",
	"@daily":    "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var dowNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// Schedule is a parsed 5-field cron expression.
// Fields are bitmasks; bit N set means value N matches.
type Schedule struct {
	raw string

	minute uint64 // 0-59
	hour   uint64 // 0-23
	dom    uint64 // 1-31
	month  uint64 // 1-12
	dow    uint64 // 0-6, Sunday=0

	// Whether dom/dow were given as "*". Needed for the standard day
	// matching rule: when both are restricted, either may match.
	domStar bool
	dowStar bool
}

// String returns the original expression (shortcuts stay unexpanded).
func (s Schedule) String() string { return s.raw }

// Parse parses a 5-field cron expression or an @-shortcut.
func Parse(expr string) (Schedule, error) {
	raw := strings.TrimSpace(expr)
	norm := strings.ToLower(raw)

	if strings.HasPrefix(norm, "@") {
		exp, ok := Shortcuts[norm]
		if !ok {
			return Schedule{}, &ParseError{Expr: raw, Reason: "unknown shortcut"}
		}
		norm = exp
	}

	fields := strings.Fields(norm)
	if len(fields) != 5 {
		return Schedule{}, &ParseError{Expr: raw, Reason: fmt.Sprintf("expected 5 fields, got %d", len(fields))}
	}

	s := Schedule{raw: raw}
	var err error
	if s.minute, _, err = parseField(fields[0], 0, 59, nil); err != nil {
		return Schedule{}, &ParseError{Expr: raw, Reason: "minute: " + err.Error()}
	}
	if s.hour, _, err = parseField(fields[1], 0, 23, nil); err != nil {
		return Schedule{}, &ParseError{Expr: raw, Reason: "hour: " + err.Error()}
	}
	if s.dom, s.domStar, err = parseField(fields[2], 1, 31, nil); err != nil {
		return Schedule{}, &ParseError{Expr: raw, Reason: "day-of-month: " + err.Error()}
	}
	if s.month, _, err = parseField(fields[3], 1, 12, monthNames); err != nil {
		return Schedule{}, &ParseError{Expr: raw, Reason: "month: " + err.Error()}
	}
	if s.dow, s.dowStar, err = parseField(fields[4], 0, 7, dowNames); err != nil {
		return Schedule{}, &ParseError{Expr: raw, Reason: "day-of-week: " + err.Error()}
	}
	// Sunday may be written as 7.
	if s.dow&(1<<7) != 0 {
		s.dow = (s.dow &^ (1 << 7)) | 1
	}
	return s, nil
}

// parseField parses one field: comma-separated parts, each
// "*", "N", "N-M", optionally with a "/step" suffix.
// star reports whether the whole field was an unstepped "*".
func parseField(field string, min, max int, names map[string]int) (bits uint64, star bool, err error) {
	for _, part := range strings.Split(field, ",") {
		if part == "" {
			return 0, false, fmt.Errorf("empty list entry")
		}

		body, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			step, err = strconv.Atoi(stepStr)
			if err != nil || step < 1 {
				return 0, false, fmt.Errorf("bad step %q", stepStr)
			}
		}

		lo, hi := min, max
		switch {
		case body == "*":
			if field == "*" {
				star = true
			}
		case strings.Contains(body, "-"):
			loStr, hiStr, _ := strings.Cut(body, "-")
			if lo, err = parseValue(loStr, names); err != nil {
				return 0, false, err
			}
			if hi, err = parseValue(hiStr, names); err != nil {
				return 0, false, err
			}
			if lo > hi {
				return 0, false, fmt.Errorf("descending range %q", body)
			}
		default:
			if lo, err = parseValue(body, names); err != nil {
				return 0, false, err
			}
			if hasStep {
				// vixie-style: "N/step" means N-max/step.
				hi = max
			} else {
				hi = lo
			}
		}

		if lo < min || hi > max {
			return 0, false, fmt.Errorf("value out of range [%d,%d] in %q", min, max, part)
		}
		for v := lo; v <= hi; v += step {
			bits |= 1 << uint(v)
		}
	}
	return bits, star, nil
}

func parseValue(s string, names map[string]int) (int, error) {
	if names != nil {
		if v, ok := names[s]; ok {
			return v, nil
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	return v, nil
}

func bit(mask uint64, v int) bool { return mask&(1<<uint(v)) != 0 }

func (s Schedule) dayMatches(t time.Time) bool {
	domOK := bit(s.dom, t.Day())
	dowOK := bit(s.dow, int(t.Weekday()))
	switch {
	case s.domStar && s.dowStar:
		return true
	case s.domStar:
		return dowOK
	case s.dowStar:
		return domOK
	default:
		return domOK || dowOK
	}
}

// Next returns the first instant strictly after `after` at which the
// schedule fires, truncated to the start of a minute. It returns the zero
// time if no occurrence exists within five years (e.g. "0 0 30 2 *").
func (s Schedule) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)
	yearLimit := after.Year() + 5

WRAP:
	for {
		if t.Year() > yearLimit {
			return time.Time{}
		}
		for !bit(s.month, int(t.Month())) {
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
			if t.Month() == time.January {
				continue WRAP
			}
		}
		for !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
			if t.Day() == 1 {
				continue WRAP
			}
		}
		for !bit(s.hour, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location()).Add(time.Hour)
			if t.Hour() == 0 {
				continue WRAP
			}
		}
		for !bit(s.minute, t.Minute()) {
			t = t.Truncate(time.Minute).Add(time.Minute)
			if t.Minute() == 0 {
				continue WRAP
			}
		}
		return t
	}
}
