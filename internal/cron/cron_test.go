package cron

import (
	"errors"
	"testing"
	"time"
)

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestShortcutTable(t *testing.T) {
	t.Parallel()
	want := map[string]string{
		"@minutely": "* * * * *",
		"@hourly":   "0 * * * *",
		"@midnight": "0 0 * * *",
		"@daily":    "0 0 * * *",
		"@weekly":   "0 0 * * 0",
		"@monthly":  "0 0 1 * *",
		"@yearly":   "0 0 1 1 *",
		"@annually": "0 0 1 1 *",
	}
	if len(Shortcuts) != len(want) {
		t.Fatalf("Shortcuts has %d entries, want %d", len(Shortcuts), len(want))
	}
	for k, v := range want {
		if Shortcuts[k] != v {
			t.Errorf("Shortcuts[%q] = %q, want %q", k, Shortcuts[k], v)
		}
	}

	// Aliased pairs evaluate identically.
	for _, pair := range [][2]string{{"@midnight", "@daily"}, {"@yearly", "@annually"}} {
		a, err := Parse(pair[0])
		if err != nil {
			t.Fatalf("Parse(%q): %v", pair[0], err)
		}
		b, err := Parse(pair[1])
		if err != nil {
			t.Fatalf("Parse(%q): %v", pair[1], err)
		}
		ref := at("2022-06-15 13:37:00")
		if got, want := a.Next(ref), b.Next(ref); !got.Equal(want) {
			t.Errorf("%s/%s diverge: %v vs %v", pair[0], pair[1], got, want)
		}
	}
}

func TestNext(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		expr  string
		after string
		want  string
	}{
		{name: "minutely mid-minute", expr: "* * * * *", after: "2022-12-25 10:00:30", want: "2022-12-25 10:01:00"},
		{name: "minutely on boundary", expr: "* * * * *", after: "2022-12-25 10:00:00", want: "2022-12-25 10:01:00"},
		{name: "hourly", expr: "0 * * * *", after: "2022-12-25 10:12:00", want: "2022-12-25 11:00:00"},
		{name: "daily wraps day", expr: "0 0 * * *", after: "2022-12-25 10:12:00", want: "2022-12-26 00:00:00"},
		{name: "every five minutes", expr: "*/5 * * * *", after: "2022-12-25 10:01:10", want: "2022-12-25 10:05:00"},
		{name: "step with offset", expr: "3/10 * * * *", after: "2022-12-25 10:04:00", want: "2022-12-25 10:13:00"},
		{name: "list", expr: "0,30 9 * * *", after: "2022-12-25 09:05:00", want: "2022-12-25 09:30:00"},
		{name: "range", expr: "0 9-17 * * *", after: "2022-12-25 17:30:00", want: "2022-12-26 09:00:00"},
		{name: "weekly sunday", expr: "0 0 * * 0", after: "2022-12-21 00:00:00", want: "2022-12-25 00:00:00"},
		{name: "dow name", expr: "0 12 * * mon", after: "2022-12-23 00:00:00", want: "2022-12-26 12:00:00"},
		{name: "dow seven is sunday", expr: "0 0 * * 7", after: "2022-12-21 00:00:00", want: "2022-12-25 00:00:00"},
		{name: "monthly wraps month", expr: "0 0 1 * *", after: "2022-12-02 00:00:00", want: "2023-01-01 00:00:00"},
		{name: "month name", expr: "0 0 1 mar *", after: "2022-12-02 00:00:00", want: "2023-03-01 00:00:00"},
		{name: "yearly", expr: "0 0 1 1 *", after: "2022-01-01 00:00:00", want: "2023-01-01 00:00:00"},
		{name: "dom and dow both set match either", expr: "0 0 13 * 5", after: "2022-05-01 00:00:00", want: "2022-05-06 00:00:00"},
		{name: "feb 29 skips to leap year", expr: "0 0 29 2 *", after: "2022-01-01 00:00:00", want: "2024-02-29 00:00:00"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.expr, err)
			}
			got := s.Next(at(tt.after))
			if want := at(tt.want); !got.Equal(want) {
				t.Fatalf("Next(%v) = %v, want %v", tt.after, got, want)
			}
		})
	}
}

func TestNextStrictlyIncreasing(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{"* * * * *", "*/7 * * * *", "0 0 * * *", "30 4 1 * *"} {
		s, err := Parse(expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", expr, err)
		}
		cur := at("2022-12-25 09:00:00")
		for i := 0; i < 50; i++ {
			next := s.Next(cur)
			if !next.After(cur) {
				t.Fatalf("%s: Next(%v) = %v is not strictly after", expr, cur, next)
			}
			if next.Second() != 0 || next.Nanosecond() != 0 {
				t.Fatalf("%s: Next(%v) = %v is not minute-aligned", expr, cur, next)
			}
			cur = next
		}
	}
}

func TestNextUnsatisfiable(t *testing.T) {
	t.Parallel()
	s, err := Parse("0 0 30 2 *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := s.Next(at("2022-01-01 00:00:00")); !got.IsZero() {
		t.Fatalf("expected zero time for unsatisfiable schedule, got %v", got)
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	exprs := []string{
		"",
		"* * * *",
		"* * * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * 32 * *",
		"* * * 13 *",
		"* * * * 8",
		"a * * * *",
		"*/0 * * * *",
		"5-1 * * * *",
		"1,,2 * * * *",
		"@specific",
		"@fortnightly",
		"@every 5m",
	}
	for _, expr := range exprs {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q): expected error", expr)
		} else {
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("Parse(%q): error is not *ParseError: %v", expr, err)
			}
		}
	}
}

func TestParseShortcutCaseInsensitive(t *testing.T) {
	t.Parallel()
	s, err := Parse("@Daily")
	if err != nil {
		t.Fatalf("Parse(@Daily): %v", err)
	}
	if got, want := s.Next(at("2022-12-25 10:00:00")), at("2022-12-26 00:00:00"); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
	if s.String() != "@Daily" {
		t.Fatalf("String() = %q, want raw input", s.String())
	}
}
