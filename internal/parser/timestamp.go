package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
)

// periodRegex matches period expressions like "this week", "last month".
var periodRegex = regexp.MustCompile(`(?i)^(this|current|last|previous)\s+(hour|day|week|month|quarter|year)$`)

// ParseTime parses a natural language time expression relative to now.
func ParseTime(input string) (time.Time, error) {
	return ParseTimeAt(input, time.Now())
}

// ParseTimeAt parses a natural language time expression relative to now.
// Period expressions resolve to the start of the period.
func ParseTimeAt(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.EqualFold(input, "now") {
		return now, nil
	}

	if match := periodRegex.FindStringSubmatch(input); match != nil {
		return periodStart(now, strings.ToLower(match[1]), strings.ToLower(match[2])), nil
	}

	cfg := &dateparser.Configuration{
		CurrentTime: now,
	}
	result, err := dateparser.Parse(cfg, input)
	if err != nil || result.Time.IsZero() {
		return time.Time{}, NewTimeError(input)
	}
	return result.Time, nil
}

func periodStart(now time.Time, modifier, period string) time.Time {
	previous := modifier == "last" || modifier == "previous"
	loc := now.Location()

	switch period {
	case "hour":
		t := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, loc)
		if previous {
			t = t.Add(-time.Hour)
		}
		return t
	case "day":
		t := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		if previous {
			t = t.AddDate(0, 0, -1)
		}
		return t
	case "week":
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday
		}
		t := time.Date(now.Year(), now.Month(), now.Day()-weekday+1, 0, 0, 0, 0, loc)
		if previous {
			t = t.AddDate(0, 0, -7)
		}
		return t
	case "month":
		t := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		if previous {
			t = t.AddDate(0, -1, 0)
		}
		return t
	case "quarter":
		quarter := (int(now.Month()) - 1) / 3
		t := time.Date(now.Year(), time.Month(quarter*3+1), 1, 0, 0, 0, 0, loc)
		if previous {
			t = t.AddDate(0, -3, 0)
		}
		return t
	default:
		t := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, loc)
		if previous {
			t = t.AddDate(-1, 0, 0)
		}
		return t
	}
}
