// Package dates parses the calendar dates and time bounds accepted by the API.
package dates

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DayLayout is the wire format of calendar dates.
const DayLayout = "2006-01-02"

var ErrUnparseable = errors.New("unrecognized date")

var isoPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDay parses a strict YYYY-MM-DD date at midnight UTC.
func ParseDay(value string) (time.Time, error) {
	day, err := time.Parse(DayLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, ErrUnparseable
	}
	return day, nil
}

// NormalizeDue turns a due date input into YYYY-MM-DD. It accepts an exact
// date, an RFC 3339 timestamp (its own calendar date is kept) or an English
// phrase such as "next friday" resolved against now.
func NormalizeDue(value string, now time.Time) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrUnparseable
	}
	if day, err := time.Parse(DayLayout, value); err == nil {
		return day.Format(DayLayout), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.Format(DayLayout), nil
	}
	if isoPrefix.MatchString(value) {
		return "", ErrUnparseable
	}

	// The phrase must be the whole input; when matches phrases anywhere.
	result, err := parser.Parse(value, now)
	if err != nil || result == nil || result.Index != 0 || len(result.Text) != len(value) {
		return "", ErrUnparseable
	}
	return result.Time.Format(DayLayout), nil
}

// ParseBound parses an activity range bound. A bare date as the end of a
// range covers the whole day.
func ParseBound(value string, end bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if day, err := time.Parse(DayLayout, value); err == nil {
		if end {
			return day.Add(24*time.Hour - time.Second), nil
		}
		return day, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, ErrUnparseable
}
