package queue

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical representation of tanggal, both stored and queried.
const DateLayout = "2006-01-02"

// Day is a calendar date with no time of day. It is held as midnight UTC so that
// calendar arithmetic never crosses a daylight-saving transition.
type Day struct {
	t time.Time
}

func ParseDay(raw string) (Day, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Day{}, invalid("date is required")
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return Day{}, invalid("date must be formatted YYYY-MM-DD")
	}
	return Day{t: t}, nil
}

// DayOf returns the calendar date of t as observed in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Day{t: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d Day) AddDays(n int) Day {
	return Day{t: d.t.AddDate(0, 0, n)}
}

func (d Day) String() string {
	return d.t.Format(DateLayout)
}

func (d Day) IsZero() bool {
	return d.t.IsZero()
}

// Window is the half-open interval [From, To) of one calendar day.
func (d Day) Window() Window {
	return Window{From: d.String(), To: d.AddDays(1).String()}
}

type Window struct {
	From string
	To   string
}

// NormalizeTanggal accepts a calendar date or an RFC 3339 timestamp and returns the
// canonical calendar date, reading timestamps in loc.
func NormalizeTanggal(raw string, loc *time.Location) (string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == len(DateLayout) {
		day, err := ParseDay(raw)
		if err != nil {
			return "", invalid("tanggal must be YYYY-MM-DD or an RFC 3339 timestamp")
		}
		return day.String(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return "", invalid(fmt.Sprintf("tanggal %q must be YYYY-MM-DD or an RFC 3339 timestamp", raw))
	}
	return DayOf(t, loc).String(), nil
}
