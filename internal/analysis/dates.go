package analysis

import (
	"time"

	"github.com/rollbook/rollbook/internal/types"
)

const dateLayout = "2006-01-02"

// ISOWeekday returns the ISO weekday (Mon=1..Sun=7) for an ISO date string,
// or 0 when the date does not parse.
func ISOWeekday(date string) int {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0
	}
	return (int(t.Weekday())+6)%7 + 1
}

// DayName returns the short weekday name for an ISO weekday 1..7, "" otherwise.
func DayName(isoDow int) string {
	if isoDow < 1 || isoDow > 7 {
		return ""
	}
	return types.DayNames[isoDow-1]
}

// DatesBetween lists every date in [from, to] inclusive. Returns nil when
// either bound does not parse or from is after to.
func DatesBetween(from, to string) []string {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return nil
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return nil
	}
	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates
}

// WeekdaysBetween lists every Mon-Fri date in [from, to] inclusive.
func WeekdaysBetween(from, to string) []string {
	var out []string
	for _, d := range DatesBetween(from, to) {
		if wd := ISOWeekday(d); wd >= 1 && wd <= 5 {
			out = append(out, d)
		}
	}
	return out
}

// PreviousPeriod returns the immediately preceding range of equal length:
// [from - span, from - 1].
func PreviousPeriod(from, to string) (string, string, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return "", "", err
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return "", "", err
	}
	span := int(end.Sub(start).Hours()/24) + 1
	prevFrom := start.AddDate(0, 0, -span).Format(dateLayout)
	prevTo := start.AddDate(0, 0, -1).Format(dateLayout)
	return prevFrom, prevTo, nil
}

// ServingOn reports whether a person is scheduled on the given date. Empty
// ServiceDays means scheduled every day.
func ServingOn(p types.Person, date string) bool {
	if len(p.ServiceDays) == 0 {
		return true
	}
	name := DayName(ISOWeekday(date))
	for _, d := range p.ServiceDays {
		if d == name {
			return true
		}
	}
	return false
}
