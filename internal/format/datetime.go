// Package format holds the date and value formatting helpers shared by the
// query builders, response writers and dashboard tables.
package format

import (
	"fmt"
	"time"
)

// TZString renders an offset in minutes as a signed "+HH:MM" string, the form
// MySQL's CONVERT_TZ accepts.
func TZString(offsetMins int) string {
	sign := "+"
	if offsetMins < 0 {
		sign = "-"
		offsetMins = -offsetMins
	}
	return fmt.Sprintf("%s%02d:%02d", sign, offsetMins/60, offsetMins%60)
}

// LocalTime shifts a UTC instant by offsetMins and returns it as a wall clock
// time in a fixed zone carrying the same offset.
func LocalTime(now time.Time, offsetMins int) time.Time {
	zone := time.FixedZone(TZString(offsetMins), offsetMins*60)
	return now.In(zone)
}

// ThisMonthStart returns midnight on the first day of t's month, in t's location.
func ThisMonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// NextMonthStart returns midnight on the first day of the month after t.
// December rolls over into January of the following year.
func NextMonthStart(t time.Time) time.Time {
	return ThisMonthStart(t).AddDate(0, 1, 0)
}

// DayStart truncates t to midnight in its own location.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
