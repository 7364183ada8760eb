package window

import (
	"fmt"
	"strings"
	"time"
)

// Unit is a calendar bucket size
type Unit string

const (
	Day     Unit = "day"
	Week    Unit = "week"
	Month   Unit = "month"
	Quarter Unit = "quarter"
	Year    Unit = "year"
)

// ParseUnit parses a unit name case-insensitively
func ParseUnit(s string) (Unit, error) {
	u := Unit(strings.ToLower(strings.TrimSpace(s)))
	if !u.IsValid() {
		return "", fmt.Errorf("invalid window unit: %q", s)
	}
	return u, nil
}

// IsValid checks if the unit is supported
func (u Unit) IsValid() bool {
	switch u {
	case Day, Week, Month, Quarter, Year:
		return true
	default:
		return false
	}
}

// Truncate returns the start of the window containing t. The calendar date is
// taken in t's own location and the result is midnight UTC, so records with
// different offsets on the same local day share a window. Weeks start on Monday.
func (u Unit) Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	switch u {
	case Week:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, time.UTC)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case Quarter:
		return time.Date(y, ((m-1)/3)*3+1, 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}

// Add moves t by n units
func (u Unit) Add(t time.Time, n int) time.Time {
	switch u {
	case Week:
		return t.AddDate(0, 0, 7*n)
	case Month:
		return t.AddDate(0, n, 0)
	case Quarter:
		return t.AddDate(0, 3*n, 0)
	case Year:
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// Label formats the window start for display
func (u Unit) Label(start time.Time) string {
	switch u {
	case Week:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case Month:
		return start.Format("2006-01")
	case Quarter:
		return fmt.Sprintf("%d-Q%d", start.Year(), (int(start.Month())-1)/3+1)
	case Year:
		return start.Format("2006")
	default:
		return start.Format("2006-01-02")
	}
}
