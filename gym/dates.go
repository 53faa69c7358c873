package gym

import (
	"fmt"
	"strings"
	"time"
)

const (
	// storageLayout is how dates are persisted in SQLite.
	storageLayout = "2006-01-02"
	// DisplayLayout is the user-facing and license-list date format.
	DisplayLayout = "02-01-2006"
)

// DateOf truncates t to its calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths adds n calendar months to d. When the day of month does not
// exist in the target month it is clamped to that month's last day
// (31-01 + 1 month = 28-02 or 29-02).
func AddMonths(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ExpirationFor returns the expiration date of a membership.
func ExpirationFor(activation time.Time, months int) time.Time {
	return AddMonths(DateOf(activation), months)
}

// ParseDate accepts DD-MM-YYYY (also with '/' or '.') or YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	norm := strings.NewReplacer("/", "-", ".", "-").Replace(s)
	for _, layout := range []string{DisplayLayout, storageLayout} {
		if t, err := time.Parse(layout, norm); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want DD-MM-YYYY", s)
}

// ParseMonth parses "YYYY-MM" or "MM-YYYY".
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01", "01-2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Month{Year: t.Year(), Month: t.Month()}, nil
		}
	}
	return Month{}, fmt.Errorf("invalid month %q: want YYYY-MM", s)
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// FormatDate renders d in DisplayLayout, or "-" for the zero time.
func FormatDate(d time.Time) string {
	if d.IsZero() {
		return "-"
	}
	return d.Format(DisplayLayout)
}

func formatStorageDate(d time.Time) string {
	return DateOf(d).Format(storageLayout)
}

func parseStorageDate(s string) (time.Time, error) {
	return time.Parse(storageLayout, s)
}
