package ledger

import (
	"fmt"
	"time"
)

// Entitlement dates are stored as dd/mm/yyyy strings because the game servers
// parse that exact format out of the vips table.
const dateLayout = "02/01/2006"

// Stamp returns the bookkeeping timestamp used for payment and audit rows,
// e.g. "07/03/2026 - 18:42".
func Stamp(t time.Time) string {
	return t.Format("02/01/2006 - 15:04")
}

// FormatDate renders a time as a stored entitlement date.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// AddDays returns now + days as a stored entitlement date.
func AddDays(now time.Time, days int) string {
	return FormatDate(now.AddDate(0, 0, days))
}

// ParseDate parses a stored entitlement date. The zero point is local
// midnight of that day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid entitlement date %q: %w", s, err)
	}
	return t, nil
}

// DaysUntil returns the whole days from now until the stored expiration date,
// rounding partial days up. Negative when the date already passed.
func DaysUntil(now time.Time, expiration string) (int, error) {
	exp, err := ParseDate(expiration)
	if err != nil {
		return 0, err
	}
	diff := exp.Sub(now)
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return days, nil
}

// RemainingDays is DaysUntil clamped at zero, for display paths that treat an
// expired date as "nothing left".
func RemainingDays(now time.Time, expiration string) (int, error) {
	days, err := DaysUntil(now, expiration)
	if err != nil {
		return 0, err
	}
	if days < 0 {
		return 0, nil
	}
	return days, nil
}
