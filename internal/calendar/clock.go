package calendar

import "time"

// Clock tracks the current trading date of the simulation. The driving
// loop (scenario runner or live feed) is the sole writer; everything else
// only reads. Dates are normalized to UTC midnight so they compare with
// Equal and work as map keys when formatted.
type Clock struct {
	date time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{date: Midnight(start)}
}

// TradingDate returns the current trading date (UTC midnight).
func (c *Clock) TradingDate() time.Time {
	return c.date
}

// Advance moves the clock to a new trading date. Moving backwards is not
// validated here; the event stream is assumed ordered.
func (c *Clock) Advance(date time.Time) {
	c.date = Midnight(date)
}

// Midnight truncates a timestamp to its UTC calendar date.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a normalized trading date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD trading date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return Midnight(t), nil
}

// FormatDate renders a trading date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
