package calendar

import (
	"testing"
	"time"
)

func TestClockNormalizesToMidnight(t *testing.T) {
	c := NewClock(time.Date(2024, time.March, 4, 15, 30, 45, 0, time.UTC))
	want := Date(2024, time.March, 4)
	if !c.TradingDate().Equal(want) {
		t.Errorf("trading date = %v, want %v", c.TradingDate(), want)
	}

	c.Advance(time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC))
	want = Date(2024, time.March, 5)
	if !c.TradingDate().Equal(want) {
		t.Errorf("trading date after advance = %v, want %v", c.TradingDate(), want)
	}
}

func TestParseDateRoundTrip(t *testing.T) {
	d, err := ParseDate("2024-03-04")
	if err != nil {
		t.Fatal(err)
	}
	if got := FormatDate(d); got != "2024-03-04" {
		t.Errorf("round trip = %q, want 2024-03-04", got)
	}

	if _, err := ParseDate("04/03/2024"); err == nil {
		t.Error("non-ISO date must fail to parse")
	}
}

func TestMidnightUsesUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	// 02:00 on March 5 in UTC+8 is still March 4 in UTC.
	local := time.Date(2024, time.March, 5, 2, 0, 0, 0, loc)
	if got := Midnight(local); !got.Equal(Date(2024, time.March, 4)) {
		t.Errorf("midnight = %v, want 2024-03-04 UTC", got)
	}
}
