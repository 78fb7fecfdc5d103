package refdata

import (
	"fmt"
	"time"

	"EquityLedger/internal/calendar"
)

// Dividend is a cash dividend declaration keyed by its ex-date.
// DividendPerShare is derived as CashBeforeTax / RoundLot at book closure.
type Dividend struct {
	CashBeforeTax float64
	RoundLot      float64
	PayableDate   time.Time
}

// Split is a stock split declaration keyed by its ex-date.
// The adjustment ratio is CoefficientTo / CoefficientFrom.
type Split struct {
	CoefficientFrom float64
	CoefficientTo   float64
}

// Provider serves corporate-action and listing reference data.
// A missing record means "nothing pending" for that symbol and date,
// never an error.
type Provider interface {
	DividendByExDate(symbol string, date time.Time) (Dividend, bool)
	SplitByExDate(symbol string, date time.Time) (Split, bool)
	DelistedDate(symbol string) (time.Time, bool)
}

type symbolDate struct {
	symbol string
	date   string
}

func keyOf(symbol string, date time.Time) symbolDate {
	return symbolDate{symbol: symbol, date: calendar.FormatDate(date)}
}

// Memory is an in-memory Provider, loaded from scenario files or seeded
// directly in tests.
type Memory struct {
	dividends map[symbolDate]Dividend
	splits    map[symbolDate]Split
	delisted  map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		dividends: make(map[symbolDate]Dividend),
		splits:    make(map[symbolDate]Split),
		delisted:  make(map[string]time.Time),
	}
}

func (m *Memory) AddDividend(symbol string, exDate time.Time, d Dividend) error {
	if d.RoundLot <= 0 {
		return fmt.Errorf("dividend for %s: round lot must be positive, got %v", symbol, d.RoundLot)
	}
	m.dividends[keyOf(symbol, exDate)] = Dividend{
		CashBeforeTax: d.CashBeforeTax,
		RoundLot:      d.RoundLot,
		PayableDate:   calendar.Midnight(d.PayableDate),
	}
	return nil
}

func (m *Memory) AddSplit(symbol string, exDate time.Time, s Split) error {
	if s.CoefficientFrom <= 0 || s.CoefficientTo <= 0 {
		return fmt.Errorf("split for %s: coefficients must be positive, got %v/%v",
			symbol, s.CoefficientTo, s.CoefficientFrom)
	}
	m.splits[keyOf(symbol, exDate)] = s
	return nil
}

func (m *Memory) SetDelisted(symbol string, date time.Time) {
	m.delisted[symbol] = calendar.Midnight(date)
}

func (m *Memory) DividendByExDate(symbol string, date time.Time) (Dividend, bool) {
	d, ok := m.dividends[keyOf(symbol, date)]
	return d, ok
}

func (m *Memory) SplitByExDate(symbol string, date time.Time) (Split, bool) {
	s, ok := m.splits[keyOf(symbol, date)]
	return s, ok
}

func (m *Memory) DelistedDate(symbol string) (time.Time, bool) {
	d, ok := m.delisted[symbol]
	return d, ok
}
