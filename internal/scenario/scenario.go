package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted trading session: reference data plus a sequence
// of trading days, each with its own order flow and closing prices.
type Scenario struct {
	InitialCash               float64 `yaml:"initial_cash"`
	HandleSplit               bool    `yaml:"handle_split"`
	CashReturnByStockDelisted bool    `yaml:"cash_return_by_stock_delisted"`

	Dividends  []DividendSpec  `yaml:"dividends,omitempty"`
	Splits     []SplitSpec     `yaml:"splits,omitempty"`
	Delistings []DelistingSpec `yaml:"delistings,omitempty"`

	Days []Day `yaml:"days"`
}

type DividendSpec struct {
	Symbol        string  `yaml:"symbol"`
	ExDate        string  `yaml:"ex_date"`
	PayableDate   string  `yaml:"payable_date"`
	CashBeforeTax float64 `yaml:"cash_before_tax"`
	RoundLot      float64 `yaml:"round_lot"`
}

type SplitSpec struct {
	Symbol string  `yaml:"symbol"`
	ExDate string  `yaml:"ex_date"`
	From   float64 `yaml:"from"`
	To     float64 `yaml:"to"`
}

type DelistingSpec struct {
	Symbol string `yaml:"symbol"`
	Date   string `yaml:"date"`
}

// Day is one trading date: its intraday steps in order, then the closing
// prices applied before the after-trading sweep.
type Day struct {
	Date   string             `yaml:"date"`
	Events []Step             `yaml:"events,omitempty"`
	Closes map[string]float64 `yaml:"closes,omitempty"`
}

// Step is one intraday action. Type selects which fields matter:
// "order" places and activates, "trade" fills, "cancel" and "reject"
// terminate an open order.
type Step struct {
	Type        string  `yaml:"type"`
	OrderID     string  `yaml:"order_id,omitempty"`
	Symbol      string  `yaml:"symbol,omitempty"`
	Side        string  `yaml:"side,omitempty"`
	Quantity    float64 `yaml:"quantity,omitempty"`
	Price       float64 `yaml:"price,omitempty"`
	FrozenPrice float64 `yaml:"frozen_price,omitempty"`
	ExecID      string  `yaml:"exec_id,omitempty"`
	Cost        float64 `yaml:"cost,omitempty"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects scenarios the runner could not execute deterministically.
func (s *Scenario) Validate() error {
	if s.InitialCash < 0 {
		return fmt.Errorf("initial_cash must be non-negative, got %f", s.InitialCash)
	}
	if len(s.Days) == 0 {
		return fmt.Errorf("scenario has no trading days")
	}
	for i, d := range s.Days {
		if d.Date == "" {
			return fmt.Errorf("day %d: missing date", i)
		}
		for j, step := range d.Events {
			switch step.Type {
			case "order":
				if step.Symbol == "" || step.Side == "" {
					return fmt.Errorf("day %s event %d: order needs symbol and side", d.Date, j)
				}
				if step.Quantity <= 0 || step.Price <= 0 {
					return fmt.Errorf("day %s event %d: order needs positive quantity and price", d.Date, j)
				}
			case "trade":
				if step.OrderID == "" {
					return fmt.Errorf("day %s event %d: trade needs order_id", d.Date, j)
				}
				if step.Quantity <= 0 || step.Price <= 0 {
					return fmt.Errorf("day %s event %d: trade needs positive quantity and price", d.Date, j)
				}
			case "cancel", "reject":
				if step.OrderID == "" {
					return fmt.Errorf("day %s event %d: %s needs order_id", d.Date, j, step.Type)
				}
			default:
				return fmt.Errorf("day %s event %d: unknown step type %q", d.Date, j, step.Type)
			}
		}
	}
	return nil
}
