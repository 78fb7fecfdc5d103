package scenario

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"EquityLedger/internal/account"
	"EquityLedger/internal/calendar"
	"EquityLedger/internal/event"
	"EquityLedger/internal/observability"
	"EquityLedger/internal/position"
	"EquityLedger/internal/refdata"
	"EquityLedger/internal/trading"
)

// Runner wires a scenario into a live ledger and replays it day by day.
// Everything runs on the caller's goroutine; the bus dispatch order is the
// scenario's script order.
type Runner struct {
	scenario *Scenario

	clock  *calendar.Clock
	data   *refdata.Memory
	store  *position.Store
	acct   *account.StockAccount
	bus    *event.Bus
	orders map[string]*trading.Order

	log zerolog.Logger
}

// RunnerOption customizes runner construction.
type RunnerOption func(*runnerConfig)

type runnerConfig struct {
	log     zerolog.Logger
	metrics *observability.Metrics
}

func WithLogger(log zerolog.Logger) RunnerOption {
	return func(c *runnerConfig) { c.log = log }
}

func WithMetrics(m *observability.Metrics) RunnerOption {
	return func(c *runnerConfig) { c.metrics = m }
}

// NewRunner builds the ledger, position store, and reference data for the
// scenario and binds the account to a fresh bus.
func NewRunner(s *Scenario, opts ...RunnerOption) (*Runner, error) {
	cfg := runnerConfig{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	firstDate, err := calendar.ParseDate(s.Days[0].Date)
	if err != nil {
		return nil, fmt.Errorf("day %s: %w", s.Days[0].Date, err)
	}

	clock := calendar.NewClock(firstDate)
	data := refdata.NewMemory()
	if err := loadRefData(data, s); err != nil {
		return nil, err
	}

	store := position.NewStore(data, clock)
	acct := account.New(s.InitialCash, store, data, clock, account.Flags{
		HandleSplit:               s.HandleSplit,
		CashReturnByStockDelisted: s.CashReturnByStockDelisted,
	}, account.WithLogger(cfg.log), account.WithMetrics(cfg.metrics))

	bus := event.NewBus()
	acct.RegisterEvent(bus)

	return &Runner{
		scenario: s,
		clock:    clock,
		data:     data,
		store:    store,
		acct:     acct,
		bus:      bus,
		orders:   make(map[string]*trading.Order),
		log:      cfg.log,
	}, nil
}

func loadRefData(data *refdata.Memory, s *Scenario) error {
	for _, d := range s.Dividends {
		exDate, err := calendar.ParseDate(d.ExDate)
		if err != nil {
			return fmt.Errorf("dividend %s: %w", d.Symbol, err)
		}
		payable, err := calendar.ParseDate(d.PayableDate)
		if err != nil {
			return fmt.Errorf("dividend %s: %w", d.Symbol, err)
		}
		if err := data.AddDividend(d.Symbol, exDate, refdata.Dividend{
			CashBeforeTax: d.CashBeforeTax,
			RoundLot:      d.RoundLot,
			PayableDate:   payable,
		}); err != nil {
			return fmt.Errorf("dividend %s: %w", d.Symbol, err)
		}
	}
	for _, sp := range s.Splits {
		exDate, err := calendar.ParseDate(sp.ExDate)
		if err != nil {
			return fmt.Errorf("split %s: %w", sp.Symbol, err)
		}
		if err := data.AddSplit(sp.Symbol, exDate, refdata.Split{
			CoefficientFrom: sp.From,
			CoefficientTo:   sp.To,
		}); err != nil {
			return fmt.Errorf("split %s: %w", sp.Symbol, err)
		}
	}
	for _, d := range s.Delistings {
		date, err := calendar.ParseDate(d.Date)
		if err != nil {
			return fmt.Errorf("delisting %s: %w", d.Symbol, err)
		}
		data.SetDelisted(d.Symbol, date)
	}
	return nil
}

// Bus exposes the runner's bus so additional listeners, e.g. an audit
// recorder, can attach before Run. Listeners registered after the account
// observe post-update ledger state.
func (r *Runner) Bus() *event.Bus { return r.bus }

// Account exposes the ledger for read access after Run.
func (r *Runner) Account() *account.StockAccount { return r.acct }

// Clock exposes the session clock.
func (r *Runner) Clock() *calendar.Clock { return r.clock }

// Report is the end-of-run ledger summary.
type Report struct {
	FinalCash          float64          `json:"final_cash"`
	FrozenCash         float64          `json:"frozen_cash"`
	TotalValue         float64          `json:"total_value"`
	DividendReceivable float64          `json:"dividend_receivable"`
	Positions          []PositionReport `json:"positions"`
}

type PositionReport struct {
	Symbol    string  `json:"symbol"`
	Quantity  float64 `json:"quantity"`
	AvgPrice  float64 `json:"avg_price"`
	LastPrice float64 `json:"last_price"`
}

// Run replays every scenario day through the full trading-day cycle and
// returns the final ledger summary.
func (r *Runner) Run() (*Report, error) {
	for _, day := range r.scenario.Days {
		date, err := calendar.ParseDate(day.Date)
		if err != nil {
			return nil, fmt.Errorf("day %s: %w", day.Date, err)
		}
		r.clock.Advance(date)
		r.log.Info().Str("date", day.Date).Msg("trading day start")

		r.bus.Publish(event.DayEvent(event.KindPreBeforeTrading, date))

		for i, step := range day.Events {
			if err := r.runStep(step); err != nil {
				return nil, fmt.Errorf("day %s event %d: %w", day.Date, i, err)
			}
		}

		for symbol, price := range day.Closes {
			if pos, ok := r.store.Get(symbol); ok {
				pos.SetLastPrice(price)
			}
		}

		r.bus.Publish(event.DayEvent(event.KindPreAfterTrading, date))
		r.bus.Publish(event.DayEvent(event.KindSettlement, date))
	}

	report := &Report{
		FinalCash:          r.acct.TotalCash(),
		FrozenCash:         r.acct.FrozenCash(),
		TotalValue:         r.acct.TotalValue(),
		DividendReceivable: r.acct.DividendReceivable(),
	}
	for _, pos := range r.store.All() {
		report.Positions = append(report.Positions, PositionReport{
			Symbol:    pos.Symbol(),
			Quantity:  pos.Quantity(),
			AvgPrice:  pos.AvgPrice(),
			LastPrice: pos.LastPrice(),
		})
	}
	return report, nil
}

func (r *Runner) runStep(step Step) error {
	switch step.Type {
	case "order":
		side, ok := trading.ParseSide(step.Side)
		if !ok {
			return fmt.Errorf("unknown side %q", step.Side)
		}
		orderID := step.OrderID
		if orderID == "" {
			orderID = uuid.NewString()
		}
		if _, exists := r.orders[orderID]; exists {
			return fmt.Errorf("duplicate order id %q", orderID)
		}
		o := trading.NewOrder(orderID, step.Symbol, side, step.Quantity, step.Price)
		if step.FrozenPrice > 0 {
			o.FrozenPrice = step.FrozenPrice
		}
		r.orders[orderID] = o
		r.bus.Publish(event.OrderEvent(event.KindOrderPendingNew, o))
		o.Activate()

	case "trade":
		o, ok := r.orders[step.OrderID]
		if !ok {
			return fmt.Errorf("trade references unknown order %q", step.OrderID)
		}
		execID := step.ExecID
		if execID == "" {
			execID = uuid.NewString()
		}
		trade := trading.NewTrade(execID, o, step.Quantity, step.Price, step.Cost)
		o.Fill(step.Quantity)
		r.bus.Publish(event.TradeExecuted(trade))

	case "cancel":
		o, ok := r.orders[step.OrderID]
		if !ok {
			return fmt.Errorf("cancel references unknown order %q", step.OrderID)
		}
		o.Cancel()
		r.bus.Publish(event.OrderEvent(event.KindOrderCancellationPass, o))

	case "reject":
		o, ok := r.orders[step.OrderID]
		if !ok {
			return fmt.Errorf("reject references unknown order %q", step.OrderID)
		}
		o.Reject()
		r.bus.Publish(event.OrderEvent(event.KindOrderCreationReject, o))

	default:
		return fmt.Errorf("unknown step type %q", step.Type)
	}
	return nil
}
