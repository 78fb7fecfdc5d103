package account

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"EquityLedger/internal/calendar"
	"EquityLedger/internal/event"
	"EquityLedger/internal/observability"
	"EquityLedger/internal/position"
	"EquityLedger/internal/refdata"
	"EquityLedger/internal/trading"
)

// Type discriminates instrument-class ledgers under a shared account
// abstraction.
type Type int32

const (
	TypeUnknown Type = iota
	TypeStock
	TypeFuture
)

func (t Type) String() string {
	switch t {
	case TypeStock:
		return "stock"
	case TypeFuture:
		return "future"
	default:
		return "unknown"
	}
}

// Receivable is a dividend entitlement booked at ex-date closure and paid
// out on its payable date.
type Receivable struct {
	Quantity         float64
	DividendPerShare float64
	PayableDate      time.Time
}

// Flags are the ledger policy switches.
type Flags struct {
	// HandleSplit enables stock-split adjustment at before-trading.
	HandleSplit bool
	// CashReturnByStockDelisted credits the market value of a delisted
	// position back to cash when it is force-closed at settlement.
	// Leaving it off, and losing the residual value, is an explicit
	// configuration choice.
	CashReturnByStockDelisted bool
}

// frozenEpsilon absorbs float rounding on frozen-cash arithmetic. Anything
// below -frozenEpsilon is a real accounting fault.
const frozenEpsilon = 1e-6

// StockAccount is the equity account ledger: cash, frozen cash, the
// intra-day trade dedup set, and pending dividends. It is mutated only by
// its own event handlers; positions are mutated only through its delegated
// calls. Single-threaded by contract with the bus.
type StockAccount struct {
	totalCash  float64
	frozenCash float64

	backwardTrades map[string]struct{}
	receivables    map[string]Receivable

	positions *position.Store
	data      refdata.Provider
	clock     *calendar.Clock
	flags     Flags

	log     zerolog.Logger
	metrics *observability.Metrics
}

// Option customizes account construction.
type Option func(*StockAccount)

// WithBackwardTradeSet pre-seeds the trade dedup set, used when resuming a
// partially replayed session.
func WithBackwardTradeSet(execIDs []string) Option {
	return func(a *StockAccount) {
		for _, id := range execIDs {
			a.backwardTrades[id] = struct{}{}
		}
	}
}

// WithDividendReceivable pre-seeds the pending-dividend table.
func WithDividendReceivable(receivables map[string]Receivable) Option {
	return func(a *StockAccount) {
		for symbol, r := range receivables {
			a.receivables[symbol] = r
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(a *StockAccount) { a.log = log }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(a *StockAccount) { a.metrics = m }
}

// New constructs the ledger with its initial cash balance. The dedup set
// and dividend table default to fresh empty maps per instance.
func New(
	totalCash float64,
	store *position.Store,
	data refdata.Provider,
	clock *calendar.Clock,
	flags Flags,
	opts ...Option,
) *StockAccount {
	a := &StockAccount{
		totalCash:      totalCash,
		backwardTrades: make(map[string]struct{}),
		receivables:    make(map[string]Receivable),
		positions:      store,
		data:           data,
		clock:          clock,
		flags:          flags,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterEvent binds the ledger's handlers to the bus. Creation rejects,
// unsolicited updates, and cancellation acks all share the terminal-order
// handler.
func (a *StockAccount) RegisterEvent(bus *event.Bus) {
	bus.AddListener(event.KindTradeExecuted, a.onTrade)
	bus.AddListener(event.KindOrderPendingNew, a.onOrderPendingNew)
	bus.AddListener(event.KindOrderCreationReject, a.onOrderUnsolicitedUpdate)
	bus.AddListener(event.KindOrderUnsolicitedUpdate, a.onOrderUnsolicitedUpdate)
	bus.AddListener(event.KindOrderCancellationPass, a.onOrderUnsolicitedUpdate)
	bus.AddListener(event.KindPreBeforeTrading, a.beforeTrading)
	bus.AddListener(event.KindPreAfterTrading, a.afterTrading)
	bus.AddListener(event.KindSettlement, a.onSettlement)
}

// FastForward rebuilds ledger state from a full order/trade history, e.g.
// when resuming from a checkpoint. Trades replay through the dedup-guarded
// path; frozen cash is recomputed from scratch over non-final orders,
// discarding the incrementally tracked value.
func (a *StockAccount) FastForward(orders []*trading.Order, trades []*trading.Trade) {
	for _, t := range trades {
		a.applyTrade(t)
	}

	a.frozenCash = 0
	for _, o := range orders {
		if o.IsFinal() {
			continue
		}
		a.frozenCash += o.FrozenPrice * o.UnfilledQuantity()
	}
	a.assertFrozenCash("fast-forward")
	a.observeState()
}

func (a *StockAccount) onTrade(e event.Event) {
	a.applyTrade(e.Trade)
	a.observe(event.KindTradeExecuted)
}

func (a *StockAccount) applyTrade(t *trading.Trade) {
	if _, seen := a.backwardTrades[t.ExecID]; seen {
		if a.metrics != nil {
			a.metrics.DuplicateTrades.Inc()
		}
		return
	}

	pos := a.positions.GetOrCreate(t.Symbol())
	a.totalCash -= t.TransactionCost
	if t.Side == trading.SideBuy {
		a.totalCash -= t.LastQuantity * t.LastPrice
		a.frozenCash -= t.Order.FrozenPrice * t.LastQuantity
		a.clampFrozenCash()
	} else {
		a.totalCash += t.LastPrice * t.LastQuantity
	}
	pos.ApplyTrade(t)
	a.backwardTrades[t.ExecID] = struct{}{}

	if a.metrics != nil {
		a.metrics.TradesApplied.Inc()
	}
}

func (a *StockAccount) onOrderPendingNew(e event.Event) {
	order := e.Order
	pos := a.positions.GetOrCreate(order.Symbol)
	pos.OnOrderPendingNew(order)
	if order.Side == trading.SideBuy {
		a.frozenCash += order.FrozenPrice * order.Quantity
	}
	a.observe(e.Kind)
}

func (a *StockAccount) onOrderUnsolicitedUpdate(e event.Event) {
	order := e.Order
	pos := a.positions.GetOrCreate(order.Symbol)
	pos.OnOrderCancel(order)
	if order.Side == trading.SideBuy {
		a.frozenCash -= order.FrozenPrice * order.UnfilledQuantity()
		a.clampFrozenCash()
	}
	a.observe(e.Kind)
}

func (a *StockAccount) beforeTrading(e event.Event) {
	date := a.clock.TradingDate()
	a.handleDividendPayable(date)
	if a.flags.HandleSplit {
		a.handleSplit(date)
	}
	a.observe(event.KindPreBeforeTrading)
}

func (a *StockAccount) afterTrading(e event.Event) {
	for _, pos := range a.positions.All() {
		pos.AfterTrading()
	}
	a.observe(event.KindPreAfterTrading)
}

func (a *StockAccount) onSettlement(e event.Event) {
	date := a.clock.TradingDate()

	// Iterate a snapshot of symbols; removal is safe mid-sweep.
	for _, symbol := range a.positions.Symbols() {
		pos, ok := a.positions.Get(symbol)
		if !ok {
			continue
		}
		switch {
		case pos.IsDelisted() && pos.Quantity() != 0:
			if a.flags.CashReturnByStockDelisted {
				a.totalCash += pos.MarketValue()
			}
			a.log.Warn().
				Str("symbol", symbol).
				Float64("quantity", pos.Quantity()).
				Bool("cash_returned", a.flags.CashReturnByStockDelisted).
				Msg("instrument expired, closing position by system")
			a.positions.Remove(symbol)
			if a.metrics != nil {
				a.metrics.PositionsForceClosed.Inc()
			}
		case pos.Quantity() == 0:
			a.positions.Remove(symbol)
			if a.metrics != nil {
				a.metrics.PositionsPruned.Inc()
			}
		default:
			pos.ApplySettlement()
		}
	}

	// Exec ids become eligible for fresh dedup tracking on the next date.
	a.backwardTrades = make(map[string]struct{})

	a.handleDividendBookClosure(date)
	a.assertFrozenCash("settlement")
	a.observe(event.KindSettlement)
}

func (a *StockAccount) handleDividendPayable(date time.Time) {
	var paid []string
	for symbol, r := range a.receivables {
		if r.PayableDate.Equal(date) {
			a.totalCash += r.Quantity * r.DividendPerShare
			paid = append(paid, symbol)
			if a.metrics != nil {
				a.metrics.DividendsPaid.Inc()
			}
		}
	}
	for _, symbol := range paid {
		delete(a.receivables, symbol)
	}
}

func (a *StockAccount) handleDividendBookClosure(date time.Time) {
	for _, pos := range a.positions.All() {
		dividend, ok := a.data.DividendByExDate(pos.Symbol(), date)
		if !ok {
			continue
		}
		a.receivables[pos.Symbol()] = Receivable{
			Quantity:         pos.Quantity(),
			DividendPerShare: dividend.CashBeforeTax / dividend.RoundLot,
			PayableDate:      dividend.PayableDate,
		}
	}
}

func (a *StockAccount) handleSplit(date time.Time) {
	for _, pos := range a.positions.All() {
		split, ok := a.data.SplitByExDate(pos.Symbol(), date)
		if !ok {
			continue
		}
		pos.ApplySplit(split.CoefficientTo / split.CoefficientFrom)
		if a.metrics != nil {
			a.metrics.SplitsApplied.Inc()
		}
	}
}

// TotalCash is the unrestricted cash balance. It still contains the
// reserved portion; FrozenCash is the memo of how much is spoken for.
func (a *StockAccount) TotalCash() float64 {
	return a.totalCash
}

// FrozenCash is the cash reserved against unfilled buy orders.
func (a *StockAccount) FrozenCash() float64 {
	return a.frozenCash
}

// AvailableCash is what new buy orders can still reserve against.
func (a *StockAccount) AvailableCash() float64 {
	return a.totalCash - a.frozenCash
}

// TotalValue is cash plus the aggregate market value of all positions,
// recomputed on every read.
func (a *StockAccount) TotalValue() float64 {
	value := a.totalCash
	for _, pos := range a.positions.All() {
		value += pos.MarketValue()
	}
	return value
}

// DividendReceivable is the aggregate pending-dividend value.
func (a *StockAccount) DividendReceivable() float64 {
	var total float64
	for _, r := range a.receivables {
		total += r.Quantity * r.DividendPerShare
	}
	return total
}

// Receivables returns a copy of the pending-dividend table.
func (a *StockAccount) Receivables() map[string]Receivable {
	out := make(map[string]Receivable, len(a.receivables))
	for symbol, r := range a.receivables {
		out[symbol] = r
	}
	return out
}

// HasTrade reports whether an exec id is in the current dedup window.
func (a *StockAccount) HasTrade(execID string) bool {
	_, ok := a.backwardTrades[execID]
	return ok
}

// Positions exposes the owned position store for read access.
func (a *StockAccount) Positions() *position.Store {
	return a.positions
}

// Type identifies this ledger as the equities variant.
func (a *StockAccount) Type() Type {
	return TypeStock
}

// clampFrozenCash zeroes float dust after a release; a genuinely negative
// reservation is deferred to assertFrozenCash at the next boundary.
func (a *StockAccount) clampFrozenCash() {
	if a.frozenCash < 0 && a.frozenCash > -frozenEpsilon {
		a.frozenCash = 0
	}
}

// assertFrozenCash fails fast on a negative reservation. A silent negative
// here corrupts every downstream buying-power calculation.
func (a *StockAccount) assertFrozenCash(stage string) {
	if a.frozenCash < -frozenEpsilon {
		panic(fmt.Sprintf("FATAL: negative frozen cash %f after %s", a.frozenCash, stage))
	}
	a.clampFrozenCash()
}

func (a *StockAccount) observe(kind event.Kind) {
	if a.metrics == nil {
		return
	}
	a.metrics.EventsApplied.WithLabelValues(kind.String()).Inc()
	a.observeState()
}

func (a *StockAccount) observeState() {
	if a.metrics == nil {
		return
	}
	a.metrics.TotalCash.Set(a.totalCash)
	a.metrics.FrozenCash.Set(a.frozenCash)
	a.metrics.PositionCount.Set(float64(a.positions.Len()))
}
