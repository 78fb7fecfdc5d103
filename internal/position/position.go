package position

import (
	"EquityLedger/internal/calendar"
	"EquityLedger/internal/refdata"
	"EquityLedger/internal/trading"
)

// Position is the per-symbol sub-ledger: quantity, average cost, last
// traded price, and open-order bookkeeping. Quantity bought today is
// tracked separately and only becomes sellable after settlement (T+1).
type Position struct {
	symbol string

	quantity  float64
	avgPrice  float64
	lastPrice float64
	prevClose float64

	todayBuyQuantity float64
	openBuyQuantity  float64
	openSellQuantity float64

	data  refdata.Provider
	clock *calendar.Clock
}

func newPosition(symbol string, data refdata.Provider, clock *calendar.Clock) *Position {
	return &Position{symbol: symbol, data: data, clock: clock}
}

func (p *Position) Symbol() string     { return p.symbol }
func (p *Position) Quantity() float64  { return p.quantity }
func (p *Position) AvgPrice() float64  { return p.avgPrice }
func (p *Position) LastPrice() float64 { return p.lastPrice }
func (p *Position) PrevClose() float64 { return p.prevClose }

// MarketValue is quantity at the last known price.
func (p *Position) MarketValue() float64 {
	return p.quantity * p.lastPrice
}

// SellableQuantity excludes today's buys (T+1) and quantity already
// committed to working sell orders.
func (p *Position) SellableQuantity() float64 {
	s := p.quantity - p.todayBuyQuantity - p.openSellQuantity
	if s < 0 {
		return 0
	}
	return s
}

// SetLastPrice updates the mark used for MarketValue. Trades also update
// it as a side effect.
func (p *Position) SetLastPrice(price float64) {
	p.lastPrice = price
}

// ApplyTrade updates holdings for one execution. Both sides flow through
// here: buys raise quantity and re-average the cost basis (transaction
// cost included), sells reduce quantity. Cash effects live in the account
// ledger, not here.
func (p *Position) ApplyTrade(t *trading.Trade) {
	switch t.Side {
	case trading.SideBuy:
		newQuantity := p.quantity + t.LastQuantity
		p.avgPrice = (p.avgPrice*p.quantity + t.LastPrice*t.LastQuantity + t.TransactionCost) / newQuantity
		p.quantity = newQuantity
		p.todayBuyQuantity += t.LastQuantity
		p.openBuyQuantity -= t.LastQuantity
	case trading.SideSell:
		p.quantity -= t.LastQuantity
		p.openSellQuantity -= t.LastQuantity
	}
	if p.openBuyQuantity < 0 {
		p.openBuyQuantity = 0
	}
	if p.openSellQuantity < 0 {
		p.openSellQuantity = 0
	}
	if p.quantity == 0 {
		p.avgPrice = 0
	}
	p.lastPrice = t.LastPrice
}

// OnOrderPendingNew records a newly accepted order's working quantity.
func (p *Position) OnOrderPendingNew(o *trading.Order) {
	switch o.Side {
	case trading.SideBuy:
		p.openBuyQuantity += o.Quantity
	case trading.SideSell:
		p.openSellQuantity += o.Quantity
	}
}

// OnOrderCancel releases the unfilled working quantity of a finished
// order (cancelled, rejected, or unsolicited terminal update).
func (p *Position) OnOrderCancel(o *trading.Order) {
	unfilled := o.UnfilledQuantity()
	switch o.Side {
	case trading.SideBuy:
		p.openBuyQuantity -= unfilled
		if p.openBuyQuantity < 0 {
			p.openBuyQuantity = 0
		}
	case trading.SideSell:
		p.openSellQuantity -= unfilled
		if p.openSellQuantity < 0 {
			p.openSellQuantity = 0
		}
	}
}

// AfterTrading closes out the intraday mark: the last price becomes the
// previous close for the next session.
func (p *Position) AfterTrading() {
	p.prevClose = p.lastPrice
}

// ApplySettlement rolls the day boundary forward: today's buys become
// sellable tomorrow.
func (p *Position) ApplySettlement() {
	p.todayBuyQuantity = 0
}

// ApplySplit adjusts holdings by ratio = to/from: quantity scales up,
// per-share prices scale down, total cost basis unchanged.
func (p *Position) ApplySplit(ratio float64) {
	p.quantity *= ratio
	p.todayBuyQuantity *= ratio
	p.openBuyQuantity *= ratio
	p.openSellQuantity *= ratio
	p.avgPrice /= ratio
	p.lastPrice /= ratio
	p.prevClose /= ratio
}

// IsDelisted reports whether the instrument's delisting date has been
// reached as of the current trading date.
func (p *Position) IsDelisted() bool {
	d, ok := p.data.DelistedDate(p.symbol)
	if !ok {
		return false
	}
	return !p.clock.TradingDate().Before(d)
}

// restore seeds holdings directly, bypassing trade flow. Used when the
// account is constructed with an initial position set.
func (p *Position) restore(quantity, avgPrice, lastPrice float64) {
	p.quantity = quantity
	p.avgPrice = avgPrice
	p.lastPrice = lastPrice
	p.prevClose = lastPrice
}
