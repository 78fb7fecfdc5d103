package event

import (
	"time"

	"EquityLedger/internal/trading"
)

// Kind discriminates lifecycle events on the bus.
type Kind int32

const (
	KindUnknown Kind = iota
	KindTradeExecuted
	KindOrderPendingNew
	KindOrderCreationReject
	KindOrderUnsolicitedUpdate
	KindOrderCancellationPass
	KindPreBeforeTrading
	KindPreAfterTrading
	KindSettlement
)

func (k Kind) String() string {
	switch k {
	case KindTradeExecuted:
		return "TradeExecuted"
	case KindOrderPendingNew:
		return "OrderPendingNew"
	case KindOrderCreationReject:
		return "OrderCreationReject"
	case KindOrderUnsolicitedUpdate:
		return "OrderUnsolicitedUpdate"
	case KindOrderCancellationPass:
		return "OrderCancellationPass"
	case KindPreBeforeTrading:
		return "PreBeforeTrading"
	case KindPreAfterTrading:
		return "PreAfterTrading"
	case KindSettlement:
		return "Settlement"
	default:
		return "Unknown"
	}
}

// Event is the tagged union delivered to handlers. Exactly one of Order /
// Trade is set for order and trade kinds; day-boundary kinds carry only
// the trading date.
type Event struct {
	Kind        Kind
	TradingDate time.Time
	Order       *trading.Order
	Trade       *trading.Trade
}

// TradeExecuted builds a trade event.
func TradeExecuted(t *trading.Trade) Event {
	return Event{Kind: KindTradeExecuted, Trade: t}
}

// OrderEvent builds an order lifecycle event of the given kind.
func OrderEvent(kind Kind, o *trading.Order) Event {
	return Event{Kind: kind, Order: o}
}

// DayEvent builds a day-boundary event for a trading date.
func DayEvent(kind Kind, date time.Time) Event {
	return Event{Kind: kind, TradingDate: date}
}
