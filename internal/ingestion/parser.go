package ingestion

import (
	"encoding/json"
	"fmt"

	"EquityLedger/internal/calendar"
	"EquityLedger/internal/event"
	"EquityLedger/internal/trading"
)

// Parser converts raw wire messages into typed events. It owns the open
// order book: trades and order updates reference orders by id, so every
// order must arrive as pending_new before anything else touches it.
// The applied set guards the book against redelivered executions, the
// same way the ledger's own dedup set guards cash; it covers one trading
// day and clears when the settlement message arrives.
// Not safe for concurrent use; the feed loop is its only caller.
type Parser struct {
	orders  map[string]*trading.Order
	applied map[string]struct{}
}

func NewParser() *Parser {
	return &Parser{
		orders:  make(map[string]*trading.Order),
		applied: make(map[string]struct{}),
	}
}

// OpenOrders returns the orders not yet in a final state, for frozen-cash
// reconciliation at day boundaries during replay.
func (p *Parser) OpenOrders() []*trading.Order {
	out := make([]*trading.Order, 0, len(p.orders))
	for _, o := range p.orders {
		if !o.IsFinal() {
			out = append(out, o)
		}
	}
	return out
}

// Parse dispatches on the subject kind. A returned event of KindUnknown
// means the message updated parser state but produces nothing to publish,
// e.g. an order activation ack.
func (p *Parser) Parse(raw RawEvent, kind string) (event.Event, error) {
	switch kind {
	case "order":
		return p.parseOrder(raw.Data)
	case "trade":
		return p.parseTrade(raw.Data)
	case "calendar":
		return p.parseCalendar(raw.Data)
	default:
		return event.Event{}, fmt.Errorf("unknown subject kind: %s", kind)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type orderJSON struct {
	OrderID     string  `json:"order_id"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"` // "buy" or "sell"
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	FrozenPrice float64 `json:"frozen_price,omitempty"`
	Action      string  `json:"action"`
}

func (p *Parser) parseOrder(data []byte) (event.Event, error) {
	var j orderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return event.Event{}, fmt.Errorf("parse order: %w", err)
	}
	if j.OrderID == "" {
		return event.Event{}, fmt.Errorf("order message missing order_id")
	}

	switch j.Action {
	case "pending_new":
		side, ok := trading.ParseSide(j.Side)
		if !ok {
			return event.Event{}, fmt.Errorf("order %s: unknown side %q", j.OrderID, j.Side)
		}
		if j.Quantity <= 0 || j.Price <= 0 {
			return event.Event{}, fmt.Errorf("order %s: non-positive quantity or price", j.OrderID)
		}
		if _, exists := p.orders[j.OrderID]; exists {
			return event.Event{}, fmt.Errorf("order %s: duplicate pending_new", j.OrderID)
		}
		o := trading.NewOrder(j.OrderID, j.Symbol, side, j.Quantity, j.Price)
		if j.FrozenPrice > 0 {
			o.FrozenPrice = j.FrozenPrice
		}
		p.orders[j.OrderID] = o
		return event.OrderEvent(event.KindOrderPendingNew, o), nil

	case "creation_pass":
		o, ok := p.orders[j.OrderID]
		if !ok {
			return event.Event{}, fmt.Errorf("order %s: creation_pass for unknown order", j.OrderID)
		}
		o.Activate()
		return event.Event{}, nil

	case "creation_reject":
		o, ok := p.orders[j.OrderID]
		if !ok {
			return event.Event{}, fmt.Errorf("order %s: creation_reject for unknown order", j.OrderID)
		}
		o.Reject()
		delete(p.orders, j.OrderID)
		return event.OrderEvent(event.KindOrderCreationReject, o), nil

	case "cancellation_pass":
		o, ok := p.orders[j.OrderID]
		if !ok {
			return event.Event{}, fmt.Errorf("order %s: cancellation_pass for unknown order", j.OrderID)
		}
		o.Cancel()
		delete(p.orders, j.OrderID)
		return event.OrderEvent(event.KindOrderCancellationPass, o), nil

	case "unsolicited_update":
		o, ok := p.orders[j.OrderID]
		if !ok {
			return event.Event{}, fmt.Errorf("order %s: unsolicited_update for unknown order", j.OrderID)
		}
		o.Cancel()
		delete(p.orders, j.OrderID)
		return event.OrderEvent(event.KindOrderUnsolicitedUpdate, o), nil

	default:
		return event.Event{}, fmt.Errorf("order %s: unknown action %q", j.OrderID, j.Action)
	}
}

type tradeJSON struct {
	ExecID          string  `json:"exec_id"`
	OrderID         string  `json:"order_id"`
	Quantity        float64 `json:"quantity"`
	Price           float64 `json:"price"`
	TransactionCost float64 `json:"transaction_cost"`
}

func (p *Parser) parseTrade(data []byte) (event.Event, error) {
	var j tradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return event.Event{}, fmt.Errorf("parse trade: %w", err)
	}
	if j.ExecID == "" {
		return event.Event{}, fmt.Errorf("trade message missing exec_id")
	}
	if _, seen := p.applied[j.ExecID]; seen {
		// Redelivered execution. The fill is already in the book, and the
		// order it filled may already be retired, so this check must come
		// before the order lookup. Ack silently, publish nothing.
		return event.Event{}, nil
	}
	o, ok := p.orders[j.OrderID]
	if !ok {
		return event.Event{}, fmt.Errorf("trade %s: unknown order %q", j.ExecID, j.OrderID)
	}
	if j.Quantity <= 0 || j.Price <= 0 {
		return event.Event{}, fmt.Errorf("trade %s: non-positive quantity or price", j.ExecID)
	}

	trade := trading.NewTrade(j.ExecID, o, j.Quantity, j.Price, j.TransactionCost)
	o.Fill(j.Quantity)
	p.applied[j.ExecID] = struct{}{}
	if o.IsFinal() {
		delete(p.orders, o.OrderID)
	}
	return event.TradeExecuted(trade), nil
}

type calendarJSON struct {
	Phase string `json:"phase"` // "before_trading", "after_trading", "settlement"
	Date  string `json:"date"`  // 2006-01-02
}

func (p *Parser) parseCalendar(data []byte) (event.Event, error) {
	var j calendarJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return event.Event{}, fmt.Errorf("parse calendar: %w", err)
	}
	date, err := calendar.ParseDate(j.Date)
	if err != nil {
		return event.Event{}, fmt.Errorf("parse calendar date: %w", err)
	}

	var kind event.Kind
	switch j.Phase {
	case "before_trading":
		kind = event.KindPreBeforeTrading
	case "after_trading":
		kind = event.KindPreAfterTrading
	case "settlement":
		// Exec ids are only unique within a trading day; drop the applied
		// window when the ledger drops its own dedup set.
		kind = event.KindSettlement
		p.applied = make(map[string]struct{})
	default:
		return event.Event{}, fmt.Errorf("unknown calendar phase %q", j.Phase)
	}
	return event.DayEvent(kind, date), nil
}
