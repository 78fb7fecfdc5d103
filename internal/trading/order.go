package trading

// Side represents order/trade direction.
type Side int32

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide converts a wire-format side string.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "buy", "BUY":
		return SideBuy, true
	case "sell", "SELL":
		return SideSell, true
	default:
		return SideUnknown, false
	}
}

// OrderStatus is the order lifecycle state.
type OrderStatus int32

const (
	OrderStatusPendingNew OrderStatus = iota
	OrderStatusActive
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
)

func (st OrderStatus) String() string {
	switch st {
	case OrderStatusPendingNew:
		return "pending_new"
	case OrderStatusActive:
		return "active"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCancelled:
		return "cancelled"
	case OrderStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// IsFinal reports whether the status is terminal: no further fills or
// cancellations can arrive for the order.
func (st OrderStatus) IsFinal() bool {
	switch st {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// Order is a limit order as seen by the account ledger. FrozenPrice is the
// per-share price the ledger reserves against the unfilled quantity of buy
// orders; it may include a price buffer above the limit price.
type Order struct {
	OrderID        string
	Symbol         string
	Side           Side
	Quantity       float64
	Price          float64
	FrozenPrice    float64
	FilledQuantity float64
	Status         OrderStatus
}

// NewOrder creates a pending-new order. The frozen price defaults to the
// limit price; callers with a reserve buffer overwrite FrozenPrice before
// the pending-new event is published.
func NewOrder(orderID, symbol string, side Side, quantity, price float64) *Order {
	return &Order{
		OrderID:     orderID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    quantity,
		Price:       price,
		FrozenPrice: price,
		Status:      OrderStatusPendingNew,
	}
}

// UnfilledQuantity returns the quantity still working.
func (o *Order) UnfilledQuantity() float64 {
	return o.Quantity - o.FilledQuantity
}

// IsFinal reports whether the order has reached a terminal state.
func (o *Order) IsFinal() bool {
	return o.Status.IsFinal()
}

// Activate marks an accepted order as working.
func (o *Order) Activate() {
	if o.Status == OrderStatusPendingNew {
		o.Status = OrderStatusActive
	}
}

// Fill records an execution. The order becomes Filled once the full
// quantity is done.
func (o *Order) Fill(quantity float64) {
	o.FilledQuantity += quantity
	if o.FilledQuantity >= o.Quantity {
		o.FilledQuantity = o.Quantity
		o.Status = OrderStatusFilled
	} else if o.Status == OrderStatusPendingNew {
		o.Status = OrderStatusActive
	}
}

// Cancel marks the order cancelled. Already-final orders are left alone.
func (o *Order) Cancel() {
	if !o.IsFinal() {
		o.Status = OrderStatusCancelled
	}
}

// Reject marks the order rejected at creation.
func (o *Order) Reject() {
	if !o.IsFinal() {
		o.Status = OrderStatusRejected
	}
}
