package trading

// Trade is a single execution against an order. ExecID is the dedup key:
// the upstream source delivers trades at least once (live and again via
// the reconciliation path), so the ledger must apply each ExecID exactly
// once per trading day.
type Trade struct {
	ExecID          string
	Order           *Order
	Side            Side
	LastQuantity    float64
	LastPrice       float64
	TransactionCost float64
}

func NewTrade(execID string, order *Order, quantity, price, transactionCost float64) *Trade {
	return &Trade{
		ExecID:          execID,
		Order:           order,
		Side:            order.Side,
		LastQuantity:    quantity,
		LastPrice:       price,
		TransactionCost: transactionCost,
	}
}

// Symbol returns the instrument of the originating order.
func (t *Trade) Symbol() string {
	return t.Order.Symbol
}
