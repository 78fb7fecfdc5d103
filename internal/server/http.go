package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"EquityLedger/internal/account"
	"EquityLedger/internal/calendar"
	"EquityLedger/internal/observability"
)

// View is the read-side snapshot of the ledger served over HTTP. The feed
// goroutine refreshes it after each applied event; handlers only ever read
// the copy, never the live account.
type View struct {
	mu   sync.RWMutex
	snap Snapshot
}

// Snapshot is one consistent read of the ledger.
type Snapshot struct {
	TradingDate        string         `json:"trading_date"`
	AccountType        string         `json:"account_type"`
	TotalCash          float64        `json:"total_cash"`
	FrozenCash         float64        `json:"frozen_cash"`
	AvailableCash      float64        `json:"available_cash"`
	TotalValue         float64        `json:"total_value"`
	DividendReceivable float64        `json:"dividend_receivable"`
	Positions          []PositionView `json:"positions"`
}

type PositionView struct {
	Symbol      string  `json:"symbol"`
	Quantity    float64 `json:"quantity"`
	Sellable    float64 `json:"sellable_quantity"`
	AvgPrice    float64 `json:"avg_price"`
	LastPrice   float64 `json:"last_price"`
	MarketValue float64 `json:"market_value"`
}

func NewView() *View {
	return &View{}
}

// Update takes a fresh snapshot. Called from the feed goroutine only,
// while it owns the account.
func (v *View) Update(acct *account.StockAccount, clock *calendar.Clock) {
	snap := Snapshot{
		TradingDate:        calendar.FormatDate(clock.TradingDate()),
		AccountType:        acct.Type().String(),
		TotalCash:          acct.TotalCash(),
		FrozenCash:         acct.FrozenCash(),
		AvailableCash:      acct.AvailableCash(),
		TotalValue:         acct.TotalValue(),
		DividendReceivable: acct.DividendReceivable(),
	}
	for _, pos := range acct.Positions().All() {
		snap.Positions = append(snap.Positions, PositionView{
			Symbol:      pos.Symbol(),
			Quantity:    pos.Quantity(),
			Sellable:    pos.SellableQuantity(),
			AvgPrice:    pos.AvgPrice(),
			LastPrice:   pos.LastPrice(),
			MarketValue: pos.MarketValue(),
		})
	}

	v.mu.Lock()
	v.snap = snap
	v.mu.Unlock()
}

func (v *View) Get() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap
}

// NewRouter builds the status surface: health probes, the ledger snapshot,
// and Prometheus metrics.
func NewRouter(view *View, health *observability.HealthChecker) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", health.LivenessHandler)
	r.Get("/readyz", health.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/account", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, view.Get())
	})
	r.Get("/positions", func(w http.ResponseWriter, req *http.Request) {
		snap := view.Get()
		if snap.Positions == nil {
			snap.Positions = []PositionView{}
		}
		writeJSON(w, snap.Positions)
	})

	return r
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
