package position

import (
	"math"
	"testing"
	"time"

	"EquityLedger/internal/calendar"
	"EquityLedger/internal/refdata"
	"EquityLedger/internal/trading"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func newTestStore() (*Store, *refdata.Memory, *calendar.Clock) {
	clock := calendar.NewClock(calendar.Date(2024, time.March, 4))
	data := refdata.NewMemory()
	return NewStore(data, clock), data, clock
}

func buyTrade(o *trading.Order, quantity, price, cost float64) *trading.Trade {
	t := trading.NewTrade("exec", o, quantity, price, cost)
	o.Fill(quantity)
	return t
}

func TestBuyReAveragesCostBasisWithTransactionCost(t *testing.T) {
	store, _, _ := newTestStore()
	pos := store.GetOrCreate("000001.XSHE")

	o := trading.NewOrder("o-1", "000001.XSHE", trading.SideBuy, 200, 50)
	pos.OnOrderPendingNew(o)
	o.Activate()

	pos.ApplyTrade(buyTrade(o, 100, 50, 10))
	if got := pos.AvgPrice(); !approxEqual(got, (100*50+10)/100.0) {
		t.Errorf("avg price after first buy = %f, want %f", got, (100*50+10)/100.0)
	}

	pos.ApplyTrade(buyTrade(o, 100, 60, 0))
	want := (100*50.1 + 100*60) / 200.0 // 55.05
	if got := pos.AvgPrice(); !approxEqual(got, want) {
		t.Errorf("avg price after second buy = %f, want %f", got, want)
	}
	if got := pos.Quantity(); got != 200 {
		t.Errorf("quantity = %f, want 200", got)
	}
	if got := pos.LastPrice(); got != 60 {
		t.Errorf("last price follows trade, got %f", got)
	}
}

func TestSellReducesQuantityWithoutTouchingAvgPrice(t *testing.T) {
	store, _, _ := newTestStore()
	pos := store.Seed("000001.XSHE", 200, 10, 11)

	o := trading.NewOrder("o-1", "000001.XSHE", trading.SideSell, 50, 11)
	pos.OnOrderPendingNew(o)
	o.Activate()
	trade := trading.NewTrade("exec", o, 50, 11, 0)
	o.Fill(50)
	pos.ApplyTrade(trade)

	if got := pos.Quantity(); got != 150 {
		t.Errorf("quantity = %f, want 150", got)
	}
	if got := pos.AvgPrice(); got != 10 {
		t.Errorf("sells must not move the cost basis, got %f", got)
	}
}

func TestAvgPriceResetsAtZeroQuantity(t *testing.T) {
	store, _, _ := newTestStore()
	pos := store.Seed("000001.XSHE", 100, 10, 10)

	o := trading.NewOrder("o-1", "000001.XSHE", trading.SideSell, 100, 12)
	pos.OnOrderPendingNew(o)
	o.Activate()
	trade := trading.NewTrade("exec", o, 100, 12, 0)
	o.Fill(100)
	pos.ApplyTrade(trade)

	if got := pos.Quantity(); got != 0 {
		t.Fatalf("quantity = %f, want 0", got)
	}
	if got := pos.AvgPrice(); got != 0 {
		t.Errorf("avg price at zero quantity = %f, want 0", got)
	}
}

func TestSellableExcludesTodayBuysAndWorkingSells(t *testing.T) {
	store, _, _ := newTestStore()
	pos := store.Seed("000001.XSHE", 100, 10, 10)

	// Buy 50 today: not sellable until settlement.
	buy := trading.NewOrder("o-1", "000001.XSHE", trading.SideBuy, 50, 10)
	pos.OnOrderPendingNew(buy)
	buy.Activate()
	pos.ApplyTrade(buyTrade(buy, 50, 10, 0))

	if got := pos.SellableQuantity(); got != 100 {
		t.Fatalf("sellable = %f, want 100 (today's buys excluded)", got)
	}

	// A working sell order commits 30 more.
	sell := trading.NewOrder("o-2", "000001.XSHE", trading.SideSell, 30, 11)
	pos.OnOrderPendingNew(sell)
	if got := pos.SellableQuantity(); got != 70 {
		t.Fatalf("sellable = %f, want 70 (working sells excluded)", got)
	}

	// T+1 roll: today's buys become sellable.
	pos.ApplySettlement()
	if got := pos.SellableQuantity(); got != 120 {
		t.Errorf("sellable after settlement = %f, want 120", got)
	}
}

func TestOrderCancelReleasesUnfilledOnly(t *testing.T) {
	store, _, _ := newTestStore()
	pos := store.GetOrCreate("000001.XSHE")

	o := trading.NewOrder("o-1", "000001.XSHE", trading.SideBuy, 100, 50)
	pos.OnOrderPendingNew(o)
	o.Activate()
	pos.ApplyTrade(buyTrade(o, 40, 50, 0))
	o.Cancel()
	pos.OnOrderCancel(o)

	if got := pos.openBuyQuantity; got != 0 {
		t.Errorf("open buy quantity after cancel = %f, want 0", got)
	}
}

func TestAfterTradingRollsPrevClose(t *testing.T) {
	store, _, _ := newTestStore()
	pos := store.Seed("000001.XSHE", 100, 10, 10)

	pos.SetLastPrice(10.5)
	pos.AfterTrading()
	if got := pos.PrevClose(); got != 10.5 {
		t.Errorf("prev close = %f, want 10.5", got)
	}
}

func TestApplySplitPreservesCostBasis(t *testing.T) {
	store, _, _ := newTestStore()
	pos := store.Seed("000001.XSHE", 100, 10, 12)

	basisBefore := pos.Quantity() * pos.AvgPrice()
	valueBefore := pos.MarketValue()

	pos.ApplySplit(2)

	if got := pos.Quantity(); got != 200 {
		t.Errorf("quantity after split = %f, want 200", got)
	}
	if got := pos.AvgPrice(); !approxEqual(got, 5) {
		t.Errorf("avg price after split = %f, want 5", got)
	}
	if got := pos.Quantity() * pos.AvgPrice(); !approxEqual(got, basisBefore) {
		t.Errorf("cost basis changed across split: %f -> %f", basisBefore, got)
	}
	if got := pos.MarketValue(); !approxEqual(got, valueBefore) {
		t.Errorf("market value changed across split: %f -> %f", valueBefore, got)
	}
}

func TestIsDelistedComparesTradingDate(t *testing.T) {
	store, data, clock := newTestStore()
	pos := store.Seed("600000.XSHG", 100, 10, 10)

	if pos.IsDelisted() {
		t.Fatal("no delisting date set, position cannot be delisted")
	}

	data.SetDelisted("600000.XSHG", calendar.Date(2024, time.March, 6))
	if pos.IsDelisted() {
		t.Error("delisting date in the future, position still listed")
	}

	clock.Advance(calendar.Date(2024, time.March, 6))
	if !pos.IsDelisted() {
		t.Error("delisting date reached, position must report delisted")
	}
}

func TestStoreLazyCreateAndRemove(t *testing.T) {
	store, _, _ := newTestStore()

	if _, ok := store.Get("000001.XSHE"); ok {
		t.Fatal("store must start empty")
	}
	a := store.GetOrCreate("000001.XSHE")
	b := store.GetOrCreate("000001.XSHE")
	if a != b {
		t.Error("GetOrCreate must return the same record for a symbol")
	}
	if store.Len() != 1 {
		t.Errorf("len = %d, want 1", store.Len())
	}

	store.Remove("000001.XSHE")
	if _, ok := store.Get("000001.XSHE"); ok {
		t.Error("removed position still present")
	}
}

func TestStoreSymbolsSorted(t *testing.T) {
	store, _, _ := newTestStore()
	store.GetOrCreate("600000.XSHG")
	store.GetOrCreate("000001.XSHE")
	store.GetOrCreate("300750.XSHE")

	symbols := store.Symbols()
	want := []string{"000001.XSHE", "300750.XSHE", "600000.XSHG"}
	if len(symbols) != len(want) {
		t.Fatalf("got %d symbols, want %d", len(symbols), len(want))
	}
	for i := range want {
		if symbols[i] != want[i] {
			t.Errorf("symbols[%d] = %q, want %q", i, symbols[i], want[i])
		}
	}
}
