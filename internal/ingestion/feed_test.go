package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"EquityLedger/internal/account"
	"EquityLedger/internal/calendar"
	"EquityLedger/internal/event"
	"EquityLedger/internal/position"
	"EquityLedger/internal/refdata"
)

func TestFeedParsesAdvancesClockAndPublishes(t *testing.T) {
	events := make(chan RawEvent, 8)
	bus := event.NewBus()
	clock := calendar.NewClock(calendar.Date(2024, time.March, 1))

	var published []event.Kind
	for _, kind := range []event.Kind{
		event.KindOrderPendingNew, event.KindTradeExecuted,
		event.KindPreBeforeTrading, event.KindSettlement,
	} {
		k := kind
		bus.AddListener(k, func(event.Event) { published = append(published, k) })
	}

	var applied int
	feed := NewFeed(events, NewParser(), bus, clock, DefaultSubjects(),
		func(event.Event) { applied++ }, zerolog.Nop(), nil)

	acks := make(chan struct{}, 8)
	naks := make(chan struct{}, 8)
	send := func(subject, payload string) {
		events <- RawEvent{
			Subject: subject,
			Data:    []byte(payload),
			AckFunc: func() { acks <- struct{}{} },
			NakFunc: func() { naks <- struct{}{} },
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	send("equity.calendar.session", `{"phase":"before_trading","date":"2024-03-04"}`)
	send("equity.orders.XSHE", `{"order_id":"o-1","symbol":"000001.XSHE","side":"buy","quantity":100,"price":50,"action":"pending_new"}`)
	send("equity.orders.XSHE", `{"order_id":"o-1","action":"creation_pass"}`)
	send("equity.trades.XSHE", `{"exec_id":"e-1","order_id":"o-1","quantity":100,"price":49.9,"transaction_cost":1}`)
	send("equity.trades.XSHE", `{"exec_id":`) // malformed, must nak
	send("equity.calendar.session", `{"phase":"settlement","date":"2024-03-04"}`)

	deadline := time.After(2 * time.Second)
	for acked := 0; acked < 5; {
		select {
		case <-acks:
			acked++
		case <-deadline:
			t.Fatal("timed out waiting for acks")
		}
	}
	select {
	case <-naks:
	case <-deadline:
		t.Fatal("timed out waiting for nak of malformed message")
	}
	cancel()
	<-done

	if !clock.TradingDate().Equal(calendar.Date(2024, time.March, 4)) {
		t.Errorf("clock = %v, want advanced to 2024-03-04", clock.TradingDate())
	}

	// creation_pass publishes nothing: four published events expected.
	want := []event.Kind{
		event.KindPreBeforeTrading, event.KindOrderPendingNew,
		event.KindTradeExecuted, event.KindSettlement,
	}
	if len(published) != len(want) {
		t.Fatalf("published %d events (%v), want %d", len(published), published, len(want))
	}
	for i := range want {
		if published[i] != want[i] {
			t.Errorf("published[%d] = %v, want %v", i, published[i], want[i])
		}
	}
	if applied != len(want) {
		t.Errorf("onApplied ran %d times, want %d", applied, len(want))
	}
}

// A restarted live process rebuilds its ledger by re-reading each stream
// from the first message through the feed. The replayed history includes
// whatever the broker delivered twice, and frozen cash is re-derived
// from the open-order book at every day boundary.
func TestFeedReplayRebuildsLedger(t *testing.T) {
	events := make(chan RawEvent, 16)
	bus := event.NewBus()
	clock := calendar.NewClock(calendar.Date(2024, time.March, 1))
	data := refdata.NewMemory()
	store := position.NewStore(data, clock)
	acct := account.New(100000, store, data, clock, account.Flags{})
	acct.RegisterEvent(bus)

	parser := NewParser()
	feed := NewFeed(events, parser, bus, clock, DefaultSubjects(),
		func(e event.Event) {
			if e.Kind == event.KindPreBeforeTrading {
				acct.FastForward(parser.OpenOrders(), nil)
			}
		}, zerolog.Nop(), nil)

	acks := make(chan struct{}, 16)
	send := func(subject, payload string) {
		events <- RawEvent{
			Subject: subject,
			Data:    []byte(payload),
			AckFunc: func() { acks <- struct{}{} },
			NakFunc: func() { t.Error("replayed message must not be nak'd") },
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	// One full day plus the next morning, with a fill the broker handed
	// over twice after an ack timeout.
	fill := `{"exec_id":"e-1","order_id":"o-1","quantity":40,"price":50,"transaction_cost":0}`
	send("equity.calendar.session", `{"phase":"before_trading","date":"2024-03-04"}`)
	send("equity.orders.XSHE", `{"order_id":"o-1","symbol":"000001.XSHE","side":"buy","quantity":100,"price":50,"action":"pending_new"}`)
	send("equity.orders.XSHE", `{"order_id":"o-1","action":"creation_pass"}`)
	send("equity.trades.XSHE", fill)
	send("equity.trades.XSHE", fill)
	send("equity.calendar.session", `{"phase":"settlement","date":"2024-03-04"}`)
	send("equity.calendar.session", `{"phase":"before_trading","date":"2024-03-05"}`)

	deadline := time.After(2 * time.Second)
	for acked := 0; acked < 7; {
		select {
		case <-acks:
			acked++
		case <-deadline:
			t.Fatal("timed out waiting for acks")
		}
	}
	cancel()
	<-done

	if got := acct.TotalCash(); got != 98000 {
		t.Errorf("total cash = %f, want 98000 (one 40-share fill, not two)", got)
	}
	if got := acct.FrozenCash(); got != 3000 {
		t.Errorf("frozen cash = %f, want 3000 for 60 unfilled at 50", got)
	}
	pos, ok := acct.Positions().Get("000001.XSHE")
	if !ok {
		t.Fatal("position missing after replay")
	}
	if got := pos.Quantity(); got != 40 {
		t.Errorf("quantity = %f, want 40", got)
	}
	if !clock.TradingDate().Equal(calendar.Date(2024, time.March, 5)) {
		t.Errorf("clock = %v, want 2024-03-05", clock.TradingDate())
	}
}

func TestFeedAcksUnmappedSubjects(t *testing.T) {
	events := make(chan RawEvent, 1)
	feed := NewFeed(events, NewParser(), event.NewBus(),
		calendar.NewClock(calendar.Date(2024, time.March, 1)),
		DefaultSubjects(), nil, zerolog.Nop(), nil)

	acked := make(chan struct{}, 1)
	events <- RawEvent{
		Subject: "equity.unrelated.subject",
		Data:    []byte(`{}`),
		AckFunc: func() { acked <- struct{}{} },
		NakFunc: func() { t.Error("unmapped subject must not be nak'd") },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	select {
	case <-acked:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ack")
	}
	cancel()
	<-done
}
