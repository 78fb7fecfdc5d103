package scenario

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func writeScenario(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const fullCycleYAML = `
initial_cash: 100000
handle_split: true
dividends:
  - symbol: 000001.XSHE
    ex_date: "2024-03-04"
    payable_date: "2024-03-06"
    cash_before_tax: 5
    round_lot: 10
splits:
  - symbol: 000001.XSHE
    ex_date: "2024-03-05"
    from: 1
    to: 2
days:
  - date: "2024-03-04"
    events:
      - type: order
        order_id: o-1
        symbol: 000001.XSHE
        side: buy
        quantity: 100
        price: 50
      - type: trade
        order_id: o-1
        exec_id: e-1
        quantity: 100
        price: 49.9
        cost: 1
    closes:
      000001.XSHE: 50
  - date: "2024-03-05"
    closes:
      000001.XSHE: 26
  - date: "2024-03-06"
    closes:
      000001.XSHE: 26
`

func TestRunnerFullCycle(t *testing.T) {
	scn, err := Load(writeScenario(t, fullCycleYAML))
	if err != nil {
		t.Fatal(err)
	}
	runner, err := NewRunner(scn)
	if err != nil {
		t.Fatal(err)
	}
	report, err := runner.Run()
	if err != nil {
		t.Fatal(err)
	}

	// Buy spends 4990 + 1 cost; the 100-share dividend pays 100*(5/10)=50
	// on 2024-03-06.
	if !approxEqual(report.FinalCash, 100000-4990-1+50) {
		t.Errorf("final cash = %f, want %f", report.FinalCash, 100000-4990-1.0+50)
	}
	if !approxEqual(report.FrozenCash, 0) {
		t.Errorf("frozen cash = %f, want 0", report.FrozenCash)
	}
	if report.DividendReceivable != 0 {
		t.Errorf("receivable after payment = %f, want 0", report.DividendReceivable)
	}

	if len(report.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(report.Positions))
	}
	pos := report.Positions[0]
	if pos.Quantity != 200 {
		t.Errorf("quantity after 2-for-1 split = %f, want 200", pos.Quantity)
	}
	if pos.LastPrice != 26 {
		t.Errorf("last price = %f, want 26", pos.LastPrice)
	}
	if !approxEqual(report.TotalValue, report.FinalCash+200*26) {
		t.Errorf("total value = %f, want %f", report.TotalValue, report.FinalCash+200*26)
	}
}

const cancelYAML = `
initial_cash: 50000
days:
  - date: "2024-03-04"
    events:
      - type: order
        order_id: o-1
        symbol: 600000.XSHG
        side: buy
        quantity: 100
        price: 40
        frozen_price: 41
      - type: trade
        order_id: o-1
        quantity: 30
        price: 39.5
      - type: cancel
        order_id: o-1
`

func TestRunnerCancelReleasesFrozenCash(t *testing.T) {
	scn, err := Load(writeScenario(t, cancelYAML))
	if err != nil {
		t.Fatal(err)
	}
	runner, err := NewRunner(scn)
	if err != nil {
		t.Fatal(err)
	}
	report, err := runner.Run()
	if err != nil {
		t.Fatal(err)
	}

	if !approxEqual(report.FrozenCash, 0) {
		t.Errorf("frozen cash after cancel = %f, want 0", report.FrozenCash)
	}
	if !approxEqual(report.FinalCash, 50000-30*39.5) {
		t.Errorf("final cash = %f, want %f", report.FinalCash, 50000-30*39.5)
	}
}

func TestRunnerDelistingForceClose(t *testing.T) {
	const yaml = `
initial_cash: 10000
cash_return_by_stock_delisted: true
delistings:
  - symbol: 600000.XSHG
    date: "2024-03-05"
days:
  - date: "2024-03-04"
    events:
      - type: order
        order_id: o-1
        symbol: 600000.XSHG
        side: buy
        quantity: 100
        price: 10
      - type: trade
        order_id: o-1
        quantity: 100
        price: 10
    closes:
      600000.XSHG: 10
  - date: "2024-03-05"
    closes:
      600000.XSHG: 10
`
	scn, err := Load(writeScenario(t, yaml))
	if err != nil {
		t.Fatal(err)
	}
	runner, err := NewRunner(scn)
	if err != nil {
		t.Fatal(err)
	}
	report, err := runner.Run()
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Positions) != 0 {
		t.Errorf("delisted position survived the run: %+v", report.Positions)
	}
	// Bought for 1000, returned at market value 1000 on delisting.
	if !approxEqual(report.FinalCash, 10000) {
		t.Errorf("final cash = %f, want 10000", report.FinalCash)
	}
}

func TestRunnerUnknownOrderFails(t *testing.T) {
	const yaml = `
initial_cash: 1000
days:
  - date: "2024-03-04"
    events:
      - type: trade
        order_id: missing
        quantity: 10
        price: 5
`
	scn, err := Load(writeScenario(t, yaml))
	if err != nil {
		t.Fatal(err)
	}
	runner, err := NewRunner(scn)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := runner.Run(); err == nil {
		t.Fatal("trade for unknown order must fail the run")
	}
}

func TestLoadRejectsInvalidScenarios(t *testing.T) {
	cases := map[string]string{
		"no days":        "initial_cash: 100\n",
		"negative cash":  "initial_cash: -5\ndays:\n  - date: \"2024-03-04\"\n",
		"missing date":   "initial_cash: 100\ndays:\n  - events: []\n",
		"unknown step":   "initial_cash: 100\ndays:\n  - date: \"2024-03-04\"\n    events:\n      - type: teleport\n",
		"order no side":  "initial_cash: 100\ndays:\n  - date: \"2024-03-04\"\n    events:\n      - type: order\n        symbol: A\n        quantity: 1\n        price: 1\n",
		"trade no order": "initial_cash: 100\ndays:\n  - date: \"2024-03-04\"\n    events:\n      - type: trade\n        quantity: 1\n        price: 1\n",
	}
	for name, yaml := range cases {
		if _, err := Load(writeScenario(t, yaml)); err == nil {
			t.Errorf("%s: expected a validation error", name)
		}
	}
}
