package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "equityledger",
	Short: "Deterministic equity account ledger for backtesting and live replay",
	Long: `EquityLedger maintains the financial state of a simulated equity trading
account: cash, frozen cash, positions, trade deduplication, dividends,
splits, and delistings, driven by a deterministic trading-day event cycle.

It runs in two modes:
  - backtest: replay a scripted YAML scenario and print the final ledger
  - live:     consume order/trade/calendar events from NATS JetStream`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
