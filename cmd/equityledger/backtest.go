package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"EquityLedger/internal/config"
	"EquityLedger/internal/observability"
	"EquityLedger/internal/recorder"
	"EquityLedger/internal/scenario"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a scripted scenario and print the final ledger state",
	Long: `Backtest runs a YAML scenario through the full trading-day cycle:
before-trading, order flow, closing prices, after-trading, settlement.

The final ledger summary is printed to stdout as JSON. With --record and a
configured EQUITY_POSTGRES_DSN, every fill and daily snapshot is also
written to the Postgres audit tables under a fresh run id.

Example:
  equityledger backtest --scenario examples/dividend.yaml`,
	RunE: runBacktest,
}

var (
	btScenarioPath string
	btRecord       bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btScenarioPath, "scenario", "s", "", "path to scenario YAML (required)")
	backtestCmd.Flags().BoolVar(&btRecord, "record", false, "write fills and daily snapshots to Postgres")

	backtestCmd.MarkFlagRequired("scenario")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := observability.NewLoggerWithLevel("backtest", observability.ParseLogLevel(cfg.LogLevel))
	metrics := observability.NewMetrics()

	scn, err := scenario.Load(btScenarioPath)
	if err != nil {
		return err
	}

	runner, err := scenario.NewRunner(scn,
		scenario.WithLogger(log),
		scenario.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var recDone chan struct{}
	if btRecord {
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("--record requires EQUITY_POSTGRES_DSN")
		}
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()

		rec := recorder.New(db, cfg.RecorderBatchSize, cfg.RecorderFlushTimeout,
			recorder.WithLogger(observability.NewLoggerWithLevel("recorder", observability.ParseLogLevel(cfg.LogLevel))),
			recorder.WithMetrics(metrics),
		)
		if err := rec.EnsureSchema(ctx); err != nil {
			return err
		}
		rec.RegisterEvent(runner.Bus(), runner.Account(), runner.Clock())
		log.Info().Str("run_id", rec.RunID()).Msg("audit recording enabled")

		recDone = make(chan struct{})
		go func() {
			rec.Run(ctx)
			close(recDone)
		}()
	}

	report, err := runner.Run()
	if err != nil {
		return err
	}

	if recDone != nil {
		cancel()
		<-recDone
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
