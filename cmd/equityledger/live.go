package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"EquityLedger/internal/account"
	"EquityLedger/internal/calendar"
	"EquityLedger/internal/config"
	"EquityLedger/internal/event"
	"EquityLedger/internal/ingestion"
	"EquityLedger/internal/observability"
	"EquityLedger/internal/position"
	"EquityLedger/internal/recorder"
	"EquityLedger/internal/refdata"
	"EquityLedger/internal/server"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Consume order, trade, and calendar events from NATS JetStream",
	Long: `Live mode attaches the ledger to a running event feed. A single feed
goroutine parses messages, advances the session clock, and dispatches
events to the ledger in arrival order; the HTTP status server reads a
snapshot refreshed after every applied event.

Endpoints: /healthz, /readyz, /account, /positions, /metrics`,
	RunE: runLive,
}

func init() {
	rootCmd.AddCommand(liveCmd)
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := observability.ParseLogLevel(cfg.LogLevel)
	log := observability.NewLoggerWithLevel("live", level)
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ledger core. Reference data starts empty; dividends and splits for
	// live sessions arrive through operator tooling, not the feed.
	clock := calendar.NewClock(calendar.Midnight(time.Now()))
	data := refdata.NewMemory()
	store := position.NewStore(data, clock)
	acct := account.New(cfg.InitialCash, store, data, clock, account.Flags{
		HandleSplit:               cfg.HandleSplit,
		CashReturnByStockDelisted: cfg.CashReturnByStockDelisted,
	},
		account.WithLogger(observability.NewLoggerWithLevel("account", level)),
		account.WithMetrics(metrics),
	)
	bus := event.NewBus()
	acct.RegisterEvent(bus)

	// Optional audit recorder, registered after the account so it sees
	// post-update state.
	var recDone chan struct{}
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()

		rec := recorder.New(db, cfg.RecorderBatchSize, cfg.RecorderFlushTimeout,
			recorder.WithLogger(observability.NewLoggerWithLevel("recorder", level)),
			recorder.WithMetrics(metrics),
		)
		if err := rec.EnsureSchema(ctx); err != nil {
			return err
		}
		rec.RegisterEvent(bus, acct, clock)
		log.Info().Str("run_id", rec.RunID()).Msg("audit recording enabled")

		recDone = make(chan struct{})
		go func() {
			rec.Run(ctx)
			close(recDone)
		}()
	}

	// Feed: NATS -> parser -> bus, one goroutine.
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, observability.NewLoggerWithLevel("nats", level))
	if err != nil {
		return err
	}
	defer nc.Close()

	if err := ingestion.EnsureStreams(ctx, js, log); err != nil {
		return err
	}

	rawEvents := make(chan ingestion.RawEvent, 1024)
	subscriber := ingestion.NewNATSSubscriber(js, rawEvents, observability.NewLoggerWithLevel("nats", level))
	subjects := ingestion.DefaultSubjects()
	if err := subscriber.Subscribe(ctx, subjects); err != nil {
		return err
	}
	defer subscriber.Stop()

	view := server.NewView()
	view.Update(acct, clock)
	parser := ingestion.NewParser()
	feed := ingestion.NewFeed(
		rawEvents,
		parser,
		bus,
		clock,
		subjects,
		func(e event.Event) {
			// Restart recovery is replay: consumers are ephemeral, so a
			// restarted process re-reads each stream from the first message
			// into a fresh ledger. At every day boundary frozen cash is
			// re-derived from the open-order book, discarding the
			// incrementally tracked value.
			if e.Kind == event.KindPreBeforeTrading {
				acct.FastForward(parser.OpenOrders(), nil)
			}
			view.Update(acct, clock)
		},
		observability.NewLoggerWithLevel("feed", level),
		metrics,
	)

	feedDone := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(feedDone)
	}()

	// HTTP status surface.
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.NewRouter(view, health),
	}
	httpErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	health.SetReady(true)
	log.Info().Msg("ledger live")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-httpErr:
		return fmt.Errorf("http server: %w", err)
	}

	health.SetReady(false)
	subscriber.Stop()
	<-feedDone
	if recDone != nil {
		<-recDone
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	log.Info().Msg("shutdown complete")
	return nil
}
