package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"EquityLedger/internal/account"
	"EquityLedger/internal/calendar"
	"EquityLedger/internal/event"
	"EquityLedger/internal/observability"
)

// Recorder persists an audit trail of fills and end-of-day ledger snapshots
// to Postgres. It hangs off the bus as a passive listener and hands rows to
// a background flusher over buffered channels, so the single-threaded core
// never waits on the database.
type Recorder struct {
	db           *sql.DB
	runID        string
	batchSize    int
	flushTimeout time.Duration

	fills chan FillRow
	daily chan DailyRow

	log     zerolog.Logger
	metrics *observability.Metrics
}

// FillRow is one executed trade in the audit trail.
type FillRow struct {
	ExecID          string
	OrderID         string
	Symbol          string
	Side            string
	Quantity        float64
	Price           float64
	TransactionCost float64
	TradingDate     time.Time
}

// DailyRow is the ledger snapshot taken right after settlement.
type DailyRow struct {
	TradingDate        time.Time
	TotalCash          float64
	FrozenCash         float64
	TotalValue         float64
	DividendReceivable float64
	PositionCount      int
}

type Option func(*Recorder)

func WithLogger(log zerolog.Logger) Option {
	return func(r *Recorder) { r.log = log }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// New creates a recorder with a fresh ULID run id. Rows from different runs
// of the same scenario never collide.
func New(db *sql.DB, batchSize int, flushTimeout time.Duration, opts ...Option) *Recorder {
	r := &Recorder{
		db:           db,
		runID:        ulid.Make().String(),
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		fills:        make(chan FillRow, 4*batchSize),
		daily:        make(chan DailyRow, 16),
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) RunID() string { return r.runID }

// EnsureSchema creates the audit tables if they do not exist.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS equity_fills (
	run_id           TEXT NOT NULL,
	exec_id          TEXT NOT NULL,
	order_id         TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	quantity         DOUBLE PRECISION NOT NULL,
	price            DOUBLE PRECISION NOT NULL,
	transaction_cost DOUBLE PRECISION NOT NULL,
	trading_date     DATE NOT NULL,
	recorded_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, exec_id)
);
CREATE TABLE IF NOT EXISTS equity_daily (
	run_id              TEXT NOT NULL,
	trading_date        DATE NOT NULL,
	total_cash          DOUBLE PRECISION NOT NULL,
	frozen_cash         DOUBLE PRECISION NOT NULL,
	total_value         DOUBLE PRECISION NOT NULL,
	dividend_receivable DOUBLE PRECISION NOT NULL,
	position_count      INTEGER NOT NULL,
	recorded_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, trading_date)
);`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// RegisterEvent attaches the recorder to the bus. Register it AFTER the
// account so its handlers observe post-update ledger state.
func (r *Recorder) RegisterEvent(bus *event.Bus, acct *account.StockAccount, clock *calendar.Clock) {
	bus.AddListener(event.KindTradeExecuted, func(e event.Event) {
		t := e.Trade
		r.enqueueFill(FillRow{
			ExecID:          t.ExecID,
			OrderID:         t.Order.OrderID,
			Symbol:          t.Symbol(),
			Side:            t.Side.String(),
			Quantity:        t.LastQuantity,
			Price:           t.LastPrice,
			TransactionCost: t.TransactionCost,
			TradingDate:     clock.TradingDate(),
		})
	})
	bus.AddListener(event.KindSettlement, func(e event.Event) {
		r.enqueueDaily(DailyRow{
			TradingDate:        clock.TradingDate(),
			TotalCash:          acct.TotalCash(),
			FrozenCash:         acct.FrozenCash(),
			TotalValue:         acct.TotalValue(),
			DividendReceivable: acct.DividendReceivable(),
			PositionCount:      acct.Positions().Len(),
		})
	})
}

// enqueueFill never blocks the core; a full buffer drops the row and counts
// it as a recorder error.
func (r *Recorder) enqueueFill(row FillRow) {
	select {
	case r.fills <- row:
	default:
		r.log.Warn().Str("exec_id", row.ExecID).Msg("recorder buffer full, dropping fill row")
		if r.metrics != nil {
			r.metrics.RecorderErrors.Inc()
		}
	}
}

func (r *Recorder) enqueueDaily(row DailyRow) {
	select {
	case r.daily <- row:
	default:
		r.log.Warn().
			Str("trading_date", calendar.FormatDate(row.TradingDate)).
			Msg("recorder buffer full, dropping daily row")
		if r.metrics != nil {
			r.metrics.RecorderErrors.Inc()
		}
	}
}

// Run drains the channels into batched inserts until ctx is cancelled, then
// flushes whatever remains. Write failures are logged and counted, not
// fatal: the ledger itself is the source of truth.
func (r *Recorder) Run(ctx context.Context) {
	fillBatch := make([]FillRow, 0, r.batchSize)
	dailyBatch := make([]DailyRow, 0, r.batchSize)
	ticker := time.NewTicker(r.flushTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(fillBatch) > 0 {
			r.flushFills(fillBatch)
			fillBatch = fillBatch[:0]
		}
		if len(dailyBatch) > 0 {
			r.flushDaily(dailyBatch)
			dailyBatch = dailyBatch[:0]
		}
	}

	for {
		select {
		case row := <-r.fills:
			fillBatch = append(fillBatch, row)
			if len(fillBatch) >= r.batchSize {
				r.flushFills(fillBatch)
				fillBatch = fillBatch[:0]
			}
		case row := <-r.daily:
			dailyBatch = append(dailyBatch, row)
			if len(dailyBatch) >= r.batchSize {
				r.flushDaily(dailyBatch)
				dailyBatch = dailyBatch[:0]
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// Drain what arrived before cancellation.
			for {
				select {
				case row := <-r.fills:
					fillBatch = append(fillBatch, row)
				case row := <-r.daily:
					dailyBatch = append(dailyBatch, row)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *Recorder) flushFills(rows []FillRow) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.writeFillBatch(ctx, rows); err != nil {
		r.log.Error().Err(err).Int("rows", len(rows)).Msg("fill batch write failed")
		if r.metrics != nil {
			r.metrics.RecorderErrors.Inc()
		}
		return
	}
	if r.metrics != nil {
		r.metrics.RecorderRowsWritten.Add(float64(len(rows)))
		r.metrics.RecorderBatchSize.Observe(float64(len(rows)))
	}
}

func (r *Recorder) flushDaily(rows []DailyRow) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.writeDailyBatch(ctx, rows); err != nil {
		r.log.Error().Err(err).Int("rows", len(rows)).Msg("daily batch write failed")
		if r.metrics != nil {
			r.metrics.RecorderErrors.Inc()
		}
		return
	}
	if r.metrics != nil {
		r.metrics.RecorderRowsWritten.Add(float64(len(rows)))
		r.metrics.RecorderBatchSize.Observe(float64(len(rows)))
	}
}

func (r *Recorder) writeFillBatch(ctx context.Context, rows []FillRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO equity_fills
		(run_id, exec_id, order_id, symbol, side, quantity, price, transaction_cost, trading_date)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*9)
	for i, row := range rows {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			r.runID, row.ExecID, row.OrderID, row.Symbol, row.Side,
			row.Quantity, row.Price, row.TransactionCost, row.TradingDate,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (run_id, exec_id) DO NOTHING"

	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *Recorder) writeDailyBatch(ctx context.Context, rows []DailyRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO equity_daily
		(run_id, trading_date, total_cash, frozen_cash, total_value, dividend_receivable, position_count)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*7)
	for i, row := range rows {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			r.runID, row.TradingDate, row.TotalCash, row.FrozenCash,
			row.TotalValue, row.DividendReceivable, row.PositionCount,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (run_id, trading_date) DO NOTHING"

	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}
