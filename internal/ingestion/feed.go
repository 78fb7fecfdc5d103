package ingestion

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"EquityLedger/internal/calendar"
	"EquityLedger/internal/event"
	"EquityLedger/internal/observability"
)

// Feed is the single goroutine that turns raw NATS messages into ledger
// events. It is the only mutator of the clock, the parser, and everything
// behind the bus, which is what keeps the core single-threaded.
type Feed struct {
	events   <-chan RawEvent
	parser   *Parser
	bus      *event.Bus
	clock    *calendar.Clock
	subjects []SubjectConfig

	// onApplied runs after each published event, e.g. to refresh the
	// HTTP status snapshot.
	onApplied func(event.Event)

	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewFeed(
	events <-chan RawEvent,
	parser *Parser,
	bus *event.Bus,
	clock *calendar.Clock,
	subjects []SubjectConfig,
	onApplied func(event.Event),
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Feed {
	return &Feed{
		events:    events,
		parser:    parser,
		bus:       bus,
		clock:     clock,
		subjects:  subjects,
		onApplied: onApplied,
		log:       log,
		metrics:   metrics,
	}
}

// Run processes messages until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-f.events:
			f.handle(raw)
		}
	}
}

func (f *Feed) handle(raw RawEvent) {
	kind, ok := f.kindForSubject(raw.Subject)
	if !ok {
		f.log.Warn().Str("subject", raw.Subject).Msg("message on unmapped subject")
		raw.AckFunc()
		return
	}

	e, err := f.parser.Parse(raw, kind)
	if err != nil {
		f.log.Error().Err(err).Str("subject", raw.Subject).Msg("unparseable message")
		if f.metrics != nil {
			f.metrics.IngestParseErrors.Inc()
		}
		raw.NakFunc()
		return
	}

	// KindUnknown: parser state changed, nothing to publish.
	if e.Kind != event.KindUnknown {
		// The session date moves at before-trading; every later phase of
		// the day reads the same date.
		if e.Kind == event.KindPreBeforeTrading {
			f.clock.Advance(e.TradingDate)
		}
		f.bus.Publish(e)
		if f.onApplied != nil {
			f.onApplied(e)
		}
	}

	if f.metrics != nil {
		f.metrics.IngestEvents.WithLabelValues(kind).Inc()
	}
	raw.AckFunc()
}

func (f *Feed) kindForSubject(subject string) (string, bool) {
	for _, cfg := range f.subjects {
		prefix := strings.TrimSuffix(cfg.Subject, ">")
		if strings.HasPrefix(subject, prefix) {
			return cfg.Kind, true
		}
	}
	return "", false
}
