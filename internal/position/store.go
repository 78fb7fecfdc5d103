package position

import (
	"sort"

	"EquityLedger/internal/calendar"
	"EquityLedger/internal/refdata"
)

// Store owns the per-symbol positions. Only the account ledger mutates it;
// there is no external aliasing and no locking. Enumeration is in sorted
// symbol order so settlement sweeps are deterministic, and callers get a
// copied symbol list so removal during a sweep is safe.
type Store struct {
	positions map[string]*Position
	data      refdata.Provider
	clock     *calendar.Clock
}

func NewStore(data refdata.Provider, clock *calendar.Clock) *Store {
	return &Store{
		positions: make(map[string]*Position),
		data:      data,
		clock:     clock,
	}
}

// GetOrCreate returns the position for symbol, creating an empty one on
// first reference.
func (s *Store) GetOrCreate(symbol string) *Position {
	p, ok := s.positions[symbol]
	if !ok {
		p = newPosition(symbol, s.data, s.clock)
		s.positions[symbol] = p
	}
	return p
}

// Get returns the position for symbol if it exists.
func (s *Store) Get(symbol string) (*Position, bool) {
	p, ok := s.positions[symbol]
	return p, ok
}

// Remove drops the position for symbol. Removing an absent symbol is a
// no-op.
func (s *Store) Remove(symbol string) {
	delete(s.positions, symbol)
}

// Symbols returns a sorted copy of all held symbols.
func (s *Store) Symbols() []string {
	symbols := make([]string, 0, len(s.positions))
	for symbol := range s.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// All returns all positions in sorted symbol order.
func (s *Store) All() []*Position {
	symbols := s.Symbols()
	result := make([]*Position, 0, len(symbols))
	for _, symbol := range symbols {
		result = append(result, s.positions[symbol])
	}
	return result
}

// Len returns the number of held positions.
func (s *Store) Len() int {
	return len(s.positions)
}

// Seed installs an initial holding, used at account construction. The
// position is created as already-settled: the quantity is sellable.
func (s *Store) Seed(symbol string, quantity, avgPrice, lastPrice float64) *Position {
	p := s.GetOrCreate(symbol)
	p.restore(quantity, avgPrice, lastPrice)
	return p
}
