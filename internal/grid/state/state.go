// Package state holds the single in-memory grid state and the mutex that
// serializes mutations of it. Other packages change a GridState's fields
// directly while holding the Engine's lock, usually via WithLock.
package state

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ActiveOrder is a resting open-side or close-side order the engine placed
// and is tracking to fill.
type ActiveOrder struct {
	ID       string
	Price    decimal.Decimal
	Size     decimal.Decimal
	IsAsk    bool
	PlacedAt time.Time
}

// PlaceholderOrder is a parked order placed while the grid is paused; it
// does not participate in normal ladder bookkeeping until adopted back in.
type PlaceholderOrder struct {
	ID    string
	Price decimal.Decimal
	Size  decimal.Decimal
	IsAsk bool
}

// GridState is the full mutable state of one grid strategy instance, per
// spec §3. buy/sell maps are keyed by order ID; price lookups are done by
// scanning, since the grid stays small (bounded by MaxTotalOrders).
type GridState struct {
	Config GridConfig

	BuyOrders  map[string]*ActiveOrder
	SellOrders map[string]*ActiveOrder

	PlaceholderOrders    map[string]*PlaceholderOrder
	PlaceholderPositions decimal.Decimal

	CurrentPrice  decimal.Decimal
	LastTradePrice decimal.Decimal

	PositionAbs       decimal.Decimal
	AvailablePosition decimal.Decimal

	BaseStep   decimal.Decimal
	ActiveStep decimal.Decimal

	StartEquity   decimal.Decimal
	CurrentEquity decimal.Decimal

	TotalProfit           decimal.Decimal
	ActiveProfit          decimal.Decimal
	AvailableReduceProfit decimal.Decimal

	FilledCount int

	StartTime         time.Time
	LastReplenishTime time.Time

	GridPaused         bool
	OpenSpreadAlert    bool
	DecreaseMode       bool
	PlaceholderExists  bool
	PlacingPlaceholder bool

	// LastFillWasCloseSide drives the replenishment branch in the control
	// loop's full pass. Per the resolved open question it starts true, so
	// a freshly-started grid replenishes as if it had just closed a trade.
	LastFillWasCloseSide bool

	processedTradeKeys map[string]time.Time
	recentFilledIDs    map[string]time.Time
}

const (
	maxDedupEntries = 5000
)

// NewGridState builds a zeroed GridState for the given config, with the
// dedup caches initialized and LastFillWasCloseSide seeded true.
func NewGridState(cfg GridConfig) *GridState {
	return &GridState{
		Config:               cfg,
		BuyOrders:            make(map[string]*ActiveOrder),
		SellOrders:           make(map[string]*ActiveOrder),
		PlaceholderOrders:    make(map[string]*PlaceholderOrder),
		PlaceholderPositions: decimal.Zero,
		LastFillWasCloseSide: true,
		processedTradeKeys:   make(map[string]time.Time),
		recentFilledIDs:      make(map[string]time.Time),
	}
}

// MarkTradeProcessed records a trade fingerprint as consumed and trims the
// cache once it grows past maxDedupEntries, evicting the oldest entries.
func (s *GridState) MarkTradeProcessed(key string) {
	s.processedTradeKeys[key] = time.Now()
	s.trimIfNeeded(s.processedTradeKeys)
}

// TradeAlreadyProcessed reports whether a trade fingerprint was already consumed.
func (s *GridState) TradeAlreadyProcessed(key string) bool {
	_, ok := s.processedTradeKeys[key]
	return ok
}

// MarkOrderFilled records an order ID as already attributed, so a later
// REST reconciliation pass does not double-count it.
func (s *GridState) MarkOrderFilled(orderID string) {
	s.recentFilledIDs[orderID] = time.Now()
	s.trimIfNeeded(s.recentFilledIDs)
}

// OrderAlreadyFilled reports whether an order ID was already attributed.
func (s *GridState) OrderAlreadyFilled(orderID string) bool {
	_, ok := s.recentFilledIDs[orderID]
	return ok
}

func (s *GridState) trimIfNeeded(cache map[string]time.Time) {
	if len(cache) <= maxDedupEntries {
		return
	}
	type entry struct {
		key string
		at  time.Time
	}
	entries := make([]entry, 0, len(cache))
	for k, v := range cache {
		entries = append(entries, entry{k, v})
	}
	// Evict the oldest quarter; exact ordering doesn't matter, only that
	// the cache stays bounded.
	evict := len(entries) / 4
	for i := 0; i < evict; i++ {
		oldestIdx := 0
		for j := 1; j < len(entries); j++ {
			if entries[j].at.Before(entries[oldestIdx].at) {
				oldestIdx = j
			}
		}
		delete(cache, entries[oldestIdx].key)
		entries[oldestIdx] = entries[len(entries)-1]
		entries = entries[:len(entries)-1]
	}
}

// TotalOpenOrders returns the count of resting buy + sell orders, used
// against MaxTotalOrders.
func (s *GridState) TotalOpenOrders() int {
	return len(s.BuyOrders) + len(s.SellOrders)
}

// OpenSideOrders returns the resting orders on the open (inventory-adding) side.
func (s *GridState) OpenSideOrders() map[string]*ActiveOrder {
	if s.Config.Direction.OpenIsAsk() {
		return s.SellOrders
	}
	return s.BuyOrders
}

// CloseSideOrders returns the resting orders on the close (profit-taking) side.
func (s *GridState) CloseSideOrders() map[string]*ActiveOrder {
	if s.Config.Direction.CloseIsAsk() {
		return s.SellOrders
	}
	return s.BuyOrders
}

// CheckInvariants runs seven structural checks: the open-order cap,
// non-negative position_abs, available_position not above position_abs,
// a positive base_step, active_step not below base_step, no order id on
// both sides, and placeholder_exists matching placeholder_orders. It
// returns the first violation found, or nil if every check passes.
func (s *GridState) CheckInvariants() error {
	if s.TotalOpenOrders() > s.Config.MaxTotalOrders {
		return invariantError("total open orders exceeds configured maximum")
	}
	if s.PositionAbs.IsNegative() {
		return invariantError("position_abs is negative")
	}
	if s.AvailablePosition.GreaterThan(s.PositionAbs) {
		return invariantError("available_position exceeds position_abs")
	}
	if s.BaseStep.IsNegative() || s.BaseStep.IsZero() {
		return invariantError("base_step is not positive")
	}
	if s.ActiveStep.LessThan(s.BaseStep) {
		return invariantError("active_step is below base_step")
	}
	for id := range s.BuyOrders {
		if _, dup := s.SellOrders[id]; dup {
			return invariantError("order id present on both sides: " + id)
		}
	}
	if s.PlaceholderExists != (len(s.PlaceholderOrders) > 0) {
		return invariantError("placeholder_exists flag disagrees with placeholder_orders")
	}
	return nil
}

func invariantError(msg string) error {
	return &InvariantViolation{Msg: msg}
}

// InvariantViolation reports a broken GridState invariant.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string { return "grid state invariant violated: " + e.Msg }

// Engine owns a GridState and the single mutex serializing every mutation
// of it — the replenish_grid_lock from spec §5. Components that read or
// write a GridState do so while holding Engine's lock, acquired via
// Lock/Unlock or WithLock. No gateway call is made with the lock held:
// callers release it around every fetch, placement and cancel, and take it
// again to apply the result.
type Engine struct {
	mu    sync.Mutex
	State *GridState
}

// NewEngine wraps a GridState with its owning mutex.
func NewEngine(s *GridState) *Engine {
	return &Engine{State: s}
}

// Lock acquires the replenish_grid_lock.
func (e *Engine) Lock() { e.mu.Lock() }

// Unlock releases the replenish_grid_lock.
func (e *Engine) Unlock() { e.mu.Unlock() }

// WithLock runs fn with the lock held.
func (e *Engine) WithLock(fn func(s *GridState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.State)
}
