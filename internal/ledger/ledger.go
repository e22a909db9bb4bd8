// Package ledger implements LegLedger: the authoritative in-memory record
// of open legs, their VWAP-averaged entries, a denormalized per-indicator
// TradeBook, and the LedgerIndex used for O(1) indicator-scoped closing.
//
// Grounded on internal/storage/storage.go's bucketed, mutex-guarded,
// indexed store shape, adapted from a bbolt-backed record store into an
// in-memory ledger with its own index, and on the data model of spec §3.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// epsilon below which a remaining quantity is treated as flat.
const epsilon = 1e-9

// LegKey identifies one leg: symbol, interval, position side, and
// indicator slot. spec §3 defines LegKey as (symbol, interval, side);
// indicator is carried in the key rather than only in Entry.IndicatorKeys
// because this ledger gives every indicator its own slot rather than
// sharing one side-leg across indicators — see DESIGN.md's Open Question
// decision.
type LegKey struct {
	Symbol       string
	Interval     string
	PositionSide string // LONG | SHORT
	Indicator    string
}

func (k LegKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Symbol, k.Interval, k.PositionSide, k.Indicator)
}

// Entry is one fill that opened or added to a leg.
type Entry struct {
	ID         string
	Quantity   float64
	Price      float64
	Leverage   int
	MarginUSDT float64
	Signature  string
	OpenedAt   time.Time
}

// Leg is the VWAP-averaged aggregate of all open entries for one LegKey.
type Leg struct {
	Key         LegKey
	Entries     []Entry
	TotalQty    float64
	AvgPrice    float64
	TotalMargin float64
	OpenedAt    time.Time
	LastUpdated time.Time
}

// TradeRecord is one append-only trade-book row: a leg opened, added-to,
// or closed.
type TradeRecord struct {
	ID       string
	Key      LegKey
	Action   string // OPEN | ADD | CLOSE
	Quantity float64
	Price    float64
	At       time.Time
}

// bookRow is one TradeBook entry: the denormalized, indicator-keyed view
// of an Entry (spec §3's TradeBook, "source of truth for does indicator X
// currently own a leg on this side").
type bookRow struct {
	Qty        float64
	Timestamp  time.Time
	EntryPrice float64
	MarginUSDT float64
}

type bookKey struct {
	Symbol       string
	Interval     string
	Indicator    string
	PositionSide string
}

// Ledger holds all open legs, the append-only history log, the
// denormalized TradeBook, and the LedgerIndex, guarded by one mutex —
// matching the single-lock-per-aggregate discipline of the rest of the
// engine's concurrency model (spec §5: Guard -> Ledger -> Positions ->
// Limiter -> Cache).
type Ledger struct {
	mu      sync.Mutex
	legs    map[LegKey]*Leg
	symbols map[string][]LegKey // symbol -> keys, for LegsForSymbol/SlotCount
	history []TradeRecord

	ledgerIndex map[string]LegKey            // ledger_id -> LegKey, spec §3 LedgerIndex
	tradeBook   map[bookKey]map[string]bookRow // (symbol,interval,indicator,side) -> ledger_id -> row
}

func New() *Ledger {
	return &Ledger{
		legs:        make(map[LegKey]*Leg),
		symbols:     make(map[string][]LegKey),
		ledgerIndex: make(map[string]LegKey),
		tradeBook:   make(map[bookKey]map[string]bookRow),
	}
}

func bookKeyFor(key LegKey) bookKey {
	return bookKey{Symbol: key.Symbol, Interval: key.Interval, Indicator: key.Indicator, PositionSide: key.PositionSide}
}

// Open appends a new entry to a leg, creating it if needed, and
// recomputes the VWAP-averaged entry price and total margin (spec §8
// property 1: qty_total = Σ entries.qty, margin_total = Σ entries.margin).
// This is spec §4.8's append_entry.
func (l *Ledger) Open(key LegKey, qty, price, marginUSDT float64) *Leg {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry := Entry{ID: uuid.NewString(), Quantity: qty, Price: price, MarginUSDT: marginUSDT, OpenedAt: now}

	leg, exists := l.legs[key]
	action := "OPEN"
	if !exists {
		leg = &Leg{Key: key, OpenedAt: now}
		l.legs[key] = leg
		l.symbols[key.Symbol] = append(l.symbols[key.Symbol], key)
	} else {
		action = "ADD"
	}

	leg.Entries = append(leg.Entries, entry)
	l.recomputeTotals(leg)
	leg.LastUpdated = now

	l.ledgerIndex[entry.ID] = key
	l.putBookRow(key, entry)

	l.history = append(l.history, TradeRecord{
		ID: entry.ID, Key: key, Action: action, Quantity: qty, Price: price, At: now,
	})

	return cloneLeg(leg)
}

// Close removes qty from the leg. A full close (qty >= TotalQty) drops
// the leg entirely via RemoveEntry. A partial close scales every entry
// proportionally via SyncLegTotals so TotalQty, each entry's Quantity and
// MarginUSDT, and the leg's TotalMargin stay consistent with spec §8
// property 1 and the scaling rule of property 4.
func (l *Ledger) Close(key LegKey, qty, price float64) (closed *Leg, fullyClosed bool) {
	l.mu.Lock()
	leg, exists := l.legs[key]
	if !exists {
		l.mu.Unlock()
		return nil, false
	}

	closedQty := qty
	if closedQty >= leg.TotalQty {
		closedQty = leg.TotalQty
		fullyClosed = true
	}
	remaining := leg.TotalQty - closedQty
	l.mu.Unlock()

	if fullyClosed {
		l.removeEntryLocked(key, "", price, closedQty)
	} else {
		l.syncLegTotalsLocked(key, remaining, price, closedQty)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if leg, ok := l.legs[key]; ok {
		result := cloneLeg(leg)
		result.TotalQty = closedQty // the quantity closed in this call
		return result, fullyClosed
	}
	return &Leg{Key: key, TotalQty: closedQty}, fullyClosed
}

// RemoveEntry drops a single entry by ledger_id, or the entire leg when
// ledgerID is empty (spec §4.8's remove_entry). It returns the leg state
// after removal (nil once the leg is emptied) and whether the leg is now
// flat.
func (l *Ledger) RemoveEntry(key LegKey, ledgerID string) (leg *Leg, fullyClosed bool) {
	return l.removeEntryLocked(key, ledgerID, 0, 0)
}

func (l *Ledger) removeEntryLocked(key LegKey, ledgerID string, price, recordQty float64) (*Leg, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	leg, exists := l.legs[key]
	if !exists {
		return nil, false
	}

	if ledgerID == "" {
		recordQty = leg.TotalQty
		for _, e := range leg.Entries {
			delete(l.ledgerIndex, e.ID)
		}
		delete(l.tradeBook, bookKeyFor(key))
		delete(l.legs, key)
		l.removeFromSymbolIndex(key)
		l.history = append(l.history, TradeRecord{ID: uuid.NewString(), Key: key, Action: "CLOSE", Quantity: recordQty, Price: price, At: time.Now()})
		return nil, true
	}

	idx := -1
	for i, e := range leg.Entries {
		if e.ID == ledgerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return cloneLeg(leg), false
	}
	if recordQty == 0 {
		recordQty = leg.Entries[idx].Quantity
	}

	leg.Entries = append(leg.Entries[:idx], leg.Entries[idx+1:]...)
	delete(l.ledgerIndex, ledgerID)
	if rows := l.tradeBook[bookKeyFor(key)]; rows != nil {
		delete(rows, ledgerID)
		if len(rows) == 0 {
			delete(l.tradeBook, bookKeyFor(key))
		}
	}
	l.history = append(l.history, TradeRecord{ID: uuid.NewString(), Key: key, Action: "CLOSE", Quantity: recordQty, Price: price, At: time.Now()})

	if len(leg.Entries) == 0 {
		delete(l.legs, key)
		l.removeFromSymbolIndex(key)
		return nil, true
	}
	l.recomputeTotals(leg)
	leg.LastUpdated = time.Now()
	return cloneLeg(leg), false
}

// DecrementEntryQty scales every qty-proportional field of one entry
// (margin) by remainingQty/prevQty, matching spec §4.8's
// decrement_entry_qty and testable property 4. A remainingQty at or
// below epsilon removes the entry outright.
func (l *Ledger) DecrementEntryQty(key LegKey, ledgerID string, prevQty, remainingQty float64) (*Leg, error) {
	if remainingQty <= epsilon {
		leg, _ := l.RemoveEntry(key, ledgerID)
		return leg, nil
	}
	if prevQty <= 0 {
		return nil, fmt.Errorf("ledger: prevQty must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	leg, exists := l.legs[key]
	if !exists {
		return nil, fmt.Errorf("ledger: no open leg for %s", key)
	}
	factor := remainingQty / prevQty
	for i := range leg.Entries {
		if leg.Entries[i].ID != ledgerID {
			continue
		}
		leg.Entries[i].Quantity = remainingQty
		leg.Entries[i].MarginUSDT *= factor
		l.putBookRow(key, leg.Entries[i])
		break
	}
	l.recomputeTotals(leg)
	leg.LastUpdated = time.Now()
	return cloneLeg(leg), nil
}

// SyncLegTotals rescales every entry in a leg proportionally so the leg's
// TotalQty matches actualQty, the exchange-reported quantity (spec
// §4.8's sync_leg_totals). Used by reconciliation and by Close's partial
// path, where the "actual" post-close quantity is known in advance.
func (l *Ledger) SyncLegTotals(key LegKey, actualQty float64) (*Leg, bool) {
	return l.syncLegTotalsLocked(key, actualQty, 0, 0)
}

func (l *Ledger) syncLegTotalsLocked(key LegKey, actualQty, price, recordQty float64) (*Leg, bool) {
	if actualQty <= epsilon {
		leg, fully := l.removeEntryLocked(key, "", price, recordQty)
		return leg, fully
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	leg, exists := l.legs[key]
	if !exists || leg.TotalQty <= 0 {
		return nil, false
	}
	factor := actualQty / leg.TotalQty
	for i := range leg.Entries {
		leg.Entries[i].Quantity *= factor
		leg.Entries[i].MarginUSDT *= factor
		l.putBookRow(key, leg.Entries[i])
	}
	l.recomputeTotals(leg)
	leg.LastUpdated = time.Now()
	if recordQty > 0 {
		l.history = append(l.history, TradeRecord{ID: uuid.NewString(), Key: key, Action: "CLOSE", Quantity: recordQty, Price: price, At: time.Now()})
	}
	return cloneLeg(leg), false
}

// recomputeTotals rebuilds TotalQty, AvgPrice and TotalMargin from
// Entries, the only place these aggregates are derived (spec §8 property
// 1 and 4 hold by construction afterward).
func (l *Ledger) recomputeTotals(leg *Leg) {
	var qty, margin, notional float64
	for _, e := range leg.Entries {
		qty += e.Quantity
		margin += e.MarginUSDT
		notional += e.Quantity * e.Price
	}
	leg.TotalQty = qty
	leg.TotalMargin = margin
	if qty > 0 {
		leg.AvgPrice = notional / qty
	}
}

func (l *Ledger) book(key LegKey) map[string]bookRow {
	bk := bookKeyFor(key)
	rows, ok := l.tradeBook[bk]
	if !ok {
		rows = make(map[string]bookRow)
		l.tradeBook[bk] = rows
	}
	return rows
}

func (l *Ledger) putBookRow(key LegKey, e Entry) {
	l.book(key)[e.ID] = bookRow{Qty: e.Quantity, Timestamp: e.OpenedAt, EntryPrice: e.Price, MarginUSDT: e.MarginUSDT}
}

func (l *Ledger) removeFromSymbolIndex(key LegKey) {
	keys := l.symbols[key.Symbol]
	for i, k := range keys {
		if k == key {
			l.symbols[key.Symbol] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(l.symbols[key.Symbol]) == 0 {
		delete(l.symbols, key.Symbol)
	}
}

// HasOpen reports whether an indicator currently owns a leg on the given
// side — spec §4.8's has_open, answered from the denormalized TradeBook.
func (l *Ledger) HasOpen(symbol, interval, indicator, side string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, ok := l.tradeBook[bookKey{Symbol: symbol, Interval: interval, Indicator: indicator, PositionSide: side}]
	return ok && len(rows) > 0
}

// GetLedgerIDs returns every entry's ledger_id for a leg.
func (l *Ledger) GetLedgerIDs(key LegKey) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	leg, ok := l.legs[key]
	if !ok {
		return nil
	}
	out := make([]string, len(leg.Entries))
	for i, e := range leg.Entries {
		out[i] = e.ID
	}
	return out
}

// LookupLedgerID resolves a ledger_id to its LegKey in O(1) (spec §3's
// LedgerIndex).
func (l *Ledger) LookupLedgerID(ledgerID string) (LegKey, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key, ok := l.ledgerIndex[ledgerID]
	return key, ok
}

// OpenQty returns the live quantity owned by a leg, 0 if flat.
func (l *Ledger) OpenQty(key LegKey) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if leg, ok := l.legs[key]; ok {
		return leg.TotalQty
	}
	return 0
}

// Get returns the current leg for key, or false if flat.
func (l *Ledger) Get(key LegKey) (*Leg, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	leg, ok := l.legs[key]
	if !ok {
		return nil, false
	}
	return cloneLeg(leg), true
}

// LegsForSymbol returns all open legs for symbol in index order.
func (l *Ledger) LegsForSymbol(symbol string) []*Leg {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := l.symbols[symbol]
	out := make([]*Leg, 0, len(keys))
	for _, k := range keys {
		if leg, ok := l.legs[k]; ok {
			out = append(out, cloneLeg(leg))
		}
	}
	return out
}

// SlotCount returns the number of open legs for symbol, the "desired
// slots" denominator OrderSizer's margin cap divides by.
func (l *Ledger) SlotCount(symbol string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.symbols[symbol])
}

// TotalMargin sums the margin committed across every open leg, the basis
// for a cumulative or entire-account stop-loss scope.
func (l *Ledger) TotalMargin() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0.0
	for _, leg := range l.legs {
		total += leg.TotalMargin
	}
	return total
}

// All returns every currently open leg across all symbols, used by
// EmergencyCloser to flatten the whole book.
func (l *Ledger) All() []Leg {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Leg, 0, len(l.legs))
	for _, leg := range l.legs {
		out = append(out, *cloneLeg(leg))
	}
	return out
}

// TradeBook returns a copy of the full append-only history log (distinct
// from the denormalized, indicator-keyed TradeBook index used by
// HasOpen — this is the audit trail spec §6.4 recommends persisting).
func (l *Ledger) TradeBook() []TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TradeRecord, len(l.history))
	copy(out, l.history)
	return out
}

func cloneLeg(leg *Leg) *Leg {
	entries := make([]Entry, len(leg.Entries))
	copy(entries, leg.Entries)
	clone := *leg
	clone.Entries = entries
	return &clone
}
