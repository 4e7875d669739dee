// Package book holds the local replica of a two-sided limit order book.
//
// Each side is a single B-tree keyed by price, so the ordering structure and the
// price->quantity store are the same object and cannot drift apart. A Book is not
// safe for concurrent use; it is owned by the stream session goroutine.
package book

import (
	"github.com/tidwall/btree"

	"github.com/rickgao/depthbook/internal/fixedpoint"
)

// Side identifies a ladder of the book.
type Side int

const (
	Bid Side = iota
	Ask
)

// String returns "bid" or "ask".
func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Level is a single price level.
type Level struct {
	Price    fixedpoint.Value
	Quantity fixedpoint.Value
}

// Book is an order book with independent bid and ask ladders.
type Book struct {
	bids *btree.Map[fixedpoint.Value, fixedpoint.Value]
	asks *btree.Map[fixedpoint.Value, fixedpoint.Value]
}

// New creates an empty book.
func New() *Book {
	return &Book{
		bids: btree.NewMap[fixedpoint.Value, fixedpoint.Value](0),
		asks: btree.NewMap[fixedpoint.Value, fixedpoint.Value](0),
	}
}

func (b *Book) ladder(side Side) *btree.Map[fixedpoint.Value, fixedpoint.Value] {
	switch side {
	case Bid:
		return b.bids
	case Ask:
		return b.asks
	default:
		return nil
	}
}

// Upsert sets the quantity at price. A zero quantity removes the level; removing
// an absent level is a no-op.
func (b *Book) Upsert(side Side, price, quantity fixedpoint.Value) {
	levels := b.ladder(side)
	if levels == nil {
		return
	}
	if quantity == 0 {
		levels.Delete(price)
		return
	}
	levels.Set(price, quantity)
}

// Best returns the highest bid or the lowest ask. ok is false if the side is empty.
func (b *Book) Best(side Side) (lvl Level, ok bool) {
	levels := b.ladder(side)
	if levels == nil {
		return Level{}, false
	}

	var price, qty fixedpoint.Value
	if side == Bid {
		price, qty, ok = levels.Max()
	} else {
		price, qty, ok = levels.Min()
	}
	if !ok {
		return Level{}, false
	}
	return Level{Price: price, Quantity: qty}, true
}

// Snapshot returns a copy of all levels on side, ascending by price.
func (b *Book) Snapshot(side Side) []Level {
	levels := b.ladder(side)
	if levels == nil {
		return nil
	}

	out := make([]Level, 0, levels.Len())
	levels.Scan(func(price, qty fixedpoint.Value) bool {
		out = append(out, Level{Price: price, Quantity: qty})
		return true
	})
	return out
}

// Depth returns up to n levels on side starting from the best price.
// n <= 0 returns every level.
func (b *Book) Depth(side Side, n int) []Level {
	levels := b.ladder(side)
	if levels == nil {
		return nil
	}

	size := levels.Len()
	if n > 0 && n < size {
		size = n
	}
	out := make([]Level, 0, size)
	collect := func(price, qty fixedpoint.Value) bool {
		out = append(out, Level{Price: price, Quantity: qty})
		return len(out) < size
	}
	if size == 0 {
		return out
	}

	if side == Bid {
		levels.Reverse(collect)
	} else {
		levels.Scan(collect)
	}
	return out
}

// Len returns the number of levels on side.
func (b *Book) Len(side Side) int {
	levels := b.ladder(side)
	if levels == nil {
		return 0
	}
	return levels.Len()
}

// Spread returns best ask minus best bid. ok is false unless both sides have levels.
func (b *Book) Spread() (fixedpoint.Value, bool) {
	bid, ok := b.Best(Bid)
	if !ok {
		return 0, false
	}
	ask, ok := b.Best(Ask)
	if !ok {
		return 0, false
	}
	return ask.Price - bid.Price, true
}
