package depth

import (
	"log/slog"

	"github.com/rickgao/depthbook/internal/book"
	"github.com/rickgao/depthbook/internal/fixedpoint"
)

// Upserter receives one call per decoded level.
type Upserter interface {
	Upsert(side book.Side, price, quantity fixedpoint.Value)
}

// Result summarizes one applied message.
type Result struct {
	Bids        int // Bid levels applied
	Asks        int // Ask levels applied
	FieldErrors int // Price or quantity fields that defaulted to zero
}

// Levels returns the total number of upserts performed.
func (r Result) Levels() int {
	return r.Bids + r.Asks
}

// Decoder turns Messages into book upserts.
//
// A field that fails to parse is replaced by zero and the upsert still runs.
// An unparsable quantity therefore removes the level at that price, and an
// unparsable price targets price 0. Each occurrence is logged.
type Decoder struct {
	logger *slog.Logger
}

// NewDecoder creates a Decoder.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Apply upserts every bid and then every ask in msg. Missing arrays are skipped.
func (d *Decoder) Apply(msg Message, dst Upserter) Result {
	var res Result
	res.Bids = d.applySide(msg, KeyBids, book.Bid, dst, &res)
	res.Asks = d.applySide(msg, KeyAsks, book.Ask, dst, &res)
	return res
}

func (d *Decoder) applySide(msg Message, key string, side book.Side, dst Upserter, res *Result) int {
	entries, ok := msg.Entries(key)
	if !ok {
		return 0
	}

	for i, entry := range entries {
		priceStr, qtyStr := entryFields(entry)

		price, err := fixedpoint.Parse(priceStr)
		if err != nil {
			res.FieldErrors++
			d.logger.Warn("price field defaulted to zero",
				"side", side,
				"index", i,
				"value", priceStr,
				"error", err,
			)
		}

		qty, err := fixedpoint.Parse(qtyStr)
		if err != nil {
			res.FieldErrors++
			d.logger.Warn("quantity field defaulted to zero",
				"side", side,
				"index", i,
				"price", price,
				"value", qtyStr,
				"error", err,
			)
		}

		dst.Upsert(side, price, qty)
	}
	return len(entries)
}

// entryFields extracts [price, qty] from an entry. Anything that is not a
// string is returned as "", which fails to parse and defaults to zero.
func entryFields(entry any) (price, qty string) {
	pair, _ := entry.([]any)
	if len(pair) > 0 {
		price, _ = pair[0].(string)
	}
	if len(pair) > 1 {
		qty, _ = pair[1].(string)
	}
	return price, qty
}
