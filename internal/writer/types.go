package writer

import (
	"time"

	"github.com/rickgao/depthbook/internal/fixedpoint"
)

// WriterConfig contains configuration for the batch writer.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// BookSample is the top of the book after one applied depth message.
type BookSample struct {
	SessionID     string
	Symbol        string
	FinalUpdateID int64
	EventTime     time.Time // Exchange event time (zero if absent)
	ReceivedAt    time.Time // Local frame receive time
	BidPrice      fixedpoint.Value
	BidQty        fixedpoint.Value
	AskPrice      fixedpoint.Value
	AskQty        fixedpoint.Value
	HasBid        bool
	HasAsk        bool
	BidLevels     int
	AskLevels     int
}

// bookSampleRow is a row for the book_samples table.
type bookSampleRow struct {
	SessionID  string
	Symbol     string
	UpdateID   int64
	ExchangeTs *int64 // Microseconds, NULL when absent
	ReceivedAt int64  // Microseconds
	BidPrice   *int64 // NULL when the bid side is empty
	BidQty     *int64
	AskPrice   *int64 // NULL when the ask side is empty
	AskQty     *int64
	Spread     *int64 // NULL unless both sides are present
	BidLevels  int
	AskLevels  int
}

// WriterMetrics holds metrics for the writer.
type WriterMetrics struct {
	Inserts int64
	Errors  int64
	Flushes int64
}
