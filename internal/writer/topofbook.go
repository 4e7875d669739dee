package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// BatchSender is the subset of *pgxpool.Pool used by the writer.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const insertSampleSQL = `
	INSERT INTO book_samples (session_id, symbol, update_id, exchange_ts, received_at,
		bid_price, bid_qty, ask_price, ask_qty, spread, bid_levels, ask_levels)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// TopOfBookWriter consumes BookSample values and writes them to book_samples.
type TopOfBookWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the stream session
	input *Queue[BookSample]

	// Database
	db BatchSender

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Serializes flushes from the loop and Stop
	flushMu sync.Mutex

	mu      sync.Mutex
	metrics WriterMetrics
}

// NewTopOfBookWriter creates a new TopOfBookWriter.
func NewTopOfBookWriter(cfg WriterConfig, input *Queue[BookSample], db BatchSender, logger *slog.Logger) *TopOfBookWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TopOfBookWriter{
		cfg:    cfg,
		logger: logger,
		input:  input,
		db:     db,
	}
}

// Start begins consuming samples and writing to the database.
func (w *TopOfBookWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("top-of-book writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop closes the input queue, waits for the loop and flushes what is left.
func (w *TopOfBookWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping top-of-book writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("top-of-book writer stop timed out")
		return ctx.Err()
	}

	// Final flush on the caller's context; the writer context is cancelled.
	for w.input.Len() > 0 {
		if n := w.flush(ctx); n == 0 {
			break
		}
	}

	w.logger.Info("top-of-book writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *TopOfBookWriter) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *TopOfBookWriter) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		case <-w.input.Ready():
			if w.input.Len() >= w.cfg.BatchSize {
				w.flush(w.ctx)
			}
		}
	}
}

// flush writes up to one batch and returns the number of rows attempted.
func (w *TopOfBookWriter) flush(ctx context.Context) int {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	samples := w.input.Drain(w.cfg.BatchSize)
	if len(samples) == 0 {
		return 0
	}

	start := time.Now()
	rows := make([]bookSampleRow, len(samples))
	for i, s := range samples {
		rows[i] = transform(s)
	}

	err := w.batchInsert(ctx, rows)

	w.mu.Lock()
	w.metrics.Flushes++
	if err != nil {
		w.metrics.Errors++
	} else {
		w.metrics.Inserts += int64(len(rows))
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("book sample batch insert failed", "error", err, "count", len(rows))
	} else {
		w.logger.Debug("flushed book samples",
			"count", len(rows),
			"duration", time.Since(start),
		)
	}
	return len(rows)
}

func (w *TopOfBookWriter) batchInsert(ctx context.Context, rows []bookSampleRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSampleSQL,
			r.SessionID, r.Symbol, r.UpdateID, r.ExchangeTs, r.ReceivedAt,
			r.BidPrice, r.BidQty, r.AskPrice, r.AskQty, r.Spread, r.BidLevels, r.AskLevels)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// transform converts a BookSample to a bookSampleRow.
func transform(s BookSample) bookSampleRow {
	row := bookSampleRow{
		SessionID:  s.SessionID,
		Symbol:     s.Symbol,
		UpdateID:   s.FinalUpdateID,
		ReceivedAt: s.ReceivedAt.UnixMicro(),
		BidLevels:  s.BidLevels,
		AskLevels:  s.AskLevels,
	}
	if !s.EventTime.IsZero() {
		row.ExchangeTs = ptr(s.EventTime.UnixMicro())
	}
	if s.HasBid {
		row.BidPrice = ptr(int64(s.BidPrice))
		row.BidQty = ptr(int64(s.BidQty))
	}
	if s.HasAsk {
		row.AskPrice = ptr(int64(s.AskPrice))
		row.AskQty = ptr(int64(s.AskQty))
	}
	if s.HasBid && s.HasAsk {
		row.Spread = ptr(int64(s.AskPrice - s.BidPrice))
	}
	return row
}

func ptr[T any](v T) *T {
	return &v
}
