package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/depthbook/internal/book"
	"github.com/rickgao/depthbook/internal/connection"
	"github.com/rickgao/depthbook/internal/depth"
	"github.com/rickgao/depthbook/internal/metrics"
	"github.com/rickgao/depthbook/internal/writer"
)

// Session drives one connection and the book it feeds.
type Session struct {
	id       string
	dial     Dialer
	book     *book.Book
	decoder  *depth.Decoder
	renderer Renderer
	samples  SampleSink
	metrics  *metrics.Collector
	logger   *slog.Logger

	state   atomic.Int32
	started atomic.Bool

	// Owned by the Run goroutine
	conn Conn

	mu    sync.RWMutex
	stats Stats
}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session id used in logs and samples. Defaults to a random UUID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithRenderer renders the book after every applied message.
func WithRenderer(r Renderer) Option {
	return func(s *Session) { s.renderer = r }
}

// WithSampleSink publishes a top-of-book sample after every applied message.
func WithSampleSink(sink SampleSink) Option {
	return func(s *Session) { s.samples = sink }
}

// WithMetrics records session metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Session) { s.metrics = c }
}

// New creates a session in the Connecting state. b must not be shared with any
// other goroutine while Run is active.
func New(dial Dialer, b *book.Book, opts ...Option) *Session {
	s := &Session{
		dial: dial,
		book: b,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session_id", s.id)
	s.decoder = depth.NewDecoder(s.logger)
	s.metrics.SetState(int(StateConnecting))
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state. Safe for concurrent use.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns current statistics. Safe for concurrent use.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	s.metrics.SetState(int(st))
	if prev != st {
		s.logger.Debug("session state changed", "from", prev, "to", st)
	}
}

// Run dials, then reads and handles frames until the server closes the stream
// (nil), the connection fails (ErrConnection) or ctx is cancelled (ctx.Err()).
// Run may be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	conn, err := s.dial(ctx)
	if err != nil {
		s.setState(StateClosed)
		return fmt.Errorf("%w: dial: %w", ErrConnection, err)
	}
	s.conn = conn

	// Cancellation unblocks a pending read by closing the connection.
	if closer, ok := conn.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { closer.Close() })
		defer func() {
			stop()
			closer.Close()
		}()
	}

	if n, ok := conn.(ControlNotifier); ok {
		n.SetControlHandler(func(f connection.Frame) error {
			_, err := s.handleFrame(f)
			return err
		})
	}

	s.setState(StateStreaming)
	s.logger.Info("session streaming")

	for {
		f, err := conn.ReadFrame(ctx)
		if err != nil {
			s.setState(StateClosed)
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.logger.Info("session cancelled")
				return ctxErr
			}
			s.logger.Error("receive failed", "error", err)
			return fmt.Errorf("%w: receive: %w", ErrConnection, err)
		}

		closed, err := s.handleFrame(f)
		if err != nil {
			s.setState(StateClosed)
			s.logger.Error("send failed", "error", err)
			return err
		}
		if closed {
			s.setState(StateClosed)
			return nil
		}
	}
}

// handleFrame dispatches a single frame. closed reports a close frame.
func (s *Session) handleFrame(f connection.Frame) (closed bool, err error) {
	s.mu.Lock()
	s.stats.FramesReceived++
	s.mu.Unlock()
	s.metrics.FrameReceived(f.Kind.String())

	switch f.Kind {
	case connection.FrameText:
		s.handleText(f)

	case connection.FrameBinary:
		s.logger.Debug("binary frame ignored", "bytes", len(f.Payload))

	case connection.FramePing:
		if err := s.conn.WriteFrame(connection.Frame{Kind: connection.FramePong, Payload: f.Payload}); err != nil {
			return false, fmt.Errorf("%w: send pong: %w", ErrConnection, err)
		}
		s.mu.Lock()
		s.stats.PongsSent++
		s.mu.Unlock()
		s.metrics.PongSent()
		s.logger.Debug("answered ping", "payload", f.Payload)

	case connection.FrameClose:
		code, reason := closeReason(f.Payload)
		s.logger.Info("stream closed by server", "code", code, "reason", reason)
		return true, nil

	default:
		s.logger.Debug("frame ignored", "kind", f.Kind)
	}
	return false, nil
}

func (s *Session) handleText(f connection.Frame) {
	msg, err := depth.Parse(f.Payload)
	if err != nil {
		s.mu.Lock()
		s.stats.ParseErrors++
		s.mu.Unlock()
		s.metrics.MessageParseError()
		s.logger.Warn("dropping malformed message", "error", err, "bytes", len(f.Payload))
		return
	}

	res := s.decoder.Apply(msg, s.book)

	s.mu.Lock()
	s.stats.MessagesApplied++
	s.stats.FieldErrors += int64(res.FieldErrors)
	s.mu.Unlock()

	s.publishBook(res)
	s.logger.Debug("depth update applied",
		"symbol", msg.Symbol(),
		"first_update_id", msg.FirstUpdateID(),
		"final_update_id", msg.FinalUpdateID(),
		"bids", res.Bids,
		"asks", res.Asks,
	)

	if s.renderer != nil {
		if err := s.renderer.Render(s.book); err != nil {
			s.logger.Warn("render failed", "error", err)
		}
	}

	if s.samples != nil {
		if !s.samples.Send(s.sample(msg, f.ReceivedAt)) {
			s.metrics.SampleDropped()
		}
	}
}

func (s *Session) publishBook(res depth.Result) {
	if s.metrics == nil {
		return
	}
	s.metrics.MessageApplied(res.Bids, res.Asks, res.FieldErrors)
	for _, side := range []book.Side{book.Bid, book.Ask} {
		var best float64
		if lvl, ok := s.book.Best(side); ok {
			best = lvl.Price.Float64()
		}
		s.metrics.SetBook(side.String(), s.book.Len(side), best)
	}
}

func (s *Session) sample(msg depth.Message, receivedAt time.Time) writer.BookSample {
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	out := writer.BookSample{
		SessionID:     s.id,
		Symbol:        msg.Symbol(),
		FinalUpdateID: msg.FinalUpdateID(),
		EventTime:     msg.EventTime(),
		ReceivedAt:    receivedAt,
		BidLevels:     s.book.Len(book.Bid),
		AskLevels:     s.book.Len(book.Ask),
	}
	if lvl, ok := s.book.Best(book.Bid); ok {
		out.HasBid, out.BidPrice, out.BidQty = true, lvl.Price, lvl.Quantity
	}
	if lvl, ok := s.book.Best(book.Ask); ok {
		out.HasAsk, out.AskPrice, out.AskQty = true, lvl.Price, lvl.Quantity
	}
	return out
}

// closeReason splits a close frame payload into status code and text.
// An empty payload means no status was sent (1005).
func closeReason(payload []byte) (code int, reason string) {
	if len(payload) < 2 {
		return 1005, ""
	}
	return int(binary.BigEndian.Uint16(payload[:2])), string(payload[2:])
}
