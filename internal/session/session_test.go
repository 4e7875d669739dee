package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/depthbook/internal/book"
	"github.com/rickgao/depthbook/internal/connection"
	"github.com/rickgao/depthbook/internal/fixedpoint"
	"github.com/rickgao/depthbook/internal/presenter"
	"github.com/rickgao/depthbook/internal/writer"
)

// fakeConn replays scripted frames. Once they run out it returns readErr, or
// blocks until Close when readErr is nil.
type fakeConn struct {
	mu       sync.Mutex
	frames   []connection.Frame
	readErr  error
	writeErr error
	writes   []connection.Frame
	// reads records how many frames were handed out before each write.
	readsAtWrite []int
	reads        int

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn(frames ...connection.Frame) *fakeConn {
	return &fakeConn{frames: frames, closed: make(chan struct{})}
}

func (c *fakeConn) ReadFrame(ctx context.Context) (connection.Frame, error) {
	c.mu.Lock()
	if len(c.frames) > 0 {
		f := c.frames[0]
		c.frames = c.frames[1:]
		c.reads++
		c.mu.Unlock()
		return f, nil
	}
	err := c.readErr
	c.mu.Unlock()

	if err != nil {
		return connection.Frame{}, err
	}
	<-c.closed
	return connection.Frame{}, errors.New("use of closed connection")
}

func (c *fakeConn) WriteFrame(f connection.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, f)
	c.readsAtWrite = append(c.readsAtWrite, c.reads)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) written() []connection.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]connection.Frame(nil), c.writes...)
}

func dialer(c Conn) Dialer {
	return func(context.Context) (Conn, error) { return c, nil }
}

func text(s string) connection.Frame {
	return connection.Frame{Kind: connection.FrameText, Payload: []byte(s)}
}

func closeFrame() connection.Frame {
	return connection.Frame{
		Kind:    connection.FrameClose,
		Payload: websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(conn Conn, b *book.Book, opts ...Option) *Session {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(dialer(conn), b, opts...)
}

func mp(s string) fixedpoint.Value {
	return fixedpoint.MustParse(s)
}

func wantBest(t *testing.T, b *book.Book, side book.Side, price, qty string) {
	t.Helper()
	lvl, ok := b.Best(side)
	if !ok {
		t.Fatalf("best(%s): empty side", side)
	}
	if lvl.Price != mp(price) || lvl.Quantity != mp(qty) {
		t.Errorf("best(%s) = (%s, %s), want (%s, %s)", side, lvl.Price, lvl.Quantity, price, qty)
	}
}

func TestSession_BidLadder(t *testing.T) {
	b := book.New()
	conn := newFakeConn(
		text(`{"b":[["100.0000","5"],["101.0000","3"]],"a":[]}`),
		closeFrame(),
	)
	if err := newTestSession(conn, b).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantBest(t, b, book.Bid, "101.0000", "3")

	b2 := book.New()
	conn = newFakeConn(
		text(`{"b":[["100.0000","5"],["101.0000","3"]],"a":[]}`),
		text(`{"b":[["101.0000","0"]],"a":[]}`),
		closeFrame(),
	)
	if err := newTestSession(conn, b2).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantBest(t, b2, book.Bid, "100.0000", "5")
	if n := b2.Len(book.Bid); n != 1 {
		t.Errorf("bid levels = %d, want 1", n)
	}
}

func TestSession_AskLadder(t *testing.T) {
	b := book.New()
	conn := newFakeConn(
		text(`{"b":[],"a":[["102.0000","2"],["101.5000","7"]]}`),
		closeFrame(),
	)
	if err := newTestSession(conn, b).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantBest(t, b, book.Ask, "101.5000", "7")
}

func TestSession_PingAnsweredBeforeNextFrame(t *testing.T) {
	b := book.New()
	conn := newFakeConn(
		text(`{"b":[["100.0000","5"]],"a":[["101.0000","1"]]}`),
		connection.Frame{Kind: connection.FramePing, Payload: []byte{1, 2, 3}},
		text(`{"b":[["99.0000","4"]],"a":[]}`),
		closeFrame(),
	)
	s := newTestSession(conn, b)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	writes := conn.written()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want exactly 1", len(writes))
	}
	if writes[0].Kind != connection.FramePong {
		t.Errorf("write kind = %s, want pong", writes[0].Kind)
	}
	if !bytes.Equal(writes[0].Payload, []byte{1, 2, 3}) {
		t.Errorf("pong payload = %v, want [1 2 3]", writes[0].Payload)
	}
	// Pong is sent after the ping (2nd frame) and before the next data frame is read.
	if got := conn.readsAtWrite[0]; got != 2 {
		t.Errorf("pong sent after %d reads, want 2", got)
	}
	if got := s.Stats().PongsSent; got != 1 {
		t.Errorf("PongsSent = %d, want 1", got)
	}
	if n := b.Len(book.Bid); n != 2 {
		t.Errorf("bid levels = %d, want 2", n)
	}
}

func TestSession_PingLeavesBookUnchanged(t *testing.T) {
	b := book.New()
	conn := newFakeConn(
		text(`{"b":[["100.0000","5"]],"a":[["101.0000","1"]]}`),
		connection.Frame{Kind: connection.FramePing, Payload: []byte{1, 2, 3}},
		connection.Frame{Kind: connection.FramePong, Payload: []byte{9}},
		closeFrame(),
	)
	if err := newTestSession(conn, b).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	bids, asks := b.Snapshot(book.Bid), b.Snapshot(book.Ask)
	if len(bids) != 1 || bids[0] != (book.Level{Price: mp("100"), Quantity: mp("5")}) {
		t.Errorf("bids = %v", bids)
	}
	if len(asks) != 1 || asks[0] != (book.Level{Price: mp("101"), Quantity: mp("1")}) {
		t.Errorf("asks = %v", asks)
	}
}

func TestSession_MalformedPrice(t *testing.T) {
	b := book.New()
	conn := newFakeConn(
		text(`{"b":[["abc","5"]],"a":[]}`),
		closeFrame(),
	)
	s := newTestSession(conn, b)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The entry is applied at price zero.
	wantBest(t, b, book.Bid, "0", "5")
	st := s.Stats()
	if st.FieldErrors != 1 {
		t.Errorf("FieldErrors = %d, want 1", st.FieldErrors)
	}
	if st.MessagesApplied != 1 {
		t.Errorf("MessagesApplied = %d, want 1", st.MessagesApplied)
	}
}

func TestSession_CloseFrameEndsCleanly(t *testing.T) {
	conn := newFakeConn(closeFrame(), text(`{"b":[["1","1"]]}`))
	b := book.New()
	s := newTestSession(conn, b)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run returned %v, want nil", err)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
	if n := b.Len(book.Bid); n != 0 {
		t.Errorf("frame after close was applied")
	}
}

func TestSession_MalformedMessageSkipped(t *testing.T) {
	b := book.New()
	conn := newFakeConn(
		text(`{"b":[["100","1"]]}`),
		text(`not json`),
		text(`[1,2,3]`),
		text(`{"b":[["101","2"]]}`),
		closeFrame(),
	)
	s := newTestSession(conn, b)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	st := s.Stats()
	if st.ParseErrors != 2 {
		t.Errorf("ParseErrors = %d, want 2", st.ParseErrors)
	}
	if st.MessagesApplied != 2 {
		t.Errorf("MessagesApplied = %d, want 2", st.MessagesApplied)
	}
	if st.FramesReceived != 5 {
		t.Errorf("FramesReceived = %d, want 5", st.FramesReceived)
	}
	wantBest(t, b, book.Bid, "101", "2")
}

func TestSession_BinaryIgnored(t *testing.T) {
	b := book.New()
	conn := newFakeConn(
		connection.Frame{Kind: connection.FrameBinary, Payload: []byte(`{"b":[["1","1"]]}`)},
		closeFrame(),
	)
	if err := newTestSession(conn, b).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := b.Len(book.Bid); n != 0 {
		t.Errorf("binary frame mutated the book")
	}
}

func TestSession_ReceiveError(t *testing.T) {
	conn := newFakeConn(text(`{"b":[["1","1"]]}`))
	conn.readErr = errors.New("connection reset by peer")
	s := newTestSession(conn, book.New())

	err := s.Run(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Run = %v, want ErrConnection", err)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
}

func TestSession_PongWriteError(t *testing.T) {
	conn := newFakeConn(connection.Frame{Kind: connection.FramePing, Payload: []byte{1}})
	conn.writeErr = errors.New("broken pipe")

	err := newTestSession(conn, book.New()).Run(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Run = %v, want ErrConnection", err)
	}
}

func TestSession_DialError(t *testing.T) {
	dialErr := errors.New("no route to host")
	s := New(func(context.Context) (Conn, error) { return nil, dialErr }, book.New(), WithLogger(quietLogger()))

	if s.State() != StateConnecting {
		t.Fatalf("initial state = %s, want connecting", s.State())
	}
	err := s.Run(context.Background())
	if !errors.Is(err, ErrConnection) || !errors.Is(err, dialErr) {
		t.Fatalf("Run = %v, want ErrConnection wrapping dial error", err)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
}

func TestSession_RunOnce(t *testing.T) {
	s := newTestSession(newFakeConn(closeFrame()), book.New())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("second Run = %v, want ErrAlreadyRun", err)
	}
}

func TestSession_ContextCancel(t *testing.T) {
	conn := newFakeConn(text(`{"b":[["1","1"]]}`))
	s := newTestSession(conn, book.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateStreaming || s.Stats().MessagesApplied == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never applied a message")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
}

type sliceSink struct {
	samples []writer.BookSample
	accept  bool
}

func (s *sliceSink) Send(v writer.BookSample) bool {
	if !s.accept {
		return false
	}
	s.samples = append(s.samples, v)
	return true
}

func TestSession_RendersAndSamples(t *testing.T) {
	b := book.New()
	conn := newFakeConn(
		text(`{"e":"depthUpdate","E":1700000000000,"s":"BNBBTC","U":10,"u":12,"b":[["0.0015","10.5"]],"a":[["0.0016","2"]]}`),
		closeFrame(),
	)
	var out bytes.Buffer
	sink := &sliceSink{accept: true}
	s := newTestSession(conn, b,
		WithID("test-session"),
		WithRenderer(presenter.New(&out, 0)),
		WithSampleSink(sink),
	)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out.String(), "BIDS (1 levels)") || !strings.Contains(out.String(), "0.0015") {
		t.Errorf("render output missing bid ladder:\n%s", out.String())
	}
	if len(sink.samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(sink.samples))
	}
	got := sink.samples[0]
	if got.SessionID != "test-session" || got.Symbol != "BNBBTC" || got.FinalUpdateID != 12 {
		t.Errorf("sample envelope = %+v", got)
	}
	if !got.HasBid || got.BidPrice != mp("0.0015") || got.BidQty != mp("10.5") {
		t.Errorf("sample bid = %v/%v", got.BidPrice, got.BidQty)
	}
	if !got.HasAsk || got.AskPrice != mp("0.0016") {
		t.Errorf("sample ask = %v", got.AskPrice)
	}
	if got.ReceivedAt.IsZero() {
		t.Error("sample ReceivedAt is zero")
	}
}

func TestSession_GorillaTransport(t *testing.T) {
	pongs := make(chan string, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetPongHandler(func(data string) error {
			pongs <- data
			return nil
		})
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"b":[["100.0000","5"],["101.0000","3"]],"a":[]}`))
		conn.WriteControl(websocket.PingMessage, []byte{1, 2, 3}, time.Now().Add(time.Second))
		select {
		case <-time.After(2 * time.Second):
		case data := <-pongs:
			pongs <- data
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"b":[["101.0000","0"]],"a":[]}`))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	cfg := connection.DefaultClientConfig()
	cfg.URL = "ws" + strings.TrimPrefix(server.URL, "http")
	dial := func(ctx context.Context) (Conn, error) {
		return connection.Dial(ctx, cfg, quietLogger())
	}

	b := book.New()
	s := New(dial, b, WithLogger(quietLogger()))
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case data := <-pongs:
		if data != string([]byte{1, 2, 3}) {
			t.Errorf("pong payload = %v, want [1 2 3]", []byte(data))
		}
	default:
		t.Fatal("server did not receive a pong")
	}
	if got := s.Stats().PongsSent; got != 1 {
		t.Errorf("PongsSent = %d, want 1", got)
	}
	wantBest(t, b, book.Bid, "100.0000", "5")
}
