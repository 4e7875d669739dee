package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single WebSocket connection to the depth stream.
//
// ReadFrame must be called from one goroutine. WriteFrame is serialized
// internally. Close may be called from any goroutine.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
	conn   *websocket.Conn

	// Write serialization
	writeMu sync.Mutex

	mu      sync.Mutex
	control ControlHandler
	closed  bool
}

// Dial establishes the WebSocket connection.
func Dial(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		conn:   conn,
	}

	conn.SetPingHandler(func(data string) error {
		return c.dispatchControl(Frame{Kind: FramePing, Payload: []byte(data), ReceivedAt: time.Now()})
	})
	conn.SetPongHandler(func(data string) error {
		return c.dispatchControl(Frame{Kind: FramePong, Payload: []byte(data), ReceivedAt: time.Now()})
	})

	logger.Debug("websocket connected", "url", cfg.URL)

	return c, nil
}

// SetControlHandler installs the handler for ping and pong frames. Without a
// handler, pings are answered with a pong carrying the same payload.
func (c *Client) SetControlHandler(h ControlHandler) {
	c.mu.Lock()
	c.control = h
	c.mu.Unlock()
}

func (c *Client) dispatchControl(f Frame) error {
	c.mu.Lock()
	h := c.control
	c.mu.Unlock()

	if h != nil {
		return h(f)
	}
	if f.Kind == FramePing {
		return c.WriteFrame(Frame{Kind: FramePong, Payload: f.Payload})
	}
	return nil
}

// ReadFrame blocks until the next text, binary or close frame arrives.
// Control frames read along the way go to the control handler.
func (c *Client) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	msgType, data, err := c.conn.ReadMessage()
	receivedAt := time.Now()

	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return Frame{
				Kind:       FrameClose,
				Payload:    websocket.FormatCloseMessage(closeErr.Code, closeErr.Text),
				ReceivedAt: receivedAt,
			}, nil
		}
		return Frame{}, err
	}

	switch msgType {
	case websocket.TextMessage:
		return Frame{Kind: FrameText, Payload: data, ReceivedAt: receivedAt}, nil
	case websocket.BinaryMessage:
		return Frame{Kind: FrameBinary, Payload: data, ReceivedAt: receivedAt}, nil
	default:
		return Frame{}, fmt.Errorf("%w: message type %d", ErrUnknownFrame, msgType)
	}
}

// WriteFrame sends a frame with the configured write deadline.
func (c *Client) WriteFrame(f Frame) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrNotConnected
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)

	switch f.Kind {
	case FramePing, FramePong, FrameClose:
		err := c.conn.WriteControl(controlType(f.Kind), f.Payload, deadline)
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	case FrameText, FrameBinary:
		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		c.conn.SetWriteDeadline(deadline)
		msgType := websocket.TextMessage
		if f.Kind == FrameBinary {
			msgType = websocket.BinaryMessage
		}
		return c.conn.WriteMessage(msgType, f.Payload)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFrame, int(f.Kind))
	}
}

// Close sends a normal closure frame and closes the socket. Calling Close more
// than once is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

func controlType(k FrameKind) int {
	switch k {
	case FramePing:
		return websocket.PingMessage
	case FramePong:
		return websocket.PongMessage
	default:
		return websocket.CloseMessage
	}
}
