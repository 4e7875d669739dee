package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected = errors.New("not connected")
	ErrUnknownFrame = errors.New("unknown frame kind")
)

// FrameKind identifies a WebSocket frame type.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
	FramePing
	FramePong
	FrameClose
)

// String returns the lowercase frame name.
func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameClose:
		return "close"
	default:
		return "unknown"
	}
}

// Frame is a single frame received from or sent to the server.
type Frame struct {
	Kind       FrameKind
	Payload    []byte
	ReceivedAt time.Time // Local timestamp when the read returned (zero for outbound)
}

// ControlHandler receives control frames that the transport reads internally.
// A non-nil error aborts the pending read with that error.
type ControlHandler func(Frame) error

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // e.g. wss://stream.binance.com:9443/ws/bnbbtc@depth
	HandshakeTimeout time.Duration // Dial handshake limit
	WriteTimeout     time.Duration // Write deadline for frames and control frames
	ReadLimit        int64         // Max inbound message size in bytes (0 = unlimited)
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}
