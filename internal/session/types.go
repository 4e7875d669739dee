package session

import (
	"context"
	"errors"

	"github.com/rickgao/depthbook/internal/connection"
	"github.com/rickgao/depthbook/internal/presenter"
	"github.com/rickgao/depthbook/internal/writer"
)

// Errors
var (
	// ErrConnection wraps receive and send failures. It is fatal to the session.
	ErrConnection = errors.New("connection error")
	ErrAlreadyRun = errors.New("session already run")
)

// State is the session lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the frame capability the session needs from a transport.
type Conn interface {
	ReadFrame(ctx context.Context) (connection.Frame, error)
	WriteFrame(f connection.Frame) error
}

// ControlNotifier is implemented by transports that read control frames inside
// ReadFrame. The session installs its own frame handler so pings are answered
// before ReadFrame returns.
type ControlNotifier interface {
	SetControlHandler(h connection.ControlHandler)
}

// Dialer opens the connection. It runs while the session is Connecting.
type Dialer func(ctx context.Context) (Conn, error)

// Renderer displays the book after each applied message.
type Renderer interface {
	Render(l presenter.Ladders) error
}

// SampleSink accepts top-of-book samples. Send must not block.
type SampleSink interface {
	Send(s writer.BookSample) bool
}

// Stats contains runtime statistics.
type Stats struct {
	FramesReceived  int64
	MessagesApplied int64
	ParseErrors     int64
	FieldErrors     int64
	PongsSent       int64
}
