// Package session runs the receive loop that keeps a book in sync with the
// depth stream.
//
// States: Connecting -> Streaming -> Closed. The session goroutine is the only
// reader of the connection and the only writer of the book; every frame is
// handled to completion before the next read.
package session
