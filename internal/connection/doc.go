// Package connection implements the WebSocket transport for the depth stream.
//
// The Client:
//   - Dials a single long-lived connection (no reconnect)
//   - Exposes frames one at a time to a single reader
//   - Surfaces ping/pong control frames, which gorilla/websocket reads inside
//     ReadMessage, to a handler installed by the reader
//   - Maps a close frame to a FrameClose value rather than an error
package connection
