// Package connection manages a single websocket connection.
//
// A Conn:
//   - Dials the endpoint with the configured authorization, origin and subprotocol
//   - Tracks connection state (Disconnected, Connecting, Connected, Closed, Errored)
//   - Fires connect, error and close listeners as the transport reports events
//   - Routes every inbound frame to its default router, then to each attached router
//
// There is no automatic reconnect. After a close or an error the caller may
// call Connect again, which dials a fresh socket.
package connection
