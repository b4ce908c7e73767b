package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/socket-client/internal/auth"
	"github.com/rickgao/socket-client/internal/listener"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connecting or connected")
)

// Close codes commonly passed to Close.
const (
	CloseNormalClosure = websocket.CloseNormalClosure
	CloseGoingAway     = websocket.CloseGoingAway
)

// TransportError is a connection-level failure reported by the transport.
type TransportError struct {
	Op         string // "dial" or "read"
	StatusCode int    // HTTP status of a failed handshake, 0 otherwise
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("websocket %s (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("websocket %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ListenerFaultError reports a listener that panicked while handling an event.
type ListenerFaultError struct {
	Source string // "dispatch" or "connect"
	Value  any    // Value passed to panic
}

func (e *ListenerFaultError) Error() string {
	return fmt.Sprintf("listener fault during %s: %v", e.Source, e.Value)
}

func (e *ListenerFaultError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed  // Closed by either side; equivalent to Disconnected
	StateErrored // Failed dial or transport error; equivalent to Disconnected
)

// States lists every state, for exporters.
var States = []State{StateDisconnected, StateConnecting, StateConnected, StateClosed, StateErrored}

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnectEvent is delivered to connect listeners once the handshake completes.
type ConnectEvent struct {
	Address  string // Canonical endpoint address
	Protocol string // Subprotocol negotiated with the server, may be empty
}

// CloseEvent is delivered to close listeners when the connection closes.
type CloseEvent struct {
	Code   int
	Reason string
}

// Listener handle types for lifecycle events.
type (
	ConnectListener = listener.Listener[ConnectEvent]
	ErrorListener   = listener.Listener[error]
	CloseListener   = listener.Listener[CloseEvent]
)

// Observer receives connection telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	StateChanged(s State)
	MessageReceived(kind string, size int)
	ConnectFinished(err error)
	ListenerFault()
}

type nopObserver struct{}

func (nopObserver) StateChanged(State)          {}
func (nopObserver) MessageReceived(string, int) {}
func (nopObserver) ConnectFinished(error)       {}
func (nopObserver) ListenerFault()              {}

// Config configures a Conn.
type Config struct {
	Authorization *auth.Authorization // nil = no Authorization header
	Origin        string              // Origin header, empty = none
	Protocol      string              // Requested subprotocol, empty = none

	HandshakeTimeout time.Duration // Max time for the opening handshake
	WriteTimeout     time.Duration // Write deadline for sends and control frames
	CloseTimeout     time.Duration // Max wait for the peer to answer a close frame
	ReadLimit        int64         // Max inbound message size in bytes, 0 = unlimited

	Observer Observer // nil = no telemetry
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		CloseTimeout:     5 * time.Second,
	}
}
