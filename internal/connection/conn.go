package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/socket-client/internal/endpoint"
	"github.com/rickgao/socket-client/internal/listener"
	"github.com/rickgao/socket-client/internal/router"
)

// Conn is a websocket connection with listener-based event delivery.
//
// Inbound frames are read on one goroutine per socket, so listeners for a
// given Conn never run concurrently with each other.
type Conn struct {
	address  string
	cfg      Config
	logger   *slog.Logger
	observer Observer

	defaultRouter *router.Router

	// Attached routers, dispatched in attach order after the default router
	routersMu   sync.RWMutex
	routers     map[uuid.UUID]*router.Router
	routerOrder []uuid.UUID

	connectListeners listener.Set[ConnectEvent]
	errorListeners   listener.Set[error]
	closeListeners   listener.Set[CloseEvent]

	// Write serialization
	writeMu sync.Mutex

	// State. ws is non-nil iff state is StateConnected.
	mu      sync.RWMutex
	ws      *websocket.Conn
	state   State
	closing *CloseEvent // Close requested on ws, awaiting the peer
	closeT  *time.Timer // Tears ws down if the peer never answers closing
}

// New creates a disconnected Conn for address. The address is canonicalized
// to a ws:// or wss:// URL.
func New(address string, cfg Config, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Conn{
		address:       endpoint.Fix(address),
		cfg:           cfg,
		logger:        logger,
		observer:      observer,
		defaultRouter: router.New(),
		routers:       make(map[uuid.UUID]*router.Router),
	}
}

// Address returns the canonical endpoint address.
func (c *Conn) Address() string {
	return c.address
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the connection is open.
func (c *Conn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ws != nil
}

// Connect dials the endpoint and blocks until the handshake completes or
// fails. Connect listeners, or error listeners on failure, have run by the
// time it returns. ctx bounds the handshake.
func (c *Conn) Connect(ctx context.Context) error {
	return c.ConnectAsync(ctx).Wait(ctx)
}

// ConnectAsync starts dialing the endpoint and returns the pending attempt.
// It fails immediately with ErrAlreadyConnected while a previous attempt is
// in flight or the connection is open. ctx bounds the handshake.
func (c *Conn) ConnectAsync(ctx context.Context) *Attempt {
	a := newAttempt()

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		a.resolve(ErrAlreadyConnected)
		return a
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.observer.StateChanged(StateConnecting)
	go c.dial(ctx, a)
	return a
}

// dial performs the handshake and settles a.
func (c *Conn) dial(ctx context.Context, a *Attempt) {
	header := http.Header{}
	if err := c.cfg.Authorization.Apply(header); err != nil {
		c.fail(a, &TransportError{Op: "dial", Err: err})
		return
	}
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	if c.cfg.Protocol != "" {
		dialer.Subprotocols = []string{c.cfg.Protocol}
	}

	ws, resp, err := dialer.DialContext(ctx, c.address, header)
	if err != nil {
		terr := &TransportError{Op: "dial", Err: err}
		if resp != nil {
			terr.StatusCode = resp.StatusCode
		}
		c.fail(a, terr)
		return
	}
	if c.cfg.ReadLimit > 0 {
		ws.SetReadLimit(c.cfg.ReadLimit)
	}

	c.mu.Lock()
	c.ws = ws
	c.state = StateConnected
	c.closing = nil
	c.mu.Unlock()

	c.observer.StateChanged(StateConnected)
	c.observer.ConnectFinished(nil)
	c.logger.Debug("websocket connected", "url", c.address, "protocol", ws.Subprotocol())

	c.emitConnect(ConnectEvent{Address: c.address, Protocol: ws.Subprotocol()})

	go c.readLoop(ws)
	a.resolve(nil)
}

// fail records a failed handshake, fires error listeners and rejects a.
func (c *Conn) fail(a *Attempt, err error) {
	c.mu.Lock()
	c.ws = nil
	c.state = StateErrored
	c.mu.Unlock()

	c.observer.StateChanged(StateErrored)
	c.observer.ConnectFinished(err)
	c.logger.Warn("websocket connect failed", "url", c.address, "error", err)

	c.emitError(err)
	a.resolve(err)
}

// Send writes a text frame.
func (c *Conn) Send(payload string) error {
	return c.write(websocket.TextMessage, []byte(payload))
}

// SendBinary writes a binary frame.
func (c *Conn) SendBinary(payload []byte) error {
	return c.write(websocket.BinaryMessage, payload)
}

// SendJSON marshals v and writes it as a text frame.
func (c *Conn) SendJSON(v any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.write(websocket.TextMessage, data)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.mu.RLock()
	ws := c.ws
	c.mu.RUnlock()

	if ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := ws.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close asks the peer to close the connection. A zero code sends 1000
// (normal closure). Close listeners fire once the peer answers, or after
// CloseTimeout if it does not, in which case the socket is torn down locally. Closing a connection that is not open is a
// no-op, and so is closing while a previous Close is pending.
func (c *Conn) Close(code int, reason string) error {
	if code == 0 {
		code = websocket.CloseNormalClosure
	}

	c.mu.Lock()
	ws := c.ws
	if ws == nil || c.closing != nil {
		c.mu.Unlock()
		return nil
	}
	c.closing = &CloseEvent{Code: code, Reason: reason}
	c.mu.Unlock()

	c.logger.Debug("closing websocket", "url", c.address, "code", code, "reason", reason)

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if c.cfg.WriteTimeout <= 0 {
		deadline = time.Time{}
	}
	if err := ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		// The read loop sees the closed socket and reports the close.
		c.logger.Debug("failed to send close frame", "error", err)
		return ws.Close()
	}

	if c.cfg.CloseTimeout > 0 {
		// Close is safe to call while the read loop is blocked in a read.
		t := time.AfterFunc(c.cfg.CloseTimeout, func() {
			c.logger.Debug("close handshake timed out", "url", c.address)
			ws.Close()
		})
		c.mu.Lock()
		if c.ws == ws {
			c.closeT = t
		} else {
			t.Stop()
		}
		c.mu.Unlock()
	}
	return nil
}

// DefaultRouter returns the router that receives every inbound frame.
func (c *Conn) DefaultRouter() *router.Router {
	return c.defaultRouter
}

// CreateAttachedRouter creates a router, attaches it and returns it.
func (c *Conn) CreateAttachedRouter() *router.Router {
	r := router.New()
	c.AttachRouter(r)
	return r
}

// AttachRouter adds r to the dispatch set. Attaching twice is a no-op, as is
// attaching the default router.
func (c *Conn) AttachRouter(r *router.Router) {
	if r == nil || r == c.defaultRouter {
		return
	}

	c.routersMu.Lock()
	defer c.routersMu.Unlock()

	if _, ok := c.routers[r.ID()]; ok {
		return
	}
	c.routers[r.ID()] = r
	c.routerOrder = append(c.routerOrder, r.ID())
}

// DetachRouter removes r from the dispatch set. Listeners registered on r are
// kept, so r can be attached again later.
func (c *Conn) DetachRouter(r *router.Router) {
	if r == nil {
		return
	}

	c.routersMu.Lock()
	defer c.routersMu.Unlock()

	if _, ok := c.routers[r.ID()]; !ok {
		return
	}
	delete(c.routers, r.ID())
	for i, id := range c.routerOrder {
		if id == r.ID() {
			c.routerOrder = append(c.routerOrder[:i], c.routerOrder[i+1:]...)
			break
		}
	}
}

// Routers returns the dispatch set: the default router first, then attached
// routers in attach order.
func (c *Conn) Routers() []*router.Router {
	c.routersMu.RLock()
	defer c.routersMu.RUnlock()

	out := make([]*router.Router, 0, len(c.routerOrder)+1)
	out = append(out, c.defaultRouter)
	for _, id := range c.routerOrder {
		out = append(out, c.routers[id])
	}
	return out
}

// AddConnectListener registers l for connect events.
func (c *Conn) AddConnectListener(l *ConnectListener) { c.connectListeners.Add(l) }

// RemoveConnectListener unregisters l.
func (c *Conn) RemoveConnectListener(l *ConnectListener) { c.connectListeners.Remove(l) }

// AddErrorListener registers l for transport errors and listener faults.
func (c *Conn) AddErrorListener(l *ErrorListener) { c.errorListeners.Add(l) }

// RemoveErrorListener unregisters l.
func (c *Conn) RemoveErrorListener(l *ErrorListener) { c.errorListeners.Remove(l) }

// AddCloseListener registers l for close events.
func (c *Conn) AddCloseListener(l *CloseListener) { c.closeListeners.Add(l) }

// RemoveCloseListener unregisters l.
func (c *Conn) RemoveCloseListener(l *CloseListener) { c.closeListeners.Remove(l) }

// OnConnect registers fn for connect events and returns its handle.
func (c *Conn) OnConnect(fn func(ConnectEvent)) *ConnectListener {
	l := listener.New(fn)
	c.AddConnectListener(l)
	return l
}

// OnError registers fn for errors and returns its handle.
func (c *Conn) OnError(fn func(error)) *ErrorListener {
	l := listener.New(fn)
	c.AddErrorListener(l)
	return l
}

// OnClose registers fn for close events and returns its handle.
func (c *Conn) OnClose(fn func(CloseEvent)) *CloseListener {
	l := listener.New(fn)
	c.AddCloseListener(l)
	return l
}

// readLoop reads frames from ws and dispatches them until ws fails or closes.
func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			c.handleReadError(ws, err)
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.observer.MessageReceived("text", len(data))
			payload := string(data)
			c.dispatch(func(r *router.Router) { r.DispatchText(payload) })
		case websocket.BinaryMessage:
			c.observer.MessageReceived("binary", len(data))
			c.dispatch(func(r *router.Router) { r.DispatchBinary(data) })
		}
	}
}

// handleReadError clears the handle and reports how ws ended: a close
// handshake (or a Close we requested) fires close listeners, anything else
// fires error listeners.
func (c *Conn) handleReadError(ws *websocket.Conn, err error) {
	var closeErr *websocket.CloseError
	isCloseFrame := errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure

	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		ws.Close()
		return
	}
	requested := c.closing
	if c.closeT != nil {
		c.closeT.Stop()
		c.closeT = nil
	}
	c.ws = nil
	c.closing = nil
	closed := isCloseFrame || requested != nil
	if closed {
		c.state = StateClosed
	} else {
		c.state = StateErrored
	}
	c.mu.Unlock()

	ws.Close()

	if closed {
		ev := CloseEvent{Code: websocket.CloseNoStatusReceived}
		if requested != nil {
			ev = *requested
		}
		if isCloseFrame {
			ev.Code = closeErr.Code
			if closeErr.Text != "" {
				ev.Reason = closeErr.Text
			}
		}

		c.observer.StateChanged(StateClosed)
		c.logger.Debug("websocket closed", "url", c.address, "code", ev.Code, "reason", ev.Reason)
		c.emitClose(ev)
		return
	}

	terr := &TransportError{Op: "read", Err: err}
	c.observer.StateChanged(StateErrored)
	c.logger.Warn("websocket read failed", "url", c.address, "error", err)
	c.emitError(terr)
}

// dispatch runs fn against every router in the dispatch set. A listener
// panic ends that router's pass and is reported to the error listeners;
// the remaining routers still receive the frame.
func (c *Conn) dispatch(fn func(r *router.Router)) {
	for _, r := range c.Routers() {
		c.dispatchOne(r, fn)
	}
}

func (c *Conn) dispatchOne(r *router.Router, fn func(r *router.Router)) {
	defer c.recoverFault("dispatch", true)
	fn(r)
}

func (c *Conn) emitConnect(ev ConnectEvent) {
	defer c.recoverFault("connect", true)
	c.connectListeners.Emit(ev)
}

func (c *Conn) emitError(err error) {
	defer c.recoverFault("error", false)
	c.errorListeners.Emit(err)
}

func (c *Conn) emitClose(ev CloseEvent) {
	defer c.recoverFault("close", false)
	c.closeListeners.Emit(ev)
}

// recoverFault must be deferred directly. Faults in error and close
// listeners are only logged so that reporting cannot recurse.
func (c *Conn) recoverFault(source string, report bool) {
	rec := recover()
	if rec == nil {
		return
	}

	fault := &ListenerFaultError{Source: source, Value: rec}
	c.observer.ListenerFault()
	c.logger.Error("listener panicked", "source", source, "panic", rec)

	if report {
		c.emitError(fault)
	}
}
