// Package transport speaks line-framed JSON-RPC 2.0 (LSP's
// Content-Length-prefixed framing) over a child process's stdio, with
// request/response correlation by id and a single reader dispatching
// server-initiated notifications.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
)

// ErrClosed is returned by Call/Notify once the underlying stream has
// closed; outstanding calls fail the same way when the child process
// exits mid-flight.
var ErrClosed = errors.New("transport: closed")

// ErrTimeout is returned by Call when the local wait exceeds the deadline
// carried on ctx. The request id is not reused; its eventual response, if
// any, is discarded by the reader.
var ErrTimeout = errors.New("transport: timeout")

// NotificationHandler processes a server-to-client notification. It must
// not block the shared reader; long work should be handed off (e.g. to a
// goroutine or buffered channel) before returning.
type NotificationHandler func(method string, params []byte)

// Transport wraps one jsonrpc2.Conn over a ReadWriteCloser (typically an
// LS subprocess's stdio pipes). All exported methods are safe for
// concurrent use: many callers may invoke Call concurrently; jsonrpc2
// serializes their requests onto one writer and routes responses back to
// the right caller by id via its own internal table, matching the
// "single writer, single reader, N callers" contract in spec.md §5.
type Transport struct {
	mu     sync.RWMutex
	conn   *jsonrpc2.Conn
	logger *log.Logger

	handlersMu sync.RWMutex
	handlers   map[string]NotificationHandler

	closed   bool
	closedCh chan struct{}
}

// New wires a Transport on top of rwc using the VS Code object codec (the
// Content-Length-framed variant LSP uses). Notifications and unmatched
// server requests are dispatched to the handler registered for their
// method with OnNotification, matching the C1 contract's onNotification
// operation.
func New(ctx context.Context, rwc io.ReadWriteCloser, logger *log.Logger) *Transport {
	if logger == nil {
		logger = log.Default()
	}
	t := &Transport{
		logger:   logger,
		handlers: make(map[string]NotificationHandler),
		closedCh: make(chan struct{}),
	}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		var raw []byte
		if req.Params != nil {
			raw = *req.Params
		}
		t.dispatch(req.Method, raw)
		if !req.Notif {
			// Server-initiated requests beyond notifications (e.g.
			// workspace/applyEdit) are acknowledged but not acted on;
			// spec.md §6 marks that out of scope for the core.
			return true, nil
		}
		return nil, nil
	})
	conn := jsonrpc2.NewConn(ctx, stream, handler)
	t.conn = conn
	go func() {
		<-conn.DisconnectNotify()
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.closedCh)
	}()
	return t
}

func (t *Transport) dispatch(method string, params []byte) {
	t.handlersMu.RLock()
	handler, ok := t.handlers[method]
	t.handlersMu.RUnlock()
	if !ok {
		return
	}
	handler(method, params)
}

// OnNotification registers handler for method, replacing any previous
// registration. Handlers run on the shared reader goroutine.
func (t *Transport) OnNotification(method string, handler NotificationHandler) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[method] = handler
}

// Call issues a request and blocks until the matching response arrives or
// ctx is done. On ctx cancellation/deadline, Call returns ErrTimeout; the
// id remains reserved with jsonrpc2 and any late response is discarded
// there, matching spec.md §4.1's "Timeouts... do not attempt to cancel
// the LS" contract.
func (t *Transport) Call(ctx context.Context, method string, params, result interface{}) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrClosed
	}
	conn := t.conn
	t.mu.RUnlock()

	err := conn.Call(ctx, method, params, result)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
			return ErrTimeout
		}
		if t.IsClosed() {
			return ErrClosed
		}
		return fmt.Errorf("transport: call %s: %w", method, err)
	}
	return nil
}

// Notify sends a fire-and-forget notification (no id, no response).
func (t *Transport) Notify(ctx context.Context, method string, params interface{}) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrClosed
	}
	conn := t.conn
	t.mu.RUnlock()

	if err := conn.Notify(ctx, method, params); err != nil {
		if t.IsClosed() {
			return ErrClosed
		}
		return fmt.Errorf("transport: notify %s: %w", method, err)
	}
	return nil
}

// IsClosed reports whether the underlying stream has disconnected.
func (t *Transport) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// Done returns a channel closed once the transport disconnects.
func (t *Transport) Done() <-chan struct{} {
	return t.closedCh
}

// Close terminates the underlying connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
