package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/dashhub/errors"
	"github.com/c360/dashhub/pkg/retry"
	"github.com/c360/dashhub/point"
)

// websocketAdapter connects to a websocket endpoint and reads JSON frames.
// Frames carrying arrays are appended as a batch, scalar objects singly.
// Parse failures are reported but keep the connection open; a lost
// connection triggers bounded reconnection with exponential backoff.
type websocketAdapter struct {
	runner
	desc    Descriptor
	handler Handler
	logger  *slog.Logger
	dialer  *websocket.Dialer

	connMu sync.Mutex
	conn   *websocket.Conn
}

func newWebSocketAdapter(desc Descriptor, handler Handler, logger *slog.Logger) *websocketAdapter {
	return &websocketAdapter{
		desc:    desc,
		handler: handler,
		logger:  logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  45 * time.Second,
			EnableCompression: desc.Compression,
		},
	}
}

func (a *websocketAdapter) Kind() Kind { return KindWebSocket }

func (a *websocketAdapter) Start(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	childCtx, err := a.begin(ctx, "websocket")
	if err != nil {
		return err
	}

	a.wg.Add(1)
	go a.connectLoop(childCtx)
	return nil
}

func (a *websocketAdapter) Stop(timeout time.Duration) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if !a.started.Load() {
		return nil
	}

	a.cancel()
	a.closeConn()

	return a.end(timeout, "websocket")
}

func (a *websocketAdapter) Health() HealthStatus {
	return a.health(true)
}

func (a *websocketAdapter) setConn(conn *websocket.Conn) {
	a.connMu.Lock()
	a.conn = conn
	a.connMu.Unlock()
}

// closeConn unblocks a pending ReadMessage during shutdown.
func (a *websocketAdapter) closeConn() {
	a.connMu.Lock()
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
	a.connMu.Unlock()
}

// connectLoop dials the endpoint and reads until disconnect, then retries
// with backoff. Attempts reset on every successful connection.
func (a *websocketAdapter) connectLoop(ctx context.Context) {
	defer a.wg.Done()

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, resp, err := a.dialer.DialContext(ctx, a.desc.Endpoint, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.trackError(a.handler, errors.WrapTransient(err, "websocket", "connectLoop", "dial"))

			attempts++
			if a.desc.Reconnect.Exhausted(attempts) {
				a.logger.Error("reconnect attempts exhausted", "attempts", attempts)
				a.trackError(a.handler, errors.WrapFatal(errors.ErrMaxRetriesExceeded,
					"websocket", "connectLoop", "reconnect"))
				return
			}

			if retry.Sleep(ctx, a.desc.Reconnect, attempts-1) != nil {
				return
			}
			continue
		}

		attempts = 0
		a.setConn(conn)
		a.connected.Store(true)
		a.logger.Info("connected", "endpoint", a.desc.Endpoint)

		a.readLoop(ctx, conn)

		a.connected.Store(false)
		a.setConn(nil)

		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("connection lost, reconnecting")
	}
}

// readLoop reads frames until the connection fails. A frame that fails to
// parse is reported and skipped; the connection stays open.
func (a *websocketAdapter) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				a.trackError(a.handler, errors.WrapTransient(errors.ErrConnectionLost,
					"websocket", "readLoop", "read message"))
			}
			_ = conn.Close()
			return
		}

		points, err := point.Parse(data)
		if err != nil {
			a.trackError(a.handler, err)
			continue
		}

		a.handler.data(points)
	}
}

var _ Adapter = (*websocketAdapter)(nil)
