package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/dashhub/errors"
	"github.com/c360/dashhub/point"
)

// natsAdapter subscribes to a subject on a NATS server. Payloads are parsed
// exactly like websocket frames. Reconnection is delegated to the NATS
// client's native retry behavior.
type natsAdapter struct {
	runner
	desc    Descriptor
	handler Handler
	logger  *slog.Logger
	conn    *nats.Conn
	sub     *nats.Subscription
}

func newNATSAdapter(desc Descriptor, handler Handler, logger *slog.Logger) *natsAdapter {
	return &natsAdapter{
		desc:    desc,
		handler: handler,
		logger:  logger,
	}
}

func (a *natsAdapter) Kind() Kind { return KindNATS }

func (a *natsAdapter) Start(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	_, err := a.begin(ctx, "nats")
	if err != nil {
		return err
	}

	reconnectWait := a.desc.Reconnect.InitialDelay
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.Name("dashhub-" + a.desc.ID),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			a.connected.Store(false)
			if err != nil {
				a.trackError(a.handler, errors.WrapTransient(err, "nats", "connection", "disconnect"))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			a.connected.Store(true)
			a.logger.Info("reconnected", "endpoint", a.desc.Endpoint)
		}),
	}

	conn, err := nats.Connect(a.desc.Endpoint, opts...)
	if err != nil {
		a.started.Store(false)
		a.cancel()
		return errors.WrapTransient(err, "nats", "Start", "connect")
	}

	sub, err := conn.Subscribe(a.desc.Subject, a.onMessage)
	if err != nil {
		conn.Close()
		a.started.Store(false)
		a.cancel()
		return errors.WrapTransient(err, "nats", "Start", "subscribe")
	}

	a.conn = conn
	a.sub = sub
	a.connected.Store(conn.IsConnected())
	a.logger.Info("subscribed", "subject", a.desc.Subject)
	return nil
}

func (a *natsAdapter) Stop(timeout time.Duration) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if !a.started.Load() {
		return nil
	}

	if a.sub != nil {
		_ = a.sub.Unsubscribe()
		a.sub = nil
	}
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}

	return a.end(timeout, "nats")
}

func (a *natsAdapter) Health() HealthStatus {
	return a.health(true)
}

func (a *natsAdapter) onMessage(msg *nats.Msg) {
	points, err := point.Parse(msg.Data)
	if err != nil {
		a.trackError(a.handler, err)
		return
	}
	a.handler.data(points)
}

var _ Adapter = (*natsAdapter)(nil)
