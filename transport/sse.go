package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/r3labs/sse/v2"

	"github.com/c360/dashhub/errors"
	"github.com/c360/dashhub/point"
)

// sseAdapter consumes server-sent events from an event-stream endpoint.
// Message handling mirrors the websocket adapter; reconnection is delegated
// to the SSE client's native backoff retry.
type sseAdapter struct {
	runner
	desc    Descriptor
	handler Handler
	logger  *slog.Logger
	client  *sse.Client
}

func newSSEAdapter(desc Descriptor, handler Handler, logger *slog.Logger) *sseAdapter {
	return &sseAdapter{
		desc:    desc,
		handler: handler,
		logger:  logger,
		client:  sse.NewClient(desc.Endpoint),
	}
}

func (a *sseAdapter) Kind() Kind { return KindSSE }

func (a *sseAdapter) Start(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	childCtx, err := a.begin(ctx, "sse")
	if err != nil {
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		err := a.client.SubscribeRawWithContext(childCtx, a.onEvent)
		if err != nil && childCtx.Err() == nil {
			a.trackError(a.handler, errors.WrapTransient(err, "sse", "Start", "subscribe"))
		}
		a.connected.Store(false)
	}()

	return nil
}

func (a *sseAdapter) Stop(timeout time.Duration) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	return a.end(timeout, "sse")
}

func (a *sseAdapter) Health() HealthStatus {
	return a.health(false)
}

func (a *sseAdapter) onEvent(msg *sse.Event) {
	// Keep-alive comments arrive as events with no data.
	if msg == nil || len(msg.Data) == 0 {
		return
	}

	points, err := point.Parse(msg.Data)
	if err != nil {
		a.trackError(a.handler, err)
		return
	}

	a.connected.Store(true)
	a.handler.data(points)
}

var _ Adapter = (*sseAdapter)(nil)
