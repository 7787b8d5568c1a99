package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/dashhub/errors"
	"github.com/c360/dashhub/point"
)

// Poll responses larger than this are rejected.
const maxPollResponseBytes = 8 << 20

// pollingAdapter issues an HTTP GET on a fixed interval and parses the JSON
// response. A failed poll is reported and the adapter proceeds to the next
// tick; a single failure never halts future polling.
type pollingAdapter struct {
	runner
	desc    Descriptor
	handler Handler
	logger  *slog.Logger
	client  *http.Client
}

func newPollingAdapter(desc Descriptor, handler Handler, logger *slog.Logger) *pollingAdapter {
	return &pollingAdapter{
		desc:    desc,
		handler: handler,
		logger:  logger,
		client: &http.Client{
			Timeout: desc.Interval,
		},
	}
}

func (a *pollingAdapter) Kind() Kind { return KindPolling }

func (a *pollingAdapter) Start(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	childCtx, err := a.begin(ctx, "polling")
	if err != nil {
		return err
	}

	a.wg.Add(1)
	go a.pollLoop(childCtx)
	return nil
}

func (a *pollingAdapter) Stop(timeout time.Duration) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	return a.end(timeout, "polling")
}

func (a *pollingAdapter) Health() HealthStatus {
	return a.health(false)
}

func (a *pollingAdapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	// First fetch immediately, then on the interval.
	a.pollOnce(ctx)

	ticker := time.NewTicker(a.desc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

func (a *pollingAdapter) pollOnce(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.desc.Endpoint, nil)
	if err != nil {
		a.trackError(a.handler, errors.WrapInvalid(err, "polling", "pollOnce", "build request"))
		return
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("poll failed, waiting for next tick", "error", err)
		a.trackError(a.handler, errors.WrapTransient(err, "polling", "pollOnce", "fetch"))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		a.trackError(a.handler, errors.WrapTransient(
			fmt.Errorf("unexpected status %d", resp.StatusCode),
			"polling", "pollOnce", "fetch"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPollResponseBytes))
	if err != nil {
		a.trackError(a.handler, errors.WrapTransient(err, "polling", "pollOnce", "read body"))
		return
	}

	points, err := point.Parse(body)
	if err != nil {
		a.trackError(a.handler, err)
		return
	}

	a.connected.Store(true)
	a.handler.data(points)
}

var _ Adapter = (*pollingAdapter)(nil)
