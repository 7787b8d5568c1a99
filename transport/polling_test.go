package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/dashhub/point"
)

// pointCollector gathers handler callbacks for assertions.
type pointCollector struct {
	mu      sync.Mutex
	batches [][]point.Point
	errs    []error
}

func (c *pointCollector) handler() Handler {
	return Handler{
		OnData: func(points []point.Point) {
			c.mu.Lock()
			c.batches = append(c.batches, points)
			c.mu.Unlock()
		},
		OnError: func(err error) {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
		},
	}
}

func (c *pointCollector) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *pointCollector) errCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestPollingDeliversPoints(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"timestamp": 1717243200000, "value": 1.5, "category": "cpu"}]`))
	}))
	defer server.Close()

	collector := &pointCollector{}
	desc := Descriptor{
		ID: "cpu", Kind: KindPolling, Endpoint: server.URL, Interval: 20 * time.Millisecond,
	}.WithDefaults()

	adapter := newPollingAdapter(desc, collector.handler(), slog.Default())
	require.NoError(t, adapter.Start(context.Background()))
	defer func() { _ = adapter.Stop(time.Second) }()

	// First poll fires immediately, then on the interval
	waitFor(t, time.Second, func() bool { return collector.batchCount() >= 2 })

	collector.mu.Lock()
	first := collector.batches[0]
	collector.mu.Unlock()
	require.Len(t, first, 1)
	assert.Equal(t, 1.5, first[0].Value)
	assert.Equal(t, "cpu", first[0].Category)
}

func TestPollingFailureNeverHaltsFuturePolls(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := polls.Add(1)
		if n%2 == 1 {
			// Every other poll fails
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"timestamp": 1717243200000, "value": 2}`))
	}))
	defer server.Close()

	collector := &pointCollector{}
	desc := Descriptor{
		ID: "flaky", Kind: KindPolling, Endpoint: server.URL, Interval: 10 * time.Millisecond,
	}.WithDefaults()

	adapter := newPollingAdapter(desc, collector.handler(), slog.Default())
	require.NoError(t, adapter.Start(context.Background()))
	defer func() { _ = adapter.Stop(time.Second) }()

	// Despite the failures, successful polls keep arriving
	waitFor(t, 2*time.Second, func() bool {
		return collector.batchCount() >= 2 && collector.errCount() >= 2
	})
}

func TestPollingParseFailureReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	collector := &pointCollector{}
	desc := Descriptor{
		ID: "bad", Kind: KindPolling, Endpoint: server.URL, Interval: 10 * time.Millisecond,
	}.WithDefaults()

	adapter := newPollingAdapter(desc, collector.handler(), slog.Default())
	require.NoError(t, adapter.Start(context.Background()))
	defer func() { _ = adapter.Stop(time.Second) }()

	waitFor(t, time.Second, func() bool { return collector.errCount() >= 1 })
	assert.Zero(t, collector.batchCount())
}

func TestPollingStopHaltsPolls(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		polls.Add(1)
		_, _ = w.Write([]byte(`{"timestamp": 1, "value": 1}`))
	}))
	defer server.Close()

	collector := &pointCollector{}
	desc := Descriptor{
		ID: "s", Kind: KindPolling, Endpoint: server.URL, Interval: 10 * time.Millisecond,
	}.WithDefaults()

	adapter := newPollingAdapter(desc, collector.handler(), slog.Default())
	require.NoError(t, adapter.Start(context.Background()))

	waitFor(t, time.Second, func() bool { return polls.Load() >= 1 })
	require.NoError(t, adapter.Stop(time.Second))

	settled := polls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, polls.Load())
}

func TestPollingDoubleStartRejected(t *testing.T) {
	desc := Descriptor{
		ID: "s", Kind: KindPolling, Endpoint: "http://localhost:1", Interval: time.Hour,
	}.WithDefaults()

	adapter := newPollingAdapter(desc, Handler{}, slog.Default())
	require.NoError(t, adapter.Start(context.Background()))
	defer func() { _ = adapter.Stop(time.Second) }()

	assert.Error(t, adapter.Start(context.Background()))
}

func TestPollingHealth(t *testing.T) {
	desc := Descriptor{
		ID: "s", Kind: KindPolling, Endpoint: "http://localhost:1", Interval: time.Hour,
	}.WithDefaults()

	adapter := newPollingAdapter(desc, Handler{}, slog.Default())
	assert.False(t, adapter.Health().Healthy)

	require.NoError(t, adapter.Start(context.Background()))
	assert.True(t, adapter.Health().Healthy)

	require.NoError(t, adapter.Stop(time.Second))
	assert.False(t, adapter.Health().Healthy)
}
