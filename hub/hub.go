// Package hub is the data distribution core: it owns the data source
// registry, one bounded retention window per source, and the subscription
// dispatcher that fans incoming points out to consumers.
//
// Every source gets a transport adapter (owned and started by the hub), a
// retention window bounded by the descriptor's MaxPoints, and an independent
// set of subscriptions. A failing source never disrupts other sources or
// their subscribers.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/dashhub/errors"
	"github.com/c360/dashhub/metric"
	"github.com/c360/dashhub/pkg/window"
	"github.com/c360/dashhub/point"
	"github.com/c360/dashhub/transport"
)

// DefaultStopTimeout bounds how long an adapter gets to shut down when its
// source is unregistered or the hub stops.
const DefaultStopTimeout = 5 * time.Second

// AdapterFactory builds the transport adapter for a source descriptor.
// Tests swap this out to drive the hub without live connections.
type AdapterFactory func(desc transport.Descriptor, handler transport.Handler, logger *slog.Logger) (transport.Adapter, error)

// source bundles everything the hub owns for one registered data source.
type source struct {
	desc    transport.Descriptor
	adapter transport.Adapter
	window  *window.Window[point.Point]
	subs    map[string]*subscription

	// dispatchMu serializes append+dispatch so subscribers observe buffer
	// states in arrival order.
	dispatchMu sync.Mutex
}

// Hub owns data sources, their buffers and their subscriptions.
type Hub struct {
	lifecycleMu sync.Mutex
	started     atomic.Bool
	runCtx      context.Context
	cancel      context.CancelFunc

	logger      *slog.Logger
	metrics     *hubMetrics
	factory     AdapterFactory
	stopTimeout time.Duration

	mu       sync.RWMutex
	sources  map[string]*source
	subIndex map[string]string // subscription ID -> source ID
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithMetrics registers the hub's metrics with the given registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(h *Hub) { h.metrics = newHubMetrics(registry) }
}

// WithAdapterFactory overrides how transport adapters are built.
func WithAdapterFactory(factory AdapterFactory) Option {
	return func(h *Hub) { h.factory = factory }
}

// WithStopTimeout bounds per-adapter shutdown time.
func WithStopTimeout(timeout time.Duration) Option {
	return func(h *Hub) { h.stopTimeout = timeout }
}

// New creates a hub. Sources can be registered before or after Start.
func New(opts ...Option) (*Hub, error) {
	h := &Hub{
		factory:     transport.New,
		stopTimeout: DefaultStopTimeout,
		sources:     make(map[string]*source),
		subIndex:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "hub")

	if h.metrics != nil {
		if err := h.metrics.register(); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Start begins data flow: adapters for already-registered sources are
// started, and sources registered afterwards start immediately.
func (h *Hub) Start(ctx context.Context) error {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	if h.started.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "hub", "Start", "start")
	}

	h.runCtx, h.cancel = context.WithCancel(ctx)
	h.started.Store(true)

	h.mu.RLock()
	pending := make([]*source, 0, len(h.sources))
	for _, src := range h.sources {
		pending = append(pending, src)
	}
	h.mu.RUnlock()

	// A source that fails to start must not block the others.
	for _, src := range pending {
		if err := src.adapter.Start(h.runCtx); err != nil {
			h.logger.Error("adapter start failed", "source", src.desc.ID, "error", err)
		}
	}

	h.logger.Info("started", "sources", len(pending))
	return nil
}

// Stop halts all adapters and stops delivery. Registered sources and their
// buffered data survive a Stop; a later Start resumes them.
func (h *Hub) Stop(timeout time.Duration) error {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	if !h.started.Load() {
		return nil
	}
	h.started.Store(false)
	h.cancel()

	if timeout <= 0 {
		timeout = h.stopTimeout
	}

	h.mu.RLock()
	running := make([]*source, 0, len(h.sources))
	for _, src := range h.sources {
		running = append(running, src)
	}
	h.mu.RUnlock()

	for _, src := range running {
		if err := src.adapter.Stop(timeout); err != nil {
			h.logger.Warn("adapter stop failed", "source", src.desc.ID, "error", err)
		}
	}

	h.logger.Info("stopped")
	return nil
}

// RegisterSource validates and registers a data source, creating its
// retention window and transport adapter. If the hub is running the adapter
// starts immediately.
func (h *Hub) RegisterSource(ctx context.Context, desc transport.Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	desc = desc.WithDefaults()

	src := &source{
		desc:   desc,
		window: window.New[point.Point](desc.MaxPoints),
		subs:   make(map[string]*subscription),
	}

	adapter, err := h.factory(desc, transport.Handler{
		OnData: func(points []point.Point) { h.ingest(desc.ID, points) },
		OnError: func(err error) {
			h.logger.Warn("transport error", "source", desc.ID, "error", err)
			h.metrics.transportError(desc.ID)
		},
	}, h.logger)
	if err != nil {
		return err
	}
	src.adapter = adapter

	h.mu.Lock()
	if _, exists := h.sources[desc.ID]; exists {
		h.mu.Unlock()
		return errors.WrapInvalid(errors.ErrSourceExists, "hub", "RegisterSource",
			fmt.Sprintf("source %q", desc.ID))
	}
	h.sources[desc.ID] = src
	total := len(h.sources)
	h.mu.Unlock()

	h.metrics.setSources(total)
	h.logger.Info("source registered", "source", desc.ID, "transport", string(desc.Kind))

	if h.started.Load() {
		if ctx == nil {
			ctx = h.runCtx
		}
		if err := adapter.Start(ctx); err != nil {
			h.logger.Error("adapter start failed", "source", desc.ID, "error", err)
		}
	}
	return nil
}

// UnregisterSource removes a source, stops its adapter and drops its
// subscriptions. The source is removed from the registry first so in-flight
// transport results are discarded rather than buffered.
func (h *Hub) UnregisterSource(sourceID string) error {
	h.mu.Lock()
	src, ok := h.sources[sourceID]
	if !ok {
		h.mu.Unlock()
		return errors.WrapInvalid(errors.ErrSourceNotFound, "hub", "UnregisterSource",
			fmt.Sprintf("source %q", sourceID))
	}
	delete(h.sources, sourceID)
	for subID := range src.subs {
		delete(h.subIndex, subID)
	}
	dropped := len(src.subs)
	totalSources := len(h.sources)
	totalSubs := len(h.subIndex)
	h.mu.Unlock()

	if err := src.adapter.Stop(h.stopTimeout); err != nil {
		h.logger.Warn("adapter stop failed", "source", sourceID, "error", err)
	}
	src.window.Clear()

	h.metrics.setSources(totalSources)
	h.metrics.setSubscriptions(totalSubs)
	h.logger.Info("source unregistered", "source", sourceID, "subscriptions_dropped", dropped)
	return nil
}

// Sources returns the descriptors of all registered sources.
func (h *Hub) Sources() []transport.Descriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]transport.Descriptor, 0, len(h.sources))
	for _, src := range h.sources {
		out = append(out, src.desc)
	}
	return out
}

// CurrentData returns a copy of the source's current buffer, oldest first.
func (h *Hub) CurrentData(sourceID string) ([]point.Point, error) {
	h.mu.RLock()
	src, ok := h.sources[sourceID]
	h.mu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrSourceNotFound, "hub", "CurrentData",
			fmt.Sprintf("source %q", sourceID))
	}
	return src.window.Snapshot(), nil
}

// SourceStats describes one source's buffer and subscription state.
type SourceStats struct {
	SourceID        string    `json:"source_id"`
	BufferSize      int       `json:"buffer_size"`
	MaxBufferSize   int       `json:"max_buffer_size"`
	LastUpdate      time.Time `json:"last_update"`
	UpdateCount     uint64    `json:"update_count"`
	Evictions       uint64    `json:"evictions"`
	SubscriberCount int       `json:"subscriber_count"`
}

// SourceStats reports buffer and subscription statistics for a source.
func (h *Hub) SourceStats(sourceID string) (SourceStats, error) {
	h.mu.RLock()
	src, ok := h.sources[sourceID]
	var subscribers int
	if ok {
		subscribers = len(src.subs)
	}
	h.mu.RUnlock()
	if !ok {
		return SourceStats{}, errors.WrapInvalid(errors.ErrSourceNotFound, "hub", "SourceStats",
			fmt.Sprintf("source %q", sourceID))
	}

	return SourceStats{
		SourceID:        sourceID,
		BufferSize:      src.window.Len(),
		MaxBufferSize:   src.window.Cap(),
		LastUpdate:      src.window.LastUpdate(),
		UpdateCount:     src.window.UpdateCount(),
		Evictions:       src.window.Evictions(),
		SubscriberCount: subscribers,
	}, nil
}

// SourceHealth reports the transport health of a source.
func (h *Hub) SourceHealth(sourceID string) (transport.HealthStatus, error) {
	h.mu.RLock()
	src, ok := h.sources[sourceID]
	h.mu.RUnlock()
	if !ok {
		return transport.HealthStatus{}, errors.WrapInvalid(errors.ErrSourceNotFound, "hub", "SourceHealth",
			fmt.Sprintf("source %q", sourceID))
	}
	return src.adapter.Health(), nil
}

// Healthy reports whether the hub is running and every source transport is
// healthy.
func (h *Hub) Healthy() bool {
	if !h.started.Load() {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, src := range h.sources {
		if !src.adapter.Health().Healthy {
			return false
		}
	}
	return true
}

// ingest appends a transport batch to the source's window and dispatches the
// resulting buffer state to its subscribers. Batches for sources that have
// been unregistered are discarded.
func (h *Hub) ingest(sourceID string, points []point.Point) {
	h.mu.RLock()
	src, ok := h.sources[sourceID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	src.dispatchMu.Lock()
	defer src.dispatchMu.Unlock()

	// Re-check membership: the source may have been unregistered while this
	// batch was in flight.
	h.mu.RLock()
	_, ok = h.sources[sourceID]
	subs := make([]*subscription, 0, len(src.subs))
	for _, sub := range src.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()
	if !ok {
		return
	}

	evicted := src.window.Append(points...)
	h.metrics.ingested(sourceID, len(points), evicted)

	if len(subs) == 0 {
		return
	}
	snapshot := src.window.Snapshot()
	for _, sub := range subs {
		h.deliver(sub, snapshot)
	}
}
