package linking

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/dashhub/errors"
	"github.com/c360/dashhub/metric"
)

// ChartListener observes state changes of one chart. It receives the event
// type that caused the change and a copy of the resulting state.
type ChartListener func(event EventType, state ChartState)

// Linker is the link dispatcher: it stores chart states, registered links
// and chart listeners, and propagates emitted events across links.
type Linker struct {
	logger  *slog.Logger
	metrics *linkMetrics

	mu            sync.RWMutex
	charts        map[string]*ChartState
	links         map[string]*LinkDefinition
	listeners     map[string]map[string]ChartListener // widget ID -> listener ID -> fn
	listenerIndex map[string]string                   // listener ID -> widget ID

	eventsProcessed uint64
}

// Option configures a Linker.
type Option func(*Linker)

// WithLogger sets the linker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Linker) { l.logger = logger }
}

// WithMetrics registers the linker's metrics with the given registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(l *Linker) { l.metrics = newLinkMetrics(registry) }
}

// New creates a link dispatcher.
func New(opts ...Option) (*Linker, error) {
	l := &Linker{
		charts:        make(map[string]*ChartState),
		links:         make(map[string]*LinkDefinition),
		listeners:     make(map[string]map[string]ChartListener),
		listenerIndex: make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "linking")

	if l.metrics != nil {
		if err := l.metrics.register(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// RegisterChart creates coordination state for a widget. Registering an
// already-registered widget preserves its existing state.
func (l *Linker) RegisterChart(widgetID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.charts[widgetID]; exists {
		return
	}
	l.charts[widgetID] = &ChartState{WidgetID: widgetID}
	l.metrics.setCharts(len(l.charts))
}

// UnregisterChart removes a widget's state and its listeners. Links
// referencing the widget stay registered and become silent no-ops until the
// widget returns.
func (l *Linker) UnregisterChart(widgetID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.charts, widgetID)
	for listenerID := range l.listeners[widgetID] {
		delete(l.listenerIndex, listenerID)
	}
	delete(l.listeners, widgetID)
	l.metrics.setCharts(len(l.charts))
	l.metrics.setListeners(len(l.listenerIndex))
}

// ChartState returns a copy of a widget's state.
func (l *Linker) ChartState(widgetID string) (ChartState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	state, ok := l.charts[widgetID]
	if !ok {
		return ChartState{}, false
	}
	return state.clone(), true
}

// RegisterLink validates and stores a link. Widgets named by the link do not
// need to be registered yet; mount order is not guaranteed. An empty ID gets
// a generated one, visible afterwards through LinksForChart.
func (l *Linker) RegisterLink(def LinkDefinition) error {
	if !def.Kind.Valid() {
		return errors.WrapInvalid(errors.ErrUnknownLinkKind, "linking", "RegisterLink",
			fmt.Sprintf("kind %q", def.Kind))
	}
	if def.SourceWidget == "" || def.TargetWidget == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "linking", "RegisterLink",
			"source and target widgets are required")
	}
	if def.SourceWidget == def.TargetWidget {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "linking", "RegisterLink",
			"a widget cannot link to itself")
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.links[def.ID]; exists {
		return errors.WrapInvalid(errors.ErrLinkExists, "linking", "RegisterLink",
			fmt.Sprintf("link %q", def.ID))
	}
	l.links[def.ID] = &def
	l.metrics.setLinks(len(l.links))
	l.logger.Info("link registered", "link", def.ID, "kind", string(def.Kind),
		"source", def.SourceWidget, "target", def.TargetWidget)
	return nil
}

// UnregisterLink removes a link.
func (l *Linker) UnregisterLink(linkID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.links[linkID]; !ok {
		return errors.WrapInvalid(errors.ErrLinkNotFound, "linking", "UnregisterLink",
			fmt.Sprintf("link %q", linkID))
	}
	delete(l.links, linkID)
	l.metrics.setLinks(len(l.links))
	return nil
}

// SetLinkEnabled toggles a link without removing it. Disabled links are
// inert during dispatch.
func (l *Linker) SetLinkEnabled(linkID string, enabled bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	link, ok := l.links[linkID]
	if !ok {
		return errors.WrapInvalid(errors.ErrLinkNotFound, "linking", "SetLinkEnabled",
			fmt.Sprintf("link %q", linkID))
	}
	link.Enabled = enabled
	return nil
}

// LinksForChart returns copies of all links that name the widget as source
// or target.
func (l *Linker) LinksForChart(widgetID string) []LinkDefinition {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []LinkDefinition
	for _, link := range l.links {
		if link.SourceWidget == widgetID || link.TargetWidget == widgetID {
			out = append(out, *link)
		}
	}
	return out
}

// AddChartListener attaches a listener to a widget's state changes and
// returns the listener ID.
func (l *Linker) AddChartListener(widgetID string, fn ChartListener) (string, error) {
	if fn == nil {
		return "", errors.WrapInvalid(errors.ErrInvalidConfig, "linking", "AddChartListener", "nil listener")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := uuid.NewString()
	if l.listeners[widgetID] == nil {
		l.listeners[widgetID] = make(map[string]ChartListener)
	}
	l.listeners[widgetID][id] = fn
	l.listenerIndex[id] = widgetID
	l.metrics.setListeners(len(l.listenerIndex))
	return id, nil
}

// RemoveChartListener detaches a listener.
func (l *Linker) RemoveChartListener(listenerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	widgetID, ok := l.listenerIndex[listenerID]
	if !ok {
		return errors.WrapInvalid(errors.ErrSubscriptionNotFound, "linking", "RemoveChartListener",
			fmt.Sprintf("listener %q", listenerID))
	}
	delete(l.listenerIndex, listenerID)
	delete(l.listeners[widgetID], listenerID)
	l.metrics.setListeners(len(l.listenerIndex))
	return nil
}

// notification carries one state change out of the locked section so
// listeners run without holding the linker's lock.
type notification struct {
	event     EventType
	state     ChartState
	listeners []ChartListener
}

// EmitEvent processes an interaction event from a widget: the widget's own
// state is updated (when it is registered), then the event is propagated
// across every enabled link that reacts to it. Propagation into an
// unregistered target is a silent no-op. Listener callbacks are invoked
// after state changes commit, from a stable snapshot, with panics recovered
// individually.
func (l *Linker) EmitEvent(widgetID string, event EventType, payload Payload) error {
	if !event.Valid() {
		return errors.WrapInvalid(errors.ErrUnknownEventType, "linking", "EmitEvent",
			fmt.Sprintf("type %q", event))
	}

	l.mu.Lock()

	var notes []notification

	// The emitting widget's own state. An unregistered emitter still
	// propagates; only its own bookkeeping is skipped.
	if state, ok := l.charts[widgetID]; ok {
		state.applyEvent(event, payload.Clone())
		notes = append(notes, l.noteLocked(event, state))
	}

	for _, link := range l.links {
		outgoing := make([]LinkDefinition, 0, 2)
		if link.SourceWidget == widgetID {
			outgoing = append(outgoing, *link)
		}
		if link.Bidirectional && link.TargetWidget == widgetID {
			outgoing = append(outgoing, link.mirrored())
		}

		for _, def := range outgoing {
			if !def.Enabled || !def.Kind.ReactsTo(event) {
				continue
			}
			if def.SourceWidget == def.TargetWidget {
				continue
			}
			target, ok := l.charts[def.TargetWidget]
			if !ok {
				continue
			}

			target.applyLink(def.Kind, event, Transform(payload, def.FieldMapping))
			l.metrics.propagated(def.Kind)
			notes = append(notes, l.noteLocked(event, target))
		}
	}

	l.eventsProcessed++
	l.metrics.processed(event)
	l.mu.Unlock()

	for _, note := range notes {
		for _, fn := range note.listeners {
			l.invoke(fn, note)
		}
	}
	return nil
}

// noteLocked snapshots a chart's state and listeners; callers hold l.mu.
func (l *Linker) noteLocked(event EventType, state *ChartState) notification {
	note := notification{event: event, state: state.clone()}
	for _, fn := range l.listeners[state.WidgetID] {
		note.listeners = append(note.listeners, fn)
	}
	return note
}

func (l *Linker) invoke(fn ChartListener, note notification) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("chart listener panicked",
				"widget", note.state.WidgetID, "event", string(note.event), "panic", r)
		}
	}()
	fn(note.event, note.state)
}

// Stats summarizes the linker's registries.
type Stats struct {
	Charts          int    `json:"charts"`
	Links           int    `json:"links"`
	EnabledLinks    int    `json:"enabled_links"`
	Listeners       int    `json:"listeners"`
	EventsProcessed uint64 `json:"events_processed"`
}

// Stats reports registry sizes and the total number of processed events.
func (l *Linker) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	enabled := 0
	for _, link := range l.links {
		if link.Enabled {
			enabled++
		}
	}
	return Stats{
		Charts:          len(l.charts),
		Links:           len(l.links),
		EnabledLinks:    enabled,
		Listeners:       len(l.listenerIndex),
		EventsProcessed: l.eventsProcessed,
	}
}

// linkMetrics holds the linker's Prometheus instrumentation; nil is a valid
// no-op receiver.
type linkMetrics struct {
	registry *metric.Registry

	events       *prometheus.CounterVec
	propagations *prometheus.CounterVec
	charts       prometheus.Gauge
	links        prometheus.Gauge
	listeners    prometheus.Gauge
}

func newLinkMetrics(registry *metric.Registry) *linkMetrics {
	return &linkMetrics{
		registry: registry,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashhub_link_events_total",
			Help: "Interaction events processed by the link dispatcher",
		}, []string{"type"}),
		propagations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashhub_link_propagations_total",
			Help: "Event propagations applied to link targets",
		}, []string{"kind"}),
		charts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashhub_link_charts",
			Help: "Registered charts",
		}),
		links: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashhub_links",
			Help: "Registered links",
		}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashhub_link_listeners",
			Help: "Attached chart listeners",
		}),
	}
}

func (m *linkMetrics) register() error {
	if err := m.registry.RegisterCounterVec("linking", "events", m.events); err != nil {
		return err
	}
	if err := m.registry.RegisterCounterVec("linking", "propagations", m.propagations); err != nil {
		return err
	}
	if err := m.registry.RegisterGauge("linking", "charts", m.charts); err != nil {
		return err
	}
	if err := m.registry.RegisterGauge("linking", "links", m.links); err != nil {
		return err
	}
	return m.registry.RegisterGauge("linking", "listeners", m.listeners)
}

func (m *linkMetrics) processed(event EventType) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(event)).Inc()
}

func (m *linkMetrics) propagated(kind LinkKind) {
	if m == nil {
		return
	}
	m.propagations.WithLabelValues(string(kind)).Inc()
}

func (m *linkMetrics) setCharts(n int) {
	if m == nil {
		return
	}
	m.charts.Set(float64(n))
}

func (m *linkMetrics) setLinks(n int) {
	if m == nil {
		return
	}
	m.links.Set(float64(n))
}

func (m *linkMetrics) setListeners(n int) {
	if m == nil {
		return
	}
	m.listeners.Set(float64(n))
}
