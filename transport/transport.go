// Package transport provides the live-feed adapters for data sources.
//
// An Adapter owns one live connection to a data source endpoint and emits
// parsed data points through a Handler. Four kinds are supported: websocket,
// polling (HTTP GET on an interval), sse (server-push) and nats (subject
// subscription). Transport failures are reported through the handler and
// never propagate across the dispatch boundary; a failing source must not
// disrupt other sources.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/dashhub/errors"
	"github.com/c360/dashhub/pkg/retry"
	"github.com/c360/dashhub/point"
)

// Kind identifies how a data source delivers its points.
type Kind string

const (
	// KindWebSocket connects to a websocket endpoint and reads frames.
	KindWebSocket Kind = "websocket"
	// KindPolling issues HTTP GETs on a fixed interval.
	KindPolling Kind = "polling"
	// KindSSE consumes server-sent events; reconnection is delegated to
	// the SSE client's native retry behavior.
	KindSSE Kind = "sse"
	// KindNATS subscribes to a NATS subject; reconnection is delegated to
	// the NATS client's native retry behavior.
	KindNATS Kind = "nats"
)

// Valid reports whether the kind is one of the supported transports.
func (k Kind) Valid() bool {
	switch k {
	case KindWebSocket, KindPolling, KindSSE, KindNATS:
		return true
	default:
		return false
	}
}

// Defaults applied by Descriptor.WithDefaults.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxPoints    = 1000
)

// Descriptor describes a data source: its identity, transport, endpoint and
// retention bound. Descriptors are registered with the hub, which owns the
// adapter and buffer lifecycle.
type Descriptor struct {
	ID       string `json:"id"       yaml:"id"`
	Name     string `json:"name"     yaml:"name"`
	Kind     Kind   `json:"kind"     yaml:"kind"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Subject is the NATS subject to subscribe to (nats kind only).
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`

	// Interval is the poll interval (polling kind only).
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`

	// MaxPoints bounds the source's retention window.
	MaxPoints int `json:"max_points,omitempty" yaml:"max_points,omitempty"`

	// Compression enables per-message compression where the transport
	// supports it (websocket).
	Compression bool `json:"compression,omitempty" yaml:"compression,omitempty"`

	// Reconnect bounds connection retries for the websocket transport.
	Reconnect retry.Config `json:"reconnect,omitempty" yaml:"reconnect,omitempty"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (d Descriptor) WithDefaults() Descriptor {
	if d.Interval <= 0 {
		d.Interval = DefaultPollInterval
	}
	if d.MaxPoints <= 0 {
		d.MaxPoints = DefaultMaxPoints
	}
	if d.Reconnect.InitialDelay == 0 && d.Reconnect.MaxDelay == 0 {
		d.Reconnect = retry.Reconnect()
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	return d
}

// Validate checks the descriptor for configuration errors.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Descriptor", "Validate", "id is required")
	}
	if !d.Kind.Valid() {
		return errors.WrapInvalid(errors.ErrUnknownTransport, "Descriptor", "Validate",
			fmt.Sprintf("kind %q", d.Kind))
	}
	if d.Endpoint == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Descriptor", "Validate", "endpoint is required")
	}
	if d.Kind == KindNATS && d.Subject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Descriptor", "Validate",
			"subject is required for nats transport")
	}
	if d.Interval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Descriptor", "Validate",
			"interval cannot be negative")
	}
	if d.MaxPoints < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Descriptor", "Validate",
			"max_points cannot be negative")
	}
	return nil
}

// Handler receives the output of an adapter. OnData is invoked with parsed
// point batches in arrival order; OnError receives classified transport
// errors. Either callback may be nil.
type Handler struct {
	OnData  func(points []point.Point)
	OnError func(err error)
}

func (h Handler) data(points []point.Point) {
	if h.OnData != nil && len(points) > 0 {
		h.OnData(points)
	}
}

func (h Handler) error(err error) {
	if h.OnError != nil && err != nil {
		h.OnError(err)
	}
}

// HealthStatus reports an adapter's current condition.
type HealthStatus struct {
	Healthy    bool
	LastCheck  time.Time
	ErrorCount int
	LastError  string
	Uptime     time.Duration
}

// Adapter owns one live connection for a data source.
type Adapter interface {
	Kind() Kind
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
	Health() HealthStatus
}

// New creates the adapter for the descriptor's transport kind. The
// descriptor is expected to be validated and defaulted by the caller.
func New(desc Descriptor, handler Handler, logger *slog.Logger) (Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source", desc.ID, "transport", string(desc.Kind))

	switch desc.Kind {
	case KindWebSocket:
		return newWebSocketAdapter(desc, handler, logger), nil
	case KindPolling:
		return newPollingAdapter(desc, handler, logger), nil
	case KindSSE:
		return newSSEAdapter(desc, handler, logger), nil
	case KindNATS:
		return newNATSAdapter(desc, handler, logger), nil
	default:
		return nil, errors.WrapInvalid(errors.ErrUnknownTransport, "transport", "New",
			fmt.Sprintf("kind %q", desc.Kind))
	}
}
