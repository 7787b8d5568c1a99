// Package dashhub is the real-time data core for dashboards: it moves live
// data from heterogeneous feeds to chart widgets and coordinates interaction
// state between them.
//
// # Layout
//
// Data distribution:
//   - transport: per-kind feed adapters (websocket, polling, sse, nats) with
//     bounded reconnect backoff
//   - point: the data point type and wire payload parsing
//   - hub: source registry, bounded per-source retention windows, and the
//     subscription dispatcher with per-consumer filter and transform
//
// Widget coordination:
//   - linking: chart state store, link registry, and the dispatcher that
//     propagates interaction events across links with field remapping
//
// Supporting packages:
//   - errors: classified errors (transient / invalid / fatal)
//   - metric: namespaced Prometheus registration
//   - config: YAML service configuration
//   - pkg/retry, pkg/window, pkg/timestamp: reusable utilities
//
// The cmd/dashhub binary wires configured sources, charts and links together
// and serves /metrics and /healthz.
package dashhub
