package hub

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/c360/dashhub/errors"
	"github.com/c360/dashhub/point"
)

// Callback receives buffer snapshots for a subscription. Each invocation
// carries the source's entire current buffer, filtered and transformed for
// this subscriber, oldest point first.
type Callback func(points []point.Point)

// Filter decides whether a point is visible to a subscription.
type Filter func(p point.Point) bool

// Transform rewrites a point for a subscription. It must not retain the
// input; the point passed in is already this subscriber's copy.
type Transform func(p point.Point) point.Point

type subscription struct {
	id        string
	sourceID  string
	callback  Callback
	filter    Filter
	transform Transform
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscription)

// WithFilter restricts delivery to points the filter accepts. Filtering is
// per-subscription: other subscribers of the same source are unaffected.
func WithFilter(f Filter) SubscribeOption {
	return func(s *subscription) { s.filter = f }
}

// WithTransform rewrites each delivered point. Applied after the filter.
func WithTransform(t Transform) SubscribeOption {
	return func(s *subscription) { s.transform = t }
}

// Subscribe attaches a callback to a source and returns the subscription ID.
// If the source already holds data the callback fires immediately with the
// current buffer.
func (h *Hub) Subscribe(sourceID string, cb Callback, opts ...SubscribeOption) (string, error) {
	if cb == nil {
		return "", errors.WrapInvalid(errors.ErrInvalidConfig, "hub", "Subscribe", "nil callback")
	}

	sub := &subscription{
		id:       uuid.NewString(),
		sourceID: sourceID,
		callback: cb,
	}
	for _, opt := range opts {
		opt(sub)
	}

	h.mu.Lock()
	src, ok := h.sources[sourceID]
	if !ok {
		h.mu.Unlock()
		return "", errors.WrapInvalid(errors.ErrSourceNotFound, "hub", "Subscribe",
			fmt.Sprintf("source %q", sourceID))
	}
	src.subs[sub.id] = sub
	h.subIndex[sub.id] = sourceID
	total := len(h.subIndex)
	h.mu.Unlock()

	h.metrics.setSubscriptions(total)
	h.logger.Debug("subscribed", "source", sourceID, "subscription", sub.id)

	// Late subscribers catch up immediately when data already exists.
	if snapshot := src.window.Snapshot(); len(snapshot) > 0 {
		h.deliver(sub, snapshot)
	}
	return sub.id, nil
}

// Unsubscribe removes a subscription. Delivery stops immediately.
func (h *Hub) Unsubscribe(subID string) error {
	h.mu.Lock()
	sourceID, ok := h.subIndex[subID]
	if !ok {
		h.mu.Unlock()
		return errors.WrapInvalid(errors.ErrSubscriptionNotFound, "hub", "Unsubscribe",
			fmt.Sprintf("subscription %q", subID))
	}
	delete(h.subIndex, subID)
	if src, exists := h.sources[sourceID]; exists {
		delete(src.subs, subID)
	}
	total := len(h.subIndex)
	h.mu.Unlock()

	h.metrics.setSubscriptions(total)
	h.logger.Debug("unsubscribed", "source", sourceID, "subscription", subID)
	return nil
}

// deliver invokes one subscription's callback with its view of a buffer
// snapshot. A panicking callback is recovered so it cannot take down the
// dispatcher or starve other subscribers.
func (h *Hub) deliver(sub *subscription, snapshot []point.Point) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("subscriber callback panicked",
				"source", sub.sourceID, "subscription", sub.id, "panic", r)
		}
	}()

	out := make([]point.Point, 0, len(snapshot))
	for _, p := range snapshot {
		if sub.filter != nil && !sub.filter(p) {
			continue
		}
		if sub.transform != nil {
			p = sub.transform(p)
		}
		out = append(out, p)
	}

	sub.callback(out)
	h.metrics.dispatched(sub.sourceID)
}
