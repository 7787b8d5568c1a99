package linking

import "time"

// ChartState is the coordination state of one registered chart: what it has
// selected, what is highlighted in it, the filters applied to it, and its
// zoom and brush ranges. Fields are set by the chart's own events and by
// incoming link propagation.
type ChartState struct {
	WidgetID    string    `json:"widget_id"`
	Selected    Payload   `json:"selected,omitempty"`
	Highlighted Payload   `json:"highlighted,omitempty"`
	Filters     Payload   `json:"filters,omitempty"`
	ZoomRange   Payload   `json:"zoom_range,omitempty"`
	BrushRange  Payload   `json:"brush_range,omitempty"`
	LastEvent   EventType `json:"last_event,omitempty"`
	LastUpdate  time.Time `json:"last_update"`
}

// clone returns a copy safe to hand out: payload maps are copied so callers
// cannot mutate stored state.
func (s ChartState) clone() ChartState {
	s.Selected = s.Selected.Clone()
	s.Highlighted = s.Highlighted.Clone()
	s.Filters = s.Filters.Clone()
	s.ZoomRange = s.ZoomRange.Clone()
	s.BrushRange = s.BrushRange.Clone()
	return s
}

// applyEvent updates the state for an event emitted by this chart itself.
// Hover is transient and stores nothing.
func (s *ChartState) applyEvent(event EventType, payload Payload) {
	switch event {
	case EventSelection:
		s.Selected = payload
	case EventHighlight:
		s.Highlighted = payload
	case EventFilter:
		s.Filters = payload
	case EventZoom, EventZoomRange:
		s.ZoomRange = payload
	case EventBrush:
		s.BrushRange = payload
	case EventHover:
		// transient, no stored state
	}
	s.LastEvent = event
	s.LastUpdate = time.Now()
}

// applyLink updates the state for a payload propagated into this chart; the
// link kind, not the originating event type, selects the field.
func (s *ChartState) applyLink(kind LinkKind, event EventType, payload Payload) {
	switch kind {
	case LinkFilter:
		s.Filters = payload
	case LinkHighlight:
		s.Highlighted = payload
	case LinkZoom:
		s.ZoomRange = payload
	case LinkSelection:
		s.Selected = payload
	case LinkBrush:
		s.BrushRange = payload
	}
	s.LastEvent = event
	s.LastUpdate = time.Now()
}
