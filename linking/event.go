// Package linking implements cross-widget coordination: a chart state store,
// a link registry and the dispatcher that propagates interaction events
// across registered links, remapping payload fields between charts with
// different schemas.
package linking

// EventType is a chart interaction event. The set is closed; unknown types
// are rejected at emit time.
type EventType string

const (
	EventSelection EventType = "selection"
	EventHighlight EventType = "highlight"
	EventHover     EventType = "hover"
	EventFilter    EventType = "filter"
	EventZoom      EventType = "zoom"
	EventZoomRange EventType = "zoom_range"
	EventBrush     EventType = "brush"
)

// Valid reports whether the event type is one of the supported interactions.
func (e EventType) Valid() bool {
	switch e {
	case EventSelection, EventHighlight, EventHover, EventFilter,
		EventZoom, EventZoomRange, EventBrush:
		return true
	default:
		return false
	}
}

// Payload carries the data of an interaction event. Keys are chart field
// names; links remap them between charts via the link's field mapping.
type Payload map[string]any

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// LinkKind determines what a link does to its target chart.
type LinkKind string

const (
	LinkFilter    LinkKind = "filter"
	LinkHighlight LinkKind = "highlight"
	LinkZoom      LinkKind = "zoom"
	LinkSelection LinkKind = "selection"
	LinkBrush     LinkKind = "brush"
)

// Valid reports whether the link kind is supported.
func (k LinkKind) Valid() bool {
	switch k {
	case LinkFilter, LinkHighlight, LinkZoom, LinkSelection, LinkBrush:
		return true
	default:
		return false
	}
}

// ReactsTo reports whether a link of this kind propagates the given event
// type. Filter links react to selections and filters, highlight links to
// hovers and selections, zoom links to both zoom variants; selection and
// brush links only mirror their own event.
func (k LinkKind) ReactsTo(event EventType) bool {
	switch k {
	case LinkFilter:
		return event == EventSelection || event == EventFilter
	case LinkHighlight:
		return event == EventHover || event == EventSelection
	case LinkZoom:
		return event == EventZoom || event == EventZoomRange
	case LinkSelection:
		return event == EventSelection
	case LinkBrush:
		return event == EventBrush
	default:
		return false
	}
}

// LinkDefinition connects a source widget to a target widget. When an event
// the link reacts to is emitted by the source, the payload is remapped
// through FieldMapping and applied to the target's state. Bidirectional
// links also propagate the other way, with the mapping inverted.
type LinkDefinition struct {
	ID            string            `json:"id"             yaml:"id"`
	SourceWidget  string            `json:"source_widget"  yaml:"source_widget"`
	TargetWidget  string            `json:"target_widget"  yaml:"target_widget"`
	Kind          LinkKind          `json:"kind"           yaml:"kind"`
	Bidirectional bool              `json:"bidirectional"  yaml:"bidirectional"`
	Enabled       bool              `json:"enabled"        yaml:"enabled"`
	FieldMapping  map[string]string `json:"field_mapping,omitempty" yaml:"field_mapping,omitempty"`
}

// mirrored returns the reverse direction of a bidirectional link: source and
// target swapped, field mapping inverted.
func (d LinkDefinition) mirrored() LinkDefinition {
	d.SourceWidget, d.TargetWidget = d.TargetWidget, d.SourceWidget
	d.FieldMapping = invertMapping(d.FieldMapping)
	return d
}
