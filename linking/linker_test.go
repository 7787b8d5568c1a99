package linking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/dashhub/errors"
	"github.com/c360/dashhub/metric"
)

func newTestLinker(t *testing.T, opts ...Option) *Linker {
	t.Helper()
	l, err := New(opts...)
	require.NoError(t, err)
	return l
}

func filterLink(id, source, target string) LinkDefinition {
	return LinkDefinition{
		ID:           id,
		SourceWidget: source,
		TargetWidget: target,
		Kind:         LinkFilter,
		Enabled:      true,
		FieldMapping: map[string]string{"region": "zone"},
	}
}

func TestEmitUpdatesOwnState(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")

	require.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "west"}))

	state, ok := l.ChartState("bar")
	require.True(t, ok)
	assert.Equal(t, Payload{"region": "west"}, state.Selected)
	assert.Equal(t, EventSelection, state.LastEvent)
	assert.False(t, state.LastUpdate.IsZero())
}

func TestHoverStoresNoState(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")

	require.NoError(t, l.EmitEvent("bar", EventHover, Payload{"region": "west"}))

	state, _ := l.ChartState("bar")
	assert.Nil(t, state.Selected)
	assert.Nil(t, state.Highlighted)
	assert.Equal(t, EventHover, state.LastEvent)
}

func TestUnknownEventTypeRejected(t *testing.T) {
	l := newTestLinker(t)
	err := l.EmitEvent("bar", EventType("teleport"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownEventType)
}

func TestFilterLinkPropagatesSelection(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")
	l.RegisterChart("line")
	require.NoError(t, l.RegisterLink(filterLink("l1", "bar", "line")))

	require.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "west"}))

	target, _ := l.ChartState("line")
	assert.Equal(t, Payload{"zone": "west"}, target.Filters, "field mapping applied to the target")

	source, _ := l.ChartState("bar")
	assert.Equal(t, Payload{"region": "west"}, source.Selected, "source keeps its own field names")
}

func TestLinkKindCompatibility(t *testing.T) {
	tests := []struct {
		kind   LinkKind
		reacts []EventType
	}{
		{LinkFilter, []EventType{EventSelection, EventFilter}},
		{LinkHighlight, []EventType{EventHover, EventSelection}},
		{LinkZoom, []EventType{EventZoom, EventZoomRange}},
		{LinkSelection, []EventType{EventSelection}},
		{LinkBrush, []EventType{EventBrush}},
	}

	all := []EventType{EventSelection, EventHighlight, EventHover, EventFilter,
		EventZoom, EventZoomRange, EventBrush}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			want := make(map[EventType]bool)
			for _, e := range tt.reacts {
				want[e] = true
			}
			for _, e := range all {
				assert.Equal(t, want[e], tt.kind.ReactsTo(e), "event %s", e)
			}
		})
	}
}

func TestIncompatibleEventDoesNotPropagate(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")
	l.RegisterChart("line")
	require.NoError(t, l.RegisterLink(filterLink("l1", "bar", "line")))

	// A filter link ignores brush events.
	require.NoError(t, l.EmitEvent("bar", EventBrush, Payload{"region": "west"}))

	target, _ := l.ChartState("line")
	assert.Nil(t, target.Filters)
}

func TestBidirectionalLinkInvertsMapping(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")
	l.RegisterChart("line")
	require.NoError(t, l.RegisterLink(LinkDefinition{
		ID:            "l1",
		SourceWidget:  "bar",
		TargetWidget:  "line",
		Kind:          LinkSelection,
		Bidirectional: true,
		Enabled:       true,
		FieldMapping:  map[string]string{"region": "zone"},
	}))

	// Forward: bar -> line uses the mapping as declared.
	require.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "west"}))
	line, _ := l.ChartState("line")
	assert.Equal(t, Payload{"zone": "west"}, line.Selected)

	// Reverse: line -> bar applies the inverted mapping.
	require.NoError(t, l.EmitEvent("line", EventSelection, Payload{"zone": "east"}))
	bar, _ := l.ChartState("bar")
	assert.Equal(t, Payload{"region": "east"}, bar.Selected)
}

func TestUnidirectionalLinkHasNoReversePath(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")
	l.RegisterChart("line")
	require.NoError(t, l.RegisterLink(filterLink("l1", "bar", "line")))

	require.NoError(t, l.EmitEvent("line", EventSelection, Payload{"zone": "east"}))

	bar, _ := l.ChartState("bar")
	assert.Nil(t, bar.Filters)
}

func TestDisabledLinkIsInert(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")
	l.RegisterChart("line")
	require.NoError(t, l.RegisterLink(filterLink("l1", "bar", "line")))

	require.NoError(t, l.SetLinkEnabled("l1", false))
	require.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "west"}))
	target, _ := l.ChartState("line")
	assert.Nil(t, target.Filters)

	require.NoError(t, l.SetLinkEnabled("l1", true))
	require.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "east"}))
	target, _ = l.ChartState("line")
	assert.Equal(t, Payload{"zone": "east"}, target.Filters)

	assert.ErrorIs(t, l.SetLinkEnabled("nope", true), errors.ErrLinkNotFound)
}

func TestMissingTargetIsSilentNoOp(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")
	require.NoError(t, l.RegisterLink(filterLink("l1", "bar", "ghost")))

	assert.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "west"}))
}

func TestUnregisteredEmitterStillPropagates(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("line")
	require.NoError(t, l.RegisterLink(filterLink("l1", "bar", "line")))

	require.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "west"}))

	target, _ := l.ChartState("line")
	assert.Equal(t, Payload{"zone": "west"}, target.Filters)

	_, ok := l.ChartState("bar")
	assert.False(t, ok)
}

func TestRegisterLinkValidation(t *testing.T) {
	l := newTestLinker(t)

	err := l.RegisterLink(LinkDefinition{SourceWidget: "a", TargetWidget: "b", Kind: "wormhole"})
	assert.ErrorIs(t, err, errors.ErrUnknownLinkKind)

	err = l.RegisterLink(LinkDefinition{SourceWidget: "a", Kind: LinkFilter})
	require.Error(t, err)

	err = l.RegisterLink(LinkDefinition{SourceWidget: "a", TargetWidget: "a", Kind: LinkFilter})
	require.Error(t, err, "self-links are rejected")

	require.NoError(t, l.RegisterLink(filterLink("dup", "a", "b")))
	assert.ErrorIs(t, l.RegisterLink(filterLink("dup", "a", "b")), errors.ErrLinkExists)
}

func TestUnregisterLink(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")
	l.RegisterChart("line")
	require.NoError(t, l.RegisterLink(filterLink("l1", "bar", "line")))

	require.NoError(t, l.UnregisterLink("l1"))
	require.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "west"}))

	target, _ := l.ChartState("line")
	assert.Nil(t, target.Filters)

	assert.ErrorIs(t, l.UnregisterLink("l1"), errors.ErrLinkNotFound)
}

func TestLinksForChart(t *testing.T) {
	l := newTestLinker(t)
	require.NoError(t, l.RegisterLink(filterLink("l1", "bar", "line")))
	require.NoError(t, l.RegisterLink(filterLink("l2", "line", "pie")))
	require.NoError(t, l.RegisterLink(filterLink("l3", "pie", "map")))

	ids := make(map[string]bool)
	for _, link := range l.LinksForChart("line") {
		ids[link.ID] = true
	}
	assert.Equal(t, map[string]bool{"l1": true, "l2": true}, ids)
	assert.Empty(t, l.LinksForChart("ghost"))
}

func TestChartListeners(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")
	l.RegisterChart("line")
	require.NoError(t, l.RegisterLink(filterLink("l1", "bar", "line")))

	var events []EventType
	var states []ChartState
	id, err := l.AddChartListener("line", func(event EventType, state ChartState) {
		events = append(events, event)
		states = append(states, state)
	})
	require.NoError(t, err)

	require.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "west"}))
	require.Len(t, events, 1)
	assert.Equal(t, EventSelection, events[0])
	assert.Equal(t, Payload{"zone": "west"}, states[0].Filters)

	// The listener gets its own copy of the state.
	states[0].Filters["zone"] = "tampered"
	current, _ := l.ChartState("line")
	assert.Equal(t, Payload{"zone": "west"}, current.Filters)

	require.NoError(t, l.RemoveChartListener(id))
	require.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "east"}))
	assert.Len(t, events, 1)

	require.Error(t, l.RemoveChartListener(id))
}

func TestPanickingListenerDoesNotDisruptOthers(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")

	_, err := l.AddChartListener("bar", func(EventType, ChartState) { panic("render crashed") })
	require.NoError(t, err)

	calls := 0
	_, err = l.AddChartListener("bar", func(EventType, ChartState) { calls++ })
	require.NoError(t, err)

	require.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "west"}))
	assert.Equal(t, 1, calls)
}

func TestUnregisterChartClearsStateAndListeners(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")

	id, err := l.AddChartListener("bar", func(EventType, ChartState) {})
	require.NoError(t, err)

	l.UnregisterChart("bar")

	_, ok := l.ChartState("bar")
	assert.False(t, ok)
	assert.Error(t, l.RemoveChartListener(id))

	// Re-registration starts from clean state.
	l.RegisterChart("bar")
	state, ok := l.ChartState("bar")
	require.True(t, ok)
	assert.Nil(t, state.Selected)
}

func TestStats(t *testing.T) {
	l := newTestLinker(t)
	l.RegisterChart("bar")
	l.RegisterChart("line")
	require.NoError(t, l.RegisterLink(filterLink("l1", "bar", "line")))
	require.NoError(t, l.RegisterLink(filterLink("l2", "line", "bar")))
	require.NoError(t, l.SetLinkEnabled("l2", false))

	_, err := l.AddChartListener("line", func(EventType, ChartState) {})
	require.NoError(t, err)

	require.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "west"}))
	require.NoError(t, l.EmitEvent("bar", EventHover, nil))

	stats := l.Stats()
	assert.Equal(t, 2, stats.Charts)
	assert.Equal(t, 2, stats.Links)
	assert.Equal(t, 1, stats.EnabledLinks)
	assert.Equal(t, 1, stats.Listeners)
	assert.Equal(t, uint64(2), stats.EventsProcessed)
}

func TestLinkerWithMetrics(t *testing.T) {
	registry := metric.NewRegistry()
	l := newTestLinker(t, WithMetrics(registry))
	l.RegisterChart("bar")
	l.RegisterChart("line")
	require.NoError(t, l.RegisterLink(filterLink("l1", "bar", "line")))
	require.NoError(t, l.EmitEvent("bar", EventSelection, Payload{"region": "west"}))

	families, err := registry.Prometheus().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	assert.True(t, names["dashhub_link_events_total"])
	assert.True(t, names["dashhub_link_propagations_total"])
	assert.True(t, names["dashhub_link_charts"])
	assert.True(t, names["dashhub_links"])
}
