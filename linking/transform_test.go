package linking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransformRenamesMappedKeys(t *testing.T) {
	payload := Payload{"region": "west", "count": 3}
	mapping := map[string]string{"region": "zone"}

	got := Transform(payload, mapping)

	assert.Equal(t, Payload{"zone": "west", "count": 3}, got)
}

func TestTransformIsPure(t *testing.T) {
	payload := Payload{"a": 1}
	got := Transform(payload, map[string]string{"a": "b"})

	assert.Equal(t, Payload{"a": 1}, payload, "input payload must not be mutated")
	got["c"] = 2
	assert.NotContains(t, payload, "c")
}

func TestTransformRemapsNestedItems(t *testing.T) {
	payload := Payload{
		"items": []any{
			map[string]any{"region": "west", "value": 1},
			map[string]any{"region": "east", "value": 2},
		},
		"meta": map[string]any{"region": "all"},
	}

	got := Transform(payload, map[string]string{"region": "zone"})

	items, ok := got["items"].([]any)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"zone": "west", "value": 1}, items[0])
	assert.Equal(t, map[string]any{"zone": "east", "value": 2}, items[1])
	assert.Equal(t, map[string]any{"zone": "all"}, got["meta"])
}

func TestTransformEmptyMapping(t *testing.T) {
	payload := Payload{"a": 1}
	got := Transform(payload, nil)
	assert.Equal(t, payload, got)

	assert.Nil(t, Transform(nil, map[string]string{"a": "b"}))
}

func TestInvertMapping(t *testing.T) {
	mapping := map[string]string{"a": "b", "x": "y"}
	inverted := invertMapping(mapping)
	assert.Equal(t, map[string]string{"b": "a", "y": "x"}, inverted)
	assert.Nil(t, invertMapping(nil))
}
