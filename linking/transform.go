package linking

// Transform returns a new payload with keys renamed according to the
// mapping. Keys without a mapping entry pass through unchanged. The mapping
// is applied recursively to nested objects and to each item of nested lists,
// so a selection payload carrying an item list remaps every item. The input
// payload is never mutated.
func Transform(payload Payload, mapping map[string]string) Payload {
	if payload == nil {
		return nil
	}

	out := make(Payload, len(payload))
	for key, value := range payload {
		if mapped, ok := mapping[key]; ok {
			key = mapped
		}
		out[key] = transformValue(value, mapping)
	}
	return out
}

func transformValue(value any, mapping map[string]string) any {
	switch v := value.(type) {
	case Payload:
		return Transform(v, mapping)
	case map[string]any:
		return map[string]any(Transform(Payload(v), mapping))
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = transformValue(item, mapping)
		}
		return items
	case []map[string]any:
		items := make([]map[string]any, len(v))
		for i, item := range v {
			items[i] = map[string]any(Transform(Payload(item), mapping))
		}
		return items
	default:
		return value
	}
}

// invertMapping swaps keys and values, used for the reverse direction of
// bidirectional links.
func invertMapping(mapping map[string]string) map[string]string {
	if mapping == nil {
		return nil
	}
	out := make(map[string]string, len(mapping))
	for from, to := range mapping {
		out[to] = from
	}
	return out
}
