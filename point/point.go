// Package point defines the data point type carried by live feeds and the
// wire payload parsing shared by all transport adapters.
//
// The wire contract for a data source is a single JSON object
// {timestamp, value, category?, label?, metadata?} or a JSON array of such
// objects, regardless of transport.
package point

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/dashhub/errors"
	"github.com/c360/dashhub/pkg/timestamp"
)

// Point is a single timestamped value from a data source. Points are
// immutable once appended to a buffer.
type Point struct {
	// Timestamp is Unix milliseconds (UTC).
	Timestamp int64 `json:"timestamp"`

	Value    float64        `json:"value"`
	Category string         `json:"category,omitempty"`
	Label    string         `json:"label,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Time returns the point's timestamp as a time.Time.
func (p Point) Time() time.Time {
	return timestamp.FromUnixMs(p.Timestamp)
}

// wirePoint tolerates the timestamp formats seen in the wild: Unix
// milliseconds, Unix seconds, or RFC3339 strings.
type wirePoint struct {
	Timestamp any            `json:"timestamp"`
	Value     *float64       `json:"value"`
	Category  string         `json:"category"`
	Label     string         `json:"label"`
	Metadata  map[string]any `json:"metadata"`
}

func (w wirePoint) toPoint() (Point, error) {
	if w.Value == nil {
		return Point{}, errors.WrapInvalid(errors.ErrParsingFailed, "point", "toPoint", "missing value field")
	}

	ts := timestamp.Parse(w.Timestamp)
	if ts == 0 {
		// Stamp arrival time when the source omits the timestamp.
		ts = timestamp.Now()
	}
	if err := timestamp.Validate(ts); err != nil {
		return Point{}, errors.WrapInvalid(err, "point", "toPoint", "validate timestamp")
	}

	return Point{
		Timestamp: ts,
		Value:     *w.Value,
		Category:  w.Category,
		Label:     w.Label,
		Metadata:  w.Metadata,
	}, nil
}

// Parse decodes a wire payload into points. Array payloads become a batch,
// scalar payloads a single-element slice. Returns a classified invalid
// error on malformed input; a successfully parsed payload never yields an
// empty non-nil batch unless the array itself was empty.
func Parse(data []byte) ([]Point, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "point", "Parse", "empty payload")
	}

	if trimmed[0] == '[' {
		var wire []wirePoint
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return nil, errors.WrapInvalid(err, "point", "Parse", "unmarshal array payload")
		}

		points := make([]Point, 0, len(wire))
		for i, w := range wire {
			p, err := w.toPoint()
			if err != nil {
				return nil, errors.WrapInvalid(err, "point", "Parse", fmt.Sprintf("element %d", i))
			}
			points = append(points, p)
		}
		return points, nil
	}

	var w wirePoint
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return nil, errors.WrapInvalid(err, "point", "Parse", "unmarshal object payload")
	}

	p, err := w.toPoint()
	if err != nil {
		return nil, err
	}
	return []Point{p}, nil
}
