package humidity

import (
	"encoding/json"
	"maps"
	"math"
	"strconv"
	"strings"
)

// Message keys the node reads or writes. Everything else passes through.
const (
	KeyTemperature      = "temperature"
	KeyRelativeHumidity = "relativeHumidity"
	KeyTopic            = "topic"
	KeyDatapoint        = "datapoint"
	KeyPayload          = "payload"
	KeyMsgID            = "_msgid"

	KeyDewPoint         = "dewPoint"
	KeyAbsoluteHumidity = "absoluteHumidity"
)

// Message is a loosely typed flow message, as decoded from JSON.
type Message map[string]any

// Clone returns a shallow copy of m.
func (m Message) Clone() Message {
	out := make(Message, len(m)+2)
	maps.Copy(out, m)
	return out
}

// Text returns the value under key when it is a string.
func (m Message) Text(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// ID returns the host message id, if any.
func (m Message) ID() string {
	s, _ := m.Text(KeyMsgID)
	return s
}

// Number returns the value under key as float64. present is false when the
// key is missing or nil. A present value that is not numeric yields NaN.
func (m Message) Number(key string) (v float64, present bool) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return 0, false
	}
	return toFloat(raw), true
}

// MarshalJSON encodes non-finite numbers as null; encoding/json rejects them.
func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			out[k] = nil
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
