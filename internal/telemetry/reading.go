// Package telemetry decodes accelerometer readings sent by browser clients.
//
// Decoding is tolerant: every axis is optional and anything that is not a
// JSON number becomes zero. Callers get the list of substituted fields back
// so they can log them, but a reading is always produced.
package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// EventAccelData is the socket event that carries one Reading.
const EventAccelData = "accel_data"

// Reading is a single accelerometer sample.
type Reading struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FieldIssue records a field that was replaced by its zero default.
type FieldIssue struct {
	Field  string
	Reason string
}

func (i FieldIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Reason)
}

// PayloadField is the FieldIssue.Field used when the whole payload was unusable.
const PayloadField = "payload"

var axes = [...]string{"x", "y", "z"}

// Decode builds a Reading from an event payload. Missing axes are zero and
// are not reported; present but non-numeric axes are zero and reported.
func Decode(raw json.RawMessage) (Reading, []FieldIssue) {
	var r Reading

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return r, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return r, []FieldIssue{{Field: PayloadField, Reason: "not a JSON object"}}
	}

	var issues []FieldIssue
	values := [3]*float64{&r.X, &r.Y, &r.Z}
	for i, axis := range axes {
		v, ok := obj[axis]
		if !ok {
			continue
		}
		f, reason := decodeNumber(v)
		if reason != "" {
			issues = append(issues, FieldIssue{Field: axis, Reason: reason})
			continue
		}
		*values[i] = f
	}

	return r, issues
}

// decodeNumber accepts only JSON numbers. Quoted numbers are rejected, the
// same way a format verb would reject a string.
func decodeNumber(v json.RawMessage) (float64, string) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return 0, "empty value"
	}
	switch v[0] {
	case 'n':
		return 0, "null"
	case 't', 'f':
		return 0, "boolean"
	case '"':
		return 0, "string"
	case '{':
		return 0, "object"
	case '[':
		return 0, "array"
	}

	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, "out of range"
	}
	return f, ""
}

// String renders the reading with two decimals per axis.
func (r Reading) String() string {
	return fmt.Sprintf("X: %.2f, Y: %.2f, Z: %.2f", r.X, r.Y, r.Z)
}

// Fields returns the axes as two-decimal zap fields.
func (r Reading) Fields() []zap.Field {
	return []zap.Field{
		zap.String("x", formatAxis(r.X)),
		zap.String("y", formatAxis(r.Y)),
		zap.String("z", formatAxis(r.Z)),
	}
}

func formatAxis(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
