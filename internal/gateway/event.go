package gateway

import (
	"encoding/json"
	"errors"
)

// Reserved event names. Connect and disconnect are raised by the gateway
// itself; session is the one event the server sends to clients.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventSession    = "session"
)

// Event is the envelope for every message on the socket channel.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SessionPayload is the data of the session event.
type SessionPayload struct {
	SID string `json:"sid"`
}

var errMissingEventName = errors.New("event name is missing")

// EncodeEvent encodes an event with its payload
func EncodeEvent(name string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Event{Name: name, Data: raw})
}

// DecodeEvent decodes an event envelope. The payload is left raw for the
// handler to interpret.
func DecodeEvent(b []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, err
	}
	if ev.Name == "" {
		return nil, errMissingEventName
	}
	return &ev, nil
}

func isReserved(name string) bool {
	switch name {
	case EventConnect, EventDisconnect, EventSession:
		return true
	}
	return false
}
