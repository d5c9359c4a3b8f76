package kafka

import (
	"encoding/json"
	"fmt"
)

// Event is the routing part of a snake_case event envelope.
type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// DecodeEvent decodes value as an envelope and, if it carries eventType,
// its payload into P. ok is false for any other event type.
func DecodeEvent[P any](value []byte, eventType string) (ev Event, p P, ok bool, err error) {
	if err = json.Unmarshal(value, &ev); err != nil {
		return ev, p, false, fmt.Errorf("decode envelope: %w", err)
	}
	if ev.EventType != eventType {
		return ev, p, false, nil
	}
	if err = json.Unmarshal(ev.Payload, &p); err != nil {
		return ev, p, false, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return ev, p, true, nil
}
