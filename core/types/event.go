package types

import "github.com/google/uuid"

// Event represents a structured lifecycle notification emitted by the escrow
// engine for off-chain observers. Attributes carry the payload as flat
// string pairs so any sink can forward them without schema knowledge.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// NewEvent assigns a fresh identifier to an event payload.
func NewEvent(eventType string, attrs map[string]string) *Event {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Attributes: attrs,
	}
}
