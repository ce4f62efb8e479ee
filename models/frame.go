package models

import (
	"strings"
	"time"
)

// EventType classifies a server-sent event by its name.
type EventType string

const (
	EventOdds          EventType = "odds"
	EventLockedOdds    EventType = "locked-odds"
	EventFixtureStatus EventType = "fixture-status"
	EventOther         EventType = "other"
)

// ParseEventType maps an event name to its type.
func ParseEventType(name string) EventType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "odds":
		return EventOdds
	case "locked-odds":
		return EventLockedOdds
	case "fixture-status":
		return EventFixtureStatus
	default:
		return EventOther
	}
}

// Decodable reports whether frames of this type carry odds for the store.
func (t EventType) Decodable() bool {
	return t == EventOdds || t == EventLockedOdds
}

// Status returns the record status implied by an odds event.
func (t EventType) Status() Status {
	if t == EventLockedOdds {
		return StatusLocked
	}
	return StatusActive
}

// Frame is one complete server-sent event.
type Frame struct {
	Type      EventType
	Name      string
	Fragments []string
}

// Payload joins the data fragments with newlines.
func (f Frame) Payload() string {
	return strings.Join(f.Fragments, "\n")
}

// StatusEvent is an informational frame that does not touch the store.
type StatusEvent struct {
	SessionID  string
	Name       string
	Payload    string
	ReceivedAt time.Time
}
