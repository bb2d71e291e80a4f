// Package publish forwards scan events to message brokers so that other
// services (dashboards, notification workers) can follow scans without
// polling the HTTP API.
package publish

import (
	"encoding/json"
	"time"

	"github.com/Krimson/strokeguard/internal/scan"
)

type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventAbort    EventType = "abort"
)

// Event is the broker payload.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id"`
	State     scan.State     `json:"state"`
	Progress  *scan.Progress `json:"progress,omitempty"`
	Outcome   *scan.Outcome  `json:"outcome,omitempty"`
	At        time.Time      `json:"at"`
}

func progressEvent(sessionID string, p scan.Progress) Event {
	return Event{Type: EventProgress, SessionID: sessionID, State: p.State, Progress: &p, At: p.At}
}

func outcomeEvent(t EventType, sessionID string, o scan.Outcome) Event {
	return Event{Type: t, SessionID: sessionID, State: o.State, Outcome: &o, At: o.FinishedAt}
}

func (e Event) encode() ([]byte, error) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return json.Marshal(e)
}
