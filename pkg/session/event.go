package session

import (
	"encoding/json"
	"time"

	"github.com/dualive/capture/pkg/media"
)

type EventType string

const (
	Started      EventType = "started"
	StartFailed  EventType = "start_failed"
	Ended        EventType = "stopped"
	SourceFailed EventType = "source_failed"
	Degraded     EventType = "degraded"
	Recovered    EventType = "recovered"
)

// Event is a session lifecycle or health change.
// Kind is set for the source and lane events only.
type Event struct {
	Session string
	Time    time.Time
	Type    EventType
	Kind    media.Kind
	State   State
	Err     error
}

func (e Event) hasKind() bool {
	return e.Type == SourceFailed || e.Type == Degraded || e.Type == Recovered
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := struct {
		Session string    `json:"session"`
		Time    time.Time `json:"time"`
		Type    EventType `json:"type"`
		Kind    string    `json:"kind,omitempty"`
		State   string    `json:"state"`
		Err     string    `json:"error,omitempty"`
	}{
		Session: e.Session,
		Time:    e.Time,
		Type:    e.Type,
		State:   e.State.String(),
	}
	if e.hasKind() {
		out.Kind = e.Kind.String()
	}
	if e.Err != nil {
		out.Err = e.Err.Error()
	}
	return json.Marshal(out)
}
