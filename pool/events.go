package pool

import (
	"time"
)

type EventKind string

const (
	RemoteControlRegistered   EventKind = "registered"
	RemoteControlUnregistered EventKind = "unregistered"
	RemoteControlEvicted      EventKind = "evicted"
	ReservationGranted        EventKind = "reservation_granted"
	ReservationFailed         EventKind = "reservation_failed"
	SessionStarted            EventKind = "session_started"
	SessionEnded              EventKind = "session_ended"
	SessionReclaimed          EventKind = "session_reclaimed"
)

// Event describes a state change of the global pool. Fields that do not apply
// to a kind are left empty.
type Event struct {
	Kind          EventKind     `json:"kind"`
	Time          time.Time     `json:"time"`
	Environment   string        `json:"environment,omitempty"`
	RemoteControl string        `json:"remoteControl,omitempty"`
	SessionID     string        `json:"sessionId,omitempty"`
	Wait          time.Duration `json:"wait,omitempty"` // time spent in Reserve
}

// EventSink receives pool events. Record is called synchronously, often while
// a per-remote-control lock is held, so implementations must not call back
// into the pool.
type EventSink interface {
	Record(e Event)
}

// EventSinks fans an event out to every sink in order.
type EventSinks []EventSink

func (sinks EventSinks) Record(e Event) {
	for _, sink := range sinks {
		sink.Record(e)
	}
}

type EventSinkFunc func(e Event)

func (f EventSinkFunc) Record(e Event) {
	f(e)
}

// Clock is the time source for idle accounting and event timestamps.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
