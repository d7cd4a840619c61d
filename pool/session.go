package pool

import (
	"github.com/rcgrid/rcgrid/grid"
	"github.com/rcgrid/rcgrid/remotecontrol"

	"sync/atomic"
	"time"
)

// Session binds a session id, as issued by a remote control, to the remote
// control that holds it.
type Session struct {
	ID            string
	RemoteControl *remotecontrol.Proxy

	// Dialect the session was opened with; the remote control is told to tear
	// the session down in the same dialect.
	Dialect grid.Dialect

	// unix milliseconds
	lastActiveAt atomic.Int64
}

func newSession(id string, rc *remotecontrol.Proxy, dialect grid.Dialect, now time.Time) *Session {
	s := &Session{
		ID:            id,
		RemoteControl: rc,
		Dialect:       dialect,
	}
	s.touch(now)
	return s
}

func (s *Session) touch(now time.Time) {
	s.lastActiveAt.Store(now.UnixMilli())
}

func (s *Session) LastActiveAt() time.Time {
	return time.UnixMilli(s.lastActiveAt.Load())
}

// InactiveFor reports whether more than maxIdle elapsed since the last activity.
// Exactly maxIdle is not enough.
func (s *Session) InactiveFor(now time.Time, maxIdle time.Duration) bool {
	return now.UnixMilli()-s.lastActiveAt.Load() > maxIdle.Milliseconds()
}
