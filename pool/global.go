package pool

import (
	"github.com/rcgrid/rcgrid/grid"
	"github.com/rcgrid/rcgrid/logging"
	"github.com/rcgrid/rcgrid/remotecontrol"

	"github.com/go-logr/logr"
	deadlock "github.com/sasha-s/go-deadlock"

	"context"
	"sort"
	"sync"
	"time"
)

type Options struct {
	// MaxWait bounds how long Reserve blocks; WaitForever disables the bound.
	MaxWait time.Duration
	Clock   Clock
	Events  EventSink
}

// GlobalPool is the registry of every remote control and every active session
// in the grid. It keeps one Provisioner per environment.
//
// Registration, unregistration and session association for one remote
// control identity (host, port) are serialized by a per-identity lock, so an
// unregister can never interleave with a session being associated to the
// same remote control.
type GlobalPool struct {
	maxWait time.Duration
	clock   Clock
	events  EventSink
	log     logr.Logger

	// environment name -> *Provisioner, never removed
	provisioners sync.Map
	// session id -> *Session
	sessions sync.Map
	// remotecontrol.Key -> *deadlock.Mutex, never removed
	locks sync.Map
}

func NewGlobalPool(logger logr.Logger, options Options) *GlobalPool {
	if options.Clock == nil {
		options.Clock = SystemClock{}
	}
	if options.Events == nil {
		options.Events = EventSinks(nil)
	}
	return &GlobalPool{
		maxWait: options.MaxWait,
		clock:   options.Clock,
		events:  options.Events,
		log:     logger.WithName("pool"),
	}
}

func (p *GlobalPool) record(e Event) {
	e.Time = p.clock.Now()
	p.events.Record(e)
}

func (p *GlobalPool) lock(key remotecontrol.Key) func() {
	v, _ := p.locks.LoadOrStore(key, &deadlock.Mutex{})
	mu := v.(*deadlock.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (p *GlobalPool) lookupProvisioner(environment string) *Provisioner {
	v, ok := p.provisioners.Load(environment)
	if !ok {
		return nil
	}
	return v.(*Provisioner)
}

func (p *GlobalPool) provisionerFor(environment string) *Provisioner {
	if prov := p.lookupProvisioner(environment); prov != nil {
		return prov
	}
	prov := NewProvisioner(environment, p.log)
	prov.onEvict = p.evicted
	v, loaded := p.provisioners.LoadOrStore(environment, prov)
	if !loaded {
		p.log.V(logging.VERBOSE).Info("created provisioner", "environment", environment)
	}
	return v.(*Provisioner)
}

// sorted by environment name
func (p *GlobalPool) allProvisioners() []*Provisioner {
	var provisioners []*Provisioner
	p.provisioners.Range(func(_, v any) bool {
		provisioners = append(provisioners, v.(*Provisioner))
		return true
	})
	sort.Slice(provisioners, func(i, j int) bool {
		return provisioners[i].Environment() < provisioners[j].Environment()
	})
	return provisioners
}

// Register adds rc to the provisioner of its environment. A remote control
// already registered with the same identity is replaced, in whichever
// environment it was registered, and the sessions it held are dropped.
func (p *GlobalPool) Register(rc *remotecontrol.Proxy) {
	unlock := p.lock(rc.Key())
	defer unlock()

	for _, prov := range p.allProvisioners() {
		if prov.Environment() == rc.Environment() {
			continue
		}
		if prov.Remove(rc) {
			p.log.Info("remote control moved to another environment", "remoteControl", rc.Key().String(), "from", prov.Environment(), "to", rc.Environment())
		}
	}
	if n := p.purgeSessions(rc.Key(), rc); n > 0 {
		p.log.Info("dropped sessions of replaced remote control", "remoteControl", rc.Key().String(), "sessions", n)
	}
	p.provisionerFor(rc.Environment()).Add(rc)
	p.log.Info("registered remote control", "remoteControl", rc.Key().String(), "environment", rc.Environment())
	p.record(Event{Kind: RemoteControlRegistered, Environment: rc.Environment(), RemoteControl: rc.Key().String()})
}

// Unregister removes the remote control with rc's identity from rc's
// environment along with its sessions. It reports whether anything was removed.
func (p *GlobalPool) Unregister(rc *remotecontrol.Proxy) bool {
	return p.unregister(rc, RemoteControlUnregistered)
}

func (p *GlobalPool) unregister(rc *remotecontrol.Proxy, kind EventKind) bool {
	unlock := p.lock(rc.Key())
	defer unlock()

	prov := p.lookupProvisioner(rc.Environment())
	if prov == nil || !prov.Remove(rc) {
		return false
	}
	n := p.purgeSessions(rc.Key(), nil)
	p.log.Info("unregistered remote control", "remoteControl", rc.Key().String(), "environment", rc.Environment(), "sessions", n)
	p.record(Event{Kind: kind, Environment: rc.Environment(), RemoteControl: rc.Key().String()})
	return true
}

// evicted is called by a provisioner that tore down an unreliable remote
// control during Reserve. The provisioner lock is held.
func (p *GlobalPool) evicted(rc *remotecontrol.Proxy) {
	p.purgeSessions(rc.Key(), nil)
	p.record(Event{Kind: RemoteControlEvicted, Environment: rc.Environment(), RemoteControl: rc.Key().String()})
}

// purgeSessions forgets every session held by a remote control with the
// given identity, except those held by keep.
func (p *GlobalPool) purgeSessions(key remotecontrol.Key, keep *remotecontrol.Proxy) int {
	var n int
	p.sessions.Range(func(k, v any) bool {
		s := v.(*Session)
		if s.RemoteControl.Key() != key || s.RemoteControl == keep {
			return true
		}
		if _, ok := p.sessions.LoadAndDelete(k); ok {
			n++
		}
		return true
	})
	return n
}

// IsRegistered reports whether rc itself, not just a remote control with the
// same identity, is currently registered.
func (p *GlobalPool) IsRegistered(rc *remotecontrol.Proxy) bool {
	prov := p.lookupProvisioner(rc.Environment())
	return prov != nil && prov.Lookup(rc.Key()) == rc
}

// Lookup finds the registered remote control with the given identity in any environment.
func (p *GlobalPool) Lookup(key remotecontrol.Key) *remotecontrol.Proxy {
	for _, prov := range p.allProvisioners() {
		if rc := prov.Lookup(key); rc != nil {
			return rc
		}
	}
	return nil
}

// Reserve returns a healthy reserved remote control for the environment, or
// nil if none became available within the configured wait.
// It fails with NoSuchCapability if no remote control ever registered for
// the environment.
func (p *GlobalPool) Reserve(ctx context.Context, environment string) (*remotecontrol.Proxy, error) {
	prov := p.lookupProvisioner(environment)
	if prov == nil {
		return nil, grid.Errorf(grid.NoSuchCapability, "no remote control was ever registered for environment '%s'", environment)
	}
	start := time.Now()
	rc := prov.Reserve(ctx, p.maxWait)
	e := Event{Kind: ReservationGranted, Environment: environment, Wait: time.Since(start)}
	if rc == nil {
		e.Kind = ReservationFailed
	} else {
		e.RemoteControl = rc.Key().String()
	}
	p.record(e)
	return rc, nil
}

// Release hands rc back to its provisioner and wakes waiters.
func (p *GlobalPool) Release(rc *remotecontrol.Proxy) {
	prov := p.lookupProvisioner(rc.Environment())
	if prov == nil {
		rc.Release()
		return
	}
	prov.Release(rc)
}

// AssociateWithSession records that rc holds session id. It fails with
// DuplicateSession if the id is already taken and with InvariantViolation if
// rc is no longer registered.
func (p *GlobalPool) AssociateWithSession(rc *remotecontrol.Proxy, id string, dialect grid.Dialect) error {
	unlock := p.lock(rc.Key())
	defer unlock()

	if _, ok := p.sessions.Load(id); ok {
		return grid.Errorf(grid.DuplicateSession, "session id is already registered: %s", id)
	}
	if !p.IsRegistered(rc) {
		return grid.Errorf(grid.InvariantViolation, "trying to associate a session %s with a remote control that is no longer registered: %s", id, rc)
	}
	s := newSession(id, rc, dialect, p.clock.Now())
	if _, loaded := p.sessions.LoadOrStore(id, s); loaded {
		return grid.Errorf(grid.DuplicateSession, "session id is already registered: %s", id)
	}
	p.log.Info("associated session with remote control", "session", id, "remoteControl", rc.Key().String())
	p.record(Event{Kind: SessionStarted, Environment: rc.Environment(), RemoteControl: rc.Key().String(), SessionID: id})
	return nil
}

func (p *GlobalPool) Session(id string) (*Session, bool) {
	v, ok := p.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Retrieve returns the remote control holding session id.
func (p *GlobalPool) Retrieve(id string) (*remotecontrol.Proxy, error) {
	s, ok := p.Session(id)
	if !ok {
		return nil, grid.Errorf(grid.NoSuchSession, "no remote control is holding session %s", id)
	}
	return s.RemoteControl, nil
}

// UpdateSessionLastActiveAt marks session id as active now.
func (p *GlobalPool) UpdateSessionLastActiveAt(id string) error {
	s, ok := p.Session(id)
	if !ok {
		return grid.Errorf(grid.NoSuchSession, "cannot update activity of unknown session %s", id)
	}
	s.touch(p.clock.Now())
	return nil
}

// ReleaseForSession forgets session id, tells the remote control the session
// is over and releases it. Failing to reach the remote control is only logged.
func (p *GlobalPool) ReleaseForSession(ctx context.Context, id string) error {
	_, err := p.endSession(ctx, id, SessionEnded)
	return err
}

// endSession claims the session record so that only one caller ever releases
// its remote control, even when the reaper and a client race.
func (p *GlobalPool) endSession(ctx context.Context, id string, kind EventKind) (*Session, error) {
	v, ok := p.sessions.LoadAndDelete(id)
	if !ok {
		return nil, grid.Errorf(grid.NoSuchSession, "no remote control is holding session %s", id)
	}
	s := v.(*Session)
	s.RemoteControl.TerminateSession(ctx, s.ID, s.Dialect)
	p.Release(s.RemoteControl)
	p.record(Event{Kind: kind, Environment: s.RemoteControl.Environment(), RemoteControl: s.RemoteControl.Key().String(), SessionID: id})
	return s, nil
}

// RecycleIdleSessions terminates and releases every session inactive for
// more than maxIdle. It returns the number of sessions reclaimed.
func (p *GlobalPool) RecycleIdleSessions(ctx context.Context, maxIdle time.Duration) int {
	now := p.clock.Now()
	var n int
	for _, s := range p.Sessions() {
		if !s.InactiveFor(now, maxIdle) {
			continue
		}
		p.log.Info("timing out idle session", "session", s.ID, "remoteControl", s.RemoteControl.Key().String(), "lastActiveAt", s.LastActiveAt())
		if _, err := p.endSession(ctx, s.ID, SessionReclaimed); err != nil {
			// ended concurrently
			continue
		}
		n++
	}
	return n
}

// EvictUnresponsiveWorkers unregisters every remote control that fails its
// heartbeat. It returns the number of remote controls evicted.
func (p *GlobalPool) EvictUnresponsiveWorkers(ctx context.Context) int {
	var n int
	for _, rc := range p.AllRegisteredRemoteControls() {
		if ctx.Err() != nil {
			break
		}
		unreliable := rc.Unreliable(ctx)
		if ctx.Err() != nil {
			break
		}
		if !unreliable {
			continue
		}
		p.log.Info("unregistering unreliable remote control", "remoteControl", rc.Key().String())
		if p.unregister(rc, RemoteControlEvicted) {
			n++
		}
	}
	return n
}

func (p *GlobalPool) collect(get func(prov *Provisioner) []*remotecontrol.Proxy) []*remotecontrol.Proxy {
	var remoteControls []*remotecontrol.Proxy
	for _, prov := range p.allProvisioners() {
		remoteControls = append(remoteControls, get(prov)...)
	}
	return remoteControls
}

func (p *GlobalPool) AvailableRemoteControls() []*remotecontrol.Proxy {
	return p.collect((*Provisioner).AvailableRemoteControls)
}

func (p *GlobalPool) ReservedRemoteControls() []*remotecontrol.Proxy {
	return p.collect((*Provisioner).ReservedRemoteControls)
}

func (p *GlobalPool) AllRegisteredRemoteControls() []*remotecontrol.Proxy {
	return p.collect((*Provisioner).AllRemoteControls)
}

// Sessions returns a snapshot of active sessions sorted by id.
func (p *GlobalPool) Sessions() []*Session {
	var sessions []*Session
	p.sessions.Range(func(_, v any) bool {
		sessions = append(sessions, v.(*Session))
		return true
	})
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID < sessions[j].ID
	})
	return sessions
}

// Environments lists the environments that ever had a remote control registered.
func (p *GlobalPool) Environments() []string {
	var environments []string
	for _, prov := range p.allProvisioners() {
		environments = append(environments, prov.Environment())
	}
	return environments
}
