package pool

import (
	"github.com/rcgrid/rcgrid/logging"
	"github.com/rcgrid/rcgrid/remotecontrol"

	"github.com/go-logr/logr"
	deadlock "github.com/sasha-s/go-deadlock"

	"context"
	"time"
)

// WaitForever disables the reservation timeout.
const WaitForever time.Duration = -1

// Provisioner tracks the remote controls registered for one environment and
// grants exclusive access to one of them at a time.
//
// A caller blocks in Reserve while every remote control is reserved. Release
// and Add wake all waiters, and each waiter rescans the list, so there is no
// FIFO guarantee between them.
type Provisioner struct {
	environment string
	log         logr.Logger

	mu             deadlock.Mutex
	remoteControls []*remotecontrol.Proxy

	// closed and replaced on every release/add; waiters select on it
	available chan struct{}

	// remote controls being health checked by a Reserve, skipped by other searches
	checking map[*remotecontrol.Proxy]bool

	// called with mu held for remote controls torn down because they were unreliable
	onEvict func(rc *remotecontrol.Proxy)
}

func NewProvisioner(environment string, logger logr.Logger) *Provisioner {
	return &Provisioner{
		environment: environment,
		log:         logger.WithName("provisioner").WithValues("environment", environment),
		available:   make(chan struct{}),
		checking:    make(map[*remotecontrol.Proxy]bool),
	}
}

func (p *Provisioner) Environment() string {
	return p.environment
}

// Reserve returns an available, healthy remote control, waiting up to maxWait
// (or forever with WaitForever) for one to be released. It returns nil right
// away when no remote control is registered at all, and nil on timeout or when
// ctx is done.
//
// Remote controls found unreliable on the way are torn down and the search
// goes on, so a pool where every remote control died is emptied by a single
// call. That is intended: the pool heals itself instead of handing out dead
// workers. The health check runs without the lock; the candidate is kept out
// of other searches meanwhile.
func (p *Provisioner) Reserve(ctx context.Context, maxWait time.Duration) *remotecontrol.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	var timeout <-chan time.Time
	if maxWait >= 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		if len(p.remoteControls) == 0 {
			return nil
		}
		rc := p.nextAvailable()
		for rc == nil {
			p.log.V(logging.VERBOSE).Info("waiting for a remote control...")
			if !p.wait(ctx, timeout) {
				p.log.Info("timed out waiting for a remote control")
				return nil
			}
			if len(p.remoteControls) == 0 {
				return nil
			}
			rc = p.nextAvailable()
		}
		if ctx.Err() != nil {
			return nil
		}

		p.checking[rc] = true
		p.mu.Unlock()
		unreliable := rc.Unreliable(ctx)
		p.mu.Lock()
		delete(p.checking, rc)

		if ctx.Err() != nil {
			// rc is still a candidate for everyone else
			p.signal()
			return nil
		}
		if i := p.indexOf(rc.Key()); i < 0 || p.remoteControls[i] != rc {
			// removed or replaced while being checked
			continue
		}
		if unreliable {
			p.log.Info("reserved remote control is detected as unreliable, unregistering it and reserving a new one", "remoteControl", rc.Key().String())
			p.tearDown(rc)
			if p.onEvict != nil {
				p.onEvict(rc)
			}
			// waiters held back by rc rescan, and give up if nothing is left
			p.signal()
			continue
		}

		rc.Reserve()
		p.log.Info("reserved remote control", "remoteControl", rc.Key().String())
		return rc
	}
}

// wait releases the lock until a remote control is made available, returning
// false on timeout or cancellation. Caller must have the lock.
func (p *Provisioner) wait(ctx context.Context, timeout <-chan time.Time) bool {
	available := p.available
	p.mu.Unlock()
	defer p.mu.Lock()
	select {
	case <-available:
		return true
	case <-timeout:
		return false
	case <-ctx.Done():
		return false
	}
}

// signal wakes every waiter. Caller must have the lock.
func (p *Provisioner) signal() {
	close(p.available)
	p.available = make(chan struct{})
}

func (p *Provisioner) Release(rc *remotecontrol.Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rc.Release()
	p.log.Info("released remote control", "remoteControl", rc.Key().String())
	p.signal()
}

// Add appends rc, tearing down a previous registration of the same identity first.
func (p *Provisioner) Add(rc *remotecontrol.Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.indexOf(rc.Key()) >= 0 {
		p.tearDown(rc)
	}
	p.remoteControls = append(p.remoteControls, rc)
	p.signal()
}

// Remove drops the remote control with rc's identity and reports whether it was there.
func (p *Provisioner) Remove(rc *remotecontrol.Proxy) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tearDown(rc)
}

// Lookup returns the registered remote control with the given identity.
func (p *Provisioner) Lookup(key remotecontrol.Key) *remotecontrol.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := p.indexOf(key); i >= 0 {
		return p.remoteControls[i]
	}
	return nil
}

func (p *Provisioner) Contains(rc *remotecontrol.Proxy) bool {
	return p.Lookup(rc.Key()) != nil
}

func (p *Provisioner) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.remoteControls)
}

// caller must have the lock
func (p *Provisioner) tearDown(rc *remotecontrol.Proxy) bool {
	i := p.indexOf(rc.Key())
	if i < 0 {
		return false
	}
	n := copy(p.remoteControls[i:], p.remoteControls[i+1:])
	p.remoteControls[i+n] = nil
	p.remoteControls = p.remoteControls[:i+n]
	return true
}

// caller must have the lock
func (p *Provisioner) indexOf(key remotecontrol.Key) int {
	for i, rc := range p.remoteControls {
		if rc.Key() == key {
			return i
		}
	}
	return -1
}

// caller must have the lock
func (p *Provisioner) nextAvailable() *remotecontrol.Proxy {
	for _, rc := range p.remoteControls {
		if rc.CanAcceptSession() && !p.checking[rc] {
			return rc
		}
	}
	return nil
}

func (p *Provisioner) snapshot(filter func(rc *remotecontrol.Proxy) bool) []*remotecontrol.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()
	var remoteControls []*remotecontrol.Proxy
	for _, rc := range p.remoteControls {
		if filter == nil || filter(rc) {
			remoteControls = append(remoteControls, rc)
		}
	}
	return remoteControls
}

func (p *Provisioner) AvailableRemoteControls() []*remotecontrol.Proxy {
	return p.snapshot(func(rc *remotecontrol.Proxy) bool {
		return rc.CanAcceptSession()
	})
}

func (p *Provisioner) ReservedRemoteControls() []*remotecontrol.Proxy {
	return p.snapshot(func(rc *remotecontrol.Proxy) bool {
		return rc.Reserved()
	})
}

func (p *Provisioner) AllRemoteControls() []*remotecontrol.Proxy {
	return p.snapshot(nil)
}
