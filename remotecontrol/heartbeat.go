package remotecontrol

import (
	"github.com/rcgrid/rcgrid/logging"

	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HeartbeatTimeout bounds a single heartbeat probe, independently of the
// client timeout used to relay commands.
var HeartbeatTimeout = 5 * time.Second

// Unreliable probes the worker's heartbeat URL. A worker holding a session gets
// up to MaxFailedHeartbeats retries before being declared unreliable; an idle
// worker is declared unreliable on the first failure since losing it is cheap.
//
// When ctx is done the probe says nothing about the worker, so Unreliable
// returns false. Callers must check ctx themselves before acting on the answer.
func (p *Proxy) Unreliable(ctx context.Context) bool {
	for {
		err := p.probe(ctx)
		if err == nil {
			p.resetHeartbeats()
			return false
		}
		if ctx.Err() != nil {
			p.log.V(logging.VERBOSE).Info("heartbeat abandoned", "err", ctx.Err())
			return false
		}
		p.log.Info("remote control is unresponsive", "err", err)
		if p.Reserved() {
			if attempt, retry := p.failedHeartbeat(); retry {
				p.log.Info(fmt.Sprintf("... attempt %d of %d -- trying again.", attempt, MaxFailedHeartbeats))
				continue
			}
		}
		p.resetHeartbeats()
		return true
	}
}

// Healthy is the negation of Unreliable.
func (p *Proxy) Healthy(ctx context.Context) bool {
	return !p.Unreliable(ctx)
}

// failedHeartbeat counts one more failure and reports whether another attempt is allowed.
func (p *Proxy) failedHeartbeat() (int, bool) {
	p.heartbeatMu.Lock()
	defer p.heartbeatMu.Unlock()
	if p.failedHeartbeats >= MaxFailedHeartbeats {
		return p.failedHeartbeats, false
	}
	p.failedHeartbeats++
	return p.failedHeartbeats, true
}

func (p *Proxy) resetHeartbeats() {
	p.heartbeatMu.Lock()
	p.failedHeartbeats = 0
	p.heartbeatMu.Unlock()
}

func (p *Proxy) probe(ctx context.Context) error {
	p.log.V(logging.DEBUG).Info("polling remote control")
	ctx, cancel := context.WithTimeout(ctx, HeartbeatTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.HeartbeatURL(), nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("did not respond correctly: HTTP %d", resp.StatusCode)
	}
	return nil
}
