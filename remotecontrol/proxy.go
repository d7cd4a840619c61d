// Package remotecontrol is the hub-side handle on a worker ("remote control")
// running somewhere in the farm.
package remotecontrol

import (
	"github.com/rcgrid/rcgrid/grid"
	"github.com/rcgrid/rcgrid/logging"

	"github.com/go-logr/logr"
	deadlock "github.com/sasha-s/go-deadlock"

	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
)

// MaxFailedHeartbeats bounds the inline heartbeat retries for a worker in session.
const MaxFailedHeartbeats = 3

// Key is the identity of a remote control. Two proxies with the same Key
// stand for the same physical worker.
type Key struct {
	Host string
	Port int
}

func (k Key) String() string {
	return k.Host + ":" + strconv.Itoa(k.Port)
}

// Proxy is the local interface to a real remote control.
type Proxy struct {
	key         Key
	environment string
	client      *http.Client
	log         logr.Logger

	reserved atomic.Bool

	heartbeatMu      deadlock.Mutex
	failedHeartbeats int
}

// NewProxy validates the identity fields and returns an unreserved proxy.
// A nil client means http.DefaultClient.
func NewProxy(host string, port int, environment string, client *http.Client, logger logr.Logger) (*Proxy, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("host cannot be blank")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	if strings.TrimSpace(environment) == "" {
		return nil, fmt.Errorf("environment cannot be blank")
	}
	if client == nil {
		client = http.DefaultClient
	}
	key := Key{Host: host, Port: port}
	return &Proxy{
		key:         key,
		environment: environment,
		client:      client,
		log:         logger.WithName("remotecontrol").WithValues("remoteControl", key.String()),
	}, nil
}

func (p *Proxy) Key() Key            { return p.key }
func (p *Proxy) Host() string        { return p.key.Host }
func (p *Proxy) Port() int           { return p.key.Port }
func (p *Proxy) Environment() string { return p.environment }

func (p *Proxy) String() string {
	return fmt.Sprintf("[RemoteControlProxy %s#%v]", p.key, p.Reserved())
}

// URLFor returns the URL of a path under the worker's /selenium-server/ root.
func (p *Proxy) URLFor(path string) string {
	return "http://" + p.key.String() + "/selenium-server/" + path
}

func (p *Proxy) HeartbeatURL() string {
	return p.URLFor("heartbeat")
}

func (p *Proxy) DriverURL() string {
	return p.URLFor("driver/")
}

func (p *Proxy) restURL(path string, rawQuery string) string {
	u := "http://" + p.key.String() + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// Reserved reports whether a caller currently holds this remote control.
func (p *Proxy) Reserved() bool {
	return p.reserved.Load()
}

// CanAcceptSession is true iff the remote control is not reserved.
func (p *Proxy) CanAcceptSession() bool {
	return !p.Reserved()
}

// Reserve flips the reservation flag. Reserving twice means the pool handed the
// same worker to two callers, so it panics rather than let that go unnoticed.
func (p *Proxy) Reserve() {
	if !p.reserved.CompareAndSwap(false, true) {
		panic(fmt.Errorf("exceeded concurrent session max for %s", p))
	}
}

// Release clears the reservation flag, panicking if it was not set.
func (p *Proxy) Release() {
	if !p.reserved.CompareAndSwap(true, false) {
		panic(fmt.Errorf("releasing an idle remote control %s", p))
	}
}

// Accept-Encoding is left to the transport, which then decompresses replies
// so the hub can read session ids out of them.
var skipForwardedHeaders = map[string]bool{
	"Host":            true,
	"Content-Length":  true,
	"Accept-Encoding": true,
}

// Forward relays req to the worker and returns its response unmodified.
// Legacy requests are re-posted as a form to the driver URL; REST requests go to
// the same path on the worker with the same method, headers and body.
func (p *Proxy) Forward(ctx context.Context, req *grid.Request) (*grid.Response, error) {
	var httpReq *http.Request
	var err error
	if grid.DialectOf(req.Path) == grid.REST {
		httpReq, err = http.NewRequestWithContext(ctx, req.Method, p.restURL(req.Path, req.RawQuery), bytes.NewReader(req.Body))
		if err != nil {
			return nil, grid.Errorf(grid.Transport, "error building request for %s: %v", p.key, err)
		}
		for k, vs := range req.Header {
			if skipForwardedHeaders[http.CanonicalHeaderKey(k)] {
				continue
			}
			httpReq.Header[k] = append([]string(nil), vs...)
		}
	} else {
		httpReq, err = p.formRequest(ctx, req.Params)
		if err != nil {
			return nil, err
		}
	}
	return p.do(httpReq)
}

// TerminateSession tells the worker that sessionID ended. The hub does not care
// about the answer beyond logging it.
func (p *Proxy) TerminateSession(ctx context.Context, sessionID string, dialect grid.Dialect) {
	var req *http.Request
	var err error
	if dialect == grid.REST {
		req, err = http.NewRequestWithContext(ctx, http.MethodDelete, p.restURL(grid.SessionsPath+"/"+url.PathEscape(sessionID), ""), nil)
	} else {
		req, err = p.formRequest(ctx, url.Values{
			"cmd":       {"testComplete"},
			"sessionId": {sessionID},
		})
	}
	if err == nil {
		_, err = p.do(req)
	}
	if err != nil {
		p.log.Info("error telling remote control to kill its session", "session", sessionID, "err", err)
	}
}

func (p *Proxy) formRequest(ctx context.Context, params url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.DriverURL(), strings.NewReader(params.Encode()))
	if err != nil {
		return nil, grid.Errorf(grid.Transport, "error building request for %s: %v", p.key, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return req, nil
}

func (p *Proxy) do(req *http.Request) (*grid.Response, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, grid.Errorf(grid.Transport, "error forwarding to remote control %s: %v", p.key, err)
	}
	defer resp.Body.Close()
	var body []byte
	if resp.StatusCode != http.StatusNoContent {
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, grid.Errorf(grid.Transport, "error reading response from remote control %s: %v", p.key, err)
		}
	}
	p.log.V(logging.DEBUG).Info("remote control replied", "status", resp.StatusCode, "body", string(body))
	return &grid.Response{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Header:     resp.Header.Clone(),
	}, nil
}
