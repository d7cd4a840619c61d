package command

import (
	"github.com/rcgrid/rcgrid/grid"
	"github.com/rcgrid/rcgrid/logging"
	"github.com/rcgrid/rcgrid/pool"
	"github.com/rcgrid/rcgrid/remotecontrol"
	"github.com/rcgrid/rcgrid/remotecontrol/stub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

type farm struct {
	pool       *pool.GlobalPool
	dispatcher *Dispatcher
}

func newFarm(maxWait time.Duration) *farm {
	envs := environments()
	p := pool.NewGlobalPool(logging.NewTestLogger(), pool.Options{MaxWait: maxWait})
	return &farm{
		pool:       p,
		dispatcher: NewDispatcher(p, Legacy{Environments: envs}, REST{Environments: envs}, logging.NewTestLogger()),
	}
}

// addWorker starts a stub remote control for the environment and registers it.
func (f *farm) addWorker(t *testing.T, environment string) (*remotecontrol.Proxy, *stub.RemoteControl, *httptest.Server) {
	t.Helper()
	rc := stub.New()
	srv := httptest.NewServer(rc.Handler())
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	proxy, err := remotecontrol.NewProxy(host, port, environment, srv.Client(), logging.NewTestLogger())
	require.NoError(t, err)
	f.pool.Register(proxy)
	return proxy, rc, srv
}

func (f *farm) legacy(params url.Values) *grid.Response {
	return f.dispatcher.Handle(context.Background(), legacyRequest(params))
}

func TestLegacySessionLifecycle(t *testing.T) {
	f := newFarm(0)
	proxy, rc, _ := f.addWorker(t, firefox.Name)
	rc.SetSessionIDs("1234")

	resp := f.legacy(url.Values{"cmd": {"getNewBrowserSession"}, "1": {firefox.Name}, "2": {"http://example.com"}})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "OK,1234", resp.Body)
	assert.Empty(t, f.pool.AvailableRemoteControls())

	resp = f.legacy(url.Values{"cmd": {"open"}, "1": {"/"}, "sessionId": {"1234"}})
	assert.Equal(t, "OK", resp.Body)

	resp = f.legacy(url.Values{"cmd": {"testComplete"}, "sessionId": {"1234"}})
	assert.Equal(t, "OK", resp.Body)
	assert.Equal(t, []*remotecontrol.Proxy{proxy}, f.pool.AvailableRemoteControls())
	assert.Empty(t, f.pool.Sessions())
	assert.Equal(t, []string{"getNewBrowserSession ", "open 1234", "testComplete 1234", "testComplete 1234"}, rc.Commands())
}

func TestNoAvailableRemoteControl(t *testing.T) {
	f := newFarm(0)
	resp := f.legacy(url.Values{"cmd": {"getNewBrowserSession"}, "1": {firefox.Name}})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ERROR: No available remote control for environment 'firefox on linux'", resp.Body)

	// registered but busy
	f.addWorker(t, firefox.Name)
	require.True(t, strings.HasPrefix(f.legacy(url.Values{"cmd": {"getNewBrowserSession"}, "1": {firefox.Name}}).Body, "OK,"))
	resp = f.legacy(url.Values{"cmd": {"getNewBrowserSession"}, "1": {firefox.Name}})
	assert.True(t, strings.HasPrefix(resp.Body, "ERROR: No available remote control for environment"))
}

func TestNewSessionRefusedByRemoteControl(t *testing.T) {
	f := newFarm(0)
	proxy, rc, _ := f.addWorker(t, firefox.Name)
	rc.SetNewSessionStatus(500)

	resp := f.legacy(url.Values{"cmd": {"getNewBrowserSession"}, "1": {firefox.Name}})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ERROR: Could not retrieve a new session", resp.Body)
	assert.False(t, proxy.Reserved())
	assert.Empty(t, f.pool.Sessions())
}

func TestNewSessionTransportError(t *testing.T) {
	f := newFarm(0)
	// answers heartbeats but drops the connection on driver commands
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == grid.HeartbeatPath {
			return
		}
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)
	proxy, err := remotecontrol.NewProxy(host, port, firefox.Name, srv.Client(), logging.NewTestLogger())
	require.NoError(t, err)
	f.pool.Register(proxy)

	resp := f.legacy(url.Values{"cmd": {"getNewBrowserSession"}, "1": {firefox.Name}})
	assert.True(t, strings.HasPrefix(resp.Body, "ERROR: error forwarding to remote control"), resp.Body)
	assert.False(t, proxy.Reserved())
	assert.Empty(t, f.pool.Sessions())
}

func TestConcurrentNewSessionsShareOneRemoteControl(t *testing.T) {
	f := newFarm(pool.WaitForever)
	proxy, rc, _ := f.addWorker(t, firefox.Name)
	rc.SetSessionIDs("first", "second")

	resp := f.legacy(url.Values{"cmd": {"getNewBrowserSession"}, "1": {firefox.Name}})
	require.Equal(t, "OK,first", resp.Body)

	second := make(chan *grid.Response)
	go func() {
		second <- f.legacy(url.Values{"cmd": {"getNewBrowserSession"}, "1": {firefox.Name}})
	}()
	select {
	case <-second:
		t.Fatal("second new session did not wait for the remote control")
	case <-time.After(100 * time.Millisecond):
	}

	f.legacy(url.Values{"cmd": {"testComplete"}, "sessionId": {"first"}})
	select {
	case resp := <-second:
		assert.Equal(t, "OK,second", resp.Body)
		got, err := f.pool.Retrieve("second")
		require.NoError(t, err)
		assert.Same(t, proxy, got)
	case <-time.After(5 * time.Second):
		t.Fatal("second new session was never granted")
	}
}

func TestRESTSessionLifecycle(t *testing.T) {
	f := newFarm(0)
	proxy, rc, _ := f.addWorker(t, firefox.Name)
	rc.SetSessionIDs("abcd")
	ctx := context.Background()

	resp := f.dispatcher.Handle(ctx, &grid.Request{
		Method: "POST",
		Path:   grid.SessionsPath,
		Body:   []byte(`{"desiredCapabilities":{"browserName":"firefox","platform":"LINUX"}}`),
	})
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Body, `"sessionId":"abcd"`)
	session, ok := f.pool.Session("abcd")
	require.True(t, ok)
	assert.Equal(t, grid.REST, session.Dialect)

	resp = f.dispatcher.Handle(ctx, &grid.Request{Method: "GET", Path: "/wd/hub/session/abcd/url"})
	assert.Equal(t, 200, resp.StatusCode)

	resp = f.dispatcher.Handle(ctx, &grid.Request{Method: "DELETE", Path: "/wd/hub/session/abcd"})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []*remotecontrol.Proxy{proxy}, f.pool.AvailableRemoteControls())
	assert.Equal(t, []string{"POST /wd/hub/session", "GET /wd/hub/session/abcd/url", "DELETE /wd/hub/session/abcd", "DELETE /wd/hub/session/abcd"}, rc.Commands())
}

func TestHandleErrorEnvelopes(t *testing.T) {
	f := newFarm(0)
	ctx := context.Background()

	resp := f.legacy(url.Values{"cmd": {"open"}})
	assert.Equal(t, "ERROR: "+noSessionIDMessage, resp.Body)

	resp = f.legacy(url.Values{"cmd": {"open"}, "sessionId": {"nope"}})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ERROR: no remote control is holding session nope", resp.Body)

	resp = f.legacy(url.Values{"cmd": {"getNewBrowserSession"}, "1": {"opera on amiga"}})
	assert.Equal(t, "ERROR: Unknown environment 'opera on amiga'", resp.Body)

	resp = f.dispatcher.Handle(ctx, &grid.Request{Method: "POST", Path: grid.SessionsPath, Body: []byte("{")})
	assert.Equal(t, "ERROR: Error parsing JSON: {", resp.Body)

	// an unknown session still goes through the release finalizer without harm
	resp = f.dispatcher.Handle(ctx, &grid.Request{Method: "DELETE", Path: "/wd/hub/session/nope"})
	assert.Equal(t, "ERROR: no remote control is holding session nope", resp.Body)
}

func TestEndSessionReleasesOnTransportError(t *testing.T) {
	f := newFarm(0)
	proxy, rc, srv := f.addWorker(t, firefox.Name)
	rc.SetSessionIDs("1234")
	require.Equal(t, "OK,1234", f.legacy(url.Values{"cmd": {"getNewBrowserSession"}, "1": {firefox.Name}}).Body)

	srv.Close()
	resp := f.legacy(url.Values{"cmd": {"open"}, "sessionId": {"1234"}})
	assert.True(t, strings.HasPrefix(resp.Body, "ERROR: error forwarding to remote control"), resp.Body)
	assert.Len(t, f.pool.Sessions(), 1)

	resp = f.legacy(url.Values{"cmd": {"testComplete"}, "sessionId": {"1234"}})
	assert.True(t, strings.HasPrefix(resp.Body, "ERROR: "), resp.Body)
	assert.Empty(t, f.pool.Sessions())
	assert.False(t, proxy.Reserved())
}

func TestEndSessionAfterClientHungUp(t *testing.T) {
	f := newFarm(0)
	proxy, rc, _ := f.addWorker(t, firefox.Name)
	rc.SetSessionIDs("1234")
	require.Equal(t, "OK,1234", f.legacy(url.Values{"cmd": {"getNewBrowserSession"}, "1": {firefox.Name}}).Body)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := f.dispatcher.Handle(ctx, legacyRequest(url.Values{"cmd": {"testComplete"}, "sessionId": {"1234"}}))
	assert.True(t, strings.HasPrefix(resp.Body, "ERROR: error forwarding to remote control"), resp.Body)

	// the relayed command never left, but the remote control was still told
	assert.Empty(t, f.pool.Sessions())
	assert.False(t, proxy.Reserved())
	assert.Empty(t, rc.Sessions())
	assert.Equal(t, []string{"getNewBrowserSession ", "testComplete 1234"}, rc.Commands())
}

type unregisteringPool struct {
	*pool.GlobalPool
}

// AssociateWithSession loses the race against an unregister.
func (p unregisteringPool) AssociateWithSession(rc *remotecontrol.Proxy, id string, dialect grid.Dialect) error {
	p.Unregister(rc)
	return p.GlobalPool.AssociateWithSession(rc, id, dialect)
}

func TestNewSessionOnUnregisteredRemoteControl(t *testing.T) {
	f := newFarm(0)
	proxy, rc, _ := f.addWorker(t, firefox.Name)
	rc.SetSessionIDs("1234")
	envs := environments()
	d := NewDispatcher(unregisteringPool{f.pool}, Legacy{Environments: envs}, REST{Environments: envs}, logging.NewTestLogger())

	resp := d.Handle(context.Background(), legacyRequest(url.Values{"cmd": {"getNewBrowserSession"}, "1": {firefox.Name}}))
	assert.True(t, strings.HasPrefix(resp.Body, "ERROR: "), resp.Body)
	assert.False(t, proxy.Reserved())
	assert.Empty(t, f.pool.Sessions())
	// the orphaned browser is shut down
	assert.Equal(t, []string{"getNewBrowserSession ", "testComplete 1234"}, rc.Commands())
}
