package pool

import (
	"github.com/rcgrid/rcgrid/logging"
	"github.com/rcgrid/rcgrid/remotecontrol"
	"github.com/rcgrid/rcgrid/remotecontrol/stub"

	"github.com/stretchr/testify/require"

	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

type worker struct {
	*remotecontrol.Proxy
	stub *stub.RemoteControl
	srv  *httptest.Server
}

func proxyAt(t *testing.T, srv *httptest.Server, environment string) *remotecontrol.Proxy {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	rc, err := remotecontrol.NewProxy(host, port, environment, srv.Client(), logging.NewTestLogger())
	require.NoError(t, err)
	return rc
}

// newWorker starts a stub remote control and returns a proxy to it.
func newWorker(t *testing.T, environment string) *worker {
	t.Helper()
	rc := stub.New()
	srv := httptest.NewServer(rc.Handler())
	t.Cleanup(srv.Close)
	return &worker{
		Proxy: proxyAt(t, srv, environment),
		stub:  rc,
		srv:   srv,
	}
}

// deadWorker returns a proxy to a remote control that is no longer listening.
func deadWorker(t *testing.T, environment string) *remotecontrol.Proxy {
	t.Helper()
	srv := httptest.NewServer(stub.New().Handler())
	rc := proxyAt(t, srv, environment)
	srv.Close()
	return rc
}

// stallingWorker is a remote control whose heartbeat hangs while stall is set.
// Every heartbeat request is announced on probing.
type stallingWorker struct {
	*remotecontrol.Proxy
	stall   atomic.Bool
	probing chan struct{}
	resume  chan struct{}
}

func newStallingWorker(t *testing.T, environment string) *stallingWorker {
	t.Helper()
	w := &stallingWorker{
		probing: make(chan struct{}, 1),
		resume:  make(chan struct{}),
	}
	w.stall.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		select {
		case w.probing <- struct{}{}:
		default:
		}
		if w.stall.Load() {
			select {
			case <-w.resume:
			case <-r.Context().Done():
			case <-time.After(10 * time.Second):
			}
		}
	}))
	t.Cleanup(srv.Close)
	w.Proxy = proxyAt(t, srv, environment)
	return w
}

type fakeClock struct {
	ms atomic.Int64
}

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.ms.Store(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	return c
}

func (c *fakeClock) Now() time.Time {
	return time.UnixMilli(c.ms.Load())
}

func (c *fakeClock) Advance(d time.Duration) {
	c.ms.Add(d.Milliseconds())
}

type eventLog struct {
	events atomic.Pointer[[]Event]
}

func (l *eventLog) Record(e Event) {
	for {
		old := l.events.Load()
		var events []Event
		if old != nil {
			events = append(events, *old...)
		}
		events = append(events, e)
		if l.events.CompareAndSwap(old, &events) {
			return
		}
	}
}

func (l *eventLog) Kinds() []EventKind {
	var kinds []EventKind
	if events := l.events.Load(); events != nil {
		for _, e := range *events {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}
