package hub

import (
	"github.com/rcgrid/rcgrid/remotecontrol"

	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// parseRemoteControl builds a proxy from the host, port and environment form
// parameters, rejecting blank values.
func (s *Server) parseRemoteControl(r *http.Request) (*remotecontrol.Proxy, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	host := strings.TrimSpace(r.Form.Get("host"))
	if host == "" {
		return nil, errors.New("You must specify a 'host' parameter")
	}
	portStr := strings.TrimSpace(r.Form.Get("port"))
	if portStr == "" {
		return nil, errors.New("You must specify a 'port' parameter")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("Invalid 'port' parameter '%s'", portStr)
	}
	env := strings.TrimSpace(r.Form.Get("environment"))
	if env == "" {
		return nil, errors.New("You must specify an 'environment' parameter")
	}
	return remotecontrol.NewProxy(host, port, env, s.client, s.log)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	rc, err := s.parseRemoteControl(r)
	if err != nil {
		s.log.Info("rejected registration", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := s.environments.Lookup(rc.Environment()); !ok {
		s.log.Info("remote control registered for an environment that is not configured, no session will ever be routed to it", "remoteControl", rc.Key().String(), "environment", rc.Environment())
	}
	s.pool.Register(rc)
	fmt.Fprint(w, "OK")
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	rc, err := s.parseRemoteControl(r)
	if err != nil {
		s.log.Info("rejected unregistration", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.pool.Unregister(rc) {
		s.log.Info("unregistering a remote control that was not registered", "remoteControl", rc.Key().String(), "environment", rc.Environment())
	}
	fmt.Fprint(w, "OK")
}

// handleHeartbeat answers "Hub : OK", or, when asked about a remote control
// by host and port, whether it is registered.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	host := r.URL.Query().Get("host")
	portStr := r.URL.Query().Get("port")
	if host == "" && portStr == "" {
		fmt.Fprint(w, "Hub : OK")
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || s.pool.Lookup(remotecontrol.Key{Host: host, Port: port}) == nil {
		fmt.Fprint(w, "Hub : Not Registered")
		return
	}
	fmt.Fprint(w, "Hub : OK")
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	action := r.Form.Get("action")
	if action != "shutdown" || s.shutdown == nil {
		http.Error(w, fmt.Sprintf("Unknown action '%s'", action), http.StatusBadRequest)
		return
	}
	s.log.Info("shutdown requested through the lifecycle manager")
	fmt.Fprint(w, "OK")
	go s.shutdown()
}
