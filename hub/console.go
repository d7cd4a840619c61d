package hub

import (
	"github.com/rcgrid/rcgrid/environment"
	"github.com/rcgrid/rcgrid/grid"
	"github.com/rcgrid/rcgrid/pool"
	"github.com/rcgrid/rcgrid/remotecontrol"

	"net/http"
	"strconv"
)

type ConsoleRemoteControl struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Environment string `json:"environment"`
}

type ConsoleSession struct {
	ID            string  `json:"id"`
	RemoteControl string  `json:"remoteControl"`
	Environment   string  `json:"environment"`
	Dialect       string  `json:"dialect"`
	IdleSeconds   float64 `json:"idleSeconds"`
}

type Console struct {
	Environments            []environment.Environment `json:"environments"`
	AvailableRemoteControls []ConsoleRemoteControl    `json:"availableRemoteControls"`
	ReservedRemoteControls  []ConsoleRemoteControl    `json:"reservedRemoteControls"`
	ActiveSessions          []ConsoleSession          `json:"activeSessions"`
}

func consoleRemoteControls(remoteControls []*remotecontrol.Proxy) []ConsoleRemoteControl {
	l := []ConsoleRemoteControl{}
	for _, rc := range remoteControls {
		l = append(l, ConsoleRemoteControl{
			Host:        rc.Host(),
			Port:        rc.Port(),
			Environment: rc.Environment(),
		})
	}
	return l
}

// Snapshot captures the state shown by the console.
func (s *Server) Snapshot() Console {
	now := s.clock.Now()
	console := Console{
		Environments:            s.environments.Environments(),
		AvailableRemoteControls: consoleRemoteControls(s.pool.AvailableRemoteControls()),
		ReservedRemoteControls:  consoleRemoteControls(s.pool.ReservedRemoteControls()),
		ActiveSessions:          []ConsoleSession{},
	}
	for _, session := range s.pool.Sessions() {
		console.ActiveSessions = append(console.ActiveSessions, ConsoleSession{
			ID:            session.ID,
			RemoteControl: session.RemoteControl.Key().String(),
			Environment:   session.RemoteControl.Environment(),
			Dialect:       session.Dialect.String(),
			IdleSeconds:   now.Sub(session.LastActiveAt()).Seconds(),
		})
	}
	return console
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	grid.JsonResponse(w, s.Snapshot())
}

// handleEvents lists journal events, the most recent first, or the events
// of one session when the session parameter is set.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "journal is disabled", http.StatusNotFound)
		return
	}
	var events []pool.Event
	var err error
	if id := r.URL.Query().Get("session"); id != "" {
		events, err = s.journal.Session(id)
	} else {
		limit := 100
		if str := r.URL.Query().Get("limit"); str != "" {
			limit, err = strconv.Atoi(str)
			if err != nil || limit <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
		}
		events, err = s.journal.Recent(limit)
	}
	if err != nil {
		s.log.Error(err, "could not read journal")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []pool.Event{}
	}
	grid.JsonResponse(w, events)
}
