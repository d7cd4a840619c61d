// Package stub is a minimal remote control speaking both dialects. It backs
// cmd/remotecontrol for local farms and the hub's end-to-end tests.
package stub

import (
	"github.com/rcgrid/rcgrid/grid"

	gouuid "github.com/google/uuid"
	"github.com/gorilla/mux"
	sync "github.com/sasha-s/go-deadlock"

	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
)

type RemoteControl struct {
	mu       sync.Mutex
	sessions map[string]bool
	// commands seen, as "cmd sessionId" (legacy) or "METHOD path" (rest)
	commands         []string
	heartbeatStatus  int
	newSessionStatus int
	newSessionID     func() string
}

func New() *RemoteControl {
	return &RemoteControl{
		sessions:         make(map[string]bool),
		heartbeatStatus:  http.StatusOK,
		newSessionStatus: http.StatusOK,
		newSessionID: func() string {
			return gouuid.New().String()
		},
	}
}

// SetHeartbeatStatus changes the status code returned by the heartbeat URL.
func (rc *RemoteControl) SetHeartbeatStatus(code int) {
	rc.mu.Lock()
	rc.heartbeatStatus = code
	rc.mu.Unlock()
}

// SetNewSessionStatus makes new session requests fail with the given status code.
func (rc *RemoteControl) SetNewSessionStatus(code int) {
	rc.mu.Lock()
	rc.newSessionStatus = code
	rc.mu.Unlock()
}

// SetSessionIDs makes the stub mint the given ids in order, then fall back to uuids.
func (rc *RemoteControl) SetSessionIDs(ids ...string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.newSessionID = func() string {
		if len(ids) == 0 {
			return gouuid.New().String()
		}
		id := ids[0]
		ids = ids[1:]
		return id
	}
}

func (rc *RemoteControl) Sessions() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	var ids []string
	for id := range rc.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (rc *RemoteControl) Commands() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]string(nil), rc.commands...)
}

func (rc *RemoteControl) record(command string) {
	rc.mu.Lock()
	rc.commands = append(rc.commands, command)
	rc.mu.Unlock()
}

// startSession returns the new session id, or "" with the failure status.
func (rc *RemoteControl) startSession() (string, int) {
	rc.mu.Lock()
	status := rc.newSessionStatus
	if status != http.StatusOK {
		rc.mu.Unlock()
		return "", status
	}
	id := rc.newSessionID()
	rc.sessions[id] = true
	rc.mu.Unlock()
	return id, status
}

func (rc *RemoteControl) endSession(id string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	ok := rc.sessions[id]
	delete(rc.sessions, id)
	return ok
}

func (rc *RemoteControl) hasSession(id string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.sessions[id]
}

func (rc *RemoteControl) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc(grid.HeartbeatPath, func(w http.ResponseWriter, r *http.Request) {
		rc.mu.Lock()
		status := rc.heartbeatStatus
		rc.mu.Unlock()
		w.WriteHeader(status)
		fmt.Fprint(w, "Selenium Remote Control is up")
	})

	router.HandleFunc(grid.DriverPath, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		cmd := r.Form.Get("cmd")
		sessionID := r.Form.Get("sessionId")
		rc.record(cmd + " " + sessionID)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		switch cmd {
		case "getNewBrowserSession":
			id, status := rc.startSession()
			if id == "" {
				w.WriteHeader(status)
				fmt.Fprint(w, "Failed to start new browser session")
				return
			}
			fmt.Fprint(w, "OK,"+id)
		case "testComplete":
			if !rc.endSession(sessionID) {
				fmt.Fprintf(w, "ERROR: unknown session '%s'", sessionID)
				return
			}
			fmt.Fprint(w, "OK")
		default:
			if !rc.hasSession(sessionID) {
				fmt.Fprintf(w, "ERROR: unknown session '%s'", sessionID)
				return
			}
			fmt.Fprint(w, "OK")
		}
	})

	router.HandleFunc(grid.SessionsPath, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		rc.record(r.Method + " " + r.URL.Path)
		id, status := rc.startSession()
		if id == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, `{"status":13,"value":{"message":"could not start session"}}`)
			return
		}
		grid.JsonResponse(w, map[string]interface{}{"sessionId": id, "status": 0, "value": map[string]interface{}{}})
	}).Methods("POST")

	router.PathPrefix(grid.SessionsPath + "/{id}").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		rc.record(r.Method + " " + r.URL.Path)
		id, _ := url.PathUnescape(mux.Vars(r)["id"])
		if !rc.hasSession(id) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"sessionId":%q,"status":6,"value":null}`, id)
			return
		}
		if r.Method == http.MethodDelete && r.URL.Path == grid.SessionsPath+"/"+mux.Vars(r)["id"] {
			rc.endSession(id)
		}
		grid.JsonResponse(w, map[string]interface{}{"sessionId": id, "status": 0, "value": nil})
	})

	return router
}
