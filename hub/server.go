// Package hub is the HTTP front door of the grid: the legacy driver and REST
// command endpoints, the registration API used by remote controls, the hub
// heartbeat, the lifecycle manager, the console and metrics.
package hub

import (
	"github.com/rcgrid/rcgrid/command"
	"github.com/rcgrid/rcgrid/environment"
	"github.com/rcgrid/rcgrid/grid"
	"github.com/rcgrid/rcgrid/logging"
	"github.com/rcgrid/rcgrid/pool"
	"github.com/rcgrid/rcgrid/remotecontrol"

	"github.com/go-logr/logr"
	gouuid "github.com/google/uuid"
	"github.com/gorilla/mux"

	"net/http"
	"sync"
)

const (
	HeartbeatPath = "/heartbeat"
	LifecyclePath = "/lifecycle-manager"
	ConsolePath   = "/console"
	EventsPath    = "/console/events"
	MetricsPath   = "/metrics"
)

// EventLog is the journal as seen by the console.
type EventLog interface {
	Recent(limit int) ([]pool.Event, error)
	Session(id string) ([]pool.Event, error)
}

type Options struct {
	Pool         *pool.GlobalPool
	Environments *environment.Manager
	// Journal and Metrics are optional.
	Journal EventLog
	Metrics http.Handler
	// Shutdown is called, once, when the lifecycle manager is asked to stop the hub.
	Shutdown func()
	// Client talks to registered remote controls.
	Client *http.Client
	Clock  pool.Clock
	Logger logr.Logger
}

type Server struct {
	pool         *pool.GlobalPool
	environments *environment.Manager
	dispatcher   *command.Dispatcher
	journal      EventLog
	shutdown     func()
	client       *http.Client
	clock        pool.Clock
	log          logr.Logger
	router       *mux.Router
}

func NewServer(options Options) *Server {
	if options.Client == nil {
		options.Client = http.DefaultClient
	}
	if options.Clock == nil {
		options.Clock = pool.SystemClock{}
	}
	s := &Server{
		pool:         options.Pool,
		environments: options.Environments,
		dispatcher: command.NewDispatcher(
			options.Pool,
			command.Legacy{Environments: options.Environments},
			command.REST{Environments: options.Environments},
			options.Logger,
		),
		journal: options.Journal,
		client:  options.Client,
		clock:   options.Clock,
		log:     options.Logger.WithName("hub"),
		router:  mux.NewRouter(),
	}
	if options.Shutdown != nil {
		var once sync.Once
		s.shutdown = func() {
			once.Do(options.Shutdown)
		}
	}

	s.router.PathPrefix("/selenium-server/driver").HandlerFunc(s.handleCommand).Methods("GET", "POST")
	s.router.PathPrefix(grid.RESTPrefix + "/").HandlerFunc(s.handleCommand)
	s.router.HandleFunc(remotecontrol.RegisterPath, s.handleRegister).Methods("POST")
	s.router.HandleFunc(remotecontrol.UnregisterPath, s.handleUnregister).Methods("POST")
	s.router.HandleFunc(HeartbeatPath, s.handleHeartbeat).Methods("GET")
	s.router.HandleFunc(LifecyclePath, s.handleLifecycle).Methods("POST")
	s.router.HandleFunc(ConsolePath, s.handleConsole).Methods("GET")
	s.router.HandleFunc(EventsPath, s.handleEvents).Methods("GET")
	if options.Metrics != nil {
		s.router.Handle(MetricsPath, options.Metrics).Methods("GET")
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleCommand relays a legacy or REST command through the dispatcher.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithValues("request", gouuid.New().String())
	req, err := grid.ParseRequest(r)
	if err != nil {
		log.Error(err, "could not read request")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := logging.IntoContext(r.Context(), log)
	resp := s.dispatcher.Handle(ctx, req)
	resp.Write(w, command.ContentType(grid.DialectOf(req.Path)))
}
