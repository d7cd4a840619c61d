package command

import (
	"github.com/rcgrid/rcgrid/grid"
	"github.com/rcgrid/rcgrid/logging"
	"github.com/rcgrid/rcgrid/remotecontrol"

	"github.com/go-logr/logr"

	"context"
	"fmt"
)

// Pool is the part of the global pool the dispatcher drives.
type Pool interface {
	Reserve(ctx context.Context, environment string) (*remotecontrol.Proxy, error)
	Release(rc *remotecontrol.Proxy)
	AssociateWithSession(rc *remotecontrol.Proxy, id string, dialect grid.Dialect) error
	Retrieve(id string) (*remotecontrol.Proxy, error)
	UpdateSessionLastActiveAt(id string) error
	ReleaseForSession(ctx context.Context, id string) error
}

type Dispatcher struct {
	pool      Pool
	protocols map[grid.Dialect]Protocol
	log       logr.Logger
}

func NewDispatcher(pool Pool, legacy Protocol, rest Protocol, logger logr.Logger) *Dispatcher {
	return &Dispatcher{
		pool: pool,
		protocols: map[grid.Dialect]Protocol{
			grid.Legacy: legacy,
			grid.REST:   rest,
		},
		log: logger.WithName("dispatcher"),
	}
}

// Handle parses and executes req. It always produces a response: every
// failure is turned into an error envelope.
func (d *Dispatcher) Handle(ctx context.Context, req *grid.Request) *grid.Response {
	log := logging.FromContext(ctx, d.log)
	log.Info("processing", "request", req.String())

	cmd, err := d.protocols[grid.DialectOf(req.Path)].Parse(req)
	var resp *grid.Response
	if err == nil {
		resp, err = d.Execute(ctx, cmd)
	}
	if err != nil {
		switch grid.CanonicalCode(err) {
		case grid.CommandParsing:
			log.Error(err, "failed to parse request", "request", req.String())
		case grid.NoSuchCapability:
			log.Error(err, "could not find any remote control providing the requested environment, please make sure you started some remote controls which registered as offering this environment")
		default:
			log.Error(err, "failed to execute request", "request", req.String())
		}
		resp = grid.ErrorResponse(err.Error())
	}
	log.Info("responding with " + resp.Summary())
	return resp
}

// Execute runs cmd against the pool. Expected failures (nothing available,
// no session id in the reply, transport errors on new session) come back as
// error envelopes; unknown sessions and other transport errors as errors.
func (d *Dispatcher) Execute(ctx context.Context, cmd *Command) (*grid.Response, error) {
	switch cmd.Kind {
	case NewSession:
		return d.newSession(ctx, cmd), nil
	case EndSession:
		return d.endSession(ctx, cmd)
	default:
		return d.sessionCommand(ctx, cmd)
	}
}

func (d *Dispatcher) newSession(ctx context.Context, cmd *Command) *grid.Response {
	log := logging.FromContext(ctx, d.log).WithValues("environment", cmd.Environment.Name)

	rc, err := d.pool.Reserve(ctx, cmd.Environment.Name)
	if err != nil {
		// known environment, but nothing ever registered for it
		log.V(logging.VERBOSE).Info("no provisioner for environment", "err", err)
		rc = nil
	}
	if rc == nil {
		message := fmt.Sprintf("No available remote control for environment '%s'", cmd.Environment.Name)
		log.Info(message)
		return grid.ErrorResponse(message)
	}

	resp, err := rc.Forward(ctx, cmd.Request)
	if err != nil {
		log.Error(err, "problem while requesting new browser session", "remoteControl", rc.Key().String())
		d.pool.Release(rc)
		return grid.ErrorResponse(err.Error())
	}

	id, ok := d.protocols[cmd.Dialect].NewSessionID(resp)
	if !ok || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Info("could not retrieve a new session", "remoteControl", rc.Key().String(), "status", resp.StatusCode, "response", resp.Summary())
		d.pool.Release(rc)
		return grid.ErrorResponse("Could not retrieve a new session")
	}

	if err := d.pool.AssociateWithSession(rc, id, cmd.Dialect); err != nil {
		log.Error(err, "could not associate new session", "session", id, "remoteControl", rc.Key().String())
		rc.TerminateSession(ctx, id, cmd.Dialect)
		d.pool.Release(rc)
		return grid.ErrorResponse(err.Error())
	}
	if err := d.pool.UpdateSessionLastActiveAt(id); err != nil {
		log.V(logging.VERBOSE).Info("session ended before first activity update", "session", id)
	}
	log.Info("started session", "session", id, "remoteControl", rc.Key().String())
	return resp
}

func (d *Dispatcher) endSession(ctx context.Context, cmd *Command) (*grid.Response, error) {
	defer func() {
		// the remote control must hear about it even if the client hung up
		if err := d.pool.ReleaseForSession(context.WithoutCancel(ctx), cmd.SessionID); err != nil {
			logging.FromContext(ctx, d.log).Info("could not release session", "session", cmd.SessionID, "err", err)
		}
	}()
	return d.sessionCommand(ctx, cmd)
}

func (d *Dispatcher) sessionCommand(ctx context.Context, cmd *Command) (*grid.Response, error) {
	rc, err := d.pool.Retrieve(cmd.SessionID)
	if err != nil {
		return nil, err
	}
	d.touch(ctx, cmd.SessionID)
	resp, err := rc.Forward(ctx, cmd.Request)
	d.touch(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// touch records activity; the session may have been reaped concurrently.
func (d *Dispatcher) touch(ctx context.Context, id string) {
	if err := d.pool.UpdateSessionLastActiveAt(id); err != nil {
		logging.FromContext(ctx, d.log).V(logging.VERBOSE).Info("session vanished while in use", "session", id)
	}
}

// ContentType is the content type replies are written with for a dialect.
func ContentType(dialect grid.Dialect) string {
	if dialect == grid.REST {
		return "application/json; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}
