// Package command turns inbound hub requests into one of three operations
// (new session, end session, in-session command) and executes them against
// the global pool. The legacy and REST dialects only differ in how the
// operation and its parameters are read from the request.
package command

import (
	"github.com/rcgrid/rcgrid/environment"
	"github.com/rcgrid/rcgrid/grid"

	"fmt"
)

type Kind int

const (
	NewSession Kind = iota
	EndSession
	SessionCommand
)

func (k Kind) String() string {
	switch k {
	case NewSession:
		return "new-session"
	case EndSession:
		return "end-session"
	case SessionCommand:
		return "session-command"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type Command struct {
	Kind    Kind
	Dialect grid.Dialect
	// Environment is only set for NewSession.
	Environment environment.Environment
	// SessionID is set for EndSession and SessionCommand.
	SessionID string
	// Request is forwarded to the remote control as is.
	Request *grid.Request
}

func (c *Command) String() string {
	if c.Kind == NewSession {
		return fmt.Sprintf("%s %s [%s]", c.Dialect, c.Kind, c.Environment.Name)
	}
	return fmt.Sprintf("%s %s [%s]", c.Dialect, c.Kind, c.SessionID)
}

// Protocol is one wire dialect.
type Protocol interface {
	// Parse classifies req, failing with CommandParsing or NoSuchCapability.
	Parse(req *grid.Request) (*Command, error)
	// NewSessionID extracts the session id minted by a remote control from
	// its reply to a new session request.
	NewSessionID(resp *grid.Response) (string, bool)
}

const noSessionIDMessage = "No sessionId provided. Most likely your original newBrowserSession command failed."

func unknownEnvironment(name string) error {
	return grid.Errorf(grid.NoSuchCapability, "Unknown environment '%s'", name)
}
