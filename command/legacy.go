package command

import (
	"github.com/rcgrid/rcgrid/environment"
	"github.com/rcgrid/rcgrid/grid"

	"regexp"
)

const (
	NewBrowserSessionCmd = "getNewBrowserSession"
	TestCompleteCmd      = "testComplete"
)

// the whole body must be "OK,<id>"
var legacySessionIDPattern = regexp.MustCompile(`^OK,([^,]*)$`)

// Legacy reads form parameters: the command in "cmd", the environment name
// of a new session in "1" and the session in "sessionId".
type Legacy struct {
	Environments *environment.Manager
}

func (l Legacy) Parse(req *grid.Request) (*Command, error) {
	switch req.Param("cmd") {
	case NewBrowserSessionCmd:
		name := req.Param("1")
		env, ok := l.Environments.Lookup(name)
		if !ok {
			return nil, unknownEnvironment(name)
		}
		// the remote control only understands its own browser launcher
		if env.Browser != "" {
			req = req.WithParam("1", env.Browser)
		}
		return &Command{
			Kind:        NewSession,
			Dialect:     grid.Legacy,
			Environment: env,
			Request:     req,
		}, nil
	case TestCompleteCmd:
		return l.sessionCommand(EndSession, req)
	default:
		return l.sessionCommand(SessionCommand, req)
	}
}

func (l Legacy) sessionCommand(kind Kind, req *grid.Request) (*Command, error) {
	id := req.Param("sessionId")
	if id == "" {
		return nil, grid.Errorf(grid.CommandParsing, noSessionIDMessage)
	}
	return &Command{
		Kind:      kind,
		Dialect:   grid.Legacy,
		SessionID: id,
		Request:   req,
	}, nil
}

func (l Legacy) NewSessionID(resp *grid.Response) (string, bool) {
	m := legacySessionIDPattern.FindStringSubmatch(resp.Body)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}
