package grid

import (
	"strings"
)

// Dialect is the wire protocol an inbound request speaks.
type Dialect int

const (
	// Legacy is the line-oriented protocol: form parameters cmd, 1, 2, ..., sessionId.
	Legacy Dialect = iota
	// REST is the JSON protocol addressed by /wd/hub/session/{id} paths.
	REST
)

const (
	DriverPath    = "/selenium-server/driver/"
	HeartbeatPath = "/selenium-server/heartbeat"
	RESTPrefix    = "/wd/hub"
	SessionsPath  = RESTPrefix + "/session"
)

func (d Dialect) String() string {
	switch d {
	case Legacy:
		return "legacy"
	case REST:
		return "rest"
	}
	return "unknown"
}

// DialectOf guesses the dialect from the request path.
func DialectOf(path string) Dialect {
	if strings.HasPrefix(path, RESTPrefix) {
		return REST
	}
	return Legacy
}
