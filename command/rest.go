package command

import (
	"github.com/rcgrid/rcgrid/environment"
	"github.com/rcgrid/rcgrid/grid"

	"github.com/tidwall/gjson"

	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var (
	sessionPathPattern    = regexp.MustCompile(`^` + grid.SessionsPath + `/([^/]+)`)
	sessionEndPathPattern = regexp.MustCompile(`^` + grid.SessionsPath + `/[^/]+/?$`)
)

// capability paths tried in order; the first pair where both are strings wins
var capabilityPaths = [][2]string{
	{"desiredCapabilities.browserName", "desiredCapabilities.platform"},
	{"capabilities.alwaysMatch.browserName", "capabilities.alwaysMatch.platformName"},
}

// REST addresses sessions by path. A POST to the session collection opens a
// session for the environment named "<browserName> on <platform>", lowercased,
// from the JSON capabilities; a DELETE of a session path ends it.
type REST struct {
	Environments *environment.Manager
}

func (p REST) Parse(req *grid.Request) (*Command, error) {
	if req.Method == http.MethodPost && strings.TrimSuffix(req.Path, "/") == grid.SessionsPath {
		name, err := environmentName(req.BodyText())
		if err != nil {
			return nil, err
		}
		env, ok := p.Environments.Lookup(name)
		if !ok {
			return nil, unknownEnvironment(name)
		}
		return &Command{
			Kind:        NewSession,
			Dialect:     grid.REST,
			Environment: env,
			Request:     req,
		}, nil
	}

	id, ok := sessionIDFromPath(req.Path)
	if !ok {
		return nil, grid.Errorf(grid.CommandParsing, noSessionIDMessage)
	}
	kind := SessionCommand
	if req.Method == http.MethodDelete && sessionEndPathPattern.MatchString(req.Path) {
		kind = EndSession
	}
	return &Command{
		Kind:      kind,
		Dialect:   grid.REST,
		SessionID: id,
		Request:   req,
	}, nil
}

func environmentName(body string) (string, error) {
	if gjson.Valid(body) {
		for _, paths := range capabilityPaths {
			results := gjson.GetMany(body, paths[0], paths[1])
			if results[0].Type == gjson.String && results[1].Type == gjson.String {
				return strings.ToLower(results[0].String()) + " on " + strings.ToLower(results[1].String()), nil
			}
		}
	}
	return "", grid.Errorf(grid.CommandParsing, "Error parsing JSON: %s", body)
}

func sessionIDFromPath(path string) (string, bool) {
	m := sessionPathPattern.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	id, err := url.PathUnescape(m[1])
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

// NewSessionID reads "sessionId" from the reply, or "value.sessionId" for
// remote controls answering in the W3C shape.
func (p REST) NewSessionID(resp *grid.Response) (string, bool) {
	if !gjson.Valid(resp.Body) {
		return "", false
	}
	for _, path := range []string{"sessionId", "value.sessionId"} {
		if r := gjson.Get(resp.Body, path); r.Type == gjson.String && r.String() != "" {
			return r.String(), true
		}
	}
	return "", false
}
