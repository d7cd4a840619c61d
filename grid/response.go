package grid

import (
	"fmt"
	"net/http"
	"strconv"
)

// Response is what a worker answered, or what the hub synthesized in its place.
type Response struct {
	StatusCode int
	Body       string
	Header     http.Header
}

func NewResponse(statusCode int, body string) *Response {
	return &Response{
		StatusCode: statusCode,
		Body:       body,
		Header:     make(http.Header),
	}
}

// ErrorResponse is the uniform error envelope for both dialects.
func ErrorResponse(message string) *Response {
	return NewResponse(http.StatusOK, "ERROR: "+message)
}

// headers describing the worker connection rather than the payload
var hopByHopHeaders = map[string]bool{
	"Connection":        true,
	"Content-Length":    true,
	"Keep-Alive":        true,
	"Proxy-Connection":  true,
	"Te":                true,
	"Trailer":           true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
}

// Write replies with the response. contentType is used when the worker did not set one.
func (r *Response) Write(w http.ResponseWriter, contentType string) {
	for k, vs := range r.Header {
		if hopByHopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if r.StatusCode == http.StatusNoContent {
		w.WriteHeader(r.StatusCode)
		return
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(r.Body)))
	w.WriteHeader(r.StatusCode)
	w.Write([]byte(r.Body))
}

// Summary renders the response for logs, truncating long bodies.
func (r *Response) Summary() string {
	const max = 256
	if len(r.Body) > max {
		return fmt.Sprintf("%d / %s...[%d characters truncated]", r.StatusCode, r.Body[:max], len(r.Body)-max)
	}
	return fmt.Sprintf("%d / %s", r.StatusCode, r.Body)
}
