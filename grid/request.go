package grid

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
)

// Request is the part of an inbound HTTP request the hub cares about.
// The body is read eagerly so it can be forwarded to a worker after parsing.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	// Query string and form-encoded body parameters, query string first.
	Params url.Values
	Body   []byte
}

// ParseRequest reads r fully into a Request.
func ParseRequest(r *http.Request) (*Request, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading request body: %w", err)
	}
	params, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("error parsing query string: %w", err)
	}
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("error parsing form body: %w", err)
		}
		for k, vs := range form {
			params[k] = append(params[k], vs...)
		}
	}
	return &Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Params:   params,
		Body:     body,
	}, nil
}

// Param returns the first value of the named parameter, or "" if absent.
func (r *Request) Param(name string) string {
	return r.Params.Get(name)
}

func (r *Request) BodyText() string {
	return string(r.Body)
}

// WithParam returns a shallow copy of r with the named parameter replaced.
func (r *Request) WithParam(name string, value string) *Request {
	params := make(url.Values, len(r.Params))
	for k, vs := range r.Params {
		params[k] = append([]string(nil), vs...)
	}
	params.Set(name, value)
	clone := *r
	clone.Params = params
	return &clone
}

func (r *Request) String() string {
	if r.RawQuery != "" {
		return fmt.Sprintf("%s %s?%s", r.Method, r.Path, r.RawQuery)
	}
	return fmt.Sprintf("%s %s", r.Method, r.Path)
}
