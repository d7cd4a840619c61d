package remotecontrol

import (
	"github.com/rcgrid/rcgrid/grid"

	"net/http"
	"net/url"
	"strconv"
)

const (
	RegisterPath   = "/registration-manager/register"
	UnregisterPath = "/registration-manager/unregister"
)

// Register announces a remote control to the hub at hubURL.
func Register(client *http.Client, hubURL string, host string, port int, environment string) error {
	return grid.PostForm(client, hubURL, RegisterPath, registrationForm(host, port, environment))
}

// Unregister removes a remote control from the hub at hubURL.
func Unregister(client *http.Client, hubURL string, host string, port int, environment string) error {
	return grid.PostForm(client, hubURL, UnregisterPath, registrationForm(host, port, environment))
}

func registrationForm(host string, port int, environment string) url.Values {
	return url.Values{
		"host":        {host},
		"port":        {strconv.Itoa(port)},
		"environment": {environment},
	}
}
