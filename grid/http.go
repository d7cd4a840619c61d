package grid

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	urllib "net/url"
)

func JsonResponse(w http.ResponseWriter, x interface{}) {
	bytes, err := json.Marshal(x)
	if err != nil {
		http.Error(w, fmt.Sprintf("json encode error: %v", err), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(bytes)
}

func ParseJsonResponse(resp *http.Response, response interface{}) error {
	bytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error performing HTTP request: %v", err)
	} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(bytes))
	}
	if response != nil {
		if err := json.Unmarshal(bytes, response); err != nil {
			return fmt.Errorf("json decode error: %v", err)
		}
	}
	return nil
}

// PostForm posts request as a form and discards the body of a successful reply.
func PostForm(client *http.Client, baseURL string, path string, request urllib.Values) error {
	resp, err := client.PostForm(baseURL+path, request)
	if err != nil {
		return fmt.Errorf("error performing HTTP request (%s): %v", baseURL+path, err)
	}
	defer resp.Body.Close()
	err = ParseJsonResponse(resp, nil)
	if err != nil {
		return fmt.Errorf("[POST %s] %v", baseURL+path, err)
	}
	return nil
}
