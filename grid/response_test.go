package grid

import (
	"github.com/stretchr/testify/assert"

	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse("a message")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ERROR: a message", resp.Body)
}

func TestResponseWritePassesThroughStatusAndHeaders(t *testing.T) {
	resp := NewResponse(500, "boom")
	resp.Header.Set("X-Worker", "rc1")
	resp.Header.Set("Transfer-Encoding", "chunked")

	rec := httptest.NewRecorder()
	resp.Write(rec, "text/plain")

	assert.Equal(t, 500, rec.Code)
	assert.Equal(t, "boom", rec.Body.String())
	assert.Equal(t, "rc1", rec.Header().Get("X-Worker"))
	assert.Empty(t, rec.Header().Get("Transfer-Encoding"))
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestResponseWriteNoContentHasNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponse(http.StatusNoContent, "ignored").Write(rec, "application/json")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestResponseSummaryTruncates(t *testing.T) {
	resp := NewResponse(200, strings.Repeat("x", 300))
	assert.True(t, strings.HasSuffix(resp.Summary(), "...[44 characters truncated]"))
	assert.Equal(t, "200 / OK,1", NewResponse(200, "OK,1").Summary())
}
