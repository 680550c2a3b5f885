package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/dealerdial/internal/api/response"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]string{"status": "running"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "running", data["status"])
}

func TestCreated(t *testing.T) {
	w := httptest.NewRecorder()
	response.Created(w, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "abc", data["id"])
}

func TestAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	response.Accepted(w, map[string]string{"status": "cancelling"})

	assert.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "cancelling", data["status"])
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	response.NoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid payload", map[string]string{
		"call_id": "required",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	errObj := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	assert.Equal(t, "Invalid payload", errObj["message"])
	assert.NotNil(t, errObj["details"])
}

func TestError_NoDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusNotFound, "SESSION_NOT_FOUND", "Not found", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	errObj := body["error"].(map[string]any)
	assert.Equal(t, "SESSION_NOT_FOUND", errObj["code"])
	_, hasDetails := errObj["details"]
	assert.False(t, hasDetails)
}

func TestEventWriter_Headers(t *testing.T) {
	w := httptest.NewRecorder()
	_, err := response.NewEventWriter(w)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.True(t, w.Flushed)
}

func TestEventWriter_Frames(t *testing.T) {
	w := httptest.NewRecorder()
	ew, err := response.NewEventWriter(w)
	require.NoError(t, err)

	require.NoError(t, ew.Event("start", map[string]any{"total_vehicles": 3}))
	require.NoError(t, ew.Comment("ping"))
	require.NoError(t, ew.Event("ranking", map[string]string{"message": "ranking"}))

	want := "event: start\ndata: {\"total_vehicles\":3}\n\n" +
		": ping\n\n" +
		"event: ranking\ndata: {\"message\":\"ranking\"}\n\n"
	assert.Equal(t, want, w.Body.String())
}

func TestEventWriter_MarshalError(t *testing.T) {
	w := httptest.NewRecorder()
	ew, err := response.NewEventWriter(w)
	require.NoError(t, err)

	err = ew.Event("bad", map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.False(t, strings.Contains(w.Body.String(), "event: bad"))
}

type plainWriter struct {
	header http.Header
}

func (p *plainWriter) Header() http.Header {
	return p.header
}

func (p *plainWriter) Write(b []byte) (int, error) {
	return len(b), nil
}

func (p *plainWriter) WriteHeader(int) {}

func TestEventWriter_RequiresFlusher(t *testing.T) {
	_, err := response.NewEventWriter(&plainWriter{header: http.Header{}})
	assert.ErrorIs(t, err, response.ErrStreamingUnsupported)
}
