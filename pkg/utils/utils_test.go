package utils

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondJSONKeepsNonASCII(t *testing.T) {
	rec := httptest.NewRecorder()

	RespondJSON(rec, http.StatusCreated, map[string]string{"name": "小猫娘<喵>"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"name":"小猫娘<喵>"}`, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "<喵>")
}

func TestRespondErrorKind(t *testing.T) {
	rec := httptest.NewRecorder()

	RespondErrorKind(rec, http.StatusConflict, "busy", "a reply is already in progress")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"a reply is already in progress","kind":"busy"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var payload struct {
		Message string `json:"message"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"message":"hi"}`))
	require.NoError(t, DecodeJSON(req, &payload))
	assert.Equal(t, "hi", payload.Message)

	empty := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, DecodeJSON(empty, &payload))

	bad := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{`))
	assert.Error(t, DecodeJSON(bad, &payload))
}

func TestSendSSEChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)

	require.NoError(t, SendSSEChunk(rec, rec, map[string]string{"event": "end"}))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: {\"event\":\"end\"}\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}
