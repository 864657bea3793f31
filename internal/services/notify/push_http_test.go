package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPusherSend(t *testing.T) {
	var got struct {
		Token string            `json:"token"`
		Title string            `json:"title"`
		Body  string            `json:"body"`
		Data  map[string]string `json:"data"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message_id":"gw-42"}`))
	}))
	defer srv.Close()

	pusher, err := NewHTTPPusher(nil, srv.URL, "secret", nil)
	require.NoError(t, err)

	id, err := pusher.Send(context.Background(), "tok-abc", "Accepted", "You got the gig", map[string]string{"job_id": "j1"})
	require.NoError(t, err)
	assert.Equal(t, "gw-42", id)
	assert.Equal(t, "tok-abc", got.Token)
	assert.Equal(t, "Accepted", got.Title)
	assert.Equal(t, "j1", got.Data["job_id"])
}

func TestHTTPPusherSendRejectsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	pusher, err := NewHTTPPusher(nil, srv.URL, "", nil)
	require.NoError(t, err)

	_, err = pusher.Send(context.Background(), "tok-abc", "t", "b", nil)
	assert.Error(t, err)
}

func TestNewHTTPPusherValidatesEndpoint(t *testing.T) {
	_, err := NewHTTPPusher(nil, "", "", nil)
	assert.Error(t, err)

	_, err = NewHTTPPusher(nil, "::not-a-url", "", nil)
	assert.Error(t, err)
}
