package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_RevertCollabVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(RevertResult{DocState: []byte("state")})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, srv.Client())
	result, err := client.RevertCollabVersion(context.Background(), "ws-1", "obj-1", 0, "v1")
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), result.DocState)
}

func TestHTTPClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, srv.Client())
	_, err := client.RevertCollabVersion(context.Background(), "ws-1", "obj-1", 0, "v1")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a 4xx response is permanent and must not be retried")
}

func TestHTTPClient_CollabFullSyncBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "items")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, srv.Client())
	err := client.CollabFullSyncBatch(context.Background(), "ws-1", []SyncItem{{ObjectID: "obj-1"}})
	require.NoError(t, err)
}
