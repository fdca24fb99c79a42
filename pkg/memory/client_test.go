package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchSendsUserScopedFilter(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/memories/search/", r.URL.Path)
		assert.Equal(t, "Token test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode([]Memory{
			{Id: "m1", Text: "Prefers concise answers"},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", server.URL, "", "")
	memories, err := c.Search(context.Background(), "user-1", "how should I answer", 5)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "Prefers concise answers", memories[0].Text)

	assert.Equal(t, "how should I answer", captured["query"])
	filters := captured["filters"].(map[string]interface{})
	assert.Equal(t, "user-1", filters["user_id"])
}

func TestAddPairsUserAndAssistant(t *testing.T) {
	var captured addRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/memories/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := NewClient("test-key", server.URL, "", "")
	err := c.Add(context.Background(), "user-1", "I live in Oslo", "Noted!")
	require.NoError(t, err)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "user", captured.Messages[0].Role)
	assert.Equal(t, "assistant", captured.Messages[1].Role)
	assert.Equal(t, "user-1", captured.UserID)
}

func TestListAndDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			assert.Equal(t, "user-1", r.URL.Query().Get("user_id"))
			json.NewEncoder(w).Encode([]Memory{{Id: "m1"}, {Id: "m2"}})
		case r.Method == http.MethodDelete:
			assert.Equal(t, "/v1/memories/m1/", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	c := NewClient("test-key", server.URL, "", "")

	memories, err := c.List(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, memories, 2)

	require.NoError(t, c.Delete(context.Background(), "m1"))
}

func TestServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient("test-key", server.URL, "", "")
	_, err := c.Search(context.Background(), "user-1", "anything", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestEnabled(t *testing.T) {
	assert.False(t, NewClient("", "", "", "").Enabled())
	assert.True(t, NewClient("key", "", "", "").Enabled())
}
