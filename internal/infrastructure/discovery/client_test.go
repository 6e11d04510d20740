package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPersistedOptimizedNoUUIDsShortCircuits(t *testing.T) {
	c := NewHTTPClient("http://unused.invalid", nil, nil)
	idx, err := c.FindPersistedOptimized(context.Background(), "10.0.0.1:9999", nil)
	require.NoError(t, err)
	assert.Nil(t, idx)
}

func TestFindPersistedOptimizedParsesResponse(t *testing.T) {
	u1, u2 := uuid.New(), uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req findPersistedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "10.0.0.1:9999", req.Addr)
		assert.ElementsMatch(t, []uuid.UUID{u1, u2}, req.UUIDs)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(findPersistedResponse{PersistedIndexes: []int{1}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)
	idx, err := c.FindPersistedOptimized(context.Background(), "10.0.0.1:9999", []uuid.UUID{u1, u2})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, idx)
}
