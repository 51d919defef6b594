package searchindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureMapping_TreatsAlreadyExistsAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "resource_already_exists_exception"},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Index: "events"})
	err := c.EnsureMapping(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
}

func TestEnsureMapping_OtherErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "cluster_block_exception"},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Index: "events"})
	err := c.EnsureMapping(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestBulk_ParsesPerItemResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{
				{"index": map[string]interface{}{"_id": "a", "status": 201}},
				{"index": map[string]interface{}{"_id": "b", "status": 400, "error": map[string]string{"type": "mapper_parsing_exception", "reason": "bad field"}}},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Index: "events"})
	results, err := c.Bulk(context.Background(), []byte(`{"index":{"_id":"a"}}`+"\n{}\n"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].ID)
	require.NoError(t, results[0].Err)
	require.Equal(t, "b", results[1].ID)
	require.Error(t, results[1].Err)
}
