package memoryhints_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darianrosebrook/sterling-executor/agent/config"
	"github.com/darianrosebrook/sterling-executor/agent/memoryhints"
)

func testCfg() config.MemoryHintsConfig {
	return config.MemoryHintsConfig{
		Timeout:     time.Second,
		Retries:     2,
		BaseBackoff: time.Millisecond,
	}
}

func TestFetch_ReturnsHints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req memoryhints.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "craft a pickaxe", req.Goal)
		json.NewEncoder(w).Encode(memoryhints.Response{Hints: []memoryhints.Hint{
			{Kind: "recipe", Content: "craft planks first", Weight: 0.8},
		}})
	}))
	defer srv.Close()

	c := memoryhints.NewClient(srv.URL, testCfg(), nil)
	hints, err := c.Fetch(context.Background(), memoryhints.Request{Goal: "craft a pickaxe"})

	require.NoError(t, err)
	require.Len(t, hints, 1)
	assert.Equal(t, "craft planks first", hints[0].Content)
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(memoryhints.Response{Hints: []memoryhints.Hint{{Kind: "nav", Content: "avoid ravine"}}})
	}))
	defer srv.Close()

	c := memoryhints.NewClient(srv.URL, testCfg(), nil)
	hints, err := c.Fetch(context.Background(), memoryhints.Request{Goal: "explore"})

	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
	require.Len(t, hints, 1)
}

func TestFetch_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := memoryhints.NewClient(srv.URL, testCfg(), nil)
	_, err := c.Fetch(context.Background(), memoryhints.Request{Goal: "explore"})

	require.Error(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestFetch_ContextCancelStopsRetryLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testCfg()
	cfg.BaseBackoff = time.Minute
	c := memoryhints.NewClient(srv.URL, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Fetch(ctx, memoryhints.Request{Goal: "explore"})

	require.ErrorIs(t, err, context.Canceled)
}
