package mcl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gridJSON = `{"width":2,"height":2,"resolution":0.1,"cells":[0,0,0,1]}`

func TestFetchMap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(gridJSON))
	}))
	defer server.Close()

	grid, err := FetchMap(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, grid.Width)
	assert.Equal(t, []int8{0, 0, 0, 1}, grid.Cells)
}

func TestFetchMapCompressed(t *testing.T) {
	compressed, err := DeflateZlib([]byte(gridJSON))
	require.NoError(t, err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(compressed)
	}))
	defer server.Close()

	grid, err := FetchMap(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, grid.Height)
}

func TestFetchMapRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(gridJSON))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	grid, err := FetchMap(ctx, server.URL, WithMaxRetries(4))
	require.NoError(t, err)
	assert.Equal(t, 2, grid.Width)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchMapGivesUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := FetchMap(context.Background(), server.URL, WithMaxRetries(1))
	assert.Error(t, err)
}

func TestFetchMapEmptyURL(t *testing.T) {
	_, err := FetchMap(context.Background(), "")
	assert.Error(t, err)
}
