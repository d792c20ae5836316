package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts := Options{
		Name:     "test",
		BaseURL:  srv.URL + "/v4",
		Password: "youshallnotpass",
		Timeout:  2 * time.Second,
		RetryMax: 1,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func TestDoDecodesJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/info", r.URL.Path)
		assert.Equal(t, "youshallnotpass", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(protocol.Info{SourceManagers: []string{"youtube"}})
	}, nil)

	var info protocol.Info
	require.NoError(t, client.Do(context.Background(), http.MethodGet, "/info", nil, &info))
	assert.Equal(t, []string{"youtube"}, info.SourceManagers)
}

func TestDoSendsBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"resuming":true,"timeout":360}`, string(raw))
		w.WriteHeader(http.StatusNoContent)
	}, nil)

	err := client.Do(context.Background(), http.MethodPatch, "/sessions/abc", protocol.SessionUpdate{Resuming: true, Timeout: 360}, nil)
	require.NoError(t, err)
}

func TestDoErrorResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(protocol.ErrorResponse{Status: 404, Error: "Not Found", Message: "Session not found"})
	}, nil)

	err := client.Do(context.Background(), http.MethodGet, "/sessions/x/players", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	var restErr *Error
	require.True(t, errors.As(err, &restErr))
	assert.Equal(t, "Session not found", restErr.Message)
}

func TestDoRetriesOnlyGet(t *testing.T) {
	var gets, patches atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if gets.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"players":1}`))
			return
		}
		patches.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	var stats protocol.Stats
	require.NoError(t, client.Do(context.Background(), http.MethodGet, "/stats", nil, &stats))
	assert.Equal(t, int32(2), gets.Load())
	assert.Equal(t, 1, stats.Players)

	err := client.Do(context.Background(), http.MethodPatch, "/sessions/a/players/1", map[string]any{}, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	assert.Equal(t, int32(1), patches.Load())
}

func TestDoTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, func(o *Options) {
		o.Timeout = 50 * time.Millisecond
	})

	err := client.Do(context.Background(), http.MethodGet, "/stats", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, 0, StatusCode(err))
}

func TestObserver(t *testing.T) {
	var calls []int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, func(o *Options) {
		o.Observer = func(name, method, path string, status int, elapsed time.Duration, err error) {
			assert.Equal(t, "test", name)
			assert.Equal(t, "/sessions/a/players/1", path)
			calls = append(calls, status)
		}
	})

	require.NoError(t, client.Do(context.Background(), http.MethodDelete, "/sessions/a/players/1", nil, nil))
	assert.Equal(t, []int{http.StatusNoContent}, calls)
}

func TestBreakerOpensAfterServerErrors(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, func(o *Options) {
		o.RetryMax = -1
	})

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		require.Error(t, client.Do(ctx, http.MethodPost, "/decodetracks", []string{}, nil))
	}
	err := client.Do(ctx, http.MethodPost, "/decodetracks", []string{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, int32(6), hits.Load())
}

func TestClientErrorsKeepBreakerClosed(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, nil)

	for i := 0; i < 10; i++ {
		require.Error(t, client.Do(context.Background(), http.MethodGet, "/loadtracks", nil, nil))
	}
	assert.Equal(t, int32(10), hits.Load())
}
