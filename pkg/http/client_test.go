package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetJSONResolvesBaseURLAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/ping", r.URL.Path)
		require.Equal(t, "usd", r.URL.Query().Get("vs"))
		require.Equal(t, "secret", r.Header.Get("x-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL+"/v3"), WithHeader("x-key", "secret"))
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/ping", map[string][]string{"vs": {"usd"}}, &out))
	require.True(t, out.OK)
}

func TestSendAndParseStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	err := NewClient().GetJSON(context.Background(), srv.URL, nil, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	require.False(t, IsTransport(err))
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient().GetJSON(context.Background(), url, nil, nil)
	require.Error(t, err)
	require.True(t, IsTransport(err))
	require.Zero(t, StatusCode(err))
}
