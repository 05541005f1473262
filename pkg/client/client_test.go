package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange(t *testing.T) {
	assert.Equal(t, "bytes=0-99", Range(0, 99))
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte(r.Header.Get("Range")))
		}
	}))
	defer server.Close()

	c := New(Options{})
	resp, err := Get(context.Background(), c, server.URL+"/ok", Range(1, 2))
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	Close(resp)
	require.NoError(t, err)
	assert.Equal(t, "bytes=1-2", string(b))

	_, err = Get(context.Background(), c, server.URL+"/missing", "")
	require.Error(t, err)
	assert.True(t, Permanent(err))

	_, err = Get(context.Background(), c, server.URL+"/busy", "")
	require.Error(t, err)
	assert.False(t, Permanent(err))
}

func TestPermanent(t *testing.T) {
	assert.False(t, Permanent(errors.New("io")))
	assert.True(t, Permanent(errors.Wrap(&StatusError{Code: 403}, "x")))
	assert.False(t, Permanent(&StatusError{Code: 429}))
}
