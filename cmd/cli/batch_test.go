package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- url: http://example.com/a.bin
  output: a.bin
- url: http://example.com/x/b.iso
`), 0644))

	entries, err := readEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, filepath.Join("/tmp", "a.bin"), entries[0].resolve("/tmp"))
	assert.Equal(t, filepath.Join("/tmp", "b.iso"), entries[1].resolve("/tmp"))

	require.NoError(t, os.WriteFile(path, []byte("- output: a.bin\n"), 0644))
	_, err = readEntries(path)
	assert.Error(t, err)
}

func TestRunBatch(t *testing.T) {
	data := []byte("batch download content")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Range") == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			_, _ = w.Write(data)
			return
		}
		http.ServeContent(w, r, "f", time.Time{}, bytes.NewReader(data))
	}))
	defer server.Close()

	var o options
	o.dir = t.TempDir()
	o.cfg.RetryInterval = time.Millisecond

	err := runBatch(context.Background(), o, []entry{
		{URL: server.URL + "/one", Output: "one"},
		{URL: server.URL + "/two", Output: "two"},
	}, 2)
	require.NoError(t, err)
	for _, name := range []string{"one", "two"} {
		got, err := os.ReadFile(filepath.Join(o.dir, name))
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}

	err = runBatch(context.Background(), o, []entry{{URL: server.URL + "/missing"}}, 1)
	assert.Error(t, err)
}
