package dl

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// parseRange 解析 bytes=start-end，没有range时返回整个文件
func parseRange(r *http.Request, size int64) (int64, int64, bool) {
	h := r.Header.Get("Range")
	if h == "" {
		return 0, size - 1, false
	}
	parts := strings.Split(strings.TrimPrefix(h, "bytes="), "-")
	start, _ := strconv.ParseInt(parts[0], 10, 64)
	end, _ := strconv.ParseInt(parts[1], 10, 64)
	if end >= size {
		end = size - 1
	}
	return start, end, true
}

func serveRange(w http.ResponseWriter, r *http.Request, data []byte) {
	start, end, ranged := parseRange(r, int64(len(data)))
	if !ranged {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
		return
	}
	w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.Itoa(len(data)))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = w.Write(data[start : end+1])
}

type recorder struct {
	mu       sync.Mutex
	results  []Result
	errs     []error
	percents []int
	bytes    []int64
}

func (r *recorder) OnSuccess(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) OnFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) OnProgress(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percents = append(r.percents, percent)
}

func (r *recorder) OnBytes(done, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes = append(r.bytes, done)
}

func (r *recorder) snapshot() ([]Result, []error, []int, []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...), append([]error(nil), r.errs...),
		append([]int(nil), r.percents...), append([]int64(nil), r.bytes...)
}

func newTestDispatcher(t *testing.T, cfg Config) *Dispatcher {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg.Logger = logger
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = time.Millisecond
	}
	d, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}
