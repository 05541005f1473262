package dl

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/imroc/req/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/timerzz/rangedl/pkg/client"
)

var errStopped = errors.New("chunk stopped")

type eventKind int

const (
	event_progress = eventKind(iota)
	event_success
	event_stopped
	event_failure
)

// event 由分片协程发给任务的汇总协程，除了progress之外每个分片只发一个
type event struct {
	kind  eventKind
	chunk *chunk
	n     int64
	err   error
}

// fetcher 负责单个任务里所有分片的下载
type fetcher struct {
	client     *req.Client
	url        string
	total      int64
	bufferSize int
	interval   time.Duration
	retryMax   func() int
	limiter    *rate.Limiter
	events     chan<- event
	log        logrus.FieldLogger
}

// run 下载一个分片，失败后在同一个协程里退避重试，直到成功、被停止或者重试次数用完
func (f *fetcher) run(ctx context.Context, c *chunk) {
	log := f.log.WithField("segment", c.index)
	for {
		if c.complete() {
			f.events <- event{kind: event_success, chunk: c}
			return
		}

		err := f.download(ctx, c)
		if err == nil {
			log.Debugf("分片[%d,%d]下载完成", c.start, c.end)
			f.events <- event{kind: event_success, chunk: c}
			return
		}
		if c.stopped() || errors.Is(err, errStopped) {
			f.events <- event{kind: event_stopped, chunk: c}
			return
		}
		if ctx.Err() != nil || errors.Is(err, ErrRangeUnsupported) || client.Permanent(err) || c.retryTimes >= f.retryMax() {
			log.Errorf("分片[%d,%d]下载失败，已写入%d：%v", c.start, c.end, c.written, err)
			f.events <- event{kind: event_failure, chunk: c, err: err}
			return
		}

		delay := time.Duration(c.retryTimes+1) * f.interval
		c.retryTimes++
		log.Warnf("分片下载出错，%v后第%d次重试：%v", delay, c.retryTimes, err)
		if !sleep(ctx, delay) {
			f.events <- event{kind: event_failure, chunk: c, err: ctx.Err()}
			return
		}
		if c.stopped() {
			f.events <- event{kind: event_stopped, chunk: c}
			return
		}
	}
}

func (f *fetcher) download(ctx context.Context, c *chunk) error {
	from := c.offset()
	resp, err := client.Get(ctx, f.client, f.url, client.Range(from, c.end))
	if err != nil {
		return err
	}
	defer client.Close(resp)

	// 整个文件只有一个分片的时候，服务器不支持range也能接受
	if resp.StatusCode != http.StatusPartialContent && !(from == 0 && c.end == f.total-1) {
		return errors.Wrapf(ErrRangeUnsupported, "status %d", resp.StatusCode)
	}

	remaining := c.end - from + 1
	body := io.LimitReader(resp.Body, remaining)
	buf := make([]byte, f.bufferSize)
	for remaining > 0 {
		n, rerr := body.Read(buf)
		if n > 0 {
			if f.limiter != nil {
				if err = f.limiter.WaitN(ctx, n); err != nil {
					return err
				}
			}
			if _, err = c.file.WriteAt(buf[:n], c.offset()); err != nil {
				return errors.Wrapf(err, "写入偏移%d失败", c.offset())
			}
			c.written += int64(n)
			remaining -= int64(n)
			f.events <- event{kind: event_progress, chunk: c, n: int64(n)}
			if c.stopped() {
				return errStopped
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return errors.Wrap(rerr, "读取响应失败")
		}
	}
	if remaining > 0 {
		return errors.Wrapf(io.ErrUnexpectedEOF, "还差%d字节", remaining)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
