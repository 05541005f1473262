// Package stream 是单连接的断点续传下载，不需要分片时使用。
// 和dl包互相独立，各自维护自己的去重表
package stream

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/imroc/req/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/timerzz/nio"

	"github.com/timerzz/rangedl/pkg/client"
	"github.com/timerzz/rangedl/pkg/syncset"
)

type Code int

const (
	CodeFailed      Code = 500 //不可重试
	CodeFailedRetry Code = 501 //传输中断，可以重试
)

const (
	DefaultRetryCount = 5

	MsgDownloading     = "url is downloading"
	MsgSizeFetchFailed = "size fetch failed"
	MsgRequestFailed   = "request failed"
)

type Listener interface {
	OnSuccess(path string)
	OnFailed(code Code, msg string)
	OnProgress(percent int)
}

type Config struct {
	RetryCount    int //0使用默认值，负数不重试
	RetryInterval time.Duration
	BufferSize    int
	Proxy         string
	Timeout       *time.Duration
	Logger        logrus.FieldLogger
}

type Downloader struct {
	cfg         Config
	client      *req.Client
	retryMax    atomic.Int64
	downloading *syncset.Set //下载中的url，直接用原始url做key
}

func New(cfg Config) *Downloader {
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	} else if cfg.RetryCount == 0 {
		cfg.RetryCount = DefaultRetryCount
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4 * 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	d := &Downloader{
		cfg:         cfg,
		client:      client.New(client.Options{Proxy: cfg.Proxy, Timeout: cfg.Timeout}),
		downloading: syncset.New(),
	}
	d.retryMax.Store(int64(cfg.RetryCount))
	return d
}

func (d *Downloader) SetRetryMax(n int) {
	if n < 0 {
		n = 0
	}
	d.retryMax.Store(int64(n))
}

func (d *Downloader) RetryMax() int {
	return int(d.retryMax.Load())
}

// Downloading url是否正在下载
func (d *Downloader) Downloading(url string) bool {
	return d.downloading.Contains(url)
}

// Start 从头开始下载url到dest，阻塞到回调了成功或者失败。
// 已经存在的dest会被删除，中途断开后从已下载的位置继续追加
func (d *Downloader) Start(ctx context.Context, url, dest string, l Listener) {
	t := &task{
		d:        d,
		url:      url,
		dest:     dest,
		listener: l,
		log:      d.cfg.Logger.WithFields(logrus.Fields{"url": url, "dest": dest}),
	}
	t.start(ctx)
}

type task struct {
	d        *Downloader
	url      string
	dest     string
	listener Listener
	log      logrus.FieldLogger

	total      int64
	downloaded int64
	retryCount int
	started    bool
}

func (t *task) start(ctx context.Context) {
	if t.started {
		return
	}
	if t.d.downloading.Contains(t.url) {
		t.listener.OnFailed(CodeFailed, MsgDownloading)
		return
	}

	total, err := t.size(ctx)
	if err != nil {
		t.log.Warnf("获取文件大小失败：%v", err)
		t.listener.OnFailed(CodeFailed, errors.Wrap(err, MsgRequestFailed).Error())
		return
	}
	if total <= 0 {
		t.listener.OnFailed(CodeFailed, MsgSizeFetchFailed)
		return
	}

	if !t.d.downloading.Add(t.url) {
		t.listener.OnFailed(CodeFailed, MsgDownloading)
		return
	}
	defer t.d.downloading.Remove(t.url)

	if err = os.Remove(t.dest); err != nil && !os.IsNotExist(err) {
		t.fail(CodeFailed, errors.Wrapf(err, "删除%s失败", t.dest).Error())
		return
	}
	if err = os.MkdirAll(filepath.Dir(t.dest), 0755); err != nil {
		t.fail(CodeFailed, errors.Wrapf(err, "创建目录%s失败", filepath.Dir(t.dest)).Error())
		return
	}

	t.started = true
	t.total = total
	t.run(ctx)
}

// size 用普通请求获取文件大小，没有Content-Length时返回-1
func (t *task) size(ctx context.Context) (int64, error) {
	resp, err := client.Get(ctx, t.d.client, t.url, "")
	if err != nil {
		return 0, err
	}
	defer client.Close(resp)
	return resp.ContentLength, nil
}

// run 下载直到成功或者失败，可重试的错误按 1s,2s,3s... 退避
func (t *task) run(ctx context.Context) {
	for {
		err := t.down(ctx)
		if err == nil {
			t.listener.OnSuccess(t.dest)
			return
		}
		if client.Permanent(err) {
			t.fail(CodeFailed, err.Error())
			return
		}
		if ctx.Err() != nil || t.retryCount >= t.d.RetryMax() {
			t.fail(CodeFailedRetry, err.Error())
			return
		}

		delay := time.Duration(t.retryCount+1) * t.d.cfg.RetryInterval
		t.retryCount++
		t.log.Warnf("下载中断，已下载%d/%d，%v后第%d次重试：%v", t.downloaded, t.total, delay, t.retryCount, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.fail(CodeFailedRetry, ctx.Err().Error())
			return
		case <-timer.C:
		}
	}
}

func (t *task) fail(code Code, msg string) {
	t.log.Errorf("下载失败 code: %d, msg: %s, retry: %d", code, msg, t.retryCount)
	t.listener.OnFailed(code, msg)
}

// down 从downloaded的位置请求剩下的部分，追加写入dest
func (t *task) down(ctx context.Context) error {
	resp, err := client.Get(ctx, t.d.client, t.url, client.Range(t.downloaded, t.total))
	if err != nil {
		return err
	}
	defer client.Close(resp)

	flag := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if resp.StatusCode != http.StatusPartialContent && t.downloaded > 0 {
		// 服务器返回了整个文件，只能从头再来
		t.log.Warn("服务器不支持续传，从头开始下载")
		t.downloaded = 0
		flag = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(t.dest, flag, 0644)
	if err != nil {
		return errors.Wrapf(err, "打开%s失败", t.dest)
	}
	defer f.Close()

	w := nio.NWriter(f, func(n int) {
		t.downloaded += int64(n)
		t.listener.OnProgress(t.percent())
	})
	buf := make([]byte, t.d.cfg.BufferSize)
	if _, err = io.CopyBuffer(w, io.LimitReader(resp.Body, t.total-t.downloaded), buf); err != nil {
		return errors.Wrap(err, "读取响应失败")
	}
	if t.downloaded < t.total {
		return errors.Wrapf(io.ErrUnexpectedEOF, "已下载%d/%d", t.downloaded, t.total)
	}
	return nil
}

func (t *task) percent() int {
	return int(t.downloaded * 100 / t.total)
}
