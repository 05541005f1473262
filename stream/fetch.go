package stream

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/timerzz/nio"

	"github.com/timerzz/rangedl/pkg/client"
)

// Fetch 一次性下载小文件，不续传也不重试。
// 状态码不是200时用状态码作为失败的code，其他错误用CodeFailed
func (d *Downloader) Fetch(ctx context.Context, url, dest string, l Listener) error {
	resp, err := d.client.R().SetContext(ctx).DisableAutoReadResponse().Get(url)
	if err != nil {
		client.Close(resp)
		l.OnFailed(CodeFailed, err.Error())
		return errors.Wrapf(err, "请求%s失败", url)
	}
	defer client.Close(resp)
	if resp.StatusCode != http.StatusOK {
		l.OnFailed(Code(resp.StatusCode), "request server failed")
		return &client.StatusError{Code: resp.StatusCode}
	}

	f, err := os.Create(dest)
	if err != nil {
		l.OnFailed(CodeFailed, err.Error())
		return errors.Wrapf(err, "创建%s失败", dest)
	}
	defer f.Close()

	total, sum := resp.ContentLength, int64(0)
	w := nio.NWriter(f, func(n int) {
		sum += int64(n)
		if total > 0 {
			l.OnProgress(int(sum * 100 / total))
		}
	})
	if _, err = io.CopyBuffer(w, resp.Body, make([]byte, d.cfg.BufferSize)); err != nil {
		l.OnFailed(CodeFailed, err.Error())
		return errors.Wrap(err, "读取响应失败")
	}
	l.OnSuccess(dest)
	return nil
}
