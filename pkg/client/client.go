// Package client 构建下载用的http客户端，并对响应状态做分类
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/imroc/req/v3"
	"github.com/pkg/errors"
)

type Options struct {
	Proxy   string
	Timeout *time.Duration
}

// New 创建客户端。没有设置超时的时候不限制整个请求的时长，大文件的body可能要读很久
func New(opts Options) *req.Client {
	client := req.C().
		SetTimeout(0).
		// 不要透明解压，否则拿不到Content-Length，range也会错位
		SetCommonHeader("Accept-Encoding", "identity")
	if opts.Proxy != "" {
		client = client.SetProxyURL(opts.Proxy)
	}
	if opts.Timeout != nil {
		client = client.SetTimeout(*opts.Timeout).SetTLSHandshakeTimeout(*opts.Timeout)
	}
	return client
}

// Range 生成 bytes=from-to 形式的range头
func Range(from, to int64) string {
	return fmt.Sprintf("bytes=%d-%d", from, to)
}

// Get 发起GET请求，不自动读取body，调用方负责关闭resp.Body
func Get(ctx context.Context, c *req.Client, url, rangeHeader string) (*req.Response, error) {
	r := c.R().SetContext(ctx).DisableAutoReadResponse()
	if rangeHeader != "" {
		r.SetHeader("Range", rangeHeader)
	}
	resp, err := r.Get(url)
	if err != nil {
		Close(resp)
		return nil, errors.Wrapf(err, "请求%s失败", url)
	}
	if resp.Response == nil {
		return nil, errors.Errorf("请求%s没有响应", url)
	}
	if err = CheckStatus(resp); err != nil {
		Close(resp)
		return nil, err
	}
	return resp, nil
}

// Close 关闭响应的body，可以传nil
func Close(resp *req.Response) {
	if resp != nil && resp.Response != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Temporary 5xx和429可以重试
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

func CheckStatus(resp *req.Response) error {
	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Permanent 判断错误是否不值得重试
func Permanent(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Temporary()
	}
	return false
}
