package dl

import (
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultRetryCount = 10
	MinSegments       = 2
	MaxSegments       = 4

	defaultBufferSize    = 4 * 1024
	defaultRetryInterval = time.Second
	defaultPoolExpiry    = 60 * time.Second
)

type Config struct {
	RetryCount int            //分片的最大重试次数，0使用默认值，负数不重试
	Segments   int            //分片数量，0表示按cpu数量计算
	Proxy      string         //代理
	Timeout    *time.Duration //单个请求的超时时间

	RetryInterval time.Duration //退避的时间单位，第n次重试等待n个单位
	RateLimit     int64         //单个任务每秒最多下载的字节数，0不限速
	BufferSize    int           //每次读取的块大小
	PoolExpiry    time.Duration //协程空闲多久后回收

	Logger logrus.FieldLogger
}

func (c Config) withDefaults() Config {
	if c.RetryCount < 0 {
		c.RetryCount = 0
	} else if c.RetryCount == 0 {
		c.RetryCount = DefaultRetryCount
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.PoolExpiry <= 0 {
		c.PoolExpiry = defaultPoolExpiry
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	c.Segments = clampSegments(c.Segments)
	return c
}

// SegmentCount 根据cpu数量计算分片数，结果在[2,4]之间
func SegmentCount() int {
	return clampSegments(runtime.NumCPU() - 1)
}

func clampSegments(n int) int {
	if n <= 0 {
		n = runtime.NumCPU() - 1
	}
	return max(MinSegments, min(n, MaxSegments))
}
