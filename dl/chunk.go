package dl

import (
	"os"
	"sync/atomic"
)

const (
	chunk_status_downloading = chunkStatus(iota)
	chunk_status_stopped
)

type chunkStatus int32

// byteRange 闭区间[start,end]
type byteRange struct {
	start int64
	end   int64
}

func (r byteRange) size() int64 {
	return r.end - r.start + 1
}

// chunk 是一个分片，所有分片共用同一个临时文件，按各自的偏移写入
type chunk struct {
	index      int
	start      int64
	end        int64
	file       *os.File
	status     atomic.Int32
	written    int64 //已经写入的字节数，只在下载协程里读写
	retryTimes int   //重试的次数
}

func newChunk(index int, r byteRange, file *os.File) *chunk {
	return &chunk{
		index: index,
		start: r.start,
		end:   r.end,
		file:  file,
	}
}

// offset 下一个要写入的位置
func (c *chunk) offset() int64 {
	return c.start + c.written
}

func (c *chunk) complete() bool {
	return c.offset() > c.end
}

func (c *chunk) stop() {
	c.status.Store(int32(chunk_status_stopped))
}

func (c *chunk) stopped() bool {
	return chunkStatus(c.status.Load()) == chunk_status_stopped
}

// partition 把[0,total-1]切成n个连续不重叠的区间，余数交给最后一个。
// total小于n时每个区间只有一个字节
func partition(total int64, n int) []byteRange {
	if total <= 0 {
		return nil
	}
	if int64(n) > total {
		n = int(total)
	}
	size := total / int64(n)
	ranges := make([]byteRange, 0, n)
	for i := 0; i < n; i++ {
		start := int64(i) * size
		end := start + size - 1
		if i == n-1 {
			end = total - 1
		}
		ranges = append(ranges, byteRange{start: start, end: end})
	}
	return ranges
}
