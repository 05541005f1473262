package dl

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/timerzz/rangedl/pkg/utils"
)

// Task 是一个url的分片下载任务，由Dispatcher创建和回收
type Task struct {
	ID    uuid.UUID
	URL   string
	Dest  string
	Total int64

	fingerprint string
	tmp         string
	chunks      []*chunk
	listener    Listener

	d       *Dispatcher
	file    *os.File
	events  chan event
	fetcher *fetcher
	log     logrus.FieldLogger

	// 下面的字段只在汇总协程里访问
	downloaded int64 //累计下载的字节数
	finished   int   //成功的分片数
	done       bool  //已经回调过成功或者失败

	recycled atomic.Bool
}

func newTask(d *Dispatcher, url, dest, fingerprint string, total int64, l Listener) *Task {
	id := uuid.New()
	t := &Task{
		ID:          id,
		URL:         url,
		Dest:        dest,
		Total:       total,
		fingerprint: fingerprint,
		tmp:         filepath.Join(filepath.Dir(dest), fingerprint),
		listener:    l,
		d:           d,
		log:         d.cfg.Logger.WithFields(logrus.Fields{"task": id.String(), "url": url}),
	}
	return t
}

// Tmp 临时文件的路径
func (t *Task) Tmp() string {
	return t.tmp
}

// start 切分区间，把每个分片交给协程池，然后在单独的协程里汇总结果
func (t *Task) start() {
	if t.Total == 0 {
		t.finishEmpty()
		return
	}

	if err := os.MkdirAll(filepath.Dir(t.tmp), 0755); err != nil {
		t.abort(errors.Wrapf(err, "创建目录%s失败", filepath.Dir(t.tmp)))
		return
	}
	// 同名的临时文件可能是上次合并失败留下的，必须清空
	file, err := os.OpenFile(t.tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		t.abort(errors.Wrapf(err, "创建临时文件%s失败", t.tmp))
		return
	}
	t.file = file

	ranges := partition(t.Total, t.d.cfg.Segments)
	t.chunks = make([]*chunk, 0, len(ranges))
	for i, r := range ranges {
		t.chunks = append(t.chunks, newChunk(i, r, file))
	}
	t.log.Debugf("文件大小%d，分成%d片", t.Total, len(t.chunks))

	t.events = make(chan event, 4*len(t.chunks))
	t.fetcher = &fetcher{
		client:     t.d.client,
		url:        t.URL,
		total:      t.Total,
		bufferSize: t.d.cfg.BufferSize,
		interval:   t.d.cfg.RetryInterval,
		retryMax:   t.d.RetryMax,
		events:     t.events,
		log:        t.log,
	}
	if limit := t.d.cfg.RateLimit; limit > 0 {
		t.fetcher.limiter = rate.NewLimiter(rate.Limit(limit), max(int(limit), t.d.cfg.BufferSize))
	}

	go t.loop()

	for i, c := range t.chunks {
		c := c
		if err = t.d.pool.Submit(func() {
			t.fetcher.run(t.d.ctx, c)
		}); err != nil {
			// 没能提交的分片直接当作失败，保证每个分片都有一个结束事件
			for _, rest := range t.chunks[i:] {
				t.events <- event{kind: event_failure, chunk: rest, err: errors.Wrap(err, "提交任务失败")}
			}
			return
		}
	}
}

// loop 汇总所有分片的事件，直到每个分片都结束
func (t *Task) loop() {
	exited := 0
	for exited < len(t.chunks) {
		ev := <-t.events
		switch ev.kind {
		case event_progress:
			t.onProgress(ev.n)
		case event_success:
			exited++
			t.onSuccess()
		case event_stopped:
			exited++
		case event_failure:
			exited++
			t.onFailure(ev.chunk, ev.err)
		}
	}
	t.closeFile()
}

func (t *Task) onProgress(n int64) {
	if t.done {
		return
	}
	t.downloaded += n
	if bl, ok := t.listener.(BytesListener); ok {
		bl.OnBytes(t.downloaded, t.Total)
	}
	t.listener.OnProgress(int(t.downloaded * 100 / t.Total))
}

func (t *Task) onSuccess() {
	t.finished++
	if t.done || t.finished < len(t.chunks) {
		return
	}
	t.done = true
	t.closeFile()

	if err := utils.CopyFile(t.tmp, t.Dest); err != nil {
		t.log.Warnf("%s复制到%s失败：%v", t.tmp, t.Dest, err)
		t.listener.OnSuccess(Result{Path: t.tmp, MergeErr: err})
	} else {
		t.listener.OnSuccess(Result{Path: t.Dest, Merged: true})
		t.removeTmp()
	}
	t.d.Recycle(t)
}

func (t *Task) onFailure(c *chunk, err error) {
	if t.done {
		return
	}
	t.done = true
	t.stop()
	t.log.Errorf("分片%d失败，终止下载：%v", c.index, err)
	t.listener.OnFailure(err)
	t.removeTmp()
	t.d.Recycle(t)
}

// abort 在分片开始之前失败
func (t *Task) abort(err error) {
	t.done = true
	t.log.Errorf("任务启动失败：%v", err)
	t.listener.OnFailure(err)
	t.d.Recycle(t)
}

// finishEmpty 空文件不需要请求，直接创建目标文件
func (t *Task) finishEmpty() {
	t.done = true
	if err := os.MkdirAll(filepath.Dir(t.Dest), 0755); err != nil {
		t.listener.OnFailure(errors.Wrapf(err, "创建目录%s失败", filepath.Dir(t.Dest)))
		t.d.Recycle(t)
		return
	}
	f, err := os.Create(t.Dest)
	if err != nil {
		t.listener.OnFailure(errors.Wrapf(err, "创建%s失败", t.Dest))
		t.d.Recycle(t)
		return
	}
	_ = f.Close()
	t.listener.OnProgress(100)
	t.listener.OnSuccess(Result{Path: t.Dest, Merged: true})
	t.d.Recycle(t)
}

// stop 通知所有分片停止，正在读的分片要到下一个块才会看到
func (t *Task) stop() {
	for _, c := range t.chunks {
		c.stop()
	}
}

func (t *Task) closeFile() {
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
	}
}

func (t *Task) removeTmp() {
	if err := os.Remove(t.tmp); err != nil && !os.IsNotExist(err) {
		t.log.Warnf("删除临时文件%s失败：%v", t.tmp, err)
	}
}
