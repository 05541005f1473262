package progressbar

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/timerzz/rangedl/pkg/utils"
)

type cfg struct {
	interval   time.Duration
	stepHook   func(*Bar)
	finishHook func()
	title      string
	out        io.Writer
}

// Bar 定时把进度渲染到一行，进度由下载回调写入，可以并发设置
type Bar struct {
	total   atomic.Int64
	cur     atomic.Int64
	percent atomic.Int64

	lastCur  int64
	lastTime time.Time

	cfg cfg

	finish chan struct{}
	done   chan struct{}
}

func New(opts ...Option) *Bar {
	c := cfg{interval: time.Second, out: os.Stdout}
	for _, opt := range opts {
		opt(&c)
	}
	return &Bar{
		cfg:    c,
		finish: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (b *Bar) Run() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.interval)
	defer ticker.Stop()
	b.lastTime = time.Now()
	for {
		select {
		case <-ticker.C:
			if b.cfg.stepHook != nil {
				b.cfg.stepHook(b)
			}
			b.render()
		case <-b.finish:
			if b.cfg.stepHook != nil {
				b.cfg.stepHook(b)
			}
			b.render()
			if b.cfg.finishHook != nil {
				b.cfg.finishHook()
			}
			return
		}
	}
}

func (b *Bar) render() {
	cur, total := b.cur.Load(), b.total.Load()
	speed := utils.SpeedFormat(b.lastTime, cur-b.lastCur)
	b.lastCur, b.lastTime = cur, time.Now()
	if total <= 0 {
		_, _ = fmt.Fprintf(b.cfg.out, "\r %s %3d%% %20s", b.cfg.title, b.percent.Load(), speed)
		return
	}
	_, _ = fmt.Fprintf(b.cfg.out, "\r %s %3d%%  %s/%s %20s", b.cfg.title, b.percent.Load(),
		utils.FormatSize(cur), utils.FormatSize(total), speed)
}

func (b *Bar) SetTotal(t int64) {
	b.total.Store(t)
}

func (b *Bar) SetCur(c int64) {
	b.cur.Store(c)
}

func (b *Bar) SetPercent(p int) {
	b.percent.Store(int64(p))
}

// Finish 渲染最后一次并等待Run退出
func (b *Bar) Finish() {
	b.finish <- struct{}{}
	<-b.done
}

type Option func(*cfg)

func WithInterval(duration time.Duration) func(*cfg) {
	return func(cfg *cfg) {
		cfg.interval = duration
	}
}

func WithTitle(title string) func(*cfg) {
	return func(cfg *cfg) {
		cfg.title = title
	}
}

func WithOutput(w io.Writer) func(*cfg) {
	return func(cfg *cfg) {
		cfg.out = w
	}
}

func WithStepHook(h func(self *Bar)) func(*cfg) {
	return func(cfg *cfg) {
		cfg.stepHook = h
	}
}

func WithFinishHook(h func()) func(*cfg) {
	return func(cfg *cfg) {
		cfg.finishHook = h
	}
}
