package dl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imroc/req/v3"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"

	"github.com/timerzz/rangedl/pkg/client"
	"github.com/timerzz/rangedl/pkg/syncset"
	"github.com/timerzz/rangedl/pkg/utils"
)

// Dispatcher 负责准入：同一个url同时只允许一个任务，探测文件大小后创建并启动任务
type Dispatcher struct {
	cfg Config

	client   *req.Client  //http客户端
	pool     *ants.Pool   //协程池，不限大小，空闲的协程过期回收
	registry *syncset.Set //下载中的url指纹

	mu      sync.Mutex
	running map[string]*Task
	closed  bool //和wg.Add一起受mu保护

	retryMax atomic.Int64
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config) (*Dispatcher, error) {
	cfg = cfg.withDefaults()
	pool, err := ants.NewPool(-1,
		ants.WithExpiryDuration(cfg.PoolExpiry),
		ants.WithNonblocking(true),
		ants.WithLogger(cfg.Logger),
		ants.WithPanicHandler(func(p interface{}) {
			cfg.Logger.Errorf("下载协程panic：%v", p)
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "创建协程池失败")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:      cfg,
		client:   client.New(client.Options{Proxy: cfg.Proxy, Timeout: cfg.Timeout}),
		pool:     pool,
		registry: syncset.New(),
		running:  make(map[string]*Task),
		ctx:      ctx,
		cancel:   cancel,
	}
	d.retryMax.Store(int64(cfg.RetryCount))
	return d, nil
}

// SetRetryMax 修改分片和探测的最大重试次数，对之后的重试生效
func (d *Dispatcher) SetRetryMax(n int) {
	if n < 0 {
		n = 0
	}
	d.retryMax.Store(int64(n))
}

func (d *Dispatcher) RetryMax() int {
	return int(d.retryMax.Load())
}

// Down 下载url到dest，立即返回，所有结果都通过listener通知
func (d *Dispatcher) Down(url, dest string, l Listener) {
	if url == "" || dest == "" {
		l.OnFailure(ErrInvalidRequest)
		return
	}
	d.Start(url, dest, l)
}

// Start 同一个url已经在下载时直接回调失败，不会发出任何请求
func (d *Dispatcher) Start(url, dest string, l Listener) {
	fp := utils.Fingerprint(url)
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		l.OnFailure(ErrClosed)
		return
	}
	if !d.registry.Add(fp) {
		d.mu.Unlock()
		d.cfg.Logger.WithField("url", url).Warn("重复下载，忽略")
		l.OnFailure(ErrDuplicate)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	if err := d.pool.Submit(func() {
		d.admit(url, dest, fp, l)
	}); err != nil {
		d.release(fp)
		l.OnFailure(errors.Wrap(err, "提交任务失败"))
	}
}

func (d *Dispatcher) admit(url, dest, fp string, l Listener) {
	total, err := d.probe(url)
	if err != nil {
		d.release(fp)
		l.OnFailure(err)
		return
	}

	task := newTask(d, url, dest, fp, total, l)
	d.mu.Lock()
	d.running[fp] = task
	d.mu.Unlock()
	task.start()
}

// probe 用普通请求获取文件大小，网络错误按 2s,4s,6s... 重试
func (d *Dispatcher) probe(url string) (int64, error) {
	log := d.cfg.Logger.WithField("url", url)
	for attempt := 0; ; attempt++ {
		resp, err := client.Get(d.ctx, d.client, url, "")
		if err == nil {
			total := resp.ContentLength
			client.Close(resp)
			if total < 0 {
				return 0, ErrUnknownLength
			}
			return total, nil
		}
		if d.ctx.Err() != nil || client.Permanent(err) || attempt >= d.RetryMax() {
			return 0, err
		}

		delay := time.Duration((attempt+1)*2) * d.cfg.RetryInterval
		log.Warnf("获取文件大小失败，%v后第%d次重试：%v", delay, attempt+1, err)
		if !sleep(d.ctx, delay) {
			return 0, err
		}
	}
}

// Recycle 把任务从运行表和去重表里移除，每个任务只生效一次
func (d *Dispatcher) Recycle(t *Task) {
	if !t.recycled.CompareAndSwap(false, true) {
		return
	}
	d.mu.Lock()
	if d.running[t.fingerprint] == t {
		delete(d.running, t.fingerprint)
	}
	d.mu.Unlock()
	d.release(t.fingerprint)
}

func (d *Dispatcher) release(fp string) {
	d.registry.Remove(fp)
	d.wg.Done()
}

// Running 正在下载的任务数量
func (d *Dispatcher) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

// InFlight url是否正在下载，包括还在探测大小的
func (d *Dispatcher) InFlight(url string) bool {
	return d.registry.Contains(utils.Fingerprint(url))
}

// Wait 等待所有已经接受的下载回调结束
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close 取消所有请求并等待任务结束。不能在Listener的回调里调用
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
	d.pool.Release()
}
