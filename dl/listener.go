package dl

// Result 是下载成功时交给调用方的结果
//
// Merged为false时，临时文件复制到目标路径失败了，Path指向仍然完整的临时文件，
// MergeErr记录复制失败的原因，调用方需要自己处理这个文件
type Result struct {
	Path     string
	Merged   bool
	MergeErr error
}

// Listener 接收一个下载任务的所有结果。同一个任务的回调都在一个协程里串行调用，
// OnSuccess和OnFailure只会有一个被调用，并且只调用一次
type Listener interface {
	OnSuccess(res Result)
	OnFailure(err error)
	OnProgress(percent int)
}

// BytesListener 可选，实现了的Listener会额外收到字节级进度
type BytesListener interface {
	OnBytes(done, total int64)
}

// ListenerFuncs 用函数拼出一个Listener，nil的字段会被忽略
type ListenerFuncs struct {
	Success  func(res Result)
	Failure  func(err error)
	Progress func(percent int)
}

func (l ListenerFuncs) OnSuccess(res Result) {
	if l.Success != nil {
		l.Success(res)
	}
}

func (l ListenerFuncs) OnFailure(err error) {
	if l.Failure != nil {
		l.Failure(err)
	}
}

func (l ListenerFuncs) OnProgress(percent int) {
	if l.Progress != nil {
		l.Progress(percent)
	}
}
