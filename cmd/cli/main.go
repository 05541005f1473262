package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/timerzz/rangedl/dl"
	"github.com/timerzz/rangedl/pkg/progressbar"
	"github.com/timerzz/rangedl/pkg/utils"
	"github.com/timerzz/rangedl/stream"
)

type options struct {
	url      string
	saveName string
	dir      string
	timeout  int
	stream   bool
	debug    bool
	cfg      dl.Config
}

func main() {
	var o options
	o.dir, _ = os.Getwd()

	app := &cli.App{
		Name:  "rangedl",
		Usage: "多线程分片下载",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "u",
				Aliases:     []string{"url"},
				Usage:       "设置要下载的url",
				Destination: &o.url,
			},
			&cli.StringFlag{
				Name:        "f",
				Usage:       "设置保存的文件名称，默认从url推断",
				Destination: &o.saveName,
			},
			&cli.StringFlag{
				Name:        "d",
				Aliases:     []string{"dir"},
				Usage:       "设置保存的目录",
				Value:       o.dir,
				Destination: &o.dir,
			},
			&cli.BoolFlag{
				Name:        "stream",
				Usage:       "使用单连接断点续传，不分片",
				Destination: &o.stream,
			},
			&cli.BoolFlag{
				Name:        "debug",
				Usage:       "输出调试日志",
				Destination: &o.debug,
			},
		},
		Before: func(c *cli.Context) error {
			if c.IsSet("r") && o.cfg.RetryCount == 0 {
				o.cfg.RetryCount = -1
			}
			if o.debug {
				logrus.SetLevel(logrus.DebugLevel)
			}
			if o.timeout > 0 {
				timeout := time.Second * time.Duration(o.timeout)
				o.cfg.Timeout = &timeout
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			if o.url == "" {
				return cli.ShowAppHelp(c)
			}
			if o.saveName == "" {
				o.saveName = utils.FileName(o.url)
			}
			dest := filepath.Join(o.dir, o.saveName)
			if o.stream {
				if !c.IsSet("r") {
					o.cfg.RetryCount = stream.DefaultRetryCount
				}
				return runStream(c.Context, o, dest)
			}
			return runSegmented(o, dest)
		},
		Commands: []*cli.Command{
			{
				Name:      "batch",
				Usage:     "按yaml文件批量下载",
				ArgsUsage: "<list.yaml>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "parallel",
						Value: 2,
						Usage: "同时下载的任务数",
					},
				},
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 1 {
						return errors.New("需要一个yaml文件")
					}
					entries, err := readEntries(c.Args().First())
					if err != nil {
						return err
					}
					return runBatch(c.Context, o, entries, c.Int("parallel"))
				},
			},
		},
	}
	app.Flags = append(app.Flags, commonFlags(&o)...)

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// commonFlags 两种下载方式共用的参数
func commonFlags(o *options) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "r",
			Aliases:     []string{"retry"},
			Value:       dl.DefaultRetryCount,
			Usage:       "设置重试次数，0不重试",
			Destination: &o.cfg.RetryCount,
		},
		&cli.IntFlag{
			Name:        "t",
			Aliases:     []string{"timeout"},
			Usage:       "设置单个请求的超时时间(秒)，0不限制",
			Destination: &o.timeout,
		},
		&cli.StringFlag{
			Name:        "proxy",
			Usage:       "设置使用的代理，格式如：http://localhost:3000",
			Destination: &o.cfg.Proxy,
		},
		&cli.IntFlag{
			Name:        "segments",
			Usage:       "设置分片数量(2-4)，默认按cpu数量",
			Destination: &o.cfg.Segments,
		},
		&cli.Int64Flag{
			Name:        "limit",
			Usage:       "单个任务每秒最多下载的字节数，0不限速",
			Destination: &o.cfg.RateLimit,
		},
	}
}

// barListener 把下载回调转给进度条，结束时写入done
type barListener struct {
	bar  *progressbar.Bar
	done chan error
}

func (l *barListener) OnSuccess(res dl.Result) {
	if !res.Merged {
		logrus.Warnf("复制到目标文件失败，文件保留在%s：%v", res.Path, res.MergeErr)
	}
	l.done <- nil
}

func (l *barListener) OnFailure(err error) {
	l.done <- err
}

func (l *barListener) OnProgress(percent int) {
	l.bar.SetPercent(percent)
}

func (l *barListener) OnBytes(done, total int64) {
	l.bar.SetCur(done)
	l.bar.SetTotal(total)
}

func runSegmented(o options, dest string) error {
	d, err := dl.New(o.cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	bar := progressbar.New(
		progressbar.WithInterval(time.Second),
		progressbar.WithTitle("正在下载"),
		progressbar.WithFinishHook(func() {
			fmt.Printf("\n 结束下载...\n")
		}),
	)
	go bar.Run()

	l := &barListener{bar: bar, done: make(chan error, 1)}
	d.Down(o.url, dest, l)
	err = <-l.done
	bar.Finish()
	return err
}

type streamListener struct {
	bar *progressbar.Bar
	err error
}

func (l *streamListener) OnSuccess(string) {}

func (l *streamListener) OnFailed(code stream.Code, msg string) {
	l.err = errors.Errorf("下载失败[%d]：%s", code, msg)
}

func (l *streamListener) OnProgress(percent int) {
	l.bar.SetPercent(percent)
}

func runStream(ctx context.Context, o options, dest string) error {
	d := stream.New(stream.Config{
		RetryCount: o.cfg.RetryCount,
		Proxy:      o.cfg.Proxy,
		Timeout:    o.cfg.Timeout,
	})
	bar := progressbar.New(progressbar.WithTitle("正在下载"))
	go bar.Run()

	l := &streamListener{bar: bar}
	d.Start(ctx, o.url, dest, l)
	bar.Finish()
	fmt.Println()
	return l.err
}
