package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/timerzz/rangedl/dl"
	"github.com/timerzz/rangedl/pkg/utils"
)

type entry struct {
	URL    string `yaml:"url"`
	Output string `yaml:"output"`
}

func readEntries(path string) ([]entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取%s失败", path)
	}
	var entries []entry
	if err = yaml.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, "解析%s失败", path)
	}
	for i, e := range entries {
		if e.URL == "" {
			return nil, errors.Errorf("第%d项缺少url", i+1)
		}
	}
	return entries, nil
}

// resolve 没有写output的用url推断文件名，相对路径放在dir下
func (e entry) resolve(dir string) string {
	out := e.Output
	if out == "" {
		out = utils.FileName(e.URL)
	}
	if filepath.IsAbs(out) {
		return out
	}
	return filepath.Join(dir, out)
}

// doneListener 只关心结果
type doneListener chan error

func (l doneListener) OnSuccess(res dl.Result) {
	if !res.Merged {
		logrus.Warnf("复制到目标文件失败，文件保留在%s：%v", res.Path, res.MergeErr)
	}
	l <- nil
}

func (l doneListener) OnFailure(err error) { l <- err }

func (l doneListener) OnProgress(int) {}

// runBatch 同时最多parallel个任务，dl本身不限制任务数
func runBatch(ctx context.Context, o options, entries []entry, parallel int) error {
	d, err := dl.New(o.cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	failed := 0
	results := make(chan error, len(entries))
	for _, e := range entries {
		e := e
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			dest := e.resolve(o.dir)
			l := make(doneListener, 1)
			d.Down(e.URL, dest, l)
			err := <-l
			if err != nil {
				logrus.WithField("url", e.URL).Errorf("下载失败：%v", err)
			} else {
				logrus.WithField("url", e.URL).Infof("已保存到%s", dest)
			}
			results <- err
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}
	close(results)
	for err := range results {
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		return errors.Errorf("%d/%d个下载失败", failed, len(entries))
	}
	return nil
}
