package utils

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CopyFile 把src完整复制到dst，dst已存在时会被覆盖
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "打开%s失败", src)
	}
	defer in.Close()

	if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrapf(err, "创建目录%s失败", filepath.Dir(dst))
	}
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "创建%s失败", dst)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "关闭%s失败", dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "复制%s到%s失败", src, dst)
	}
	return out.Sync()
}
