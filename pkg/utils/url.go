package utils

import (
	"net/url"
	"path"
	"strings"
)

const defaultName = "download.bin"

// FileName 从url的路径中推断保存的文件名
func FileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultName
	}
	name := path.Base(strings.TrimRight(u.Path, "/"))
	if name == "" || name == "." || name == "/" {
		return defaultName
	}
	return name
}
