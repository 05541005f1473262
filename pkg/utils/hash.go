package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// Fingerprint 返回url的md5，同时作为去重的key和临时文件名
func Fingerprint(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}
