package utils

import (
	"fmt"
	"time"
)

var units = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatSize 以1024为进制格式化字节数
func FormatSize(size int64) string {
	showSize := float64(size)
	idx := 0
	for showSize >= 1024 && idx < len(units)-1 {
		showSize = showSize / 1024
		idx++
	}
	return fmt.Sprintf("%.2f %s", showSize, units[idx])
}

// SpeedFormat 计算从lastTime到现在下载size字节的速度
func SpeedFormat(lastTime time.Time, size int64) string {
	s := time.Since(lastTime).Seconds()
	if s <= 0 || size < 0 {
		return fmt.Sprintf("%s / s", FormatSize(0))
	}
	return fmt.Sprintf("%s / s", FormatSize(int64(float64(size)/s)))
}
