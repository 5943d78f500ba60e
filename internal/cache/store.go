package cache

import (
	"errors"
	"time"
)

// Entry 描述索引中的一个缓存文件：基名 + 创建时间戳 + 绝对路径。
type Entry struct {
	BaseName  string    `json:"base_name"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	Timestamp time.Time `json:"timestamp"`
}

// Age 返回 now 与 Timestamp 之间的差值。
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// ErrNotFound 表示索引中不存在该基名。
var ErrNotFound = errors.New("cache entry not found")
