package cache

import (
	"strconv"
	"strings"
	"time"
)

const timestampSeparator = "_"

// normalizeExt 保证扩展名以 "." 开头，空值保持为空。
func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

// encodeName 生成 <baseName>_<unixMillis><ext> 形式的文件名。
func encodeName(baseName string, ts time.Time, ext string) string {
	return baseName + timestampSeparator + strconv.FormatInt(ts.UnixMilli(), 10) + ext
}

// decodeName 是 encodeName 的逆过程；基名允许包含 "_"，因此按最后一个分隔符切分。
func decodeName(name, ext string) (string, time.Time, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
		return "", time.Time{}, false
	}
	stem := strings.TrimSuffix(name, ext)
	idx := strings.LastIndex(stem, timestampSeparator)
	if idx <= 0 || idx == len(stem)-1 {
		return "", time.Time{}, false
	}
	millis, err := strconv.ParseInt(stem[idx+1:], 10, 64)
	if err != nil || millis < 0 {
		return "", time.Time{}, false
	}
	return stem[:idx], time.UnixMilli(millis), true
}
