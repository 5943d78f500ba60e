package routes

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/geocache/geocache/internal/cache"
)

// CacheIndex 描述诊断接口需要的缓存索引能力，*cache.Directory 满足该接口。
type CacheIndex interface {
	Root() string
	MaxAge() time.Duration
	Entries() []cache.Entry
}

// RegisterCacheRoutes 暴露 /-/cache 诊断接口，供运维查询当前索引与新鲜度。
func RegisterCacheRoutes(app *fiber.App, index CacheIndex) {
	if app == nil || index == nil {
		return
	}

	app.Get("/-/cache", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"root":            index.Root(),
			"max_age_seconds": int64(index.MaxAge() / time.Second),
			"entries":         encodeEntries(index.Entries(), index.MaxAge(), time.Now()),
		}
		return c.JSON(payload)
	})
}

type entryPayload struct {
	BaseName   string `json:"base_name"`
	File       string `json:"file"`
	SizeBytes  int64  `json:"size_bytes"`
	Timestamp  string `json:"timestamp"`
	AgeSeconds int64  `json:"age_seconds"`
	Stale      bool   `json:"stale"`
}

func encodeEntries(entries []cache.Entry, maxAge time.Duration, now time.Time) []entryPayload {
	result := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		age := entry.Age(now)
		result = append(result, entryPayload{
			BaseName:   entry.BaseName,
			File:       entry.FilePath,
			SizeBytes:  entry.SizeBytes,
			Timestamp:  entry.Timestamp.UTC().Format(time.RFC3339Nano),
			AgeSeconds: int64(age / time.Second),
			Stale:      age > maxAge,
		})
	}
	return result
}
