package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Create 将 body 写入 <baseName>_<ts> 缓存文件。正文先流式写入根目录下的临时文件
// （以 "." 开头，Refresh 不会索引），完整写入后再 rename；失败时清理临时文件。
// 成功后触发 Refresh，使新文件对后续查询可见。
func (d *Directory) Create(ctx context.Context, baseName string, ts time.Time, body io.Reader) (*Entry, error) {
	if baseName == "" {
		return nil, errors.New("base name required")
	}
	if ts.IsZero() {
		return nil, errors.New("zero timestamp")
	}

	filePath := d.MakeCacheFilePath(baseName, ts)
	tempFile, err := os.CreateTemp(d.root, ".download-*")
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return nil, err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return nil, err
	}

	if err := d.Refresh(); err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("refresh after write: %w", err)
	}

	return &Entry{
		BaseName:  baseName,
		FilePath:  filePath,
		SizeBytes: written,
		Timestamp: time.UnixMilli(ts.UnixMilli()),
	}, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
