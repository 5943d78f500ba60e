package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// NewDirectory 以 root 为根目录构建缓存目录，并立即扫描一次现有文件。
func NewDirectory(root, ext string, maxAge time.Duration) (*Directory, error) {
	if root == "" {
		return nil, errors.New("storage path required")
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("invalid max age: %s", maxAge)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	d := &Directory{
		root:    abs,
		ext:     normalizeExt(ext),
		maxAge:  maxAge,
		now:     time.Now,
		readDir: os.ReadDir,
		index:   make(map[string]Entry),
		locks:   make(map[string]*entryLock),
	}
	if err := d.Refresh(); err != nil {
		return nil, err
	}
	return d, nil
}

// Directory 维护 baseName → 最新缓存文件的内存索引。索引只由 Refresh 重建，
// 条目不会被原地修改，只会被时间戳更新的文件取代。
type Directory struct {
	root   string
	ext    string
	maxAge time.Duration
	now    func() time.Time

	// readDir 可在测试中替换，模拟扫描失败。
	readDir func(name string) ([]os.DirEntry, error)

	// refreshMu 串行化扫描 + 替换，避免旧快照覆盖新索引。
	refreshMu sync.Mutex
	mu        sync.RWMutex
	index     map[string]Entry

	lockMu sync.Mutex
	locks  map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// Root 返回缓存根目录的绝对路径。
func (d *Directory) Root() string {
	return d.root
}

// MaxAge 返回缓存有效期。
func (d *Directory) MaxAge() time.Duration {
	return d.maxAge
}

// Contains 判断索引中是否存在 baseName。
func (d *Directory) Contains(baseName string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.index[baseName]
	return ok
}

// IsOutOfDate 在 now - timestamp 严格大于 maxAge 时返回 true，恰好相等视为新鲜。
// baseName 不存在时返回 ErrNotFound，避免把缺失误判为新鲜。
func (d *Directory) IsOutOfDate(baseName string) (bool, error) {
	entry, err := d.lookup(baseName)
	if err != nil {
		return false, err
	}
	return entry.Age(d.now()) > d.maxAge, nil
}

// MakeCacheFilePath 返回 root/<baseName>_<unixMillis><ext>，不会创建文件。
func (d *Directory) MakeCacheFilePath(baseName string, ts time.Time) string {
	return filepath.Join(d.root, encodeName(baseName, ts, d.ext))
}

// ExistingPath 返回当前（时间戳最新）缓存文件的路径。
func (d *Directory) ExistingPath(baseName string) (string, error) {
	entry, err := d.lookup(baseName)
	if err != nil {
		return "", err
	}
	return entry.FilePath, nil
}

// ExistingTimestamp 返回当前缓存文件的创建时间戳。
func (d *Directory) ExistingTimestamp(baseName string) (time.Time, error) {
	entry, err := d.lookup(baseName)
	if err != nil {
		return time.Time{}, err
	}
	return entry.Timestamp, nil
}

// Open 打开当前缓存文件，调用方负责关闭。
func (d *Directory) Open(baseName string) (*os.File, Entry, error) {
	entry, err := d.lookup(baseName)
	if err != nil {
		return nil, Entry{}, err
	}
	f, err := os.Open(entry.FilePath)
	if err != nil {
		return nil, entry, err
	}
	return f, entry, nil
}

// Entries 返回按基名排序的当前条目快照。
func (d *Directory) Entries() []Entry {
	d.mu.RLock()
	result := make([]Entry, 0, len(d.index))
	for _, entry := range d.index {
		result = append(result, entry)
	}
	d.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].BaseName < result[j].BaseName
	})
	return result
}

// Refresh 重新扫描根目录并整体替换索引。无法解析的文件名会被静默跳过。
// 同一基名存在多个文件时保留时间戳最大的一个；时间戳相同则保留字典序最小的文件名
// （os.ReadDir 按文件名排序，且只有严格更大的时间戳才会替换）。
func (d *Directory) Refresh() error {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	entries, err := d.scan()
	if err != nil {
		return err
	}
	index := make(map[string]Entry, len(entries))
	for _, entry := range entries {
		if current, ok := index[entry.BaseName]; ok && !entry.Timestamp.After(current.Timestamp) {
			continue
		}
		index[entry.BaseName] = entry
	}

	d.mu.Lock()
	d.index = index
	d.mu.Unlock()
	return nil
}

// PruneSuperseded 删除每个基名下已被更新文件取代的旧文件，返回删除数量。
func (d *Directory) PruneSuperseded() (int, error) {
	if err := d.Refresh(); err != nil {
		return 0, err
	}
	entries, err := d.scan()
	if err != nil {
		return 0, err
	}

	d.mu.RLock()
	var stale []string
	for _, entry := range entries {
		if current, ok := d.index[entry.BaseName]; ok && current.FilePath != entry.FilePath {
			stale = append(stale, entry.FilePath)
		}
	}
	d.mu.RUnlock()

	removed := 0
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
		removed++
	}
	return removed, nil
}

// Lock 为 baseName 加互斥锁，返回解锁函数；同一基名的检查 + 下载过程由此串行化。
func (d *Directory) Lock(baseName string) func() {
	d.lockMu.Lock()
	lock := d.locks[baseName]
	if lock == nil {
		lock = &entryLock{}
		d.locks[baseName] = lock
	}
	lock.refs++
	d.lockMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		d.lockMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(d.locks, baseName)
		}
		d.lockMu.Unlock()
	}
}

func (d *Directory) lookup(baseName string) (Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.index[baseName]
	if !ok {
		return Entry{}, fmt.Errorf("%s: %w", baseName, ErrNotFound)
	}
	return entry, nil
}

// scan 列出根目录下所有可解析的缓存文件，按文件名排序。
func (d *Directory) scan() ([]Entry, error) {
	dirEntries, err := d.readDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("scan storage path: %w", err)
	}

	result := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		baseName, ts, ok := decodeName(de.Name(), d.ext)
		if !ok {
			continue
		}
		var size int64
		if info, err := de.Info(); err == nil {
			size = info.Size()
		}
		result = append(result, Entry{
			BaseName:  baseName,
			FilePath:  filepath.Join(d.root, de.Name()),
			SizeBytes: size,
			Timestamp: ts,
		})
	}
	return result, nil
}
