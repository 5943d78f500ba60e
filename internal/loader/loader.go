package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/geocache/geocache/internal/fetch"
	"github.com/geocache/geocache/internal/logging"
)

// Key is the region request consumed by the loader.
type Key = fetch.Key

// Cache is the read side of the artifact directory.
type Cache interface {
	Contains(baseName string) bool
	IsOutOfDate(baseName string) (bool, error)
	ExistingPath(baseName string) (string, error)
	ExistingTimestamp(baseName string) (time.Time, error)
	Lock(baseName string) func()
}

// Downloader fills or refreshes the cache for a key.
type Downloader interface {
	DownloadAndCache(ctx context.Context, key Key) error
}

// ParseFunc turns an opened artifact into the handle returned to callers. It
// takes ownership of r on success; on error the loader closes r.
type ParseFunc[T any] func(r io.ReadCloser) (T, error)

// Raw hands the artifact file back unchanged.
func Raw(r io.ReadCloser) (io.ReadCloser, error) {
	return r, nil
}

// Handle is a cached artifact opened for reading. The caller owns Reader and
// must release it.
type Handle[T any] struct {
	Reader    T
	Timestamp time.Time
	Path      string
}

// Loader answers "data for key" from the cache, refreshing it from the
// downloader when the entry is missing or stale.
type Loader[T any] struct {
	cache      Cache
	downloader Downloader
	logger     *logrus.Logger
	parse      ParseFunc[T]
	open       func(path string) (io.ReadCloser, error)
}

// New wires a loader. All arguments are required.
func New[T any](cache Cache, downloader Downloader, logger *logrus.Logger, parse ParseFunc[T]) (*Loader[T], error) {
	if cache == nil {
		return nil, errors.New("cache is required")
	}
	if downloader == nil {
		return nil, errors.New("downloader is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if parse == nil {
		return nil, errors.New("parse func is required")
	}
	return &Loader[T]{
		cache:      cache,
		downloader: downloader,
		logger:     logger,
		parse:      parse,
		open:       openFile,
	}, nil
}

func openFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// GetData returns the current artifact for key, or false when none is
// available. Failures never escape: a failed refresh falls back to whatever
// entry already exists (even a stale one), and open or parse failures are
// logged and reported as absence.
func (l *Loader[T]) GetData(ctx context.Context, key Key) (*Handle[T], bool) {
	baseName := key.CacheBaseName()
	fields := logging.RegionFields(key.String(), baseName)
	if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
		fields["request_id"] = reqID
	}
	l.logger.WithFields(fields).Info("load_region")

	unlock := l.cache.Lock(baseName)
	defer unlock()

	l.refreshIfNecessary(ctx, key, fields)

	if !l.cache.Contains(baseName) {
		l.logger.WithFields(fields).Error("no_data: could not load data from cache or any endpoint")
		return nil, false
	}
	return l.loadFromCache(baseName, fields)
}

func (l *Loader[T]) refreshIfNecessary(ctx context.Context, key Key, fields logrus.Fields) {
	baseName := key.CacheBaseName()
	if l.cache.Contains(baseName) {
		stale, err := l.cache.IsOutOfDate(baseName)
		if err == nil && !stale {
			l.logger.WithFields(fields).Debug("cache_fresh")
			return
		}
	}

	l.logger.WithFields(fields).Info("cache_refresh")
	if err := l.downloader.DownloadAndCache(ctx, key); err != nil {
		l.logger.WithFields(fields).WithError(err).Warn("cache_refresh_failed")
	}
}

func (l *Loader[T]) loadFromCache(baseName string, fields logrus.Fields) (*Handle[T], bool) {
	path, err := l.cache.ExistingPath(baseName)
	if err != nil {
		l.logger.WithFields(fields).WithError(err).Error("cache_lookup_failed")
		return nil, false
	}
	timestamp, err := l.cache.ExistingTimestamp(baseName)
	if err != nil {
		l.logger.WithFields(fields).WithError(err).Error("cache_lookup_failed")
		return nil, false
	}

	fileFields := logrus.Fields{"path": path}
	for k, v := range fields {
		fileFields[k] = v
	}

	f, err := l.open(path)
	if err != nil {
		l.logger.WithFields(fileFields).WithError(err).Error("cache_read_failed")
		return nil, false
	}
	reader, err := l.parse(f)
	if err != nil {
		f.Close()
		l.logger.WithFields(fileFields).WithError(fmt.Errorf("parse cached file: %w", err)).Error("cache_parse_failed")
		return nil, false
	}

	l.logger.WithFields(fileFields).WithField("timestamp", timestamp).Debug("cache_served")
	return &Handle[T]{
		Reader:    reader,
		Timestamp: timestamp,
		Path:      path,
	}, true
}
