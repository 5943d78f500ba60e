package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/geocache/geocache/internal/cache"
	"github.com/geocache/geocache/internal/logging"
)

// Key 描述一次区域请求：缓存基名 + 拼接在端点之后的查询片段。
type Key interface {
	CacheBaseName() string
	QueryFragment() string
	String() string
}

// Sink 接收完整下载的正文，*cache.Directory 满足该接口。
type Sink interface {
	Create(ctx context.Context, baseName string, ts time.Time, body io.Reader) (*cache.Entry, error)
}

// Endpoint 是一个远端查询服务的基础 URL，查询片段直接拼接在其后。
type Endpoint struct {
	Name  string
	URL   string
	Proxy *url.URL
}

// ErrAllEndpointsFailed 表示所有端点均已尝试且失败。
var ErrAllEndpointsFailed = errors.New("all endpoints failed")

// EndpointError 记录单个端点的失败原因（URL 非法、传输失败、状态码异常、正文截断）。
type EndpointError struct {
	Endpoint string
	URL      string
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("endpoint %s (%s): %v", e.Endpoint, e.URL, e.Err)
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}

// Options 汇总 Fetcher 的依赖与参数。
type Options struct {
	Client    *http.Client
	Logger    *logrus.Logger
	Endpoints []Endpoint
	Sink      Sink
	// Timeout 限制单个端点的一次完整下载，必须为有限值。
	Timeout   time.Duration
	UserAgent string
}

// Fetcher 按顺序尝试端点，第一个完整传输成功的端点胜出。
type Fetcher struct {
	client    *http.Client
	logger    *logrus.Logger
	endpoints []Endpoint
	sink      Sink
	timeout   time.Duration
	userAgent string
	now       func() time.Time
}

const defaultTimeout = 5 * time.Minute

// NewFetcher 校验依赖并构造 Fetcher。
func NewFetcher(opts Options) (*Fetcher, error) {
	if opts.Client == nil {
		return nil, errors.New("http client is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("cache sink is required")
	}
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("at least one endpoint is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		client:    opts.Client,
		logger:    opts.Logger,
		endpoints: append([]Endpoint(nil), opts.Endpoints...),
		sink:      opts.Sink,
		timeout:   timeout,
		userAgent: opts.UserAgent,
		now:       time.Now,
	}, nil
}

// DownloadAndCache 严格按列表顺序逐个尝试端点，不并发竞速；单个端点的失败只记录日志并继续。
// 成功时正好写入一个新缓存文件；全部失败时返回包装 ErrAllEndpointsFailed 的错误，
// 且不会留下任何可被索引的文件。
func (f *Fetcher) DownloadAndCache(ctx context.Context, key Key) error {
	var errs []error
	for _, endpoint := range f.endpoints {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		entry, err := f.downloadFromEndpoint(ctx, endpoint, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		f.logger.WithFields(logging.RegionFields(key.String(), key.CacheBaseName())).WithFields(logrus.Fields{
			"action":   "download",
			"endpoint": endpoint.Name,
			"path":     entry.FilePath,
			"bytes":    entry.SizeBytes,
		}).Info("download_cached")
		return nil
	}
	return fmt.Errorf("%w: %w", ErrAllEndpointsFailed, errors.Join(errs...))
}

func (f *Fetcher) downloadFromEndpoint(ctx context.Context, endpoint Endpoint, key Key) (*cache.Entry, error) {
	rawURL := endpoint.URL + key.QueryFragment()
	fields := logging.RegionFields(key.String(), key.CacheBaseName())
	if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
		fields["request_id"] = reqID
	}
	fields["action"] = "download"
	fields["endpoint"] = endpoint.Name
	fields["url"] = rawURL
	fail := func(err error) (*cache.Entry, error) {
		epErr := &EndpointError{Endpoint: endpoint.Name, URL: rawURL, Err: err}
		f.logger.WithFields(fields).WithError(err).Warn("endpoint_failed")
		return nil, epErr
	}

	ts := f.now()
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fail(fmt.Errorf("malformed url: %w", err))
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.logger.WithFields(fields).Debug("download_attempt")
	resp, err := f.doRequest(req, endpoint)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	entry, err := f.sink.Create(ctx, key.CacheBaseName(), ts, resp.Body)
	if err != nil {
		return fail(fmt.Errorf("write cache: %w", err))
	}
	return entry, nil
}

func (f *Fetcher) doRequest(req *http.Request, endpoint Endpoint) (*http.Response, error) {
	if endpoint.Proxy == nil {
		return f.client.Do(req)
	}
	transport := &http.Transport{}
	if base, ok := f.client.Transport.(*http.Transport); ok && base != nil {
		transport = base.Clone()
	}
	transport.Proxy = http.ProxyURL(endpoint.Proxy)
	client := *f.client
	client.Transport = transport
	return client.Do(req)
}
