package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/geocache/geocache/internal/cache"
	"github.com/geocache/geocache/internal/config"
	"github.com/geocache/geocache/internal/fetch"
	"github.com/geocache/geocache/internal/loader"
	"github.com/geocache/geocache/internal/logging"
	"github.com/geocache/geocache/internal/osm"
	"github.com/geocache/geocache/internal/server"
	"github.com/geocache/geocache/internal/server/routes"
	"github.com/geocache/geocache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	region      string
	prune       bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["endpoints"] = config.EndpointNames(cfg.Endpoints)
		fields["storage_path"] = cfg.Global.StoragePath
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// CLI 启动遵循“配置 → 缓存目录 → 下载端点 → 加载器 → Fiber server”顺序，
	// 保证所有请求共享同一个缓存索引与按基名的锁。
	dir, err := cache.NewDirectory(cfg.Global.StoragePath, cfg.Global.FileExtension, cfg.Global.CacheTTL.DurationValue())
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	if opts.prune {
		return runPrune(dir, logger, opts.configPath)
	}

	svc, err := buildServices(cfg, dir, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建下载服务失败: %v\n", err)
		return 1
	}

	if opts.region != "" {
		return runRegion(context.Background(), svc, opts.region)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["endpoints"] = config.EndpointNames(cfg.Endpoints)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_path"] = dir.Root()
	fields["cache_ttl"] = cfg.Global.CacheTTL.DurationValue().String()
	fields["cached_regions"] = len(dir.Entries())
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, svc, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// services 聚合共享同一缓存目录与 fetcher 的两个加载器。
type services struct {
	dir    *cache.Directory
	raw    *loader.Loader[io.ReadCloser]
	parsed *loader.Loader[*osm.Reader]
}

func buildServices(cfg *config.Config, dir *cache.Directory, logger *logrus.Logger) (*services, error) {
	endpoints, err := server.BuildEndpoints(cfg)
	if err != nil {
		return nil, err
	}

	fetcher, err := fetch.NewFetcher(fetch.Options{
		Client:    server.NewUpstreamClient(cfg),
		Logger:    logger,
		Endpoints: endpoints,
		Sink:      dir,
		Timeout:   cfg.Global.UpstreamTimeout.DurationValue(),
		UserAgent: cfg.Global.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	raw, err := loader.New[io.ReadCloser](dir, fetcher, logger, loader.Raw)
	if err != nil {
		return nil, err
	}
	parsed, err := loader.New[*osm.Reader](dir, fetcher, logger, osm.NewReader)
	if err != nil {
		return nil, err
	}
	return &services{dir: dir, raw: raw, parsed: parsed}, nil
}

// runRegion 一次性加载指定区域（必要时下载），打印缓存文件与摘要后退出。
func runRegion(ctx context.Context, svc *services, rawBBox string) int {
	bbox, err := osm.ParseBoundingBox(rawBBox)
	if err != nil {
		fmt.Fprintf(stdErr, "区域参数无效: %v\n", err)
		return 2
	}

	handle, ok := svc.parsed.GetData(ctx, bbox)
	if !ok {
		fmt.Fprintf(stdErr, "区域 %s 无可用数据\n", bbox)
		return 1
	}
	defer handle.Reader.Close()

	summary, err := osm.Summarize(handle.Reader)
	if err != nil {
		fmt.Fprintf(stdErr, "解析缓存文件失败 %s: %v\n", handle.Path, err)
		return 1
	}

	fmt.Fprintf(stdOut, "region=%s\n", bbox)
	fmt.Fprintf(stdOut, "file=%s\n", handle.Path)
	fmt.Fprintf(stdOut, "timestamp=%s\n", handle.Timestamp.UTC().Format(time.RFC3339Nano))
	fmt.Fprintln(stdOut, osm.FormatSummary(summary))
	return 0
}

// runPrune 删除已被更新文件取代的旧缓存文件。
func runPrune(dir *cache.Directory, logger *logrus.Logger, configPath string) int {
	removed, err := dir.PruneSuperseded()
	fields := logging.BaseFields("prune", configPath)
	fields["storage_path"] = dir.Root()
	fields["removed"] = removed
	if err != nil {
		logger.WithFields(fields).WithError(err).Error("prune_failed")
		fmt.Fprintf(stdErr, "清理缓存失败: %v\n", err)
		return 1
	}
	logger.WithFields(fields).Info("prune_completed")
	fmt.Fprintf(stdOut, "removed=%d\n", removed)
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("geocache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		region     string
		prune      bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 GEOCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&region, "region", "", "加载 south,west,north,east 区域并打印摘要后退出")
	fs.BoolVar(&prune, "prune", false, "删除被更新文件取代的旧缓存后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if region != "" && prune {
		return cliOptions{}, errors.New("-region 与 -prune 不能同时使用")
	}

	path := os.Getenv("GEOCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		region:      region,
		prune:       prune,
	}, nil
}

func startHTTPServer(cfg *config.Config, svc *services, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger: logger,
		Raw:    svc.raw,
		Parsed: svc.parsed,
	})
	if err != nil {
		return err
	}
	routes.RegisterCacheRoutes(app, svc.dir)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
