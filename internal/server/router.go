package server

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/geocache/geocache/internal/loader"
	"github.com/geocache/geocache/internal/logging"
	"github.com/geocache/geocache/internal/osm"
)

// RegionLoader returns the current artifact for a region, or false when no
// data could be produced. *loader.Loader satisfies it.
type RegionLoader[T any] interface {
	GetData(ctx context.Context, key loader.Key) (*loader.Handle[T], bool)
}

// AppOptions wires the loaders that back the HTTP routes.
type AppOptions struct {
	Logger *logrus.Logger
	Raw    RegionLoader[io.ReadCloser]
	Parsed RegionLoader[*osm.Reader]
}

const (
	contextKeyRequestID = "_geocache_request_id"

	headerTimestamp = "X-Geocache-Timestamp"
	headerCacheFile = "X-Geocache-Cache-File"
)

// NewApp builds a Fiber application serving cached regions with request IDs
// and structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Raw == nil {
		return nil, errors.New("raw loader is required")
	}
	if opts.Parsed == nil {
		return nil, errors.New("parsed loader is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	h := &regionHandler{opts: opts}
	app.Get("/regions/:bbox", h.serveRaw)
	app.Get("/regions/:bbox/summary", h.serveSummary)

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并在请求结束后记录一条访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		started := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		}
		fields := logging.RequestFields(reqID, c.Method(), c.Path(), status)
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		entry := logger.WithFields(fields)
		if err != nil {
			entry.WithError(err).Warn("request_failed")
		} else if !isDiagnosticsPath(c.Path()) {
			entry.Info("request_completed")
		}
		return err
	}
}

type regionHandler struct {
	opts AppOptions
}

func (h *regionHandler) serveRaw(c fiber.Ctx) error {
	bbox, err := osm.ParseBoundingBox(c.Params("bbox"))
	if err != nil {
		return renderInvalidBBox(c, err)
	}

	handle, ok := h.opts.Raw.GetData(requestContext(c), bbox)
	if !ok {
		return renderNoData(c, bbox)
	}
	defer handle.Reader.Close()

	setArtifactHeaders(c, handle.Timestamp, handle.Path)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXML)
	c.Status(fiber.StatusOK)
	if _, err := io.Copy(c.Response().BodyWriter(), handle.Reader); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "cache_read_failed: "+err.Error())
	}
	return nil
}

type summaryPayload struct {
	Region    string `json:"region"`
	CacheFile string `json:"cache_file"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version,omitempty"`
	Generator string `json:"generator,omitempty"`
	Nodes     int    `json:"nodes"`
	Ways      int    `json:"ways"`
	Relations int    `json:"relations"`
	Tags      int    `json:"tags"`
}

func (h *regionHandler) serveSummary(c fiber.Ctx) error {
	bbox, err := osm.ParseBoundingBox(c.Params("bbox"))
	if err != nil {
		return renderInvalidBBox(c, err)
	}

	handle, ok := h.opts.Parsed.GetData(requestContext(c), bbox)
	if !ok {
		return renderNoData(c, bbox)
	}
	defer handle.Reader.Close()

	summary, err := osm.Summarize(handle.Reader)
	if err != nil {
		h.opts.Logger.WithFields(logging.RegionFields(bbox.String(), bbox.CacheBaseName())).
			WithField("path", handle.Path).
			WithField("request_id", RequestID(c)).
			WithError(err).
			Error("summary_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "parse_failed"})
	}

	setArtifactHeaders(c, handle.Timestamp, handle.Path)
	return c.JSON(summaryPayload{
		Region:    bbox.String(),
		CacheFile: filepath.Base(handle.Path),
		Timestamp: handle.Timestamp.UTC().Format(time.RFC3339Nano),
		Version:   handle.Reader.Version,
		Generator: handle.Reader.Generator,
		Nodes:     summary.Nodes,
		Ways:      summary.Ways,
		Relations: summary.Relations,
		Tags:      summary.Tags,
	})
}

func setArtifactHeaders(c fiber.Ctx, ts time.Time, path string) {
	c.Set(headerTimestamp, strconv.FormatInt(ts.UnixMilli(), 10))
	c.Set(headerCacheFile, filepath.Base(path))
}

func renderInvalidBBox(c fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  "invalid_bbox",
		"detail": err.Error(),
	})
}

func renderNoData(c fiber.Ctx, bbox osm.BoundingBox) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":  "no_data",
		"region": bbox.String(),
	})
}

// requestContext 返回携带请求 ID 的 context，使加载与下载日志带上 request_id。
func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return logging.ContextWithRequestID(ctx, RequestID(c))
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
