package logging

import (
	"context"

	"github.com/sirupsen/logrus"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RegionFields 提供区域与缓存文件前缀字段，供加载与下载日志复用。
func RegionFields(region, baseName string) logrus.Fields {
	return logrus.Fields{
		"action":    "load",
		"region":    region,
		"base_name": baseName,
	}
}

// RequestFields 提供 HTTP 请求字段，供路由日志复用。
func RequestFields(requestID, method, path string, status int) logrus.Fields {
	return logrus.Fields{
		"action":     "request",
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
	}
}

type requestIDKey struct{}

// ContextWithRequestID 将请求 ID 放入 context，供下游加载/下载日志关联同一请求。
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext 返回 context 中的请求 ID，不存在时返回空串。
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}
