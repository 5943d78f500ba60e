package server

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/geocache/geocache/internal/config"
	"github.com/geocache/geocache/internal/fetch"
)

// BuildEndpoints 将配置中的 [[Endpoint]] 解析为按声明顺序尝试的下载端点，
// 同时提前解析 Proxy URL，避免每次请求重复解析。
func BuildEndpoints(cfg *config.Config) ([]fetch.Endpoint, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("no endpoint configured")
	}

	seen := make(map[string]struct{}, len(cfg.Endpoints))
	endpoints := make([]fetch.Endpoint, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		name := strings.TrimSpace(ep.Name)
		if name == "" {
			return nil, fmt.Errorf("endpoint %s has no name", ep.URL)
		}
		if _, exists := seen[name]; exists {
			return nil, fmt.Errorf("duplicate endpoint name detected for %s", name)
		}
		seen[name] = struct{}{}

		if _, err := url.Parse(ep.URL); err != nil {
			return nil, fmt.Errorf("invalid url for endpoint %s: %w", name, err)
		}

		var proxyURL *url.URL
		if ep.Proxy != "" {
			parsed, err := url.Parse(ep.Proxy)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy for endpoint %s: %w", name, err)
			}
			proxyURL = parsed
		}

		endpoints = append(endpoints, fetch.Endpoint{
			Name:  name,
			URL:   ep.URL,
			Proxy: proxyURL,
		})
	}
	return endpoints, nil
}
