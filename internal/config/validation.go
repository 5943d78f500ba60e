package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if strings.ContainsAny(g.FileExtension, `/\`) {
		return newFieldError("Global.FileExtension", "不允许包含路径分隔符")
	}
	if g.CacheTTL.DurationValue() <= 0 {
		return newFieldError("Global.CacheTTL", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	if len(c.Endpoints) == 0 {
		return errors.New("至少需要配置一个 Endpoint")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		if ep.Name == "" {
			return newFieldError("Endpoint[].Name", "不能为空")
		}
		if _, exists := seenNames[ep.Name]; exists {
			return newFieldError(endpointField(ep.Name, "Name"), "重复")
		}
		seenNames[ep.Name] = struct{}{}

		if err := validateUpstream(ep.URL); err != nil {
			return fmt.Errorf("%s: %w", endpointField(ep.Name, "URL"), err)
		}
		if ep.Proxy != "" {
			if err := validateUpstream(ep.Proxy); err != nil {
				return fmt.Errorf("%s: %w", endpointField(ep.Name, "Proxy"), err)
			}
		}
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
