package api

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// DeprecatedVersionInfo 废弃版本信息
type DeprecatedVersionInfo struct {
	Version         string
	DeprecationDate time.Time
	SunsetDate      time.Time
	MigrationPath   string
}

var (
	deprecatedVersions = make(map[string]DeprecatedVersionInfo)
	deprecatedMu       sync.RWMutex
)

// VersionMiddleware 从 URL 路径或 API-Version 头解析版本,请求头优先
func VersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		version := "v1"
		if rest, ok := strings.CutPrefix(c.Request.URL.Path, "/api/"); ok {
			if seg, _, _ := strings.Cut(rest, "/"); strings.HasPrefix(seg, "v") && len(seg) > 1 {
				version = seg
			}
		}
		if h := c.GetHeader("API-Version"); h != "" {
			version = h
		}

		deprecatedMu.RLock()
		info, deprecated := deprecatedVersions[version]
		deprecatedMu.RUnlock()
		if deprecated {
			c.Header("Deprecation", info.DeprecationDate.Format(time.RFC1123))
			c.Header("Sunset", info.SunsetDate.Format(time.RFC1123))
			if info.MigrationPath != "" {
				c.Header("Link", "<"+info.MigrationPath+">; rel=\"successor-version\"")
			}
		}

		c.Set("api_version", version)
		c.Next()
	}
}

// GetAPIVersion 从上下文获取 API 版本
func GetAPIVersion(c *gin.Context) string {
	if v := c.GetString("api_version"); v != "" {
		return v
	}
	return "v1"
}

// RegisterDeprecatedVersion 注册废弃版本信息
func RegisterDeprecatedVersion(info DeprecatedVersionInfo) {
	deprecatedMu.Lock()
	defer deprecatedMu.Unlock()
	deprecatedVersions[info.Version] = info
}
