package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/results-gin/internal/logging"
	"github.com/sirupsen/logrus"
)

// SLAConfig 各类操作的期望响应时间
type SLAConfig struct {
	SubmitMaxTime time.Duration // 单条提交
	BatchMaxTime  time.Duration // 批量提交和批量审批
	ReviewMaxTime time.Duration // 审批、驳回、退回
	QueryMaxTime  time.Duration // 学生成绩查询、汇总
	ExportMaxTime time.Duration // 导出
}

// DefaultSLAConfig 返回默认 SLA 配置
func DefaultSLAConfig() *SLAConfig {
	return &SLAConfig{
		SubmitMaxTime: 1 * time.Second,
		BatchMaxTime:  10 * time.Second,
		ReviewMaxTime: 1 * time.Second,
		QueryMaxTime:  500 * time.Millisecond,
		ExportMaxTime: 5 * time.Second,
	}
}

// getOperation 根据路由模板判断操作类型
func getOperation(method, route string) string {
	switch {
	case route == "":
		return "unknown"
	case strings.HasSuffix(route, "/export"):
		return "result_export"
	case strings.Contains(route, "/batch"):
		return "result_batch"
	case route == "/api/v1/results" && method == "POST":
		return "result_submit"
	case strings.HasSuffix(route, "/approve"), strings.HasSuffix(route, "/reject"), strings.HasSuffix(route, "/revision"):
		return "result_review"
	case strings.HasPrefix(route, "/api/v1/students") && method == "GET":
		return "student_query"
	}
	return "unknown"
}

// expected 返回操作的期望响应时间,0 表示不检查
func (cfg *SLAConfig) expected(operation string) time.Duration {
	switch operation {
	case "result_submit":
		return cfg.SubmitMaxTime
	case "result_batch":
		return cfg.BatchMaxTime
	case "result_review":
		return cfg.ReviewMaxTime
	case "student_query":
		return cfg.QueryMaxTime
	case "result_export":
		return cfg.ExportMaxTime
	}
	return 0
}

// CheckSLA 检查耗时是否在期望范围内
func CheckSLA(operation string, duration time.Duration, cfg *SLAConfig) bool {
	limit := cfg.expected(operation)
	return limit == 0 || duration <= limit
}

// SLAMonitorMiddleware 记录超出期望响应时间的请求
func SLAMonitorMiddleware(cfg *SLAConfig) gin.HandlerFunc {
	if cfg == nil {
		cfg = DefaultSLAConfig()
	}
	logger := logging.GetLogger()

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		operation := getOperation(c.Request.Method, c.FullPath())
		duration := time.Since(start)
		if CheckSLA(operation, duration, cfg) {
			return
		}
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"operation":  operation,
			"duration":   duration.String(),
			"expected":   cfg.expected(operation).String(),
			"path":       c.Request.URL.Path,
		}).Warn("slow request")
	}
}
