package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 成绩提交数
	resultsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "results_submitted_total",
			Help: "Total number of result submissions",
		},
		[]string{"assessment_type", "status"}, // status 为提交后的状态
	)

	// 状态流转数
	resultTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_transitions_total",
			Help: "Total number of result workflow actions",
		},
		[]string{"action"}, // submit, approve, reject, revision
	)

	// 乐观锁冲突数
	resultConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "result_conflicts_total",
			Help: "Total number of optimistic version conflicts",
		},
	)

	// 通知投递
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notifications by outcome",
		},
		[]string{"event", "outcome"}, // outcome: delivered, failed, skipped, dropped
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 成绩状态分布
	resultsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "results_by_status",
			Help: "Number of results by workflow status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(resultsSubmittedTotal)
	prometheus.MustRegister(resultTransitionsTotal)
	prometheus.MustRegister(resultConflictsTotal)
	prometheus.MustRegister(notificationsTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(resultsByStatus)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		// 尝试注册 Go 运行时指标，如果已注册则忽略错误
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	apiRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordSubmission 记录成绩提交
func RecordSubmission(assessmentType, status string) {
	resultsSubmittedTotal.WithLabelValues(assessmentType, status).Inc()
}

// RecordTransition 记录流程操作
func RecordTransition(action string) {
	resultTransitionsTotal.WithLabelValues(action).Inc()
}

// RecordConflict 记录版本冲突
func RecordConflict() {
	resultConflictsTotal.Inc()
}

// RecordNotification 记录通知投递结果
func RecordNotification(event, outcome string) {
	notificationsTotal.WithLabelValues(event, outcome).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateResultsByStatus 更新成绩状态分布指标
func UpdateResultsByStatus(status string, count float64) {
	resultsByStatus.WithLabelValues(status).Set(count)
}
