package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/results-gin/internal/auth"
	"github.com/mautops/results-gin/internal/config"
	"github.com/mautops/results-gin/internal/service"
	"github.com/mautops/results-gin/internal/websocket"
	"gorm.io/gorm"
)

// RouterDeps 路由依赖,可选项为 nil 时对应功能关闭
type RouterDeps struct {
	Config             *config.Config
	DB                 *gorm.DB
	ResultService      service.ResultService
	QueryService       service.QueryService
	AggregationService service.AggregationService
	ExportService      service.ExportService
	StatisticsService  service.StatisticsService

	// 可选
	Validator   *auth.KeycloakTokenValidator
	Permissions auth.PermissionChecker
	FGAClient   *auth.OpenFGAClient
	Cache       Pinger
	Hub         *websocket.Hub
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(ErrorHandlerMiddleware())
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	router.Use(CORSMiddleware(cfg.CORS.AllowedOrigins))
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware(cfg.Tracing.ServiceName))
	}

	healthController := NewHealthController(deps.DB, deps.FGAClient, deps.Cache)
	router.GET("/health", healthController.Check)
	router.GET("/metrics", MetricsHandler)

	var authenticate gin.HandlerFunc
	if deps.Validator != nil {
		authenticate = auth.KeycloakAuthMiddleware(deps.Validator)
	} else {
		authenticate = auth.HeaderIdentityMiddleware()
	}

	// 学生数据访问: 接入 OpenFGA 时检查 student#viewer,否则本人或后台人员
	studentViewer := StudentViewerMiddleware("id")
	if deps.Permissions != nil {
		studentViewer = auth.PermissionMiddleware(deps.Permissions, auth.ObjectStudent, auth.RelationViewer, "id")
	}

	if deps.Hub != nil {
		wsAuth := websocket.TokenAuthenticator(deps.Validator)
		if deps.Validator == nil {
			wsAuth = headerIdentity
		}
		router.GET("/ws/students/:id",
			websocket.WebSocketHandler(deps.Hub, websocket.NewUpgrader(cfg.CORS.AllowedOrigins), wsAuth, canViewStudent(deps.Permissions)))
	}

	v1 := router.Group("/api/v1")
	v1.Use(VersionMiddleware())
	v1.Use(authenticate)
	if cfg.RateLimit.Enabled {
		v1.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	v1.Use(SLAMonitorMiddleware(nil))

	resultController := NewResultController(deps.ResultService, deps.QueryService)
	studentController := NewStudentController(deps.QueryService, deps.AggregationService, deps.ExportService)
	statisticsController := NewStatisticsController(deps.StatisticsService)

	// 成绩路由,任课和审批权限由流程引擎检查
	results := v1.Group("/results")
	{
		results.POST("", resultController.Submit)
		results.GET("", RequireStaff(), resultController.List)
		results.POST("/batch", resultController.SubmitBatch)
		results.POST("/batch/approve", resultController.ApproveBatch)
		results.GET("/:id", resultController.Get)
		results.GET("/:id/history", RequireStaff(), resultController.History)
		results.POST("/:id/approve", resultController.Approve)
		results.POST("/:id/reject", resultController.Reject)
		results.POST("/:id/revision", resultController.RequestRevision)
	}

	students := v1.Group("/students")
	{
		students.GET("/search", RequireStaff(), studentController.Search)
		students.GET("/:id/results", studentViewer, studentController.Results)
		students.GET("/:id/results/export", studentViewer, studentController.Export)
		students.GET("/:id/summary", studentViewer, studentController.Summary)
	}

	v1.GET("/statistics/results", RequireStaff(), statisticsController.Results)

	return router
}

// headerIdentity 开发环境的 WebSocket 身份: X-User-ID 头或 user_id 查询参数
func headerIdentity(c *gin.Context) (auth.Identity, error) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = c.Query("user_id")
	}
	return auth.Identity{UserID: userID}, nil
}

// canViewStudent WebSocket 订阅的访问控制,与学生数据接口一致
func canViewStudent(checker auth.PermissionChecker) websocket.AccessCheck {
	return func(c *gin.Context, id auth.Identity, studentID string) bool {
		if id.UserID == studentID {
			return true
		}
		if checker != nil {
			ok, err := checker.CheckPermission(c.Request.Context(), id.UserID, auth.RelationViewer, auth.ObjectStudent, studentID)
			return err == nil && ok
		}
		for _, role := range StaffRoles {
			if id.HasRole(role) {
				return true
			}
		}
		return false
	}
}
