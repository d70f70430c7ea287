package container

import (
	"fmt"
	"time"

	"github.com/mautops/results-gin/internal/auth"
	"github.com/mautops/results-gin/internal/config"
	"github.com/mautops/results-gin/internal/database"
	"github.com/mautops/results-gin/internal/directory"
	"github.com/mautops/results-gin/internal/logging"
	"github.com/mautops/results-gin/internal/metrics"
	"github.com/mautops/results-gin/internal/notify"
	"github.com/mautops/results-gin/internal/repository"
	"github.com/mautops/results-gin/internal/service"
	"github.com/mautops/results-gin/internal/websocket"
	"github.com/mautops/results-gin/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、目录、授权、通知和服务
type Container struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *gorm.DB

	source     directory.Source
	redisCache *directory.RedisCache

	authorizer        auth.Authorizer
	fgaClient         *auth.OpenFGAClient
	permissions       auth.PermissionChecker
	keycloakValidator *auth.KeycloakTokenValidator

	hub       *websocket.Hub
	outbox    *notify.OutboxNotifier
	collector *metrics.Collector

	engine             *workflow.Engine
	resultService      service.ResultService
	queryService       service.QueryService
	aggregationService service.AggregationService
	exportService      service.ExportService
	statisticsService  service.StatisticsService
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config) (*Container, error) {
	c := &Container{cfg: cfg}

	// 1. 日志
	logger, err := logging.NewLoggerFromConfig(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.SetLogger(logger)
	c.logger = logger

	// 2. 数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = db

	if err := database.Migrate(db); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 3. 目录
	if err := c.initDirectory(); err != nil {
		_ = c.Close()
		return nil, err
	}

	// 4. 授权与认证
	if err := c.initAuth(); err != nil {
		_ = c.Close()
		return nil, err
	}

	// 5. 通知: outbox 持久化 + WebSocket 推送
	c.hub = websocket.NewHub()
	go c.hub.Run()

	c.outbox = notify.NewOutboxNotifier(repository.NewEventRepository(db), notify.OutboxConfig{
		WebhookURL: cfg.Notification.WebhookURL,
		Workers:    cfg.Notification.Workers,
		QueueSize:  cfg.Notification.QueueSize,
		Timeout:    time.Duration(cfg.Notification.Timeout) * time.Second,
	}, logger)
	notifier := notify.Multi{c.outbox, notify.NewHubNotifier(c.hub)}

	// 6. 流程引擎与服务
	resultRepo := repository.NewResultRepository(db)
	historyRepo := repository.NewStateHistoryRepository(db)
	auditLogService := service.NewAuditLogService(repository.NewAuditLogRepository(db))

	c.engine = workflow.NewEngine(resultRepo, c.authorizer, c.source, notifier, logger)
	c.resultService = service.NewResultService(c.engine, resultRepo, auditLogService)
	c.aggregationService = service.NewAggregationService(resultRepo, c.source, cfg.Grading.WeightByCredits)
	c.queryService = service.NewQueryService(resultRepo, historyRepo, c.source, c.aggregationService)
	c.exportService = service.NewExportService(c.source, c.source)
	c.statisticsService = service.NewStatisticsService(db)

	// 7. 指标收集
	c.collector = metrics.NewCollector(db, c.statisticsService.StatusCounts, 30*time.Second)
	c.collector.Start()

	return c, nil
}

// initDirectory 按配置选择文件或 HTTP 目录,配置了 Redis 时加一层读穿缓存
func (c *Container) initDirectory() error {
	cfg := c.cfg.Directory

	var source directory.Source
	switch cfg.Source {
	case "http":
		source = directory.NewHTTPDirectory(cfg.BaseURL, time.Duration(cfg.Timeout)*time.Second)
	default:
		fileDir, err := directory.LoadFileDirectory(cfg.FilePath)
		if err != nil {
			return fmt.Errorf("failed to load directory: %w", err)
		}
		source = fileDir
	}

	if c.cfg.Redis.Addr != "" && cfg.CacheTTL > 0 {
		redisCache, err := directory.NewRedisCache(c.cfg.Redis.Addr, c.cfg.Redis.Password, c.cfg.Redis.DB, c.cfg.Redis.PoolSize)
		if err != nil {
			return fmt.Errorf("failed to initialize directory cache: %w", err)
		}
		c.redisCache = redisCache
		source = directory.NewCachedDirectory(source, redisCache, time.Duration(cfg.CacheTTL)*time.Second)
	}

	c.source = source
	return nil
}

// initAuth 配置了 OpenFGA 时走关系授权,否则使用文件名册中的授权关系
func (c *Container) initAuth() error {
	cfg := c.cfg

	if cfg.OpenFGA.StoreID != "" {
		// 默认重试 3 次，初始间隔 1 秒，指数退避
		fgaClient, err := auth.NewOpenFGAClientWithRetry(cfg.OpenFGA.APIURL, cfg.OpenFGA.StoreID, cfg.OpenFGA.ModelID, 3, time.Second)
		if err != nil {
			return fmt.Errorf("failed to initialize OpenFGA client: %w", err)
		}
		cached := auth.NewCachedOpenFGAClient(fgaClient, auth.NewPermissionCache(time.Duration(cfg.OpenFGA.CacheTTL)*time.Second))
		c.fgaClient = fgaClient
		c.permissions = cached
		c.authorizer = auth.NewFGAAuthorizer(cached)
	} else {
		fileDir, ok := unwrapFileDirectory(c.source)
		if !ok {
			return fmt.Errorf("authorization requires openfga.store_id when directory.source is %q", cfg.Directory.Source)
		}
		c.authorizer = auth.AuthorizerFromRoster(fileDir.Roster())
	}

	if cfg.Keycloak.Issuer != "" {
		c.keycloakValidator = auth.NewKeycloakTokenValidator(cfg.Keycloak.Issuer, cfg.Keycloak.JWKSURL)
	}
	return nil
}

func unwrapFileDirectory(source directory.Source) (*directory.FileDirectory, bool) {
	if cached, ok := source.(*directory.CachedDirectory); ok {
		source = cached.Source()
	}
	fileDir, ok := source.(*directory.FileDirectory)
	return fileDir, ok
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// Logger 获取日志器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Directory 获取目录数据源
func (c *Container) Directory() directory.Source {
	return c.source
}

// RedisCache 获取目录缓存,未启用时为 nil
func (c *Container) RedisCache() *directory.RedisCache {
	return c.redisCache
}

// OpenFGAClient 获取 OpenFGA 客户端,未启用时为 nil
func (c *Container) OpenFGAClient() *auth.OpenFGAClient {
	return c.fgaClient
}

// Permissions 获取带缓存的关系检查器,未启用 OpenFGA 时为 nil
func (c *Container) Permissions() auth.PermissionChecker {
	return c.permissions
}

// KeycloakValidator 获取 Keycloak Token 验证器,未配置时为 nil
func (c *Container) KeycloakValidator() *auth.KeycloakTokenValidator {
	return c.keycloakValidator
}

// Hub 获取 WebSocket Hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// Engine 获取流程引擎
func (c *Container) Engine() *workflow.Engine {
	return c.engine
}

// ResultService 获取成绩服务
func (c *Container) ResultService() service.ResultService {
	return c.resultService
}

// QueryService 获取查询服务
func (c *Container) QueryService() service.QueryService {
	return c.queryService
}

// AggregationService 获取汇总服务
func (c *Container) AggregationService() service.AggregationService {
	return c.aggregationService
}

// ExportService 获取导出服务
func (c *Container) ExportService() service.ExportService {
	return c.exportService
}

// StatisticsService 获取统计服务
func (c *Container) StatisticsService() service.StatisticsService {
	return c.statisticsService
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.collector != nil {
		c.collector.Stop()
	}
	// outbox 先停,保证队列中的推送在 Hub 关闭前处理完
	if c.outbox != nil {
		c.outbox.Stop()
	}
	if c.hub != nil {
		c.hub.Stop()
	}
	if c.redisCache != nil {
		_ = c.redisCache.Close()
	}
	if c.db != nil {
		return database.Close(c.db)
	}
	return nil
}
