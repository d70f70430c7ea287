/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/results-gin/internal/api"
	"github.com/mautops/results-gin/internal/config"
	"github.com/mautops/results-gin/internal/container"
	"github.com/mautops/results-gin/internal/logging"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Results Gin API server.
The server will listen on the configured host and port,
and provide REST API interfaces for result submission, review and queries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		cfg, err := LoadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
		}

		// 2. 初始化容器
		ctr, err := container.NewContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()
		logger := ctr.Logger()

		// 3. 链路追踪
		if cfg.Tracing.Enabled {
			if err := api.InitTracing(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint); err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = api.ShutdownTracing(ctx)
			}()
		}

		// 4. 配置热更新: 目前只应用日志级别
		configPath, _ := cmd.Flags().GetString("config")
		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath)
			watcher.OnConfigChange(func(newCfg *config.Config) {
				logger.SetLevel(logging.ParseLevel(newCfg.Log.Level))
				logger.WithField("level", newCfg.Log.Level).Info("log level reloaded")
			})
			watcher.OnError(func(err error) {
				logger.WithError(err).Warn("config reload failed, keeping previous config")
			})
			if err := watcher.Start(); err != nil {
				logger.WithError(err).Warn("config watcher not started")
			} else {
				defer watcher.Stop()
			}
		}

		// 5. 设置路由
		router := setupRouter(ctr)

		// 6. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.WithField("addr", addr).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errCh:
			return fmt.Errorf("failed to start server: %w", err)
		}

		logger.Info("shutting down server")

		// 优雅关闭
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		logger.Info("server exited")
		return nil
	},
}

// setupRouter 根据容器组装路由
func setupRouter(ctr *container.Container) *gin.Engine {
	deps := api.RouterDeps{
		Config:             ctr.Config(),
		DB:                 ctr.DB(),
		ResultService:      ctr.ResultService(),
		QueryService:       ctr.QueryService(),
		AggregationService: ctr.AggregationService(),
		ExportService:      ctr.ExportService(),
		StatisticsService:  ctr.StatisticsService(),
		Validator:          ctr.KeycloakValidator(),
		FGAClient:          ctr.OpenFGAClient(),
		Hub:                ctr.Hub(),
	}
	// 接口字段只在有实现时赋值,避免持有 nil 指针的非 nil 接口
	if perms := ctr.Permissions(); perms != nil {
		deps.Permissions = perms
	}
	if cache := ctr.RedisCache(); cache != nil {
		deps.Cache = cache
	}

	router := api.SetupRoutes(deps)

	// 自定义 NoRoute 处理器,返回 JSON 格式的 404
	// 必须在所有业务路由注册之后设置,确保未匹配的路由返回 JSON 而不是 HTML
	router.NoRoute(func(c *gin.Context) {
		api.Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志,显式传入时覆盖配置文件
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}
