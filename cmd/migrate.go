/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"

	"github.com/mautops/results-gin/internal/database"
	"github.com/mautops/results-gin/internal/logging"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations to create or update database schema.
This command will:
- Create the results, state_history, audit_logs and events tables
- Create indexes for student, unit and status queries

Use --down N to roll back the last N migrations (postgres only).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.GetLogger()

		// 1. 加载配置
		cfg, err := LoadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// 2. 连接数据库
		logger.WithFields(map[string]interface{}{
			"driver": cfg.Database.Driver,
			"host":   cfg.Database.Host,
			"dbname": cfg.Database.DBName,
		}).Info("connecting to database")
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer database.Close(db)

		// 3. 回滚或执行迁移
		down, _ := cmd.Flags().GetInt("down")
		if down > 0 {
			if database.IsSQLite(db) {
				return fmt.Errorf("rollback is not supported for sqlite")
			}
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("failed to get sql.DB: %w", err)
			}
			if err := database.RollbackMigrations(sqlDB, down); err != nil {
				return err
			}
			logger.WithField("steps", down).Info("database migrations rolled back")
			return nil
		}

		logger.Info("running database migrations")
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		logger.Info("database migrations completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Int("down", 0, "Roll back the last N migrations")
}
