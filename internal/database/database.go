package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/results-gin/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置,未配置的项使用默认值
func GetPoolConfig(cfg config.DatabaseConfig) *PoolConfig {
	pool := &PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 10
	}
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 100
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 3600 // 1 小时
	}
	if pool.ConnMaxIdleTime <= 0 {
		pool.ConnMaxIdleTime = 600 // 10 分钟
	}
	return pool
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		// sqlite 下 dbname 即文件路径
		dialector = sqlite.Open(cfg.DBName)
	default:
		dialector = postgres.Open(BuildDSN(cfg))
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	pool := GetPoolConfig(cfg)
	if cfg.Driver == "sqlite" {
		// sqlite 写操作串行
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			if !CheckHealth(db) {
				err = fmt.Errorf("database ping failed")
			} else {
				return db, nil
			}
		}

		// 如果不是最后一次重试，等待后重试
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// IsSQLite 判断是否为 SQLite 数据库
func IsSQLite(db *gorm.DB) bool {
	// GORM SQLite dialector 的名称可能是 "sqlite" 或 "sqlite3"
	name := db.Dialector.Name()
	return name == "sqlite" || name == "sqlite3"
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	if IsSQLite(db) {
		// SQLite 不支持 jsonb 和 golang-migrate 的 postgres 驱动,手动建表
		if err := createSQLiteTables(db); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
		if err := createSQLiteIndexes(db); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if _, _, err := RunMigrations(sqlDB); err != nil {
		return err
	}
	return nil
}

// createSQLiteTables 为 SQLite 手动创建表（使用 TEXT 替代 jsonb）
func createSQLiteTables(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			id VARCHAR(64) PRIMARY KEY,
			student_id VARCHAR(64) NOT NULL,
			unit_code VARCHAR(32) NOT NULL,
			assessment_type VARCHAR(16) NOT NULL,
			academic_year VARCHAR(16) NOT NULL,
			semester INTEGER NOT NULL,
			year_of_study INTEGER DEFAULT 0,
			marks REAL NOT NULL,
			max_marks REAL NOT NULL,
			percentage REAL NOT NULL,
			grade VARCHAR(2) NOT NULL,
			pass BOOLEAN NOT NULL,
			status VARCHAR(16) NOT NULL,
			hod_approval_required BOOLEAN NOT NULL,
			visible_to_student BOOLEAN NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			lecturer_id VARCHAR(64) NOT NULL,
			graded_at DATETIME NOT NULL,
			approver_id VARCHAR(64),
			approved_at DATETIME,
			review_comment TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create results table: %w", err)
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS state_history (
			id VARCHAR(64) PRIMARY KEY,
			result_id VARCHAR(64) NOT NULL,
			from_state VARCHAR(32),
			to_state VARCHAR(32) NOT NULL,
			reason TEXT,
			operator VARCHAR(64) NOT NULL,
			version INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create state_history table: %w", err)
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			result_id VARCHAR(64) NOT NULL,
			student_id VARCHAR(64) NOT NULL,
			type VARCHAR(32) NOT NULL,
			data TEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			last_error TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_logs (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			resource_type VARCHAR(32) NOT NULL,
			resource_id VARCHAR(64) NOT NULL,
			request_id VARCHAR(64),
			ip VARCHAR(45),
			user_agent TEXT,
			details TEXT,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create audit_logs table: %w", err)
	}

	return nil
}

// sqliteIndexes 与 migrations/000002 保持一致,去掉 postgres 专有的 GIN 索引
var sqliteIndexes = []struct {
	name string
	ddl  string
}{
	{"idx_results_key", "CREATE UNIQUE INDEX IF NOT EXISTS idx_results_key ON results(student_id, unit_code, assessment_type, academic_year, semester)"},
	{"idx_results_student_visible", "CREATE INDEX IF NOT EXISTS idx_results_student_visible ON results(student_id, visible_to_student)"},
	{"idx_results_unit_code", "CREATE INDEX IF NOT EXISTS idx_results_unit_code ON results(unit_code)"},
	{"idx_results_status", "CREATE INDEX IF NOT EXISTS idx_results_status ON results(status)"},
	{"idx_results_lecturer_id", "CREATE INDEX IF NOT EXISTS idx_results_lecturer_id ON results(lecturer_id)"},
	{"idx_history_result_id", "CREATE INDEX IF NOT EXISTS idx_history_result_id ON state_history(result_id)"},
	{"idx_history_created_at", "CREATE INDEX IF NOT EXISTS idx_history_created_at ON state_history(created_at)"},
	{"idx_events_status", "CREATE INDEX IF NOT EXISTS idx_events_status ON events(status)"},
	{"idx_events_result_id", "CREATE INDEX IF NOT EXISTS idx_events_result_id ON events(result_id)"},
	{"idx_events_created_at", "CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at)"},
	{"idx_audit_resource", "CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_logs(resource_type, resource_id)"},
	{"idx_audit_user_id", "CREATE INDEX IF NOT EXISTS idx_audit_user_id ON audit_logs(user_id)"},
	{"idx_audit_created_at", "CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_logs(created_at)"},
}

// createSQLiteIndexes 创建 SQLite 索引
func createSQLiteIndexes(db *gorm.DB) error {
	for _, idx := range sqliteIndexes {
		if err := db.Exec(idx.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}
	return nil
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}

	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx) == nil
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
