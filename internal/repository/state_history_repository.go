package repository

import (
	"context"
	"fmt"

	"github.com/mautops/results-gin/internal/model"
	"gorm.io/gorm"
)

// StateHistoryRepository 状态历史仓储接口
type StateHistoryRepository interface {
	FindByResultID(ctx context.Context, resultID string) ([]*model.StateHistoryModel, error)
}

// stateHistoryRepository 状态历史仓储实现,写入由 ResultRepository.Put 在事务内完成
type stateHistoryRepository struct {
	db *gorm.DB
}

// NewStateHistoryRepository 创建状态历史仓储
func NewStateHistoryRepository(db *gorm.DB) StateHistoryRepository {
	return &stateHistoryRepository{db: db}
}

// FindByResultID 根据成绩 ID 查找状态历史
func (r *stateHistoryRepository) FindByResultID(ctx context.Context, resultID string) ([]*model.StateHistoryModel, error) {
	var histories []*model.StateHistoryModel
	err := r.db.WithContext(ctx).Where("result_id = ?", resultID).
		Order("version ASC, created_at ASC").
		Find(&histories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find state history: %w", err)
	}
	return histories, nil
}
