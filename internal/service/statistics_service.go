package service

import (
	"context"
	"fmt"

	"github.com/mautops/results-gin/internal/grading"
	"github.com/mautops/results-gin/internal/model"
	"gorm.io/gorm"
)

// StatisticsService 统计服务接口
type StatisticsService interface {
	GetResultStatisticsByStatus(ctx context.Context) ([]*ResultStatisticsByStatus, error)
	GetResultStatisticsByUnit(ctx context.Context, academicYear string, semester int) ([]*ResultStatisticsByUnit, error)
	GetReviewStatistics(ctx context.Context) (*ReviewStatistics, error)
	// StatusCounts 供指标采集器使用
	StatusCounts(ctx context.Context) (map[string]int64, error)
}

// ResultStatisticsByStatus 按状态统计
type ResultStatisticsByStatus struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// ResultStatisticsByUnit 按课程统计已对学生可见的成绩
type ResultStatisticsByUnit struct {
	UnitCode       string  `json:"unit_code"`
	Count          int64   `json:"count"`
	PassCount      int64   `json:"pass_count"`
	PassRate       float64 `json:"pass_rate"`
	MeanPercentage float64 `json:"mean_percentage"`
}

// ReviewStatistics 系主任审核统计
type ReviewStatistics struct {
	TotalReviews   int64   `json:"total_reviews"`
	ApprovedCount  int64   `json:"approved_count"`
	RejectedCount  int64   `json:"rejected_count"`
	RevisionCount  int64   `json:"revision_count"`
	ApprovalRate   float64 `json:"approval_rate"`
	AwaitingReview int64   `json:"awaiting_review"`
}

// statisticsService 统计服务实现
type statisticsService struct {
	db *gorm.DB
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

// GetResultStatisticsByStatus 按状态统计成绩
func (s *statisticsService) GetResultStatisticsByStatus(ctx context.Context) ([]*ResultStatisticsByStatus, error) {
	var results []struct {
		Status string
		Count  int64
	}

	err := s.db.WithContext(ctx).Model(&model.ResultModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("status").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get result statistics by status: %w", err)
	}

	stats := make([]*ResultStatisticsByStatus, 0, len(results))
	for _, r := range results {
		stats = append(stats, &ResultStatisticsByStatus{Status: r.Status, Count: r.Count})
	}
	return stats, nil
}

// GetResultStatisticsByUnit 按课程统计可见成绩的通过率和平均百分比
func (s *statisticsService) GetResultStatisticsByUnit(ctx context.Context, academicYear string, semester int) ([]*ResultStatisticsByUnit, error) {
	var results []struct {
		UnitCode  string
		Count     int64
		PassCount int64
		MeanPct   float64
	}

	q := s.db.WithContext(ctx).Model(&model.ResultModel{}).
		Select("unit_code, COUNT(*) as count, SUM(CASE WHEN pass THEN 1 ELSE 0 END) as pass_count, AVG(percentage) as mean_pct").
		Where("visible_to_student = ?", true)
	if academicYear != "" {
		q = q.Where("academic_year = ?", academicYear)
	}
	if semester > 0 {
		q = q.Where("semester = ?", semester)
	}
	err := q.Group("unit_code").Order("unit_code").Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get result statistics by unit: %w", err)
	}

	stats := make([]*ResultStatisticsByUnit, 0, len(results))
	for _, r := range results {
		passRate := 0.0
		if r.Count > 0 {
			passRate = grading.RoundHalfUp(float64(r.PassCount)/float64(r.Count)*100, 1)
		}
		stats = append(stats, &ResultStatisticsByUnit{
			UnitCode:       r.UnitCode,
			Count:          r.Count,
			PassCount:      r.PassCount,
			PassRate:       passRate,
			MeanPercentage: grading.RoundHalfUp(r.MeanPct, 1),
		})
	}
	return stats, nil
}

// GetReviewStatistics 从状态历史统计审核结果
func (s *statisticsService) GetReviewStatistics(ctx context.Context) (*ReviewStatistics, error) {
	var results []struct {
		ToState string
		Count   int64
	}
	err := s.db.WithContext(ctx).Model(&model.StateHistoryModel{}).
		Select("to_state, COUNT(*) as count").
		Where("from_state = ?", string(model.StatusHODReview)).
		Group("to_state").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count review decisions: %w", err)
	}

	stats := &ReviewStatistics{}
	for _, r := range results {
		switch model.ResultStatus(r.ToState) {
		case model.StatusApproved:
			stats.ApprovedCount = r.Count
		case model.StatusRejected:
			stats.RejectedCount = r.Count
		case model.StatusDraft:
			stats.RevisionCount = r.Count
		}
		stats.TotalReviews += r.Count
	}
	if stats.TotalReviews > 0 {
		stats.ApprovalRate = grading.RoundHalfUp(float64(stats.ApprovedCount)/float64(stats.TotalReviews)*100, 1)
	}

	err = s.db.WithContext(ctx).Model(&model.ResultModel{}).
		Where("status = ?", string(model.StatusHODReview)).
		Count(&stats.AwaitingReview).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count results awaiting review: %w", err)
	}
	return stats, nil
}

// StatusCounts 返回各状态的记录数
func (s *statisticsService) StatusCounts(ctx context.Context) (map[string]int64, error) {
	stats, err := s.GetResultStatisticsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(stats))
	for _, st := range stats {
		counts[st.Status] = st.Count
	}
	return counts, nil
}
