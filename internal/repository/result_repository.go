package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mautops/results-gin/internal/apperr"
	"github.com/mautops/results-gin/internal/model"
	"gorm.io/gorm"
)

// NewVersion 表示记录尚不存在,Put 时执行插入
const NewVersion = 0

// ResultFilter 成绩查询条件,零值字段不参与过滤
type ResultFilter struct {
	StudentID      string
	UnitCode       string
	AssessmentType model.AssessmentType
	AcademicYear   string
	Semester       int
	Status         model.ResultStatus
	VisibleOnly    bool
	LecturerID     string
	Limit          int
	Offset         int
}

// ResultRepository 成绩仓储接口
type ResultRepository interface {
	Get(ctx context.Context, key model.ResultKey) (*model.ResultModel, error)
	GetByID(ctx context.Context, id string) (*model.ResultModel, error)
	Put(ctx context.Context, rec *model.ResultModel, expectedVersion int, history ...*model.StateHistoryModel) (*model.ResultModel, error)
	List(ctx context.Context, filter ResultFilter) ([]*model.ResultModel, error)
	Count(ctx context.Context, filter ResultFilter) (int64, error)
	CountByStatus(ctx context.Context) (map[model.ResultStatus]int64, error)
}

// resultRepository 成绩仓储实现
type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository 创建成绩仓储
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

// Get 根据唯一键查找成绩
func (r *resultRepository) Get(ctx context.Context, key model.ResultKey) (*model.ResultModel, error) {
	var rec model.ResultModel
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND unit_code = ? AND assessment_type = ? AND academic_year = ? AND semester = ?",
			key.StudentID, key.UnitCode, key.AssessmentType, key.AcademicYear, key.Semester).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("result not found for %s/%s/%s/%s/%d",
				key.StudentID, key.UnitCode, key.AssessmentType, key.AcademicYear, key.Semester)
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return &rec, nil
}

// GetByID 根据 ID 查找成绩
func (r *resultRepository) GetByID(ctx context.Context, id string) (*model.ResultModel, error) {
	var rec model.ResultModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("result %s not found", id)
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return &rec, nil
}

// Put 乐观写入: expectedVersion 为 NewVersion 时插入,否则仅当库中版本等于 expectedVersion 时更新并将版本加一。
// 状态历史与记录在同一事务内写入。返回写入后的副本,入参不会被修改。
func (r *resultRepository) Put(ctx context.Context, rec *model.ResultModel, expectedVersion int, history ...*model.StateHistoryModel) (*model.ResultModel, error) {
	if rec == nil {
		return nil, apperr.Validation("result is required")
	}
	if expectedVersion < NewVersion {
		return nil, apperr.Validation("expected version must not be negative")
	}

	out := rec.Clone()
	out.RefreshVisibility()
	now := time.Now()
	out.UpdatedAt = now
	out.Version = expectedVersion + 1
	if expectedVersion == NewVersion {
		out.CreatedAt = now
	}
	if err := out.Validate(); err != nil {
		return nil, apperr.Validation("invalid result: %v", err)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if expectedVersion == NewVersion {
			if err := r.insert(tx, out); err != nil {
				return err
			}
		} else {
			res := tx.Model(&model.ResultModel{}).
				Where("id = ? AND version = ?", out.ID, expectedVersion).
				Updates(updateColumns(out))
			if res.Error != nil {
				return fmt.Errorf("failed to update result: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return apperr.Conflict("result %s was modified concurrently (expected version %d)", out.ID, expectedVersion)
			}
		}

		for _, h := range history {
			if h == nil {
				continue
			}
			h.ResultID = out.ID
			h.Version = out.Version
			if h.CreatedAt.IsZero() {
				h.CreatedAt = now
			}
			if err := h.Validate(); err != nil {
				return apperr.Validation("invalid state history: %v", err)
			}
			if err := tx.Create(h).Error; err != nil {
				return fmt.Errorf("failed to save state history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// insert 插入新记录,唯一键已存在时返回冲突错误
func (r *resultRepository) insert(tx *gorm.DB, rec *model.ResultModel) error {
	var count int64
	if err := tx.Model(&model.ResultModel{}).
		Where("(student_id = ? AND unit_code = ? AND assessment_type = ? AND academic_year = ? AND semester = ?) OR id = ?",
			rec.StudentID, rec.UnitCode, rec.AssessmentType, rec.AcademicYear, rec.Semester, rec.ID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check result existence: %w", err)
	}
	if count > 0 {
		return apperr.Conflict("result already exists for %s/%s/%s", rec.StudentID, rec.UnitCode, rec.AssessmentType)
	}
	if err := tx.Create(rec).Error; err != nil {
		// 并发插入时由唯一索引兜底
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("result already exists for %s/%s/%s", rec.StudentID, rec.UnitCode, rec.AssessmentType)
		}
		return fmt.Errorf("failed to create result: %w", err)
	}
	return nil
}

// List 按条件查询成绩,按学年、学期、课程、考核类型排序
func (r *resultRepository) List(ctx context.Context, filter ResultFilter) ([]*model.ResultModel, error) {
	var recs []*model.ResultModel
	q := r.applyFilter(r.db.WithContext(ctx).Model(&model.ResultModel{}), filter).
		Order("academic_year ASC, semester ASC, unit_code ASC, assessment_type ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return recs, nil
}

// Count 按条件统计成绩数量
func (r *resultRepository) Count(ctx context.Context, filter ResultFilter) (int64, error) {
	var total int64
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&model.ResultModel{}), filter).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return total, nil
}

// CountByStatus 按状态统计成绩数量
func (r *resultRepository) CountByStatus(ctx context.Context) (map[model.ResultStatus]int64, error) {
	var rows []struct {
		Status model.ResultStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&model.ResultModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count results by status: %w", err)
	}
	out := make(map[model.ResultStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// updateColumns 更新时写入的列,包含零值字段
func updateColumns(rec *model.ResultModel) map[string]interface{} {
	return map[string]interface{}{
		"year_of_study":         rec.YearOfStudy,
		"marks":                 rec.Marks,
		"max_marks":             rec.MaxMarks,
		"percentage":            rec.Percentage,
		"grade":                 rec.Grade,
		"pass":                  rec.Pass,
		"status":                rec.Status,
		"hod_approval_required": rec.HODApprovalRequired,
		"visible_to_student":    rec.VisibleToStudent,
		"version":               rec.Version,
		"lecturer_id":           rec.LecturerID,
		"graded_at":             rec.GradedAt,
		"approver_id":           rec.ApproverID,
		"approved_at":           rec.ApprovedAt,
		"review_comment":        rec.ReviewComment,
		"updated_at":            rec.UpdatedAt,
	}
}

func (r *resultRepository) applyFilter(q *gorm.DB, filter ResultFilter) *gorm.DB {
	if filter.StudentID != "" {
		q = q.Where("student_id = ?", filter.StudentID)
	}
	if filter.UnitCode != "" {
		q = q.Where("unit_code = ?", filter.UnitCode)
	}
	if filter.AssessmentType != "" {
		q = q.Where("assessment_type = ?", filter.AssessmentType)
	}
	if filter.AcademicYear != "" {
		q = q.Where("academic_year = ?", filter.AcademicYear)
	}
	if filter.Semester > 0 {
		q = q.Where("semester = ?", filter.Semester)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.LecturerID != "" {
		q = q.Where("lecturer_id = ?", filter.LecturerID)
	}
	if filter.VisibleOnly {
		q = q.Where("visible_to_student = ?", true)
	}
	return q
}
