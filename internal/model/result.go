package model

import (
	"errors"
	"time"
)

// AssessmentType 考核类型
type AssessmentType string

const (
	AssessmentCAT1       AssessmentType = "cat1"
	AssessmentCAT2       AssessmentType = "cat2"
	AssessmentAssignment AssessmentType = "assignment"
	AssessmentExam       AssessmentType = "exam"
)

// Valid 判断考核类型是否合法
func (t AssessmentType) Valid() bool {
	switch t {
	case AssessmentCAT1, AssessmentCAT2, AssessmentAssignment, AssessmentExam:
		return true
	}
	return false
}

// RequiresApproval 考试成绩必须经过系主任审批,平时成绩直接发布
func (t AssessmentType) RequiresApproval() bool {
	return t == AssessmentExam
}

// ResultStatus 成绩状态
type ResultStatus string

const (
	StatusDraft     ResultStatus = "draft"
	StatusSubmitted ResultStatus = "submitted"
	StatusHODReview ResultStatus = "hod_review"
	StatusApproved  ResultStatus = "approved"
	StatusRejected  ResultStatus = "rejected"
	StatusPublished ResultStatus = "published"
)

// ResultKey 成绩唯一键: 每个键最多一条有效记录
type ResultKey struct {
	StudentID      string         `json:"student_id"`
	UnitCode       string         `json:"unit_code"`
	AssessmentType AssessmentType `json:"assessment_type"`
	AcademicYear   string         `json:"academic_year"`
	Semester       int            `json:"semester"`
}

// ResultModel 成绩数据模型
type ResultModel struct {
	ID             string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	StudentID      string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_results_key,priority:1" json:"student_id"`
	UnitCode       string         `gorm:"type:varchar(32);not null;uniqueIndex:idx_results_key,priority:2;index" json:"unit_code"`
	AssessmentType AssessmentType `gorm:"type:varchar(16);not null;uniqueIndex:idx_results_key,priority:3" json:"assessment_type"`
	AcademicYear   string         `gorm:"type:varchar(16);not null;uniqueIndex:idx_results_key,priority:4" json:"academic_year"`
	Semester       int            `gorm:"type:int;not null;uniqueIndex:idx_results_key,priority:5" json:"semester"`
	YearOfStudy    int            `gorm:"type:int;default:0" json:"year_of_study,omitempty"`

	Marks      float64 `gorm:"not null" json:"marks"`
	MaxMarks   float64 `gorm:"not null" json:"max_marks"`
	Percentage float64 `gorm:"not null" json:"percentage"` // 由 grading 计算,写入时重算
	Grade      string  `gorm:"type:varchar(2);not null" json:"grade"`
	Pass       bool    `gorm:"not null" json:"pass"`

	Status              ResultStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	HODApprovalRequired bool         `gorm:"not null" json:"hod_approval_required"`
	VisibleToStudent    bool         `gorm:"not null;index" json:"visible_to_student"`
	Version             int          `gorm:"type:int;not null;default:1" json:"version"`

	LecturerID    string     `gorm:"type:varchar(64);not null;index" json:"lecturer_id"`
	GradedAt      time.Time  `gorm:"not null" json:"graded_at"`
	ApproverID    string     `gorm:"type:varchar(64)" json:"approver_id,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	ReviewComment string     `gorm:"type:text" json:"review_comment,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (ResultModel) TableName() string {
	return "results"
}

// Key 返回成绩唯一键
func (r *ResultModel) Key() ResultKey {
	return ResultKey{
		StudentID:      r.StudentID,
		UnitCode:       r.UnitCode,
		AssessmentType: r.AssessmentType,
		AcademicYear:   r.AcademicYear,
		Semester:       r.Semester,
	}
}

// Visible 学生可见性只由状态和是否需要审批推导
func Visible(status ResultStatus, hodApprovalRequired bool) bool {
	if status == StatusPublished {
		return true
	}
	if hodApprovalRequired {
		return false
	}
	return status == StatusSubmitted || status == StatusApproved
}

// RefreshVisibility 按当前状态重算 VisibleToStudent
func (r *ResultModel) RefreshVisibility() {
	r.VisibleToStudent = Visible(r.Status, r.HODApprovalRequired)
}

// Clone 复制一份记录,避免修改调用方持有的对象
func (r *ResultModel) Clone() *ResultModel {
	c := *r
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		c.ApprovedAt = &t
	}
	return &c
}

// Validate 验证成绩模型
func (r *ResultModel) Validate() error {
	if r.ID == "" {
		return errors.New("result ID is required")
	}
	if r.StudentID == "" {
		return errors.New("student ID is required")
	}
	if r.UnitCode == "" {
		return errors.New("unit code is required")
	}
	if !r.AssessmentType.Valid() {
		return errors.New("assessment type is invalid")
	}
	if r.AcademicYear == "" {
		return errors.New("academic year is required")
	}
	if r.Status == "" {
		return errors.New("result status is required")
	}
	if r.VisibleToStudent != Visible(r.Status, r.HODApprovalRequired) {
		return errors.New("visibility is inconsistent with status")
	}
	return nil
}
