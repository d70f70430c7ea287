package workflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/results-gin/internal/apperr"
	"github.com/mautops/results-gin/internal/auth"
	"github.com/mautops/results-gin/internal/directory"
	"github.com/mautops/results-gin/internal/grading"
	"github.com/mautops/results-gin/internal/model"
	"github.com/mautops/results-gin/internal/notify"
	"github.com/mautops/results-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

var academicYearPattern = regexp.MustCompile(`^(\d{4})/(\d{4})$`)

// SubmitRequest 提交成绩请求
type SubmitRequest struct {
	StudentID      string               `json:"student_id"`
	UnitCode       string               `json:"unit_code"`
	AssessmentType model.AssessmentType `json:"assessment_type"`
	AcademicYear   string               `json:"academic_year"`
	Semester       int                  `json:"semester"`
	YearOfStudy    int                  `json:"year_of_study,omitempty"`
	Marks          float64              `json:"marks"`
	MaxMarks       float64              `json:"max_marks"`
	LecturerID     string               `json:"lecturer_id"`
	// ExpectedVersion 可选,指定调用方读到的版本;为 nil 时以提交时读到的版本为准
	ExpectedVersion *int `json:"expected_version,omitempty"`
}

// Key 返回成绩唯一键
func (r SubmitRequest) Key() model.ResultKey {
	return model.ResultKey{
		StudentID:      r.StudentID,
		UnitCode:       r.UnitCode,
		AssessmentType: r.AssessmentType,
		AcademicYear:   r.AcademicYear,
		Semester:       r.Semester,
	}
}

// Validate 校验请求字段,分数范围由 grading 校验
func (r *SubmitRequest) Validate() error {
	if strings.TrimSpace(r.StudentID) == "" {
		return apperr.Validation("student id is required")
	}
	if strings.TrimSpace(r.UnitCode) == "" {
		return apperr.Validation("unit code is required")
	}
	if strings.TrimSpace(r.LecturerID) == "" {
		return apperr.Validation("lecturer id is required")
	}
	if !r.AssessmentType.Valid() {
		return apperr.Validation("invalid assessment type %q", r.AssessmentType)
	}
	if err := ValidateAcademicYear(r.AcademicYear); err != nil {
		return err
	}
	if r.Semester < 1 || r.Semester > 3 {
		return apperr.Validation("semester must be between 1 and 3, got %d", r.Semester)
	}
	if r.YearOfStudy < 0 {
		return apperr.Validation("year of study must not be negative")
	}
	if r.ExpectedVersion != nil && *r.ExpectedVersion < repository.NewVersion {
		return apperr.Validation("expected version must not be negative")
	}
	return nil
}

// ValidateAcademicYear 学年格式为 YYYY/YYYY 且后一年等于前一年加一
func ValidateAcademicYear(year string) error {
	m := academicYearPattern.FindStringSubmatch(year)
	if m == nil {
		return apperr.Validation("academic year must look like 2024/2025, got %q", year)
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	if end != start+1 {
		return apperr.Validation("academic year %q must span consecutive years", year)
	}
	return nil
}

// BatchSuccess 批量操作中成功的条目
type BatchSuccess struct {
	Index  int                `json:"index"`
	Result *model.ResultModel `json:"result"`
}

// BatchFailure 批量操作中失败的条目
type BatchFailure struct {
	Index    int            `json:"index"`
	Entry    *SubmitRequest `json:"entry,omitempty"`
	ResultID string         `json:"result_id,omitempty"`
	Kind     apperr.Kind    `json:"kind"`
	Reason   string         `json:"reason"`
}

// BatchResult 批量操作结果,Index 为条目在请求中的下标(从 0 开始)
type BatchResult struct {
	Succeeded []BatchSuccess `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// Option 引擎选项
type Option func(*Engine)

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator 替换成绩 ID 生成器
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// Engine 成绩流程引擎,无状态,并发安全由存储层的乐观版本保证
type Engine struct {
	store    repository.ResultRepository
	authz    auth.Authorizer
	units    directory.UnitCatalog
	notifier notify.Notifier
	logger   *logrus.Logger
	now      func() time.Time
	newID    func() string
}

// NewEngine 创建流程引擎
func NewEngine(
	store repository.ResultRepository,
	authz auth.Authorizer,
	units directory.UnitCatalog,
	notifier notify.Notifier,
	logger *logrus.Logger,
	opts ...Option,
) *Engine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	e := &Engine{
		store:    store,
		authz:    authz,
		units:    units,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit 提交成绩: 考试进入 hod_review 等待审批,其他类型直接发布
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*model.ResultModel, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := e.authorizeLecturer(ctx, req.LecturerID, req.UnitCode); err != nil {
		return nil, err
	}
	return e.submitAuthorized(ctx, req)
}

// SubmitBatch 批量提交: 先校验所有课程的任课权限,任何一门无权限则整个请求失败;之后逐条独立提交
func (e *Engine) SubmitBatch(ctx context.Context, lecturerID string, entries []SubmitRequest) (*BatchResult, error) {
	if strings.TrimSpace(lecturerID) == "" {
		return nil, apperr.Validation("lecturer id is required")
	}

	checked := make(map[string]bool)
	for _, entry := range entries {
		unit := entry.UnitCode
		if unit == "" || checked[unit] {
			continue
		}
		if err := e.authorizeLecturer(ctx, lecturerID, unit); err != nil {
			return nil, err
		}
		checked[unit] = true
	}

	out := &BatchResult{Succeeded: []BatchSuccess{}, Failed: []BatchFailure{}}
	for i := range entries {
		entry := entries[i]
		entry.LecturerID = lecturerID

		rec, err := e.submitEntry(ctx, entry)
		if err != nil {
			out.Failed = append(out.Failed, BatchFailure{
				Index:  i,
				Entry:  &entries[i],
				Kind:   failureKind(err),
				Reason: err.Error(),
			})
			continue
		}
		out.Succeeded = append(out.Succeeded, BatchSuccess{Index: i, Result: rec})
	}
	return out, nil
}

func (e *Engine) submitEntry(ctx context.Context, req SubmitRequest) (*model.ResultModel, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return e.submitAuthorized(ctx, req)
}

// submitAuthorized 已完成授权后的提交
func (e *Engine) submitAuthorized(ctx context.Context, req SubmitRequest) (*model.ResultModel, error) {
	graded, err := grading.Compute(req.Marks, req.MaxMarks)
	if err != nil {
		return nil, err
	}

	existing, err := e.store.Get(ctx, req.Key())
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	now := e.now()
	var (
		rec      *model.ResultModel
		from     model.ResultStatus
		expected = repository.NewVersion
	)
	if existing == nil {
		if req.ExpectedVersion != nil && *req.ExpectedVersion != repository.NewVersion {
			return nil, apperr.Conflict("result does not exist at version %d", *req.ExpectedVersion)
		}
		rec = &model.ResultModel{
			ID:             e.newID(),
			StudentID:      req.StudentID,
			UnitCode:       req.UnitCode,
			AssessmentType: req.AssessmentType,
			AcademicYear:   req.AcademicYear,
			Semester:       req.Semester,
		}
	} else {
		if !Resubmittable(existing.Status) {
			return nil, apperr.State("result already submitted; use revision path (status %s)", existing.Status)
		}
		rec = existing.Clone()
		from = existing.Status
		expected = existing.Version
		if req.ExpectedVersion != nil {
			expected = *req.ExpectedVersion
		}
	}

	requiresApproval := req.AssessmentType.RequiresApproval()
	steps, err := submitPath(from, requiresApproval)
	if err != nil {
		return nil, err
	}

	if req.YearOfStudy > 0 {
		rec.YearOfStudy = req.YearOfStudy
	}
	rec.Marks = req.Marks
	rec.MaxMarks = req.MaxMarks
	rec.Percentage = graded.Percentage
	rec.Grade = string(graded.Grade)
	rec.Pass = graded.Pass
	rec.LecturerID = req.LecturerID
	rec.GradedAt = now
	rec.HODApprovalRequired = requiresApproval
	rec.Status = steps[len(steps)-1].To
	if !requiresApproval {
		rec.ApprovedAt = &now
	}
	rec.RefreshVisibility()

	saved, err := e.store.Put(ctx, rec, expected, e.history(steps, req.LecturerID, "", now)...)
	if err != nil {
		return nil, err
	}
	e.logSteps(saved, steps)

	if saved.Status == model.StatusPublished {
		e.emit(ctx, notify.EventResultPublished, saved, req.LecturerID, "")
	}
	return saved, nil
}

// Approve 系主任审批: hod_review -> approved -> published,一次版本递增;已发布时直接返回成功
func (e *Engine) Approve(ctx context.Context, resultID, approverID string) (*model.ResultModel, error) {
	rec, err := e.store.GetByID(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeApprover(ctx, approverID, rec.UnitCode); err != nil {
		return nil, err
	}
	return e.approveAuthorized(ctx, rec, approverID)
}

func (e *Engine) approveAuthorized(ctx context.Context, rec *model.ResultModel, approverID string) (*model.ResultModel, error) {
	if rec.Status == model.StatusPublished {
		return rec, nil
	}
	if rec.Status != model.StatusHODReview {
		return nil, apperr.State("result %s cannot be approved from status %s", rec.ID, rec.Status)
	}
	steps, err := Path(rec.Status, model.StatusApproved, model.StatusPublished)
	if err != nil {
		return nil, err
	}

	now := e.now()
	next := rec.Clone()
	next.Status = model.StatusPublished
	next.ApproverID = approverID
	next.ApprovedAt = &now
	next.RefreshVisibility()

	saved, err := e.store.Put(ctx, next, rec.Version, e.history(steps, approverID, "", now)...)
	if err != nil {
		return nil, err
	}
	e.logSteps(saved, steps)
	e.emit(ctx, notify.EventResultPublished, saved, approverID, "")
	return saved, nil
}

// Reject 驳回: hod_review -> rejected,记录审核意见
func (e *Engine) Reject(ctx context.Context, resultID, approverID, reason string) (*model.ResultModel, error) {
	saved, err := e.review(ctx, resultID, approverID, reason, model.StatusRejected)
	if err != nil {
		return nil, err
	}
	e.emit(ctx, notify.EventResultRejected, saved, approverID, saved.ReviewComment)
	return saved, nil
}

// RequestRevision 退回修改: hod_review -> draft,记录审核意见
func (e *Engine) RequestRevision(ctx context.Context, resultID, approverID, reason string) (*model.ResultModel, error) {
	return e.review(ctx, resultID, approverID, reason, model.StatusDraft)
}

func (e *Engine) review(ctx context.Context, resultID, approverID, reason string, to model.ResultStatus) (*model.ResultModel, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason is required")
	}
	rec, err := e.store.GetByID(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeApprover(ctx, approverID, rec.UnitCode); err != nil {
		return nil, err
	}
	if rec.Status != model.StatusHODReview {
		return nil, apperr.State("result %s cannot move to %s from status %s", rec.ID, to, rec.Status)
	}
	steps, err := Path(rec.Status, to)
	if err != nil {
		return nil, err
	}

	now := e.now()
	next := rec.Clone()
	next.Status = to
	next.ApproverID = approverID
	next.ReviewComment = reason
	next.RefreshVisibility()

	saved, err := e.store.Put(ctx, next, rec.Version, e.history(steps, approverID, reason, now)...)
	if err != nil {
		return nil, err
	}
	e.logSteps(saved, steps)
	return saved, nil
}

// ApproveBatch 批量审批: 先按院系校验审批权限,任何一个院系无权限则整个请求失败;之后逐条独立审批
func (e *Engine) ApproveBatch(ctx context.Context, approverID string, resultIDs []string) (*BatchResult, error) {
	if strings.TrimSpace(approverID) == "" {
		return nil, apperr.Validation("approver id is required")
	}

	out := &BatchResult{Succeeded: []BatchSuccess{}, Failed: []BatchFailure{}}
	records := make([]*model.ResultModel, len(resultIDs))
	checked := make(map[string]bool)
	for i, id := range resultIDs {
		rec, err := e.store.GetByID(ctx, id)
		if err != nil {
			if apperr.KindOf(err) == "" {
				return nil, err
			}
			out.Failed = append(out.Failed, BatchFailure{Index: i, ResultID: id, Kind: failureKind(err), Reason: err.Error()})
			continue
		}
		records[i] = rec
		if checked[rec.UnitCode] {
			continue
		}
		if err := e.authorizeApprover(ctx, approverID, rec.UnitCode); err != nil {
			return nil, err
		}
		checked[rec.UnitCode] = true
	}

	done := make(map[string]bool)
	for i, rec := range records {
		if rec == nil {
			continue
		}
		// 同一批次重复出现的 id 重新读取,已发布则幂等返回
		if done[rec.ID] {
			fresh, err := e.store.GetByID(ctx, rec.ID)
			if err != nil {
				out.Failed = append(out.Failed, BatchFailure{Index: i, ResultID: rec.ID, Kind: failureKind(err), Reason: err.Error()})
				continue
			}
			rec = fresh
		}
		done[rec.ID] = true
		saved, err := e.approveAuthorized(ctx, rec, approverID)
		if err != nil {
			out.Failed = append(out.Failed, BatchFailure{Index: i, ResultID: rec.ID, Kind: failureKind(err), Reason: err.Error()})
			continue
		}
		out.Succeeded = append(out.Succeeded, BatchSuccess{Index: i, Result: saved})
	}
	sortFailures(out.Failed)
	return out, nil
}

// authorizeLecturer 校验任课教师
func (e *Engine) authorizeLecturer(ctx context.Context, lecturerID, unitCode string) error {
	ok, err := e.authz.IsLecturerOf(ctx, lecturerID, unitCode)
	if err != nil {
		return fmt.Errorf("failed to authorize lecturer: %w", err)
	}
	if !ok {
		return apperr.Permission("%s is not the lecturer of record for %s", lecturerID, unitCode)
	}
	return nil
}

// authorizeApprover 按课程所属院系校验审批人
func (e *Engine) authorizeApprover(ctx context.Context, approverID, unitCode string) error {
	if strings.TrimSpace(approverID) == "" {
		return apperr.Validation("approver id is required")
	}
	unit, err := e.units.GetUnit(ctx, unitCode)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.Permission("unit %s has no department on record", unitCode)
		}
		return fmt.Errorf("failed to resolve unit %s: %w", unitCode, err)
	}
	ok, err := e.authz.IsApprover(ctx, approverID, unit.DepartmentID)
	if err != nil {
		return fmt.Errorf("failed to authorize approver: %w", err)
	}
	if !ok {
		return apperr.Permission("%s is not an approver for department %s", approverID, unit.DepartmentID)
	}
	return nil
}

func (e *Engine) history(steps []Step, operator, reason string, at time.Time) []*model.StateHistoryModel {
	out := make([]*model.StateHistoryModel, 0, len(steps))
	for _, s := range steps {
		out = append(out, &model.StateHistoryModel{
			ID:        uuid.New().String(),
			FromState: string(s.From),
			ToState:   string(s.To),
			Reason:    reason,
			Operator:  operator,
			CreatedAt: at,
		})
	}
	return out
}

func (e *Engine) logSteps(rec *model.ResultModel, steps []Step) {
	for _, s := range steps {
		e.logger.WithFields(logrus.Fields{
			"result_id":  rec.ID,
			"student_id": rec.StudentID,
			"unit_code":  rec.UnitCode,
			"from":       s.From,
			"to":         s.To,
			"version":    rec.Version,
		}).Info("result transition")
	}
}

// emit 通知失败只记录日志,不影响已提交的状态
func (e *Engine) emit(ctx context.Context, typ notify.EventType, rec *model.ResultModel, actor, reason string) {
	evt := notify.Event{
		Type:           typ,
		ResultID:       rec.ID,
		StudentID:      rec.StudentID,
		UnitCode:       rec.UnitCode,
		AssessmentType: string(rec.AssessmentType),
		AcademicYear:   rec.AcademicYear,
		Semester:       rec.Semester,
		Status:         string(rec.Status),
		Reason:         reason,
		Actor:          actor,
		Version:        rec.Version,
		OccurredAt:     e.now(),
	}
	if rec.VisibleToStudent {
		evt.Grade = rec.Grade
		evt.Percentage = rec.Percentage
	}
	if err := e.notifier.Notify(context.WithoutCancel(ctx), evt); err != nil {
		e.logger.WithFields(logrus.Fields{
			"result_id": rec.ID,
			"event":     typ,
		}).WithError(err).Warn("notification failed")
	}
}

// failureKind 批量条目的失败分类,非业务错误归为 internal
func failureKind(err error) apperr.Kind {
	if k := apperr.KindOf(err); k != "" {
		return k
	}
	return KindInternal
}

// KindInternal 非业务错误(存储故障等)
const KindInternal apperr.Kind = "internal"

func sortFailures(f []BatchFailure) {
	sort.SliceStable(f, func(i, j int) bool { return f[i].Index < f[j].Index })
}

// IsConflict 判断是否为版本冲突
func IsConflict(err error) bool {
	return errors.Is(err, apperr.ErrConflict)
}
