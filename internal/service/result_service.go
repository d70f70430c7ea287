package service

import (
	"context"
	"sort"

	"github.com/mautops/results-gin/internal/apperr"
	"github.com/mautops/results-gin/internal/logging"
	"github.com/mautops/results-gin/internal/metrics"
	"github.com/mautops/results-gin/internal/model"
	"github.com/mautops/results-gin/internal/repository"
	"github.com/mautops/results-gin/internal/workflow"
	"github.com/sirupsen/logrus"
)

// ResultService 成绩服务,在流程引擎之上记录审计日志和指标
type ResultService interface {
	Submit(ctx context.Context, lecturerID string, in SubmissionInput) (*model.ResultModel, error)
	SubmitBatch(ctx context.Context, lecturerID string, inputs []SubmissionInput) (*workflow.BatchResult, error)
	Approve(ctx context.Context, approverID, resultID string) (*model.ResultModel, error)
	ApproveBatch(ctx context.Context, approverID string, resultIDs []string) (*workflow.BatchResult, error)
	Reject(ctx context.Context, approverID, resultID, reason string) (*model.ResultModel, error)
	RequestRevision(ctx context.Context, approverID, resultID, reason string) (*model.ResultModel, error)
	Get(ctx context.Context, resultID string) (*model.ResultModel, error)
}

// resultService 成绩服务实现
type resultService struct {
	engine      *workflow.Engine
	resultRepo  repository.ResultRepository
	auditLogSvc AuditLogService
}

// NewResultService 创建成绩服务
func NewResultService(engine *workflow.Engine, resultRepo repository.ResultRepository, auditLogSvc AuditLogService) ResultService {
	return &resultService{
		engine:      engine,
		resultRepo:  resultRepo,
		auditLogSvc: auditLogSvc,
	}
}

// Submit 提交单条成绩
func (s *resultService) Submit(ctx context.Context, lecturerID string, in SubmissionInput) (*model.ResultModel, error) {
	req, err := in.Normalize(lecturerID)
	if err != nil {
		return nil, err
	}

	rec, err := s.engine.Submit(ctx, req)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	metrics.RecordSubmission(string(rec.AssessmentType), string(rec.Status))
	metrics.RecordTransition("submit")
	s.audit(ctx, lecturerID, "submit", rec.ID, map[string]interface{}{
		"unit_code":       rec.UnitCode,
		"assessment_type": rec.AssessmentType,
		"status":          rec.Status,
		"version":         rec.Version,
	})
	return rec, nil
}

// SubmitBatch 批量提交,格式错误的条目直接记为失败,不进入流程
func (s *resultService) SubmitBatch(ctx context.Context, lecturerID string, inputs []SubmissionInput) (*workflow.BatchResult, error) {
	out := &workflow.BatchResult{Succeeded: []workflow.BatchSuccess{}, Failed: []workflow.BatchFailure{}}

	reqs := make([]workflow.SubmitRequest, 0, len(inputs))
	positions := make([]int, 0, len(inputs))
	for i, in := range inputs {
		req, err := in.Normalize(lecturerID)
		if err != nil {
			entry := in.request(lecturerID)
			out.Failed = append(out.Failed, workflow.BatchFailure{
				Index:  i,
				Entry:  &entry,
				Kind:   apperr.KindOf(err),
				Reason: err.Error(),
			})
			continue
		}
		reqs = append(reqs, req)
		positions = append(positions, i)
	}

	res, err := s.engine.SubmitBatch(ctx, lecturerID, reqs)
	if err != nil {
		return nil, err
	}

	for _, ok := range res.Succeeded {
		ok.Index = positions[ok.Index]
		out.Succeeded = append(out.Succeeded, ok)
		metrics.RecordSubmission(string(ok.Result.AssessmentType), string(ok.Result.Status))
		metrics.RecordTransition("submit")
	}
	for _, f := range res.Failed {
		f.Index = positions[f.Index]
		out.Failed = append(out.Failed, f)
		if f.Kind == apperr.KindConflict {
			metrics.RecordConflict()
		}
	}
	sort.SliceStable(out.Succeeded, func(i, j int) bool { return out.Succeeded[i].Index < out.Succeeded[j].Index })
	sort.SliceStable(out.Failed, func(i, j int) bool { return out.Failed[i].Index < out.Failed[j].Index })

	s.audit(ctx, lecturerID, "batch_submit", "", map[string]interface{}{
		"total":     len(inputs),
		"succeeded": len(out.Succeeded),
		"failed":    len(out.Failed),
	})
	return out, nil
}

// Approve 审批考试成绩
func (s *resultService) Approve(ctx context.Context, approverID, resultID string) (*model.ResultModel, error) {
	rec, err := s.engine.Approve(ctx, resultID, approverID)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	metrics.RecordTransition("approve")
	s.audit(ctx, approverID, "approve", rec.ID, map[string]interface{}{"status": rec.Status, "version": rec.Version})
	return rec, nil
}

// ApproveBatch 批量审批
func (s *resultService) ApproveBatch(ctx context.Context, approverID string, resultIDs []string) (*workflow.BatchResult, error) {
	res, err := s.engine.ApproveBatch(ctx, approverID, resultIDs)
	if err != nil {
		return nil, err
	}
	for range res.Succeeded {
		metrics.RecordTransition("approve")
	}
	for _, f := range res.Failed {
		if f.Kind == apperr.KindConflict {
			metrics.RecordConflict()
		}
	}
	s.audit(ctx, approverID, "batch_approve", "", map[string]interface{}{
		"result_ids": resultIDs,
		"succeeded":  len(res.Succeeded),
		"failed":     len(res.Failed),
	})
	return res, nil
}

// Reject 驳回考试成绩
func (s *resultService) Reject(ctx context.Context, approverID, resultID, reason string) (*model.ResultModel, error) {
	rec, err := s.engine.Reject(ctx, resultID, approverID, reason)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	metrics.RecordTransition("reject")
	s.audit(ctx, approverID, "reject", rec.ID, map[string]interface{}{"reason": reason, "version": rec.Version})
	return rec, nil
}

// RequestRevision 退回修改
func (s *resultService) RequestRevision(ctx context.Context, approverID, resultID, reason string) (*model.ResultModel, error) {
	rec, err := s.engine.RequestRevision(ctx, resultID, approverID, reason)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	metrics.RecordTransition("revision")
	s.audit(ctx, approverID, "revision", rec.ID, map[string]interface{}{"reason": reason, "version": rec.Version})
	return rec, nil
}

// Get 按 ID 获取成绩
func (s *resultService) Get(ctx context.Context, resultID string) (*model.ResultModel, error) {
	return s.resultRepo.GetByID(ctx, resultID)
}

func (s *resultService) recordFailure(err error) {
	if workflow.IsConflict(err) {
		metrics.RecordConflict()
	}
}

// audit 记录审计日志,失败不影响业务结果
func (s *resultService) audit(ctx context.Context, userID, action, resourceID string, details map[string]interface{}) {
	if s.auditLogSvc == nil || userID == "" {
		return
	}
	if err := s.auditLogSvc.RecordAction(ctx, userID, action, "result", resourceID, details); err != nil {
		logging.GetLogger().WithError(err).WithFields(logrus.Fields{
			"user_id":     userID,
			"action":      action,
			"resource_id": resourceID,
		}).Warn("failed to record audit log")
	}
}
