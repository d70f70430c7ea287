package api

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/results-gin/internal/apperr"
	"github.com/mautops/results-gin/internal/auth"
	"github.com/mautops/results-gin/internal/model"
	"github.com/mautops/results-gin/internal/service"
	"github.com/mautops/results-gin/internal/utils"
)

const maxReasonLength = 1000

// ResultController 成绩控制器
type ResultController struct {
	resultService service.ResultService
	queryService  service.QueryService
}

// NewResultController 创建成绩控制器
func NewResultController(resultService service.ResultService, queryService service.QueryService) *ResultController {
	return &ResultController{
		resultService: resultService,
		queryService:  queryService,
	}
}

// BatchSubmitRequest 批量提交请求
type BatchSubmitRequest struct {
	Entries []service.SubmissionInput `json:"entries"`
}

// BatchApproveRequest 批量审批请求
type BatchApproveRequest struct {
	ResultIDs []string `json:"result_ids"`
}

// ReviewRequest 审核意见
type ReviewRequest struct {
	Reason string `json:"reason"`
}

// validateResultID 验证成绩 ID,无效时写入错误响应
func (rc *ResultController) validateResultID(ctx *gin.Context) (string, bool) {
	id := ctx.Param("id")
	if err := utils.ValidateID("result", id); err != nil {
		Fail(ctx, err)
		return "", false
	}
	return id, true
}

// Submit 提交成绩
// @Summary      提交成绩
// @Tags         成绩
// @Accept       json
// @Produce      json
// @Param        request body service.SubmissionInput true "成绩"
// @Success      200  {object}  Response
// @Failure      400,403,409,422  {object}  ErrorResponse
// @Router       /results [post]
func (rc *ResultController) Submit(ctx *gin.Context) {
	var in service.SubmissionInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		Fail(ctx, apperr.Validation("invalid request body: %v", err))
		return
	}

	rec, err := rc.resultService.Submit(ctx.Request.Context(), auth.UserIDFrom(ctx.Request.Context()), in)
	if err != nil {
		Fail(ctx, err)
		return
	}
	Success(ctx, rec)
}

// SubmitBatch 批量提交成绩,部分失败时仍返回 200,失败条目在 failed 中
// @Router       /results/batch [post]
func (rc *ResultController) SubmitBatch(ctx *gin.Context) {
	var req BatchSubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Fail(ctx, apperr.Validation("invalid request body: %v", err))
		return
	}
	if len(req.Entries) == 0 {
		Fail(ctx, apperr.Validation("entries cannot be empty"))
		return
	}

	res, err := rc.resultService.SubmitBatch(ctx.Request.Context(), auth.UserIDFrom(ctx.Request.Context()), req.Entries)
	if err != nil {
		Fail(ctx, err)
		return
	}
	Success(ctx, res)
}

// ApproveBatch 批量审批
// @Router       /results/batch/approve [post]
func (rc *ResultController) ApproveBatch(ctx *gin.Context) {
	var req BatchApproveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Fail(ctx, apperr.Validation("invalid request body: %v", err))
		return
	}
	if len(req.ResultIDs) == 0 {
		Fail(ctx, apperr.Validation("result_ids cannot be empty"))
		return
	}

	res, err := rc.resultService.ApproveBatch(ctx.Request.Context(), auth.UserIDFrom(ctx.Request.Context()), req.ResultIDs)
	if err != nil {
		Fail(ctx, err)
		return
	}
	Success(ctx, res)
}

// Get 获取成绩详情: 后台人员可看任意记录,学生只能看自己已可见的记录
// @Router       /results/{id} [get]
func (rc *ResultController) Get(ctx *gin.Context) {
	id, ok := rc.validateResultID(ctx)
	if !ok {
		return
	}

	rec, err := rc.resultService.Get(ctx.Request.Context(), id)
	if err != nil {
		Fail(ctx, err)
		return
	}
	if !isStaff(ctx) && (rec.StudentID != ctx.GetString("user_id") || !rec.VisibleToStudent) {
		Fail(ctx, apperr.NotFound("result %s not found", id))
		return
	}
	Success(ctx, rec)
}

// List 后台分页查询成绩
// @Router       /results [get]
func (rc *ResultController) List(ctx *gin.Context) {
	filter := &service.ListResultsFilter{
		UnitCode:       ctx.Query("unit_code"),
		AssessmentType: model.AssessmentType(ctx.Query("assessment_type")),
		AcademicYear:   ctx.Query("academic_year"),
		Status:         model.ResultStatus(ctx.Query("status")),
		LecturerID:     ctx.Query("lecturer_id"),
	}
	var err error
	if filter.Semester, err = queryInt(ctx, "semester", 0); err != nil {
		Fail(ctx, err)
		return
	}
	if filter.Page, err = queryInt(ctx, "page", 1); err != nil {
		Fail(ctx, err)
		return
	}
	if filter.PageSize, err = queryInt(ctx, "page_size", 20); err != nil {
		Fail(ctx, err)
		return
	}

	records, total, err := rc.queryService.ListResults(ctx.Request.Context(), filter)
	if err != nil {
		Fail(ctx, err)
		return
	}
	Paginated(ctx, records, NewPagination(filter.Page, filter.PageSize, total))
}

// History 查询成绩状态历史
// @Router       /results/{id}/history [get]
func (rc *ResultController) History(ctx *gin.Context) {
	id, ok := rc.validateResultID(ctx)
	if !ok {
		return
	}

	history, err := rc.queryService.GetHistory(ctx.Request.Context(), id)
	if err != nil {
		Fail(ctx, err)
		return
	}
	Success(ctx, history)
}

// Approve 审批考试成绩
// @Router       /results/{id}/approve [post]
func (rc *ResultController) Approve(ctx *gin.Context) {
	id, ok := rc.validateResultID(ctx)
	if !ok {
		return
	}

	rec, err := rc.resultService.Approve(ctx.Request.Context(), auth.UserIDFrom(ctx.Request.Context()), id)
	if err != nil {
		Fail(ctx, err)
		return
	}
	Success(ctx, rec)
}

// Reject 驳回考试成绩
// @Router       /results/{id}/reject [post]
func (rc *ResultController) Reject(ctx *gin.Context) {
	rc.review(ctx, rc.resultService.Reject)
}

// RequestRevision 退回修改
// @Router       /results/{id}/revision [post]
func (rc *ResultController) RequestRevision(ctx *gin.Context) {
	rc.review(ctx, rc.resultService.RequestRevision)
}

type reviewFunc func(ctx context.Context, approverID, resultID, reason string) (*model.ResultModel, error)

func (rc *ResultController) review(ctx *gin.Context, fn reviewFunc) {
	id, ok := rc.validateResultID(ctx)
	if !ok {
		return
	}

	var req ReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Fail(ctx, apperr.Validation("invalid request body: %v", err))
		return
	}
	reason, err := utils.TrimAndValidate("reason", req.Reason, maxReasonLength)
	if err != nil {
		Fail(ctx, err)
		return
	}

	rec, err := fn(ctx.Request.Context(), auth.UserIDFrom(ctx.Request.Context()), id, reason)
	if err != nil {
		Fail(ctx, err)
		return
	}
	Success(ctx, rec)
}

// queryInt 解析整数查询参数
func queryInt(ctx *gin.Context, key string, def int) (int, error) {
	raw := ctx.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", key)
	}
	return v, nil
}
