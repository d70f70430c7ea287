package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/results-gin/internal/apperr"
	"github.com/mautops/results-gin/internal/model"
	"github.com/mautops/results-gin/internal/service"
	"github.com/mautops/results-gin/internal/utils"
)

// StudentController 学生成绩查询控制器
type StudentController struct {
	queryService       service.QueryService
	aggregationService service.AggregationService
	exportService      service.ExportService
}

// NewStudentController 创建学生成绩查询控制器
func NewStudentController(
	queryService service.QueryService,
	aggregationService service.AggregationService,
	exportService service.ExportService,
) *StudentController {
	return &StudentController{
		queryService:       queryService,
		aggregationService: aggregationService,
		exportService:      exportService,
	}
}

// parseFilter 解析查询参数,只有后台人员可以请求不可见记录
func parseFilter(ctx *gin.Context) (service.SummaryFilter, error) {
	filter := service.SummaryFilter{
		AcademicYear:   ctx.Query("academic_year"),
		UnitCode:       strings.ToUpper(ctx.Query("unit_code")),
		AssessmentType: model.AssessmentType(ctx.Query("assessment_type")),
	}
	semester, err := queryInt(ctx, "semester", 0)
	if err != nil {
		return filter, err
	}
	filter.Semester = semester

	if ctx.Query("include_hidden") == "true" {
		if !isStaff(ctx) {
			return filter, apperr.Permission("include_hidden requires a staff role")
		}
		filter.IncludeHidden = true
	}
	return filter, nil
}

func (sc *StudentController) studentID(ctx *gin.Context) (string, bool) {
	id := ctx.Param("id")
	if err := utils.ValidateID("student", id); err != nil {
		Fail(ctx, err)
		return "", false
	}
	return id, true
}

// Search 按学号、录取编号或姓名搜索学生
// @Router       /students/search [get]
func (sc *StudentController) Search(ctx *gin.Context) {
	bundles, err := sc.queryService.Search(ctx.Request.Context(), ctx.Query("q"))
	if err != nil {
		Fail(ctx, err)
		return
	}
	Success(ctx, bundles)
}

// Results 查询学生成绩
// @Router       /students/{id}/results [get]
func (sc *StudentController) Results(ctx *gin.Context) {
	id, ok := sc.studentID(ctx)
	if !ok {
		return
	}
	filter, err := parseFilter(ctx)
	if err != nil {
		Fail(ctx, err)
		return
	}

	records, err := sc.queryService.GetStudentResults(ctx.Request.Context(), id, filter)
	if err != nil {
		Fail(ctx, err)
		return
	}
	Success(ctx, records)
}

// Summary 学生成绩汇总
// @Router       /students/{id}/summary [get]
func (sc *StudentController) Summary(ctx *gin.Context) {
	id, ok := sc.studentID(ctx)
	if !ok {
		return
	}
	filter, err := parseFilter(ctx)
	if err != nil {
		Fail(ctx, err)
		return
	}

	summary, err := sc.aggregationService.Summarize(ctx.Request.Context(), id, filter)
	if err != nil {
		Fail(ctx, err)
		return
	}
	Success(ctx, summary)
}

// Export 导出学生成绩,format 为 csv(默认)或 xlsx
// @Router       /students/{id}/results/export [get]
func (sc *StudentController) Export(ctx *gin.Context) {
	id, ok := sc.studentID(ctx)
	if !ok {
		return
	}
	filter, err := parseFilter(ctx)
	if err != nil {
		Fail(ctx, err)
		return
	}

	records, err := sc.queryService.GetStudentResults(ctx.Request.Context(), id, filter)
	if err != nil {
		Fail(ctx, err)
		return
	}

	switch format := ctx.DefaultQuery("format", "csv"); format {
	case "csv":
		ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-results.csv"`, id))
		ctx.Header("Content-Type", "text/csv; charset=utf-8")
		ctx.Status(http.StatusOK)
		if err := sc.exportService.ExportCSV(ctx.Request.Context(), ctx.Writer, records); err != nil {
			_ = ctx.Error(err)
		}
	case "xlsx":
		buf, err := sc.exportService.ExportXLSX(ctx.Request.Context(), records)
		if err != nil {
			Fail(ctx, err)
			return
		}
		ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-results.xlsx"`, id))
		ctx.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	default:
		Fail(ctx, apperr.Validation("unsupported export format %q", format))
	}
}
