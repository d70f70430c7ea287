package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/results-gin/internal/service"
)

// StatisticsController 统计控制器
type StatisticsController struct {
	statisticsService service.StatisticsService
}

// NewStatisticsController 创建统计控制器
func NewStatisticsController(statisticsService service.StatisticsService) *StatisticsController {
	return &StatisticsController{statisticsService: statisticsService}
}

// Results 成绩统计: 按状态、按课程和审核结果
// @Router       /statistics/results [get]
func (sc *StatisticsController) Results(ctx *gin.Context) {
	semester, err := queryInt(ctx, "semester", 0)
	if err != nil {
		Fail(ctx, err)
		return
	}
	reqCtx := ctx.Request.Context()

	byStatus, err := sc.statisticsService.GetResultStatisticsByStatus(reqCtx)
	if err != nil {
		Fail(ctx, err)
		return
	}
	byUnit, err := sc.statisticsService.GetResultStatisticsByUnit(reqCtx, ctx.Query("academic_year"), semester)
	if err != nil {
		Fail(ctx, err)
		return
	}
	review, err := sc.statisticsService.GetReviewStatistics(reqCtx)
	if err != nil {
		Fail(ctx, err)
		return
	}

	Success(ctx, gin.H{
		"by_status": byStatus,
		"by_unit":   byUnit,
		"review":    review,
	})
}
