package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/mautops/results-gin/internal/logging"
	"github.com/mautops/results-gin/internal/repository"
	"github.com/mautops/results-gin/internal/service"
	"github.com/mautops/results-gin/internal/testutil"
	"github.com/mautops/results-gin/internal/workflow"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var gradedAt = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db          *gorm.DB
	results     service.ResultService
	aggregation service.AggregationService
	query       service.QueryService
	export      service.ExportService
	stats       service.StatisticsService
	audit       repository.AuditLogRepository
}

func newFixture(t *testing.T, weightByCredits bool) *fixture {
	db := testutil.NewDB(t)
	dir := testutil.NewDirectory(t)
	store := repository.NewResultRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	engine := workflow.NewEngine(store, testutil.NewAuthorizer(), dir, nil, logging.Discard(),
		workflow.WithClock(func() time.Time { return gradedAt }))
	aggregation := service.NewAggregationService(store, dir, weightByCredits)

	return &fixture{
		db:          db,
		results:     service.NewResultService(engine, store, service.NewAuditLogService(auditRepo)),
		aggregation: aggregation,
		query:       service.NewQueryService(store, repository.NewStateHistoryRepository(db), dir, aggregation),
		export:      service.NewExportService(dir, dir),
		stats:       service.NewStatisticsService(db),
		audit:       auditRepo,
	}
}

func input(student, unit, typ string, marks, max float64) service.SubmissionInput {
	return service.SubmissionInput{
		StudentID:      student,
		UnitCode:       unit,
		AssessmentType: typ,
		AcademicYear:   "2024/2025",
		Semester:       1,
		Marks:          service.Mark{Value: marks, Set: true},
		MaxMarks:       service.Mark{Value: max, Set: true},
	}
}

func lecturerFor(unit string) string {
	if unit == "MA201" {
		return testutil.LecturerMath
	}
	return testutil.LecturerCS
}

// mustSubmit 以任课教师身份提交
func (f *fixture) mustSubmit(t *testing.T, in service.SubmissionInput) string {
	t.Helper()
	rec, err := f.results.Submit(context.Background(), lecturerFor(in.UnitCode), in)
	require.NoError(t, err)
	return rec.ID
}
