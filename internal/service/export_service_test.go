package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/mautops/results-gin/internal/model"
	"github.com/mautops/results-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func exportRecords(t *testing.T, f *fixture) []*model.ResultModel {
	t.Helper()
	in := input("s-001", "CS101", "cat1", 35, 50)
	in.YearOfStudy = 2
	f.mustSubmit(t, in)
	f.mustSubmit(t, input("s-001", "MA201", "assignment", 18.5, 20))

	records, err := f.query.GetStudentResults(context.Background(), "s-001", service.SummaryFilter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	return records
}

// TestExportCSV 测试 CSV 列顺序和名称解析
func TestExportCSV(t *testing.T) {
	f := newFixture(t, false)
	records := exportRecords(t, f)

	var buf bytes.Buffer
	require.NoError(t, f.export.ExportCSV(context.Background(), &buf, records))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, service.ExportColumns, rows[0])
	assert.Equal(t, []string{
		"CS101", "Intro to Programming", "cat1", "35", "50", "70.0", "A", "published",
		"1", "2", "2024/2025", "Dr. Njeri", "2025-03-01",
	}, rows[1])
	assert.Equal(t, []string{
		"MA201", "Linear Algebra", "assignment", "18.5", "20", "92.5", "A", "published",
		"1", "", "2024/2025", "Prof. Mutua", "2025-03-01",
	}, rows[2])
}

// TestExportCSV_UnknownNamesBlank 测试名称查不到时留空
func TestExportCSV_UnknownNamesBlank(t *testing.T) {
	f := newFixture(t, false)
	rec := &model.ResultModel{
		UnitCode:       "XX999",
		AssessmentType: model.AssessmentExam,
		Marks:          10,
		MaxMarks:       20,
		Percentage:     50,
		Grade:          "C",
		Status:         model.StatusPublished,
		Semester:       2,
		AcademicYear:   "2023/2024",
		LecturerID:     "ghost",
	}

	var buf bytes.Buffer
	require.NoError(t, f.export.ExportCSV(context.Background(), &buf, []*model.ResultModel{rec}))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[1][1])
	assert.Equal(t, "", rows[1][11])
	assert.Equal(t, "", rows[1][12])
}

// TestExportXLSX 测试 Excel 导出
func TestExportXLSX(t *testing.T) {
	f := newFixture(t, false)
	records := exportRecords(t, f)

	buf, err := f.export.ExportXLSX(context.Background(), records)
	require.NoError(t, err)

	book, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, service.ExportColumns, rows[0])
	assert.Equal(t, "CS101", rows[1][0])
	assert.Equal(t, "Intro to Programming", rows[1][1])
	assert.Equal(t, "Dr. Njeri", rows[1][11])
	assert.Equal(t, "Linear Algebra", rows[2][1])
}
