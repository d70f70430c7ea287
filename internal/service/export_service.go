package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/mautops/results-gin/internal/directory"
	"github.com/mautops/results-gin/internal/logging"
	"github.com/mautops/results-gin/internal/model"
	"github.com/xuri/excelize/v2"
)

// ExportColumns 导出列,顺序是对外兼容约定
var ExportColumns = []string{
	"Unit Code",
	"Unit Name",
	"Assessment Type",
	"Marks",
	"Max Marks",
	"Percentage",
	"Grade",
	"Status",
	"Semester",
	"Year",
	"Academic Year",
	"Lecturer",
	"Graded Date",
}

const exportSheet = "Results"

// ExportService 成绩导出服务
type ExportService interface {
	ExportCSV(ctx context.Context, w io.Writer, records []*model.ResultModel) error
	ExportXLSX(ctx context.Context, records []*model.ResultModel) (*bytes.Buffer, error)
}

// exportService 导出服务实现
type exportService struct {
	directory directory.Directory
	units     directory.UnitCatalog
}

// NewExportService 创建导出服务
func NewExportService(dir directory.Directory, units directory.UnitCatalog) ExportService {
	return &exportService{directory: dir, units: units}
}

// ExportCSV 按固定列顺序写出 CSV
func (s *exportService) ExportCSV(ctx context.Context, w io.Writer, records []*model.ResultModel) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range s.rows(ctx, records) {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportXLSX 生成与 CSV 列相同的 Excel 工作簿
func (s *exportService) ExportXLSX(ctx context.Context, records []*model.ResultModel) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	warnXLSX("delete default sheet", f.DeleteSheet("Sheet1"))

	for i, title := range ExportColumns {
		c, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, c, title); err != nil {
			return nil, fmt.Errorf("failed to write header %s: %w", c, err)
		}
	}

	// 样式和列宽失败不影响数据
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		warnXLSX("create header style", err)
	} else {
		first, _ := excelize.CoordinatesToCellName(1, 1)
		last, _ := excelize.CoordinatesToCellName(len(ExportColumns), 1)
		warnXLSX("set header style", f.SetCellStyle(exportSheet, first, last, headerStyle))
	}
	warnXLSX("set column width", f.SetColWidth(exportSheet, "A", "A", 12))
	warnXLSX("set column width", f.SetColWidth(exportSheet, "B", "B", 32))
	warnXLSX("set column width", f.SetColWidth(exportSheet, "L", "L", 24))

	names := newNameCache()
	for r, rec := range records {
		row := r + 2
		values := []interface{}{
			rec.UnitCode,
			nil,
			string(rec.AssessmentType),
			rec.Marks,
			rec.MaxMarks,
			rec.Percentage,
			rec.Grade,
			string(rec.Status),
			rec.Semester,
			nil,
			rec.AcademicYear,
			nil,
			formatDate(rec),
		}
		text := s.rowFor(ctx, names, rec)
		values[1] = text[1]
		if rec.YearOfStudy > 0 {
			values[9] = rec.YearOfStudy
		}
		values[11] = text[11]

		for col, v := range values {
			if v == nil {
				continue
			}
			c, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, c, v); err != nil {
				return nil, fmt.Errorf("failed to write cell %s: %w", c, err)
			}
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf, nil
}

// nameCache 单次导出内的名称缓存
type nameCache struct {
	units     map[string]string
	lecturers map[string]string
}

func newNameCache() *nameCache {
	return &nameCache{units: map[string]string{}, lecturers: map[string]string{}}
}

func (s *exportService) rows(ctx context.Context, records []*model.ResultModel) [][]string {
	names := newNameCache()
	out := make([][]string, 0, len(records))
	for _, rec := range records {
		out = append(out, s.rowFor(ctx, names, rec))
	}
	return out
}

func (s *exportService) rowFor(ctx context.Context, names *nameCache, rec *model.ResultModel) []string {
	year := ""
	if rec.YearOfStudy > 0 {
		year = strconv.Itoa(rec.YearOfStudy)
	}
	return []string{
		rec.UnitCode,
		s.unitName(ctx, names, rec.UnitCode),
		string(rec.AssessmentType),
		formatNumber(rec.Marks),
		formatNumber(rec.MaxMarks),
		strconv.FormatFloat(rec.Percentage, 'f', 1, 64),
		rec.Grade,
		string(rec.Status),
		strconv.Itoa(rec.Semester),
		year,
		rec.AcademicYear,
		s.lecturerName(ctx, names, rec.LecturerID),
		formatDate(rec),
	}
}

// unitName 查询课程名称,失败时返回空串
func (s *exportService) unitName(ctx context.Context, names *nameCache, code string) string {
	if name, ok := names.units[code]; ok {
		return name
	}
	name := ""
	if s.units != nil {
		if u, err := s.units.GetUnit(ctx, code); err == nil {
			name = u.Name
		}
	}
	names.units[code] = name
	return name
}

// lecturerName 查询教师姓名,失败时返回空串
func (s *exportService) lecturerName(ctx context.Context, names *nameCache, id string) string {
	if name, ok := names.lecturers[id]; ok {
		return name
	}
	name := ""
	if s.directory != nil && id != "" {
		if l, err := s.directory.GetLecturer(ctx, id); err == nil {
			name = l.DisplayName
		}
	}
	names.lecturers[id] = name
	return name
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDate(rec *model.ResultModel) string {
	if rec.GradedAt.IsZero() {
		return ""
	}
	return rec.GradedAt.Format("2006-01-02")
}

func warnXLSX(op string, err error) {
	if err != nil {
		logging.GetLogger().WithError(err).WithField("op", op).Warn("xlsx formatting failed")
	}
}
