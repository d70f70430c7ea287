package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/mautops/results-gin/internal/apperr"
	"github.com/mautops/results-gin/internal/directory"
	"github.com/mautops/results-gin/internal/grading"
	"github.com/mautops/results-gin/internal/model"
	"github.com/mautops/results-gin/internal/repository"
)

// SummaryFilter 汇总过滤条件
type SummaryFilter struct {
	AcademicYear   string
	Semester       int
	UnitCode       string
	AssessmentType model.AssessmentType
	// IncludeHidden 为 true 时包含学生不可见的记录,仅供后台报表使用
	IncludeHidden bool
}

// UnitSummary 单门课程汇总
type UnitSummary struct {
	UnitCode       string  `json:"unit_code"`
	UnitName       string  `json:"unit_name,omitempty"`
	ResultsCount   int     `json:"results_count"`
	MeanPercentage float64 `json:"mean_percentage"`
	GPA            float64 `json:"gpa"`
}

// SemesterSummary 单学期汇总
type SemesterSummary struct {
	AcademicYear string  `json:"academic_year"`
	Semester     int     `json:"semester"`
	ResultsCount int     `json:"results_count"`
	GPA          float64 `json:"gpa"`
}

// StudentSummary 学生成绩汇总
type StudentSummary struct {
	StudentID      string            `json:"student_id"`
	ByUnit         []UnitSummary     `json:"by_unit"`
	BySemester     []SemesterSummary `json:"by_semester"`
	OverallGPA     float64           `json:"overall_gpa"`
	SemestersCount int               `json:"semesters_count"`
	ResultsCount   int               `json:"results_count"`
}

// AggregationService 成绩汇总服务,每次从存储重新计算
type AggregationService interface {
	Summarize(ctx context.Context, studentID string, filter SummaryFilter) (*StudentSummary, error)
	SummarizeRecords(ctx context.Context, studentID string, records []*model.ResultModel) (*StudentSummary, error)
}

// aggregationService 汇总服务实现
type aggregationService struct {
	resultRepo      repository.ResultRepository
	units           directory.UnitCatalog
	weightByCredits bool
}

// NewAggregationService 创建汇总服务,weightByCredits 为 true 时按课程学分加权
func NewAggregationService(resultRepo repository.ResultRepository, units directory.UnitCatalog, weightByCredits bool) AggregationService {
	return &aggregationService{
		resultRepo:      resultRepo,
		units:           units,
		weightByCredits: weightByCredits,
	}
}

// Summarize 汇总学生成绩
func (s *aggregationService) Summarize(ctx context.Context, studentID string, filter SummaryFilter) (*StudentSummary, error) {
	if studentID == "" {
		return nil, apperr.Validation("student id is required")
	}
	records, err := s.resultRepo.List(ctx, repository.ResultFilter{
		StudentID:      studentID,
		UnitCode:       filter.UnitCode,
		AssessmentType: filter.AssessmentType,
		AcademicYear:   filter.AcademicYear,
		Semester:       filter.Semester,
		VisibleOnly:    !filter.IncludeHidden,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return s.SummarizeRecords(ctx, studentID, records)
}

type accumulator struct {
	count       int
	percentages float64
	weighted    float64
	weights     float64
}

func (a *accumulator) add(rec *model.ResultModel, weight float64) {
	points, _ := grading.GradePoints(grading.Grade(rec.Grade))
	a.count++
	a.percentages += rec.Percentage
	a.weighted += points * weight
	a.weights += weight
}

func (a *accumulator) gpa() float64 {
	if a.weights == 0 {
		return 0
	}
	return grading.RoundHalfUp(a.weighted/a.weights, 2)
}

type semesterKey struct {
	year     string
	semester int
}

// SummarizeRecords 对给定记录做汇总,调用方负责可见性过滤
func (s *aggregationService) SummarizeRecords(ctx context.Context, studentID string, records []*model.ResultModel) (*StudentSummary, error) {
	summary := &StudentSummary{
		StudentID:  studentID,
		ByUnit:     []UnitSummary{},
		BySemester: []SemesterSummary{},
	}

	units := make(map[string]*directory.Unit)
	overall := &accumulator{}
	byUnit := make(map[string]*accumulator)
	bySemester := make(map[semesterKey]*accumulator)

	for _, rec := range records {
		if !grading.Grade(rec.Grade).Valid() {
			continue
		}
		unit := s.lookupUnit(ctx, units, rec.UnitCode)
		weight := 1.0
		if s.weightByCredits && unit != nil && unit.CreditWeight > 0 {
			weight = unit.CreditWeight
		}

		overall.add(rec, weight)
		if byUnit[rec.UnitCode] == nil {
			byUnit[rec.UnitCode] = &accumulator{}
		}
		byUnit[rec.UnitCode].add(rec, weight)

		key := semesterKey{year: rec.AcademicYear, semester: rec.Semester}
		if bySemester[key] == nil {
			bySemester[key] = &accumulator{}
		}
		bySemester[key].add(rec, weight)
	}

	for code, acc := range byUnit {
		us := UnitSummary{
			UnitCode:       code,
			ResultsCount:   acc.count,
			MeanPercentage: grading.RoundHalfUp(acc.percentages/float64(acc.count), 1),
			GPA:            acc.gpa(),
		}
		if u := units[code]; u != nil {
			us.UnitName = u.Name
		}
		summary.ByUnit = append(summary.ByUnit, us)
	}
	sort.Slice(summary.ByUnit, func(i, j int) bool { return summary.ByUnit[i].UnitCode < summary.ByUnit[j].UnitCode })

	for key, acc := range bySemester {
		summary.BySemester = append(summary.BySemester, SemesterSummary{
			AcademicYear: key.year,
			Semester:     key.semester,
			ResultsCount: acc.count,
			GPA:          acc.gpa(),
		})
	}
	sort.Slice(summary.BySemester, func(i, j int) bool {
		a, b := summary.BySemester[i], summary.BySemester[j]
		if a.AcademicYear != b.AcademicYear {
			return a.AcademicYear < b.AcademicYear
		}
		return a.Semester < b.Semester
	})

	summary.OverallGPA = overall.gpa()
	summary.ResultsCount = overall.count
	summary.SemestersCount = len(bySemester)
	return summary, nil
}

// lookupUnit 查询课程目录,失败时返回 nil 并按权重 1 处理
func (s *aggregationService) lookupUnit(ctx context.Context, cache map[string]*directory.Unit, code string) *directory.Unit {
	if u, ok := cache[code]; ok {
		return u
	}
	var unit *directory.Unit
	if s.units != nil {
		if u, err := s.units.GetUnit(ctx, code); err == nil {
			unit = u
		}
	}
	cache[code] = unit
	return unit
}
