package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mautops/results-gin/internal/apperr"
	"github.com/mautops/results-gin/internal/directory"
	"github.com/mautops/results-gin/internal/model"
	"github.com/mautops/results-gin/internal/repository"
)

// QueryService 查询服务接口
type QueryService interface {
	GetStudentResults(ctx context.Context, studentID string, filter SummaryFilter) ([]*model.ResultModel, error)
	Search(ctx context.Context, query string) ([]*StudentBundle, error)
	GetHistory(ctx context.Context, resultID string) ([]*model.StateHistoryModel, error)
	ListResults(ctx context.Context, filter *ListResultsFilter) ([]*model.ResultModel, int64, error)
}

// StudentBundle 搜索结果: 学生信息、可见成绩和汇总
type StudentBundle struct {
	Student *directory.Student   `json:"student"`
	Results []*model.ResultModel `json:"results"`
	Summary *StudentSummary      `json:"summary"`
}

// ListResultsFilter 后台成绩列表过滤器
type ListResultsFilter struct {
	UnitCode       string
	AssessmentType model.AssessmentType
	AcademicYear   string
	Semester       int
	Status         model.ResultStatus
	LecturerID     string
	Page           int
	PageSize       int
}

// queryService 查询服务实现
type queryService struct {
	resultRepo  repository.ResultRepository
	historyRepo repository.StateHistoryRepository
	directory   directory.Directory
	aggregation AggregationService
}

// NewQueryService 创建查询服务
func NewQueryService(
	resultRepo repository.ResultRepository,
	historyRepo repository.StateHistoryRepository,
	dir directory.Directory,
	aggregation AggregationService,
) QueryService {
	return &queryService{
		resultRepo:  resultRepo,
		historyRepo: historyRepo,
		directory:   dir,
		aggregation: aggregation,
	}
}

// GetStudentResults 查询学生成绩,默认只返回学生可见的记录
func (s *queryService) GetStudentResults(ctx context.Context, studentID string, filter SummaryFilter) ([]*model.ResultModel, error) {
	if strings.TrimSpace(studentID) == "" {
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
		return nil, fmt.Errorf("failed to list student results: %w", err)
	}
	return records, nil
}

// Search 按学号、录取编号或姓名搜索学生,每个匹配学生返回一组成绩
func (s *queryService) Search(ctx context.Context, query string) ([]*StudentBundle, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("search query is required")
	}

	students, err := s.directory.SearchStudents(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search students: %w", err)
	}

	bundles := make([]*StudentBundle, 0, len(students))
	for _, st := range students {
		records, err := s.GetStudentResults(ctx, st.ID, SummaryFilter{})
		if err != nil {
			return nil, err
		}
		summary, err := s.aggregation.SummarizeRecords(ctx, st.ID, records)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, &StudentBundle{Student: st, Results: records, Summary: summary})
	}
	return bundles, nil
}

// GetHistory 查询成绩的状态历史
func (s *queryService) GetHistory(ctx context.Context, resultID string) ([]*model.StateHistoryModel, error) {
	if _, err := s.resultRepo.GetByID(ctx, resultID); err != nil {
		return nil, err
	}
	return s.historyRepo.FindByResultID(ctx, resultID)
}

// ListResults 分页查询成绩
func (s *queryService) ListResults(ctx context.Context, filter *ListResultsFilter) ([]*model.ResultModel, int64, error) {
	if filter == nil {
		filter = &ListResultsFilter{}
	}
	// 分页
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	f := repository.ResultFilter{
		UnitCode:       filter.UnitCode,
		AssessmentType: filter.AssessmentType,
		AcademicYear:   filter.AcademicYear,
		Semester:       filter.Semester,
		Status:         filter.Status,
		LecturerID:     filter.LecturerID,
	}
	total, err := s.resultRepo.Count(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count results: %w", err)
	}

	f.Limit = pageSize
	f.Offset = (page - 1) * pageSize
	records, err := s.resultRepo.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list results: %w", err)
	}
	return records, total, nil
}
