package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/results-gin/internal/apperr"
	"github.com/mautops/results-gin/internal/model"
	"github.com/mautops/results-gin/internal/repository"
	"github.com/mautops/results-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResult(student, unit string, typ model.AssessmentType, status model.ResultStatus) *model.ResultModel {
	r := &model.ResultModel{
		ID:                  uuid.New().String(),
		StudentID:           student,
		UnitCode:            unit,
		AssessmentType:      typ,
		AcademicYear:        "2024/2025",
		Semester:            1,
		Marks:               60,
		MaxMarks:            100,
		Percentage:          60,
		Grade:               "B",
		Pass:                true,
		Status:              status,
		HODApprovalRequired: typ.RequiresApproval(),
		LecturerID:          "lec-1",
		GradedAt:            time.Now(),
	}
	r.RefreshVisibility()
	return r
}

// TestResultRepository_PutInsertAndGet 测试插入与按键读取
func TestResultRepository_PutInsertAndGet(t *testing.T) {
	repo := repository.NewResultRepository(testutil.NewDB(t))
	ctx := context.Background()

	rec := newResult("s-1", "CS101", model.AssessmentCAT1, model.StatusPublished)
	saved, err := repo.Put(ctx, rec, repository.NewVersion, &model.StateHistoryModel{
		ID: uuid.New().String(), ToState: "published", Operator: "lec-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)
	assert.Equal(t, 0, rec.Version, "input must not be mutated")

	got, err := repo.Get(ctx, rec.Key())
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.VisibleToStudent)

	byID, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Key(), byID.Key())
}

// TestResultRepository_NotFound 测试记录不存在
func TestResultRepository_NotFound(t *testing.T) {
	repo := repository.NewResultRepository(testutil.NewDB(t))
	ctx := context.Background()

	_, err := repo.Get(ctx, model.ResultKey{StudentID: "nobody", UnitCode: "X", AssessmentType: model.AssessmentExam, AcademicYear: "2024/2025", Semester: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

// TestResultRepository_DuplicateInsert 测试唯一键重复插入返回冲突
func TestResultRepository_DuplicateInsert(t *testing.T) {
	repo := repository.NewResultRepository(testutil.NewDB(t))
	ctx := context.Background()

	_, err := repo.Put(ctx, newResult("s-1", "CS101", model.AssessmentExam, model.StatusHODReview), repository.NewVersion)
	require.NoError(t, err)

	dup := newResult("s-1", "CS101", model.AssessmentExam, model.StatusHODReview)
	_, err = repo.Put(ctx, dup, repository.NewVersion)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

// TestResultRepository_OptimisticUpdate 测试乐观锁更新
func TestResultRepository_OptimisticUpdate(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewResultRepository(db)
	history := repository.NewStateHistoryRepository(db)
	ctx := context.Background()

	v1, err := repo.Put(ctx, newResult("s-1", "CS101", model.AssessmentExam, model.StatusHODReview), repository.NewVersion)
	require.NoError(t, err)

	// 两个调用方都读到了版本 1
	copyA := v1.Clone()
	copyB := v1.Clone()

	copyA.Status = model.StatusPublished
	v2, err := repo.Put(ctx, copyA, v1.Version, &model.StateHistoryModel{
		ID: uuid.New().String(), FromState: "hod_review", ToState: "published", Operator: "hod",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.True(t, v2.VisibleToStudent)

	copyB.Status = model.StatusRejected
	copyB.ReviewComment = "late"
	_, err = repo.Put(ctx, copyB, v1.Version, &model.StateHistoryModel{
		ID: uuid.New().String(), FromState: "hod_review", ToState: "rejected", Operator: "hod",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	stored, err := repo.GetByID(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, stored.Status)
	assert.Empty(t, stored.ReviewComment)
	assert.Equal(t, 2, stored.Version)

	// 冲突的写入不会留下历史
	hist, err := history.FindByResultID(ctx, v1.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "published", hist[0].ToState)
	assert.Equal(t, 2, hist[0].Version)
}

// TestResultRepository_VisibilityDerived 测试可见性由状态推导,不接受调用方设置
func TestResultRepository_VisibilityDerived(t *testing.T) {
	repo := repository.NewResultRepository(testutil.NewDB(t))
	ctx := context.Background()

	rec := newResult("s-1", "CS101", model.AssessmentExam, model.StatusHODReview)
	rec.VisibleToStudent = true
	saved, err := repo.Put(ctx, rec, repository.NewVersion)
	require.NoError(t, err)
	assert.False(t, saved.VisibleToStudent)
}

// TestResultRepository_List 测试过滤与排序
func TestResultRepository_List(t *testing.T) {
	repo := repository.NewResultRepository(testutil.NewDB(t))
	ctx := context.Background()

	put := func(r *model.ResultModel) {
		_, err := repo.Put(ctx, r, repository.NewVersion)
		require.NoError(t, err)
	}
	late := newResult("s-1", "AA100", model.AssessmentCAT1, model.StatusPublished)
	late.Semester = 2
	put(late)
	put(newResult("s-1", "CS102", model.AssessmentCAT1, model.StatusPublished))
	put(newResult("s-1", "CS101", model.AssessmentExam, model.StatusHODReview))
	put(newResult("s-1", "CS101", model.AssessmentCAT1, model.StatusPublished))
	put(newResult("s-2", "CS101", model.AssessmentCAT1, model.StatusPublished))

	all, err := repo.List(ctx, repository.ResultFilter{StudentID: "s-1"})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "CS101", all[0].UnitCode)
	assert.Equal(t, model.AssessmentCAT1, all[0].AssessmentType)
	assert.Equal(t, model.AssessmentExam, all[1].AssessmentType)
	assert.Equal(t, "CS102", all[2].UnitCode)
	assert.Equal(t, "AA100", all[3].UnitCode, "semester 2 sorts last")

	visible, err := repo.List(ctx, repository.ResultFilter{StudentID: "s-1", VisibleOnly: true})
	require.NoError(t, err)
	assert.Len(t, visible, 3)

	sem1, err := repo.Count(ctx, repository.ResultFilter{Semester: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(4), sem1)

	byStatus, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), byStatus[model.StatusPublished])
	assert.Equal(t, int64(1), byStatus[model.StatusHODReview])
}

// TestEventRepository 测试事件状态更新
func TestEventRepository(t *testing.T) {
	repo := repository.NewEventRepository(testutil.NewDB(t))
	ctx := context.Background()

	evt := &model.EventModel{
		ID:        uuid.New().String(),
		ResultID:  "r-1",
		StudentID: "s-1",
		Type:      "result_published",
		Data:      []byte(`{"result_id":"r-1"}`),
		Status:    model.EventStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, evt.Validate())
	require.NoError(t, repo.Save(ctx, evt))

	pending, err := repo.FindPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, repo.UpdateStatus(ctx, evt.ID, model.EventStatusFailed, "status 500"))
	pending, err = repo.FindPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	byResult, err := repo.FindByResultID(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, byResult, 1)
	assert.Equal(t, model.EventStatusFailed, byResult[0].Status)
	assert.Equal(t, "status 500", byResult[0].LastError)
}

// TestAuditLogRepository 测试审计日志查询
func TestAuditLogRepository(t *testing.T) {
	repo := repository.NewAuditLogRepository(testutil.NewDB(t))
	ctx := context.Background()

	log := &model.AuditLogModel{
		ID:           uuid.New().String(),
		UserID:       "hod-1",
		Action:       "approve",
		ResourceType: "result",
		ResourceID:   "r-1",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, log.Validate())
	require.NoError(t, repo.Save(ctx, log))

	byUser, err := repo.FindByUserID(ctx, "hod-1")
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	byResource, err := repo.FindByResource(ctx, "result", "r-1")
	require.NoError(t, err)
	assert.Len(t, byResource, 1)
}
