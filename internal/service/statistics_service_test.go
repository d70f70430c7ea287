package service_test

import (
	"context"
	"testing"

	"github.com/mautops/results-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStatisticsService 测试按状态、课程和审核统计
func TestStatisticsService(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.mustSubmit(t, input("s-001", "CS101", "cat1", 45, 100))
	f.mustSubmit(t, input("s-002", "CS101", "cat1", 30, 100))
	approve := f.mustSubmit(t, input("s-001", "CS101", "exam", 75, 100))
	reject := f.mustSubmit(t, input("s-002", "CS101", "exam", 20, 100))
	f.mustSubmit(t, input("s-003", "CS101", "exam", 50, 100))

	_, err := f.results.Approve(ctx, testutil.HODCS, approve)
	require.NoError(t, err)
	_, err = f.results.Reject(ctx, testutil.HODCS, reject, "wrong script")
	require.NoError(t, err)

	counts, err := f.stats.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts["published"])
	assert.Equal(t, int64(1), counts["rejected"])
	assert.Equal(t, int64(1), counts["hod_review"])

	byUnit, err := f.stats.GetResultStatisticsByUnit(ctx, "2024/2025", 1)
	require.NoError(t, err)
	require.Len(t, byUnit, 1)
	assert.Equal(t, int64(3), byUnit[0].Count)
	assert.Equal(t, int64(2), byUnit[0].PassCount)
	assert.Equal(t, 66.7, byUnit[0].PassRate)
	assert.Equal(t, 50.0, byUnit[0].MeanPercentage)

	review, err := f.stats.GetReviewStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), review.TotalReviews)
	assert.Equal(t, int64(1), review.ApprovedCount)
	assert.Equal(t, int64(1), review.RejectedCount)
	assert.Equal(t, 50.0, review.ApprovalRate)
	assert.Equal(t, int64(1), review.AwaitingReview)
}
