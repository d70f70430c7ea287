package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mautops/results-gin/internal/auth"
	"github.com/mautops/results-gin/internal/directory"
	"github.com/mautops/results-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterTuples(t *testing.T) {
	tuples := auth.RosterTuples(testutil.Roster())

	var names []string
	for _, tp := range tuples {
		names = append(names, tp.String())
	}
	assert.Contains(t, names, "unit:CS101#lecturer@user:"+testutil.LecturerCS)
	assert.Contains(t, names, "department:CS#approver@user:"+testutil.HODCS)
	assert.Contains(t, names, "student:s-001#self@user:s-001")
	// 3 门课 + 2 个院系审批人 + 3 名学生
	assert.Len(t, tuples, 8)

	assert.Nil(t, auth.RosterTuples(nil))
}

func TestRosterTuples_SkipsDuplicatesAndBlanks(t *testing.T) {
	roster := &directory.Roster{
		Units: []*directory.Unit{
			{Code: "CS101", Lecturers: []string{"lec-a", "lec-a", ""}},
		},
	}
	tuples := auth.RosterTuples(roster)
	require.Len(t, tuples, 1)
	assert.Equal(t, "lec-a", tuples[0].UserID)
}

func TestSyncRoster(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	report, err := auth.SyncRoster(ctx, store, testutil.Roster())
	require.NoError(t, err)
	assert.Equal(t, 8, report.Written)
	assert.Equal(t, 0, report.Existing)

	a := auth.NewFGAAuthorizer(store)
	ok, err := a.IsLecturerOf(ctx, testutil.LecturerCS, "CS101")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.IsApprover(ctx, testutil.HODMath, "MATH")
	require.NoError(t, err)
	assert.True(t, ok)

	// 再次同步不重复写入
	report, err = auth.SyncRoster(ctx, store, testutil.Roster())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Written)
	assert.Equal(t, 8, report.Existing)
}

func TestSyncRoster_CheckError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("fga unavailable")

	report, err := auth.SyncRoster(context.Background(), store, testutil.Roster())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fga unavailable")
	assert.Equal(t, 0, report.Written)
}
