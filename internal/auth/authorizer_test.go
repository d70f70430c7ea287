package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mautops/results-gin/internal/auth"
	"github.com/mautops/results-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore 内存关系存储,记录 CheckPermission 调用次数
type fakeStore struct {
	mu     sync.Mutex
	tuples map[string]bool
	checks int
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tuples: make(map[string]bool)}
}

func tupleKey(userID, relation, objectType, objectID string) string {
	return userID + "|" + relation + "|" + objectType + ":" + objectID
}

func (s *fakeStore) CheckPermission(_ context.Context, userID, relation, objectType, objectID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	if s.err != nil {
		return false, s.err
	}
	return s.tuples[tupleKey(userID, relation, objectType, objectID)], nil
}

func (s *fakeStore) SetRelation(_ context.Context, userID, relation, objectType, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tuples[tupleKey(userID, relation, objectType, objectID)] = true
	return nil
}

func (s *fakeStore) DeleteRelation(_ context.Context, userID, relation, objectType, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tuples, tupleKey(userID, relation, objectType, objectID))
	return nil
}

func (s *fakeStore) checkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks
}

func TestAuthorizerFromRoster(t *testing.T) {
	a := auth.AuthorizerFromRoster(testutil.Roster())
	ctx := context.Background()

	ok, err := a.IsLecturerOf(ctx, testutil.LecturerCS, "CS101")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = a.IsLecturerOf(ctx, testutil.LecturerMath, "CS101")
	assert.False(t, ok)
	ok, _ = a.IsLecturerOf(ctx, testutil.Outsider, "CS102")
	assert.False(t, ok)

	ok, _ = a.IsApprover(ctx, testutil.HODCS, "CS")
	assert.True(t, ok)
	ok, _ = a.IsApprover(ctx, testutil.HODCS, "MATH")
	assert.False(t, ok)

	empty := auth.AuthorizerFromRoster(nil)
	ok, _ = empty.IsLecturerOf(ctx, testutil.LecturerCS, "CS101")
	assert.False(t, ok)
}

func TestStaticAuthorizer_Grant(t *testing.T) {
	a := auth.NewStaticAuthorizer()
	ctx := context.Background()

	a.GrantLecturer("CS101", "lec-a", "lec-b")
	a.GrantApprover("CS", "hod-a")

	for _, id := range []string{"lec-a", "lec-b"} {
		ok, _ := a.IsLecturerOf(ctx, id, "CS101")
		assert.True(t, ok, id)
	}
	ok, _ := a.IsApprover(ctx, "hod-a", "CS")
	assert.True(t, ok)
}

func TestFGAAuthorizer(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	require.NoError(t, store.SetRelation(ctx, "lec-a", auth.RelationLecturer, auth.ObjectUnit, "CS101"))
	require.NoError(t, store.SetRelation(ctx, "hod-a", auth.RelationApprover, auth.ObjectDepartment, "CS"))

	a := auth.NewFGAAuthorizer(store)

	ok, err := a.IsLecturerOf(ctx, "lec-a", "CS101")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.IsApprover(ctx, "hod-a", "CS")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.IsApprover(ctx, "lec-a", "CS")
	require.NoError(t, err)
	assert.False(t, ok)

	// 空 ID 不查询后端
	before := store.checkCount()
	ok, err = a.IsLecturerOf(ctx, "", "CS101")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = a.IsApprover(ctx, "hod-a", "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, store.checkCount())

	store.err = errors.New("fga unavailable")
	_, err = a.IsLecturerOf(ctx, "lec-a", "CS101")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CS101")
}

// TestPermissionCache_GetSet 测试权限缓存的基本操作
func TestPermissionCache_GetSet(t *testing.T) {
	cache := auth.NewPermissionCache(5 * time.Minute)

	key := "user:s-001:viewer:student:s-001"
	cache.Set(key, true)

	value, found := cache.Get(key)
	assert.True(t, found)
	assert.True(t, value)

	_, found = cache.Get("non-existent-key")
	assert.False(t, found)

	cache.Delete(key)
	_, found = cache.Get(key)
	assert.False(t, found)

	cache.Set("a", true)
	cache.Set("b", false)
	cache.Clear()
	_, found = cache.Get("a")
	assert.False(t, found)
}

// TestPermissionCache_Expiration 测试缓存过期
func TestPermissionCache_Expiration(t *testing.T) {
	cache := auth.NewPermissionCache(50 * time.Millisecond)

	key := "user:s-001:viewer:student:s-001"
	cache.Set(key, true)

	_, found := cache.Get(key)
	assert.True(t, found)

	time.Sleep(100 * time.Millisecond)

	_, found = cache.Get(key)
	assert.False(t, found)
}

func TestCachedOpenFGAClient(t *testing.T) {
	store := newFakeStore()
	client := auth.NewCachedOpenFGAClient(store, auth.NewPermissionCache(time.Minute))
	ctx := context.Background()

	// 否定结果同样缓存
	for i := 0; i < 3; i++ {
		ok, err := client.CheckPermission(ctx, "s-001", auth.RelationViewer, auth.ObjectStudent, "s-001")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, store.checkCount())

	// 写关系后清除对应缓存
	require.NoError(t, client.SetRelation(ctx, "s-001", auth.RelationViewer, auth.ObjectStudent, "s-001"))
	ok, err := client.CheckPermission(ctx, "s-001", auth.RelationViewer, auth.ObjectStudent, "s-001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, store.checkCount())

	require.NoError(t, client.DeleteRelation(ctx, "s-001", auth.RelationViewer, auth.ObjectStudent, "s-001"))
	ok, err = client.CheckPermission(ctx, "s-001", auth.RelationViewer, auth.ObjectStudent, "s-001")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, store.checkCount())
}

func TestCachedOpenFGAClient_ErrorsNotCached(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("timeout")
	client := auth.NewCachedOpenFGAClient(store, auth.NewPermissionCache(time.Minute))
	ctx := context.Background()

	_, err := client.CheckPermission(ctx, "u", auth.RelationViewer, auth.ObjectStudent, "s")
	require.Error(t, err)

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	_, err = client.CheckPermission(ctx, "u", auth.RelationViewer, auth.ObjectStudent, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, store.checkCount())
}

func TestGetPermissionModel(t *testing.T) {
	model := auth.GetPermissionModel()
	for _, typ := range []string{"type user", "type department", "type unit", "type student"} {
		assert.Contains(t, model, typ)
	}
	assert.Contains(t, model, "define approver")
	assert.Contains(t, model, "define lecturer")
	assert.Contains(t, model, "define viewer")
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	_, ok := auth.IdentityFrom(ctx)
	assert.False(t, ok)
	assert.Empty(t, auth.UserIDFrom(ctx))

	ctx = auth.WithIdentity(ctx, auth.Identity{UserID: "hod-cs", Roles: []string{"hod"}})
	id, ok := auth.IdentityFrom(ctx)
	require.True(t, ok)
	assert.True(t, id.HasRole("hod"))
	assert.False(t, id.HasRole("admin"))
	assert.Equal(t, "hod-cs", auth.UserIDFrom(ctx))
}
