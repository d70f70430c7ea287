package directory_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mautops/results-gin/internal/apperr"
	"github.com/mautops/results-gin/internal/directory"
	"github.com/mautops/results-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rosterYAML = `
students:
  - id: s-001
    admission_number: ADM/2023/001
    display_name: Amina Wanjiru
    year_of_study: 2
  - id: s-002
    admission_number: ADM/2023/002
    display_name: Brian Otieno
lecturers:
  - id: lec-cs
    display_name: Dr. Njeri
    department_id: CS
units:
  - code: CS101
    name: Intro to Programming
    department_id: CS
    credit_weight: 3
    lecturers: [lec-cs]
departments:
  - id: CS
    name: Computer Science
    approvers: [hod-cs]
`

func TestLoadFileDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rosterYAML), 0644))

	d, err := directory.LoadFileDirectory(path)
	require.NoError(t, err)
	ctx := context.Background()

	s, err := d.GetStudent(ctx, "s-001")
	require.NoError(t, err)
	assert.Equal(t, "Amina Wanjiru", s.DisplayName)
	assert.Equal(t, 2, s.YearOfStudy)

	u, err := d.GetUnit(ctx, "CS101")
	require.NoError(t, err)
	assert.Equal(t, 3.0, u.CreditWeight)
	assert.Equal(t, []string{"lec-cs"}, u.Lecturers)

	l, err := d.GetLecturer(ctx, "lec-cs")
	require.NoError(t, err)
	assert.Equal(t, "CS", l.DepartmentID)

	require.Len(t, d.Roster().Departments, 1)
	assert.Equal(t, []string{"hod-cs"}, d.Roster().Departments[0].Approvers)
}

func TestLoadFileDirectory_Errors(t *testing.T) {
	_, err := directory.LoadFileDirectory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = directory.ParseFileDirectory([]byte("students: [::"))
	assert.Error(t, err)

	_, err = directory.ParseFileDirectory([]byte("students:\n  - id: s-1\n  - id: s-1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate student")

	_, err = directory.ParseFileDirectory([]byte("units:\n  - name: nameless\n"))
	assert.Error(t, err)
}

func TestFileDirectory_NotFound(t *testing.T) {
	d := testutil.NewDirectory(t)
	ctx := context.Background()

	_, err := d.GetStudent(ctx, "nobody")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = d.GetLecturer(ctx, "nobody")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = d.GetUnit(ctx, "XX999")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestFileDirectory_ReturnsCopies(t *testing.T) {
	d := testutil.NewDirectory(t)
	ctx := context.Background()

	s, err := d.GetStudent(ctx, "s-001")
	require.NoError(t, err)
	s.DisplayName = "changed"

	again, err := d.GetStudent(ctx, "s-001")
	require.NoError(t, err)
	assert.Equal(t, "Amina Wanjiru", again.DisplayName)
}

func TestFileDirectory_SearchStudents(t *testing.T) {
	d := testutil.NewDirectory(t)
	ctx := context.Background()

	tests := []struct {
		query string
		want  []string
	}{
		{query: "s-002", want: []string{"s-002"}},
		{query: "S-002", want: []string{"s-002"}},
		{query: "adm/2022/017", want: []string{"s-003"}},
		{query: "Am", want: []string{"s-001", "s-003"}},
		{query: "  brian ", want: []string{"s-002"}},
		{query: "s-00", want: nil},
		{query: "zzz", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := d.SearchStudents(ctx, tt.query)
			require.NoError(t, err)
			var ids []string
			for _, s := range got {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	_, err := d.SearchStudents(ctx, "   ")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func newDirectoryServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("/students/s-001", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_ = json.NewEncoder(w).Encode(directory.Student{ID: "s-001", DisplayName: "Amina Wanjiru"})
	})
	mux.HandleFunc("/students", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "amina w", r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode([]directory.Student{{ID: "s-001", DisplayName: "Amina Wanjiru"}})
	})
	mux.HandleFunc("/units/CS101", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(directory.Unit{Code: "CS101", Name: "Intro to Programming", CreditWeight: 3})
	})
	mux.HandleFunc("/lecturers/lec-cs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(directory.Lecturer{ID: "lec-cs", DisplayName: "Dr. Njeri"})
	})
	mux.HandleFunc("/units/BROKEN", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestHTTPDirectory(t *testing.T) {
	srv, _ := newDirectoryServer(t)
	d := directory.NewHTTPDirectory(srv.URL+"/", time.Second)
	ctx := context.Background()

	s, err := d.GetStudent(ctx, "s-001")
	require.NoError(t, err)
	assert.Equal(t, "Amina Wanjiru", s.DisplayName)

	l, err := d.GetLecturer(ctx, "lec-cs")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Njeri", l.DisplayName)

	u, err := d.GetUnit(ctx, "CS101")
	require.NoError(t, err)
	assert.Equal(t, 3.0, u.CreditWeight)

	found, err := d.SearchStudents(ctx, " amina w ")
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = d.GetStudent(ctx, "missing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = d.GetUnit(ctx, "BROKEN")
	require.Error(t, err)
	assert.False(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Contains(t, err.Error(), "502")

	_, err = d.SearchStudents(ctx, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	failGet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, assert.AnError
	}
	b, ok := c.entries[key]
	if !ok {
		return nil, directory.ErrCacheMiss
	}
	return b, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func TestCachedDirectory_ReadThrough(t *testing.T) {
	srv, calls := newDirectoryServer(t)
	cache := newMemoryCache()
	d := directory.NewCachedDirectory(directory.NewHTTPDirectory(srv.URL, time.Second), cache, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, err := d.GetStudent(ctx, "s-001")
		require.NoError(t, err)
		assert.Equal(t, "Amina Wanjiru", s.DisplayName)
		u, err := d.GetUnit(ctx, "CS101")
		require.NoError(t, err)
		assert.Equal(t, "CS101", u.Code)
	}
	assert.EqualValues(t, 2, calls.Load())
	assert.Contains(t, cache.entries, "results:directory:student:s-001")
	assert.Contains(t, cache.entries, "results:directory:unit:CS101")

	// 未找到不写缓存
	_, err := d.GetStudent(ctx, "missing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.NotContains(t, cache.entries, "results:directory:student:missing")
}

func TestCachedDirectory_CacheFailureFallsThrough(t *testing.T) {
	srv, calls := newDirectoryServer(t)
	cache := newMemoryCache()
	cache.failGet = true
	d := directory.NewCachedDirectory(directory.NewHTTPDirectory(srv.URL, time.Second), cache, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := d.GetStudent(context.Background(), "s-001")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, calls.Load())
}

func TestCachedDirectory_Source(t *testing.T) {
	file := testutil.NewDirectory(t)
	d := directory.NewCachedDirectory(file, newMemoryCache(), time.Minute)
	assert.Same(t, file, d.Source())

	found, err := d.SearchStudents(context.Background(), "brian")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "s-002", found[0].ID)
}
