// Package testutil 测试辅助: 内存数据库、名册和记录型通知器
package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mautops/results-gin/internal/auth"
	"github.com/mautops/results-gin/internal/database"
	"github.com/mautops/results-gin/internal/directory"
	"github.com/mautops/results-gin/internal/notify"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 创建已迁移的 SQLite 内存数据库,单连接保证所有操作共享同一个库
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// 名册中的固定身份
const (
	LecturerCS   = "lec-cs"   // 教 CS101 和 CS102
	LecturerMath = "lec-math" // 教 MA201
	Outsider     = "lec-none" // 不教任何课程
	HODCS        = "hod-cs"
	HODMath      = "hod-math"
)

// Roster 测试名册
func Roster() *directory.Roster {
	return &directory.Roster{
		Students: []*directory.Student{
			{ID: "s-001", AdmissionNumber: "ADM/2023/001", DisplayName: "Amina Wanjiru", YearOfStudy: 2},
			{ID: "s-002", AdmissionNumber: "ADM/2023/002", DisplayName: "Brian Otieno", YearOfStudy: 2},
			{ID: "s-003", AdmissionNumber: "ADM/2022/017", DisplayName: "Amani Kiptoo", YearOfStudy: 3},
		},
		Lecturers: []*directory.Lecturer{
			{ID: LecturerCS, DisplayName: "Dr. Njeri", DepartmentID: "CS"},
			{ID: LecturerMath, DisplayName: "Prof. Mutua", DepartmentID: "MATH"},
			{ID: Outsider, DisplayName: "Mr. Outsider", DepartmentID: "CS"},
		},
		Units: []*directory.Unit{
			{Code: "CS101", Name: "Intro to Programming", DepartmentID: "CS", CreditWeight: 3, Lecturers: []string{LecturerCS}},
			{Code: "CS102", Name: "Data Structures", DepartmentID: "CS", CreditWeight: 4, Lecturers: []string{LecturerCS}},
			{Code: "MA201", Name: "Linear Algebra", DepartmentID: "MATH", CreditWeight: 2, Lecturers: []string{LecturerMath}},
		},
		Departments: []*directory.Department{
			{ID: "CS", Name: "Computer Science", Approvers: []string{HODCS}},
			{ID: "MATH", Name: "Mathematics", Approvers: []string{HODMath}},
		},
	}
}

// NewDirectory 基于测试名册的目录
func NewDirectory(t testing.TB) *directory.FileDirectory {
	t.Helper()
	d, err := directory.NewFileDirectory(Roster())
	require.NoError(t, err)
	return d
}

// NewAuthorizer 基于测试名册的静态授权
func NewAuthorizer() *auth.StaticAuthorizer {
	return auth.AuthorizerFromRoster(Roster())
}

// RecordingNotifier 记录收到的事件
type RecordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	Err    error
}

// Notify 实现 notify.Notifier
func (n *RecordingNotifier) Notify(_ context.Context, evt notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.Err
}

// Events 返回已记录事件的副本
func (n *RecordingNotifier) Events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Event, len(n.events))
	copy(out, n.events)
	return out
}

// ErrNotifierDown 通知器故障
var ErrNotifierDown = errors.New("notifier down")
