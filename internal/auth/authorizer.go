package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/mautops/results-gin/internal/directory"
)

// OpenFGA 对象类型与关系
const (
	ObjectUnit       = "unit"
	ObjectDepartment = "department"
	ObjectStudent    = "student"

	RelationLecturer = "lecturer"
	RelationApprover = "approver"
	RelationViewer   = "viewer"
	RelationSelf     = "self"
)

// Authorizer 成绩流程的授权检查
type Authorizer interface {
	// IsLecturerOf 判断 lecturerID 是否为该课程的任课教师
	IsLecturerOf(ctx context.Context, lecturerID, unitCode string) (bool, error)
	// IsApprover 判断 approverID 是否为该院系的审批人(系主任)
	IsApprover(ctx context.Context, approverID, departmentID string) (bool, error)
}

// PermissionChecker 关系型权限检查,OpenFGAClient 和 CachedOpenFGAClient 均实现该接口
type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error)
}

// fgaAuthorizer 基于 OpenFGA 关系的授权实现
type fgaAuthorizer struct {
	checker PermissionChecker
}

// NewFGAAuthorizer 创建基于 OpenFGA 的授权器
func NewFGAAuthorizer(checker PermissionChecker) Authorizer {
	return &fgaAuthorizer{checker: checker}
}

func (a *fgaAuthorizer) IsLecturerOf(ctx context.Context, lecturerID, unitCode string) (bool, error) {
	if lecturerID == "" || unitCode == "" {
		return false, nil
	}
	ok, err := a.checker.CheckPermission(ctx, lecturerID, RelationLecturer, ObjectUnit, unitCode)
	if err != nil {
		return false, fmt.Errorf("failed to check lecturer of %s: %w", unitCode, err)
	}
	return ok, nil
}

func (a *fgaAuthorizer) IsApprover(ctx context.Context, approverID, departmentID string) (bool, error) {
	if approverID == "" || departmentID == "" {
		return false, nil
	}
	ok, err := a.checker.CheckPermission(ctx, approverID, RelationApprover, ObjectDepartment, departmentID)
	if err != nil {
		return false, fmt.Errorf("failed to check approver of %s: %w", departmentID, err)
	}
	return ok, nil
}

// StaticAuthorizer 基于静态名册的授权,用于未部署 OpenFGA 的环境和测试
type StaticAuthorizer struct {
	mu        sync.RWMutex
	lecturers map[string]map[string]bool // unitCode -> lecturerID
	approvers map[string]map[string]bool // departmentID -> approverID
}

// NewStaticAuthorizer 创建静态授权器
func NewStaticAuthorizer() *StaticAuthorizer {
	return &StaticAuthorizer{
		lecturers: make(map[string]map[string]bool),
		approvers: make(map[string]map[string]bool),
	}
}

// GrantLecturer 授予任课教师关系
func (a *StaticAuthorizer) GrantLecturer(unitCode string, lecturerIDs ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	grant(a.lecturers, unitCode, lecturerIDs)
}

// GrantApprover 授予院系审批人关系
func (a *StaticAuthorizer) GrantApprover(departmentID string, approverIDs ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	grant(a.approvers, departmentID, approverIDs)
}

func grant(m map[string]map[string]bool, object string, users []string) {
	set, ok := m[object]
	if !ok {
		set = make(map[string]bool)
		m[object] = set
	}
	for _, u := range users {
		set[u] = true
	}
}

func (a *StaticAuthorizer) IsLecturerOf(_ context.Context, lecturerID, unitCode string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lecturers[unitCode][lecturerID], nil
}

func (a *StaticAuthorizer) IsApprover(_ context.Context, approverID, departmentID string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.approvers[departmentID][approverID], nil
}

// AuthorizerFromRoster 由目录名册构建静态授权: 课程任课教师和院系审批人
func AuthorizerFromRoster(roster *directory.Roster) *StaticAuthorizer {
	a := NewStaticAuthorizer()
	if roster == nil {
		return a
	}
	for _, u := range roster.Units {
		a.GrantLecturer(u.Code, u.Lecturers...)
	}
	for _, d := range roster.Departments {
		a.GrantApprover(d.ID, d.Approvers...)
	}
	return a
}
