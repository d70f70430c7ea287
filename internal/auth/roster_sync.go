package auth

import (
	"context"
	"fmt"

	"github.com/mautops/results-gin/internal/directory"
)

// RelationTuple user 与对象之间的一条关系
type RelationTuple struct {
	UserID     string
	Relation   string
	ObjectType string
	ObjectID   string
}

// String 以 OpenFGA 记法输出,如 unit:CS101#lecturer@user:lec-cs
func (t RelationTuple) String() string {
	return fmt.Sprintf("%s:%s#%s@user:%s", t.ObjectType, t.ObjectID, t.Relation, t.UserID)
}

// RosterTuples 名册对应的关系: 课程任课教师、院系审批人、学生本人
func RosterTuples(roster *directory.Roster) []RelationTuple {
	if roster == nil {
		return nil
	}
	seen := make(map[RelationTuple]bool)
	var out []RelationTuple
	add := func(t RelationTuple) {
		if t.UserID == "" || t.ObjectID == "" || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}

	for _, u := range roster.Units {
		for _, l := range u.Lecturers {
			add(RelationTuple{UserID: l, Relation: RelationLecturer, ObjectType: ObjectUnit, ObjectID: u.Code})
		}
	}
	for _, d := range roster.Departments {
		for _, a := range d.Approvers {
			add(RelationTuple{UserID: a, Relation: RelationApprover, ObjectType: ObjectDepartment, ObjectID: d.ID})
		}
	}
	for _, s := range roster.Students {
		add(RelationTuple{UserID: s.ID, Relation: RelationSelf, ObjectType: ObjectStudent, ObjectID: s.ID})
	}
	return out
}

// SyncReport 同步结果
type SyncReport struct {
	Written  int
	Existing int
}

// SyncRoster 将名册关系写入关系存储,已存在的关系跳过,可重复执行
func SyncRoster(ctx context.Context, store RelationStore, roster *directory.Roster) (*SyncReport, error) {
	report := &SyncReport{}
	for _, t := range RosterTuples(roster) {
		exists, err := store.CheckPermission(ctx, t.UserID, t.Relation, t.ObjectType, t.ObjectID)
		if err != nil {
			return report, fmt.Errorf("failed to check %s: %w", t, err)
		}
		if exists {
			report.Existing++
			continue
		}
		if err := store.SetRelation(ctx, t.UserID, t.Relation, t.ObjectType, t.ObjectID); err != nil {
			return report, fmt.Errorf("failed to write %s: %w", t, err)
		}
		report.Written++
	}
	return report, nil
}
