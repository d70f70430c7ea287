// Package directory 学生、教师目录与课程目录的只读访问
package directory

import "context"

// Student 学生身份信息
type Student struct {
	ID              string `json:"id" yaml:"id"`
	AdmissionNumber string `json:"admission_number" yaml:"admission_number"`
	DisplayName     string `json:"display_name" yaml:"display_name"`
	ProgramCode     string `json:"program_code,omitempty" yaml:"program_code"`
	YearOfStudy     int    `json:"year_of_study,omitempty" yaml:"year_of_study"`
}

// Lecturer 教师信息
type Lecturer struct {
	ID           string `json:"id" yaml:"id"`
	DisplayName  string `json:"display_name" yaml:"display_name"`
	DepartmentID string `json:"department_id" yaml:"department_id"`
}

// Unit 课程信息
type Unit struct {
	Code         string   `json:"code" yaml:"code"`
	Name         string   `json:"name" yaml:"name"`
	DepartmentID string   `json:"department_id" yaml:"department_id"`
	CreditWeight float64  `json:"credit_weight" yaml:"credit_weight"`
	Lecturers    []string `json:"lecturers,omitempty" yaml:"lecturers"`
}

// Department 院系信息
type Department struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Approvers []string `json:"approvers,omitempty" yaml:"approvers"`
}

// Directory 学生/教师目录,不存在时返回 apperr.KindNotFound
type Directory interface {
	GetStudent(ctx context.Context, id string) (*Student, error)
	GetLecturer(ctx context.Context, id string) (*Lecturer, error)
	// SearchStudents 按学号、录取编号或姓名查找学生
	SearchStudents(ctx context.Context, query string) ([]*Student, error)
}

// UnitCatalog 课程目录,不存在时返回 apperr.KindNotFound
type UnitCatalog interface {
	GetUnit(ctx context.Context, code string) (*Unit, error)
}

// Source 同时提供目录和课程目录的数据源
type Source interface {
	Directory
	UnitCatalog
}
