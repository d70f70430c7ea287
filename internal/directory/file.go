package directory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mautops/results-gin/internal/apperr"
	"gopkg.in/yaml.v3"
)

// Roster YAML 名册文件结构
type Roster struct {
	Students    []*Student    `yaml:"students"`
	Lecturers   []*Lecturer   `yaml:"lecturers"`
	Units       []*Unit       `yaml:"units"`
	Departments []*Department `yaml:"departments"`
}

// FileDirectory 基于 YAML 名册的目录实现
type FileDirectory struct {
	mu        sync.RWMutex
	roster    *Roster
	students  map[string]*Student
	lecturers map[string]*Lecturer
	units     map[string]*Unit
}

// LoadFileDirectory 从 YAML 文件加载目录
func LoadFileDirectory(path string) (*FileDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	return ParseFileDirectory(data)
}

// ParseFileDirectory 从 YAML 内容解析目录
func ParseFileDirectory(data []byte) (*FileDirectory, error) {
	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse directory file: %w", err)
	}
	return NewFileDirectory(&roster)
}

// NewFileDirectory 由名册构建目录
func NewFileDirectory(roster *Roster) (*FileDirectory, error) {
	d := &FileDirectory{
		roster:    roster,
		students:  make(map[string]*Student, len(roster.Students)),
		lecturers: make(map[string]*Lecturer, len(roster.Lecturers)),
		units:     make(map[string]*Unit, len(roster.Units)),
	}
	for _, s := range roster.Students {
		if s.ID == "" {
			return nil, fmt.Errorf("student without id in roster")
		}
		if _, dup := d.students[s.ID]; dup {
			return nil, fmt.Errorf("duplicate student %s in roster", s.ID)
		}
		d.students[s.ID] = s
	}
	for _, l := range roster.Lecturers {
		if l.ID == "" {
			return nil, fmt.Errorf("lecturer without id in roster")
		}
		d.lecturers[l.ID] = l
	}
	for _, u := range roster.Units {
		if u.Code == "" {
			return nil, fmt.Errorf("unit without code in roster")
		}
		d.units[u.Code] = u
	}
	return d, nil
}

// Roster 返回名册,用于初始化静态授权
func (d *FileDirectory) Roster() *Roster {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roster
}

func (d *FileDirectory) GetStudent(_ context.Context, id string) (*Student, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.students[id]
	if !ok {
		return nil, apperr.NotFound("student %s not found", id)
	}
	c := *s
	return &c, nil
}

func (d *FileDirectory) GetLecturer(_ context.Context, id string) (*Lecturer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.lecturers[id]
	if !ok {
		return nil, apperr.NotFound("lecturer %s not found", id)
	}
	c := *l
	return &c, nil
}

func (d *FileDirectory) GetUnit(_ context.Context, code string) (*Unit, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.units[code]
	if !ok {
		return nil, apperr.NotFound("unit %s not found", code)
	}
	c := *u
	return &c, nil
}

// SearchStudents 学号和录取编号精确匹配(忽略大小写),姓名子串匹配,结果按学号排序
func (d *FileDirectory) SearchStudents(_ context.Context, query string) ([]*Student, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, apperr.Validation("search query is required")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*Student
	for _, s := range d.students {
		if MatchStudent(s, q) {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MatchStudent 判断学生是否匹配已转为小写的查询串
func MatchStudent(s *Student, lowerQuery string) bool {
	return strings.ToLower(s.ID) == lowerQuery ||
		strings.ToLower(s.AdmissionNumber) == lowerQuery ||
		strings.Contains(strings.ToLower(s.DisplayName), lowerQuery)
}
