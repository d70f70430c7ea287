// Package grading 成绩计算: 分数 -> 百分比 -> 等级,纯函数,无 I/O
package grading

import (
	"math"
	"math/big"

	"github.com/mautops/results-gin/internal/apperr"
)

// Grade 等级
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeE Grade = "E"
)

// boundary 等级下限,单位为 0.1%,含下限
type boundary struct {
	minTenths int64
	grade     Grade
	pass      bool
}

// 固定等级表,按下限从高到低排列
var boundaries = []boundary{
	{minTenths: 700, grade: GradeA, pass: true},
	{minTenths: 600, grade: GradeB, pass: true},
	{minTenths: 500, grade: GradeC, pass: true},
	{minTenths: 400, grade: GradeD, pass: true},
	{minTenths: 0, grade: GradeE, pass: false},
}

var gradePoints = map[Grade]float64{
	GradeA: 4,
	GradeB: 3,
	GradeC: 2,
	GradeD: 1,
	GradeE: 0,
}

// Result 计算结果
type Result struct {
	Percentage float64 `json:"percentage"`
	Grade      Grade   `json:"grade"`
	Pass       bool    `json:"pass"`
}

// Compute 根据分数和满分计算百分比、等级和是否通过
// 百分比按精确有理数计算后四舍五入(half-up)到一位小数,等级按舍入后的百分比判定
func Compute(marks, maxMarks float64) (Result, error) {
	if math.IsNaN(marks) || math.IsInf(marks, 0) || math.IsNaN(maxMarks) || math.IsInf(maxMarks, 0) {
		return Result{}, apperr.Validation("marks and max marks must be finite numbers")
	}
	if maxMarks <= 0 {
		return Result{}, apperr.Validation("max marks must be greater than 0, got %g", maxMarks)
	}
	if marks < 0 {
		return Result{}, apperr.Validation("marks must not be negative, got %g", marks)
	}
	if marks > maxMarks {
		return Result{}, apperr.Validation("marks %g exceed max marks %g", marks, maxMarks)
	}

	tenths := percentageTenths(marks, maxMarks)
	for _, b := range boundaries {
		if tenths >= b.minTenths {
			return Result{
				Percentage: float64(tenths) / 10,
				Grade:      b.grade,
				Pass:       b.pass,
			}, nil
		}
	}
	// 不会到达: 最后一档下限为 0
	return Result{}, apperr.Validation("percentage out of range")
}

// percentageTenths 返回 round_half_up(1000 * marks / maxMarks),即以 0.1% 为单位的百分比
func percentageTenths(marks, maxMarks float64) int64 {
	r := new(big.Rat).SetFloat64(marks)
	r.Mul(r, big.NewRat(1000, 1))
	r.Quo(r, new(big.Rat).SetFloat64(maxMarks))
	r.Add(r, big.NewRat(1, 2))

	q := new(big.Int).Quo(r.Num(), r.Denom())
	return q.Int64()
}

// GradePoints 等级对应的绩点 A=4 ... E=0
func GradePoints(g Grade) (float64, bool) {
	p, ok := gradePoints[g]
	return p, ok
}

// Valid 判断是否为合法等级
func (g Grade) Valid() bool {
	_, ok := gradePoints[g]
	return ok
}

// RoundHalfUp 将非负数按 half-up 规则保留 places 位小数
func RoundHalfUp(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil))
	r := new(big.Rat).SetFloat64(v)
	r.Mul(r, scale)
	r.Add(r, big.NewRat(1, 2))
	q := new(big.Int).Quo(r.Num(), r.Denom())
	f, _ := new(big.Rat).SetFrac(q, scale.Num()).Float64()
	return f
}
