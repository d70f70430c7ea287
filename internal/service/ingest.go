package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mautops/results-gin/internal/apperr"
	"github.com/mautops/results-gin/internal/model"
	"github.com/mautops/results-gin/internal/workflow"
)

// Mark 分数字段,接受 JSON 数字或数字字符串
type Mark struct {
	Value float64
	Set   bool
}

// UnmarshalJSON 解析数字或数字字符串,null 视为未填写
func (m *Mark) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Mark{}
		return nil
	}

	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*m = Mark{}
			return nil
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("mark must be a number or numeric string")
		}
		raw = n.String()
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("mark %q is not a finite number", raw)
	}
	*m = Mark{Value: v, Set: true}
	return nil
}

// MarshalJSON 输出数字,未填写时输出 null
func (m Mark) MarshalJSON() ([]byte, error) {
	if !m.Set {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// SubmissionInput 外部提交的原始成绩,进入流程前必须经过 Normalize
type SubmissionInput struct {
	StudentID       string `json:"student_id" validate:"required,max=64"`
	UnitCode        string `json:"unit_code" validate:"required,max=32"`
	AssessmentType  string `json:"assessment_type" validate:"required,oneof=cat1 cat2 assignment exam"`
	AcademicYear    string `json:"academic_year" validate:"required,academic_year"`
	Semester        int    `json:"semester" validate:"required,min=1,max=3"`
	YearOfStudy     int    `json:"year_of_study" validate:"omitempty,min=1,max=10"`
	Marks           Mark   `json:"marks"`
	MaxMarks        Mark   `json:"max_marks"`
	ExpectedVersion *int   `json:"expected_version" validate:"omitempty,min=0"`
}

var ingestValidator = newIngestValidator()

func newIngestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 错误信息使用 JSON 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("academic_year", func(fl validator.FieldLevel) bool {
		return workflow.ValidateAcademicYear(fl.Field().String()) == nil
	})
	return v
}

// Normalize 校验并规范化原始输入,lecturerID 为当前调用方
func (in SubmissionInput) Normalize(lecturerID string) (workflow.SubmitRequest, error) {
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.UnitCode = strings.ToUpper(strings.TrimSpace(in.UnitCode))
	in.AssessmentType = strings.ToLower(strings.TrimSpace(in.AssessmentType))
	in.AcademicYear = strings.TrimSpace(in.AcademicYear)

	if err := ingestValidator.Struct(in); err != nil {
		return workflow.SubmitRequest{}, validationError(err)
	}
	if !in.Marks.Set {
		return workflow.SubmitRequest{}, apperr.Validation("marks is required")
	}
	if !in.MaxMarks.Set {
		return workflow.SubmitRequest{}, apperr.Validation("max_marks is required")
	}

	return in.request(lecturerID), nil
}

// request 按原样转换,不做校验
func (in SubmissionInput) request(lecturerID string) workflow.SubmitRequest {
	return workflow.SubmitRequest{
		StudentID:       in.StudentID,
		UnitCode:        in.UnitCode,
		AssessmentType:  model.AssessmentType(in.AssessmentType),
		AcademicYear:    in.AcademicYear,
		Semester:        in.Semester,
		YearOfStudy:     in.YearOfStudy,
		Marks:           in.Marks.Value,
		MaxMarks:        in.MaxMarks.Value,
		LecturerID:      lecturerID,
		ExpectedVersion: in.ExpectedVersion,
	}
}

// validationError 将 validator 错误转换为业务校验错误
func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperr.Validation("invalid submission: %v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		case "academic_year":
			msgs = append(msgs, field+" must look like 2024/2025")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}
