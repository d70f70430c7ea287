package utils

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/mautops/results-gin/internal/apperr"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SanitizeString 转义 HTML 并移除控制字符(保留换行和制表符)
func SanitizeString(input string) string {
	sanitized := html.EscapeString(input)

	var result strings.Builder
	for _, r := range sanitized {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

// ValidateID 验证成绩、学生等 ID 格式: 字母、数字、连字符、下划线,最长 64
func ValidateID(kind, id string) error {
	if id == "" {
		return apperr.Validation("%s id cannot be empty", kind)
	}
	if len(id) > 64 {
		return apperr.Validation("%s id exceeds maximum length", kind)
	}
	if !idPattern.MatchString(id) {
		return apperr.Validation("%s id contains invalid characters", kind)
	}
	return nil
}

// TrimAndValidate 去除首尾空白、检查长度并清理危险字符
func TrimAndValidate(field, s string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", apperr.Validation("%s cannot be empty", field)
	}
	if maxLen > 0 && len(trimmed) > maxLen {
		return "", apperr.Validation("%s exceeds maximum length of %d", field, maxLen)
	}
	return SanitizeString(trimmed), nil
}
