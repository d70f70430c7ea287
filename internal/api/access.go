package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/results-gin/internal/auth"
)

// 后台角色: 可以查看未发布成绩、搜索学生和查看统计
var StaffRoles = []string{"admin", "registrar", "lecturer", "hod"}

// isStaff 判断调用方是否为后台人员
func isStaff(c *gin.Context) bool {
	id, ok := auth.IdentityFrom(c.Request.Context())
	if !ok {
		return false
	}
	for _, role := range StaffRoles {
		if id.HasRole(role) {
			return true
		}
	}
	return false
}

// RequireStaff 仅允许后台人员访问
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isStaff(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Code:    http.StatusForbidden,
				Message: "staff role required",
				Kind:    "permission",
			})
			return
		}
		c.Next()
	}
}

// StudentViewerMiddleware 未接入 OpenFGA 时的学生数据访问控制: 本人或后台人员
func StudentViewerMiddleware(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("user_id") == c.Param(param) || isStaff(c) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
			Code:    http.StatusForbidden,
			Message: "forbidden",
			Kind:    "permission",
		})
	}
}
