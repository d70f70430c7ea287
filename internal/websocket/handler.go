package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/mautops/results-gin/internal/auth"
)

// Authenticator 从握手请求中解析调用方身份
type Authenticator func(c *gin.Context) (auth.Identity, error)

// AccessCheck 判断调用方能否订阅某学生的成绩
type AccessCheck func(c *gin.Context, id auth.Identity, studentID string) bool

// TokenAuthenticator 从 token 查询参数校验 Keycloak JWT,浏览器无法为 WebSocket 设置 Authorization 头
func TokenAuthenticator(validator *auth.KeycloakTokenValidator) Authenticator {
	return func(c *gin.Context) (auth.Identity, error) {
		claims, err := validator.ValidateToken(c.Query("token"))
		if err != nil {
			return auth.Identity{}, err
		}
		return auth.Identity{
			UserID:   claims.Sub,
			Username: claims.PreferredUsername,
			Email:    claims.Email,
			Name:     claims.Name,
			Roles:    claims.RealmAccess.Roles,
		}, nil
	}
}

// NewUpgrader 创建只接受允许来源的 upgrader,allowedOrigins 包含 "*" 时不检查
func NewUpgrader(allowedOrigins []string) *gorillaWS.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &gorillaWS.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// WebSocketHandler 订阅学生已发布成绩的实时推送,学生 ID 取自路由参数 id
func WebSocketHandler(hub *Hub, upgrader *gorillaWS.Upgrader, authenticate Authenticator, canView AccessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := authenticate(c)
		if err != nil || identity.UserID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "invalid token"})
			return
		}

		studentID := c.Param("id")
		if !canView(c, identity, studentID) {
			c.JSON(http.StatusForbidden, gin.H{"code": 403, "message": "forbidden"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade 已经写出了错误响应
			return
		}

		client := NewClient(uuid.New().String(), identity.UserID, studentID, hub, conn)
		hub.Register <- client

		go client.ReadPump()
		go client.WritePump()
	}
}
