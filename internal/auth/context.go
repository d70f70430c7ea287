package auth

import "context"

type contextKey string

const identityKey contextKey = "identity"

// Identity 已认证的调用方
type Identity struct {
	UserID   string
	Username string
	Email    string
	Name     string
	Roles    []string
}

// HasRole 判断是否拥有指定角色
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithIdentity 将调用方身份写入 context
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom 从 context 读取调用方身份
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// UserIDFrom 从 context 读取调用方 ID,不存在时返回空字符串
func UserIDFrom(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return id.UserID
}
