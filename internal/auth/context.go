package auth

import "context"

// userKey 是上下文中存储 User 的键类型。
type userKey struct{}

// WithUser 将经过身份验证的用户信息存储到上下文中。
func WithUser(ctx context.Context, user *User) context.Context {
	if user == nil {
		return ctx
	}
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext 从上下文中提取经过身份验证的用户信息。
func UserFromContext(ctx context.Context) *User {
	if ctx == nil {
		return nil
	}
	if user, ok := ctx.Value(userKey{}).(*User); ok {
		return user
	}
	return nil
}
