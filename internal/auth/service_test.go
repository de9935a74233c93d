package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc, err := NewService(Config{Mode: ModeAPIKey}, store)
	if err != nil {
		t.Fatalf("构造服务失败: %v", err)
	}
	return svc, store
}

func TestGetOrCreateUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, created, err := svc.GetOrCreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}
	if !created {
		t.Fatalf("首次调用应创建新用户")
	}
	if user.Username != "alice" || user.ID == 0 {
		t.Fatalf("用户字段不匹配: %+v", user)
	}

	again, created, err := svc.GetOrCreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("二次查询失败: %v", err)
	}
	if created {
		t.Fatalf("已存在的用户不应被重新创建")
	}
	if again.ID != user.ID {
		t.Fatalf("用户 ID 不一致: %d != %d", again.ID, user.ID)
	}
}

func TestGetOrCreateUserEmptyUsername(t *testing.T) {
	svc, _ := newTestService(t)
	if _, _, err := svc.GetOrCreateUser(context.Background(), "  "); err != ErrUsernameRequired {
		t.Fatalf("空用户名应被拒绝: %v", err)
	}
}

func TestRotateAPIKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, _, err := svc.GetOrCreateUser(ctx, "bob"); err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}

	first, err := svc.RotateAPIKey(ctx, "bob")
	if err != nil {
		t.Fatalf("签发密钥失败: %v", err)
	}
	if first.APIKey == "" {
		t.Fatalf("密钥不能为空")
	}

	second, err := svc.RotateAPIKey(ctx, "bob")
	if err != nil {
		t.Fatalf("轮换密钥失败: %v", err)
	}
	if second.APIKey == first.APIKey {
		t.Fatalf("轮换后的密钥不应与旧密钥相同")
	}

	// 旧密钥应失效，新密钥应可认证。
	if _, err := svc.AuthenticateRequest(ctx, first.APIKey); err != ErrInvalidAPIKey {
		t.Fatalf("旧密钥应失效: %v", err)
	}
	user, err := svc.AuthenticateRequest(ctx, second.APIKey)
	if err != nil {
		t.Fatalf("新密钥认证失败: %v", err)
	}
	if user.Username != "bob" {
		t.Fatalf("认证用户不匹配: %s", user.Username)
	}
}

func TestRotateAPIKeyUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.RotateAPIKey(context.Background(), "nobody"); err != ErrUserNotFound {
		t.Fatalf("未知用户应返回 not found: %v", err)
	}
}

func TestAuthenticateRequestMissingKey(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.AuthenticateRequest(context.Background(), ""); err != ErrMissingAPIKey {
		t.Fatalf("缺失密钥应被拒绝: %v", err)
	}
}

func TestDisabledModeBypassesMiddleware(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeDisabled}, nil)
	if err != nil {
		t.Fatalf("构造 disabled 服务失败: %v", err)
	}
	handler := svc.Middleware(MiddlewareConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/agent/message", nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("disabled 模式应直接放行: %d", recorder.Code)
	}
}

func TestMiddlewareRejectsInvalidKey(t *testing.T) {
	svc, _ := newTestService(t)
	handler := svc.Middleware(MiddlewareConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("无效密钥不应到达业务处理器")
	}))

	request := httptest.NewRequest(http.MethodPost, "/api/v1/agent/message", nil)
	request.Header.Set("X-API-Key", "wrong")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("状态码不匹配: %d", recorder.Code)
	}
}

func TestMiddlewareInjectsUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, _, err := svc.GetOrCreateUser(ctx, "carol"); err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}
	user, err := svc.RotateAPIKey(ctx, "carol")
	if err != nil {
		t.Fatalf("签发密钥失败: %v", err)
	}

	var seen *User
	handler := svc.Middleware(MiddlewareConfig{AuditEvent: "agent_message"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	request := httptest.NewRequest(http.MethodPost, "/api/v1/agent/message", nil)
	request.Header.Set("X-API-Key", user.APIKey)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("状态码不匹配: %d", recorder.Code)
	}
	if seen == nil || seen.Username != "carol" {
		t.Fatalf("上下文用户不匹配: %+v", seen)
	}
}
