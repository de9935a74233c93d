package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"Sofia-Agent/pkg/logger"
)

// Service 负责 HTTP 端点的身份验证与用户账号管理。
type Service struct {
	mode  Mode
	store Store
	audit *slog.Logger
}

// NewService 构造身份认证服务实例。
func NewService(cfg Config, store Store) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{
		mode:  mode,
		store: store,
		audit: logger.Audit(),
	}
	switch mode {
	case ModeDisabled:
		return svc, nil
	case ModeAPIKey:
		if store == nil {
			return nil, errors.New("apikey mode requires a user store")
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

// Mode 返回当前身份认证服务的工作模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// GetOrCreateUser 根据用户名查找账号，不存在时创建。
// 返回的布尔值表示账号是否为本次新建。
func (s *Service) GetOrCreateUser(ctx context.Context, username string) (*User, bool, error) {
	if s == nil || s.store == nil {
		return nil, false, ErrDisabled
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, false, ErrUsernameRequired
	}
	if user, err := s.store.FindUserByUsername(ctx, username); err == nil {
		return user, false, nil
	}
	user, err := s.store.CreateUser(ctx, username)
	if err != nil {
		return nil, false, fmt.Errorf("create user %s: %w", username, err)
	}
	return user, true, nil
}

// RotateAPIKey 为指定用户签发新的 API 密钥，旧密钥随之失效。
func (s *Service) RotateAPIKey(ctx context.Context, username string) (*User, error) {
	if s == nil || s.store == nil {
		return nil, ErrDisabled
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, ErrUserNotFound
	}
	apiKey := uuid.NewString()
	if err := s.store.SaveAPIKey(ctx, user.ID, apiKey); err != nil {
		return nil, fmt.Errorf("save api key: %w", err)
	}
	user.APIKey = apiKey
	return user, nil
}

// AuthenticateRequest 校验请求携带的 API 密钥并返回对应用户。
func (s *Service) AuthenticateRequest(ctx context.Context, apiKey string) (*User, error) {
	if s == nil || s.mode == ModeDisabled {
		return nil, ErrDisabled
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	user, err := s.store.FindUserByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, ErrInvalidAPIKey
	}
	return user, nil
}
