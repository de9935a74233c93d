package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"Sofia-Agent/internal/auth"
	"Sofia-Agent/internal/chat"
	"Sofia-Agent/internal/observability/metrics"
	"Sofia-Agent/internal/router"
)

// Server 负责暴露 REST 接口，供外部驱动会话智能体。
type Server struct {
	addr   string
	router *router.Router
	auth   *auth.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, rt *router.Router, authSvc *auth.Service) *Server {
	return &Server{addr: addr, router: rt, auth: authSvc}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 组装全部路由。用户接口不要求凭证，消息接口经过认证中间件。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/login", s.instrument("/api/v1/users/login", s.handleLogin))
	mux.HandleFunc("/api/v1/users/api-key", s.instrument("/api/v1/users/api-key", s.handleAPIKey))

	var message http.Handler = http.HandlerFunc(s.instrument("/api/v1/agent/message", s.handleMessage))
	if s.auth != nil {
		message = s.auth.Middleware(auth.MiddlewareConfig{AuditEvent: "agent_message"})(message)
	}
	mux.Handle("/api/v1/agent/message", message)
	return mux
}

type usernameRequest struct {
	Username string `json:"username"`
}

// handleLogin 按用户名登录，账号不存在时自动创建。
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.auth == nil {
		http.Error(w, "用户服务未初始化", http.StatusServiceUnavailable)
		return
	}
	var req usernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	user, created, err := s.auth.GetOrCreateUser(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameRequired) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Username is required"})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	message := "Login successful"
	if created {
		status = http.StatusCreated
		message = "User created successfully"
	}
	writeJSON(w, status, map[string]any{
		"message":  message,
		"username": user.Username,
	})
}

// handleAPIKey 为已注册用户轮换 API 密钥。
func (s *Server) handleAPIKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.auth == nil {
		http.Error(w, "用户服务未初始化", http.StatusServiceUnavailable)
		return
	}
	var req usernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	user, err := s.auth.RotateAPIKey(r.Context(), req.Username)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameRequired):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Username is required"})
		case errors.Is(err, auth.ErrUserNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not found"})
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"api_key":  user.APIKey,
		"username": user.Username,
	})
}

type messageRequest struct {
	Message string          `json:"message"`
	Context json.RawMessage `json:"context"`
}

// handleMessage 接收用户消息并交给路由器处理。
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.router == nil {
		http.Error(w, "路由器未初始化", http.StatusServiceUnavailable)
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "请求体解析失败"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "message 字段不能为空"})
		return
	}
	convo, err := parseConversationContext(req.Context)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	resp := s.router.Route(r.Context(), req.Message, convo)
	writeJSON(w, http.StatusOK, resp)
}

// parseConversationContext 宽松解析会话上下文：history 必须是数组，
// 其余未知字段原样进入 Extras 供各个智能体读取。
func parseConversationContext(raw json.RawMessage) (*chat.Context, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("context 字段必须是对象")
	}
	convo := &chat.Context{}
	if rawHistory, ok := fields["history"]; ok {
		items, ok := rawHistory.([]any)
		if !ok {
			return nil, fmt.Errorf("context.history 字段必须是数组")
		}
		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("context.history 的元素必须是对象")
			}
			role, hasRole := entry["role"].(string)
			content, hasContent := entry["content"].(string)
			if !hasRole && !hasContent {
				return nil, fmt.Errorf("context.history 的元素缺少 role 和 content 字段")
			}
			convo.History = append(convo.History, chat.Turn{Role: role, Content: content})
		}
		delete(fields, "history")
	}
	if len(fields) > 0 {
		convo.Extras = fields
	}
	return convo, nil
}

// instrument 包装处理器并上报请求级指标。
func (s *Server) instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
