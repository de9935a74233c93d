package router

import (
	"context"
	"fmt"
	"testing"

	"Sofia-Agent/internal/chat"
)

type stubClassifier struct {
	decision chat.RoutingDecision
	err      error
}

func (s *stubClassifier) Classify(context.Context, string, *chat.Context) (chat.RoutingDecision, error) {
	return s.decision, s.err
}

type stubHandler struct {
	err         error
	panic       bool
	nilResp     bool
	upstreamErr error
	calls       int
}

func (s *stubHandler) Process(_ context.Context, message string, convo *chat.Context) (*chat.Response, error) {
	s.calls++
	if s.panic {
		panic("处理器崩溃")
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.nilResp {
		return nil, nil
	}
	if s.upstreamErr != nil {
		return chat.ErrorResponse(message, convo, s.upstreamErr), nil
	}
	resp := chat.NewResponse(chat.TypeGeneral, message, convo)
	resp.Response = "ok"
	return resp, nil
}

func newTestRouter(decision chat.RoutingDecision, handlers map[chat.Intent]*stubHandler) (*Router, map[chat.Intent]*stubHandler) {
	registry := NewRegistry()
	if handlers == nil {
		handlers = map[chat.Intent]*stubHandler{chat.IntentGeneral: {}}
	}
	for intent, handler := range handlers {
		registry.Register(intent, handler)
	}
	return New(&stubClassifier{decision: decision}, registry), handlers
}

func TestRouteAttachesRouting(t *testing.T) {
	handlers := map[chat.Intent]*stubHandler{
		chat.IntentGeneral: {},
		chat.IntentRisk:    {},
	}
	router, _ := newTestRouter(chat.RoutingDecision{Agent: chat.IntentRisk, Confidence: 0.9, Reasoning: "risk keywords"}, handlers)

	resp := router.Route(context.Background(), "how risky is this pool?", nil)
	if resp == nil {
		t.Fatalf("响应不能为空")
	}
	if resp.Routing == nil || resp.Routing.Agent != chat.IntentRisk {
		t.Fatalf("路由元数据不匹配: %+v", resp.Routing)
	}
	if resp.Routing.Confidence != 0.9 {
		t.Fatalf("置信度不匹配: %v", resp.Routing.Confidence)
	}
	if handlers[chat.IntentRisk].calls != 1 || handlers[chat.IntentGeneral].calls != 0 {
		t.Fatalf("分发目标不匹配")
	}
}

func TestRouteUnknownIntentFallsBack(t *testing.T) {
	router, handlers := newTestRouter(chat.RoutingDecision{Agent: chat.Intent("mystery"), Confidence: 0.8}, nil)

	resp := router.Route(context.Background(), "hello", nil)
	if resp.Routing == nil || resp.Routing.Agent != chat.IntentGeneral {
		t.Fatalf("未知意图应回落到 general: %+v", resp.Routing)
	}
	if handlers[chat.IntentGeneral].calls != 1 {
		t.Fatalf("general 处理器应被调用")
	}
}

func TestRouteClassifierErrorFallsBack(t *testing.T) {
	registry := NewRegistry()
	general := &stubHandler{}
	registry.Register(chat.IntentGeneral, general)
	router := New(&stubClassifier{err: fmt.Errorf("分类器故障")}, registry)

	resp := router.Route(context.Background(), "hello", nil)
	if resp.Routing == nil || resp.Routing.Agent != chat.IntentGeneral {
		t.Fatalf("分类失败应回落到 general: %+v", resp.Routing)
	}
	if resp.Routing.Confidence != 0 {
		t.Fatalf("分类失败时置信度应为 0: %v", resp.Routing.Confidence)
	}
	if resp.Routing.Reasoning != "error: 分类器故障" {
		t.Fatalf("兜底决策缺少失败原因: %q", resp.Routing.Reasoning)
	}
	if general.calls != 1 {
		t.Fatalf("general 处理器应被调用")
	}
}

func TestRouteHandlerErrorBecomesErrorResponse(t *testing.T) {
	handlers := map[chat.Intent]*stubHandler{
		chat.IntentGeneral: {err: fmt.Errorf("内部状态损坏")},
	}
	router, _ := newTestRouter(chat.RoutingDecision{Agent: chat.IntentGeneral, Confidence: 1}, handlers)

	resp := router.Route(context.Background(), "hello", nil)
	if resp.Type != chat.TypeError {
		t.Fatalf("响应类型不匹配: %s", resp.Type)
	}
	if resp.Error == "" || resp.Data["error"] == nil {
		t.Fatalf("错误信息缺失: %+v", resp)
	}
	if resp.Routing == nil || resp.Routing.Agent != chat.IntentError {
		t.Fatalf("错误响应的路由标记不匹配: %+v", resp.Routing)
	}
	if resp.Metadata.Query != "hello" {
		t.Fatalf("元数据缺失: %+v", resp.Metadata)
	}
}

func TestRouteErrorShapedResponseKeepsAgentRouting(t *testing.T) {
	handlers := map[chat.Intent]*stubHandler{
		chat.IntentGeneral: {upstreamErr: fmt.Errorf("dolarapi unreachable")},
	}
	router, _ := newTestRouter(chat.RoutingDecision{Agent: chat.IntentGeneral, Confidence: 0.8, Reasoning: "dollar keywords"}, handlers)

	// 处理器自行降级的错误响应仍带着被分类到的智能体。
	resp := router.Route(context.Background(), "cuanto esta el dolar", nil)
	if resp.Type != chat.TypeError || resp.Error == "" {
		t.Fatalf("应保留错误形态的响应: %+v", resp)
	}
	if resp.Routing == nil || resp.Routing.Agent != chat.IntentGeneral {
		t.Fatalf("路由应标记实际处理的智能体: %+v", resp.Routing)
	}
	if resp.Routing.Confidence != 0.8 {
		t.Fatalf("路由置信度不匹配: %v", resp.Routing.Confidence)
	}
}

func TestRouteHandlerPanicIsRecovered(t *testing.T) {
	handlers := map[chat.Intent]*stubHandler{
		chat.IntentGeneral: {panic: true},
	}
	router, _ := newTestRouter(chat.RoutingDecision{Agent: chat.IntentGeneral, Confidence: 1}, handlers)

	resp := router.Route(context.Background(), "hello", nil)
	if resp == nil {
		t.Fatalf("panic 后仍应返回响应")
	}
	if resp.Type != chat.TypeError || resp.Routing.Agent != chat.IntentError {
		t.Fatalf("panic 应降级为错误响应: %+v", resp)
	}
}

func TestRouteNilHandlerResponse(t *testing.T) {
	registry := NewRegistry()
	registry.Register(chat.IntentGeneral, &stubHandler{nilResp: true})
	router := New(&stubClassifier{decision: chat.RoutingDecision{Agent: chat.IntentGeneral}}, registry)

	resp := router.Route(context.Background(), "hello", nil)
	if resp.Type != chat.TypeError || resp.Routing.Agent != chat.IntentError {
		t.Fatalf("空响应应降级为错误响应: %+v", resp)
	}
}
