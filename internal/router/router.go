package router

import (
	"context"
	"fmt"

	"Sofia-Agent/internal/chat"
	"Sofia-Agent/internal/classify"
	apperr "Sofia-Agent/internal/errors"
	"Sofia-Agent/internal/observability/metrics"
	"Sofia-Agent/pkg/logger"
)

// Router 把用户消息分类后分发给对应的处理器。
// Route 永远返回结构完整的响应，任何失败都被降级为错误形态的响应。
type Router struct {
	classifier classify.Classifier
	registry   *Registry
}

// New 构造路由器。
func New(classifier classify.Classifier, registry *Registry) *Router {
	return &Router{classifier: classifier, registry: registry}
}

// Route 处理一条消息：分类、分发、补充路由元数据。
func (r *Router) Route(ctx context.Context, message string, convo *chat.Context) (resp *chat.Response) {
	// 处理器 panic 时降级为错误响应，保证调用方总能拿到结构化结果。
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.L().Error("处理消息时发生 panic", "panic", recovered)
			err := apperr.New(apperr.CodeInternal, fmt.Sprintf("处理消息时发生内部错误: %v", recovered))
			resp = errorResponse(message, convo, err)
		}
	}()

	decision := r.classify(ctx, message, convo)

	handler, resolved := r.registry.Resolve(decision.Agent)
	if resolved != decision.Agent {
		decision.Agent = resolved
	}
	if handler == nil {
		err := apperr.New(apperr.CodeInitializationFailure, "没有可用的消息处理器")
		return errorResponse(message, convo, err)
	}

	logger.L().Info("分发用户消息",
		"agent", string(decision.Agent),
		"confidence", decision.Confidence,
	)
	metrics.ObserveAgentDispatch(string(decision.Agent))

	resp, err := handler.Process(ctx, message, convo)
	if err != nil || resp == nil {
		if err == nil {
			err = apperr.New(apperr.CodeInternal, "处理器返回了空响应")
		}
		logger.L().Error("处理用户消息失败",
			"agent", string(decision.Agent),
			"code", string(apperr.CodeOf(err)),
			"error", err.Error(),
		)
		return errorResponse(message, convo, err)
	}

	resp.Routing = &decision
	return resp
}

// classify 调用分类器，失败时回落到 general。
func (r *Router) classify(ctx context.Context, message string, convo *chat.Context) chat.RoutingDecision {
	decision, err := r.classifier.Classify(ctx, message, convo)
	if err != nil {
		return classify.GeneralFallback(fmt.Sprintf("error: %s", err.Error()))
	}
	if !chat.KnownIntent(decision.Agent) {
		decision.Agent = chat.IntentGeneral
	}
	return decision
}

// errorResponse 产出带错误路由标记的统一失败响应。
func errorResponse(message string, convo *chat.Context, err error) *chat.Response {
	resp := chat.ErrorResponse(message, convo, err)
	resp.Routing = &chat.RoutingDecision{
		Agent:      chat.IntentError,
		Confidence: 0,
		Reasoning:  err.Error(),
	}
	return resp
}
