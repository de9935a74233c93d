package router

import (
	"Sofia-Agent/internal/agent"
	"Sofia-Agent/internal/chat"
)

// Registry 维护意图到处理器的映射。
type Registry struct {
	handlers map[chat.Intent]agent.Handler
}

// NewRegistry 创建空的处理器注册表。
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[chat.Intent]agent.Handler)}
}

// Register 注册某个意图的处理器，重复注册时覆盖。
func (r *Registry) Register(intent chat.Intent, handler agent.Handler) {
	if handler == nil {
		return
	}
	r.handlers[intent] = handler
}

// Resolve 返回意图对应的处理器；未知或未注册的意图回落到 general。
func (r *Registry) Resolve(intent chat.Intent) (agent.Handler, chat.Intent) {
	if !chat.KnownIntent(intent) {
		intent = chat.IntentGeneral
	}
	if handler, ok := r.handlers[intent]; ok {
		return handler, intent
	}
	return r.handlers[chat.IntentGeneral], chat.IntentGeneral
}
