package classify

import (
	"context"

	"Sofia-Agent/internal/chat"
)

// Classifier 将消息与会话历史转换为一次路由决策。
type Classifier interface {
	Classify(ctx context.Context, message string, convo *chat.Context) (chat.RoutingDecision, error)
}

// GeneralFallback 是分类失败时的兜底决策。
func GeneralFallback(reasoning string) chat.RoutingDecision {
	return chat.RoutingDecision{
		Agent:      chat.IntentGeneral,
		Confidence: 0,
		Reasoning:  reasoning,
	}
}
