package agent

import (
	"context"

	"Sofia-Agent/internal/chat"
)

// Handler 处理某一类意图的用户消息并产出统一响应。
// 实现必须保证返回的响应满足契约要求，业务失败应体现在
// 响应负载中，只有不可恢复的内部错误才通过 error 返回。
type Handler interface {
	Process(ctx context.Context, message string, convo *chat.Context) (*chat.Response, error)
}

// failureResponse 把智能体内部可预期的失败（上游故障、配置缺失）
// 转成错误形态但结构完整的响应，路由元数据仍由路由器补充。
func failureResponse(message string, convo *chat.Context, err error) (*chat.Response, error) {
	return chat.ErrorResponse(message, convo, err), nil
}
