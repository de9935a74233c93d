package chat

import (
	"strings"
	"time"
)

// Intent 表示一条用户消息被路由到的智能体类型。
type Intent string

const (
	IntentGeneral    Intent = "general"
	IntentRisk       Intent = "risk"
	IntentTrading    Intent = "trading"
	IntentDeployment Intent = "deployment"
	IntentImage      Intent = "image"
	// IntentError 仅出现在路由元数据中，表示路由层兜底失败。
	IntentError Intent = "error"
)

// KnownIntent 判断给定意图是否属于可分发的封闭集合。
func KnownIntent(intent Intent) bool {
	switch intent {
	case IntentGeneral, IntentRisk, IntentTrading, IntentDeployment, IntentImage:
		return true
	default:
		return false
	}
}

// ResponseType 是响应负载的封闭类型枚举。
type ResponseType string

const (
	TypeGeneral                ResponseType = "general"
	TypePriceQuery             ResponseType = "price_query"
	TypeConversionQuery        ResponseType = "conversion_query"
	TypeDollarRates            ResponseType = "dollar_rates"
	TypeRiskAssessment         ResponseType = "risk_assessment"
	TypeStrategyRecommendation ResponseType = "strategy_recommendation"
	TypeDeploymentReady        ResponseType = "deployment_ready"
	TypeNeedsImage             ResponseType = "needs_image"
	TypeImageReady             ResponseType = "image_ready"
	TypeError                  ResponseType = "error"
)

// Turn 是会话历史中的一条记录。
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context 携带一次请求的会话历史与调用方附加信息。
//
// History 按时间顺序排列，最早的一条在最前面。核心逻辑只读
// 该视图，跨请求的连续性完全由调用方重新传入历史来实现。
type Context struct {
	History []Turn         `json:"history,omitempty"`
	Extras  map[string]any `json:"extras,omitempty"`
}

// Extra 读取附加信息中的字符串字段，缺失时返回 fallback。
func (c *Context) Extra(key, fallback string) string {
	if c == nil || c.Extras == nil {
		return fallback
	}
	value, ok := c.Extras[key].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ExtraMap 读取附加信息中的对象字段。
func (c *Context) ExtraMap(key string) map[string]any {
	if c == nil || c.Extras == nil {
		return nil
	}
	value, ok := c.Extras[key].(map[string]any)
	if !ok {
		return nil
	}
	return value
}

// RoutingDecision 记录分类器给出的路由结论。
type RoutingDecision struct {
	Agent      Intent  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Metadata 描述响应的生成背景。
type Metadata struct {
	Timestamp string   `json:"timestamp"`
	Query     string   `json:"query"`
	Context   *Context `json:"context,omitempty"`
}

// Response 是所有智能体必须满足的统一响应契约。
// 所有字段均可被 JSON 序列化；路由层在处理完成后补充 Routing。
type Response struct {
	Response string           `json:"response,omitempty"`
	Type     ResponseType     `json:"type"`
	Data     map[string]any   `json:"data"`
	Metadata Metadata         `json:"metadata"`
	Routing  *RoutingDecision `json:"routing,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// NewResponse 构造一个带有元数据的最小合法响应。
func NewResponse(typ ResponseType, query string, convo *Context) *Response {
	return &Response{
		Type: typ,
		Data: map[string]any{},
		Metadata: Metadata{
			Timestamp: time.Now().Format(time.RFC3339),
			Query:     query,
			Context:   convo,
		},
	}
}

// ErrorResponse 将失败转换为错误形态但结构完整的响应。
func ErrorResponse(query string, convo *Context, err error) *Response {
	resp := NewResponse(TypeError, query, convo)
	if err != nil {
		resp.Error = err.Error()
		resp.Data["error"] = err.Error()
	}
	return resp
}
