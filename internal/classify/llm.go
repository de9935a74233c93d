package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"Sofia-Agent/internal/chat"
	"Sofia-Agent/internal/llm"
)

const routerSystemPrompt = `You are a routing assistant that determines the best agent to handle user requests.
You must analyze messages and their context to determine if they are about:
1. Token deployment (creating new tokens, deploying contracts) -> "deployment"
2. Image generation (creating logos, artwork, designs) -> "image"
3. Risk analysis (pool analysis, impermanent loss calculations) -> "risk"
4. Liquidity Providing (LP) operations: pool questions, adding/removing liquidity, LP strategies -> "trading"
5. General crypto queries (prices, conversions, rates) -> "general"

IMPORTANT:
- ANY question about pools, liquidity, or LP operations should go to "trading"
- Users may write in any language
- Consider the entire conversation context, not just the latest message
- More recent messages have higher priority

ALWAYS use the determine_agent function to specify which agent should handle the request.
DO NOT provide additional explanations, ONLY use the function.`

// determineAgentSpec 约束模型仅以结构化函数调用的形式返回路由结论。
var determineAgentSpec = llm.FunctionSpec{
	Name:        "determine_agent",
	Description: "Determine which agent should handle the request",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_type": map[string]any{
				"type": "string",
				"enum": []string{"deployment", "image", "risk", "trading", "general"},
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
			"reasoning": map[string]any{
				"type": "string",
			},
		},
		"required": []string{"agent_type"},
	},
}

// LLMClassifier 将意图识别委托给外部的结构化函数调用能力。
// 该策略的核心职责是提示词构造、响应解码与兜底策略，任何
// 委托方异常都被就地恢复，Classify 永远不返回非空错误。
type LLMClassifier struct {
	client  llm.Client
	timeout time.Duration
}

// NewLLMClassifier 创建基于大模型的分类器。
func NewLLMClassifier(client llm.Client, timeout time.Duration) *LLMClassifier {
	return &LLMClassifier{client: client, timeout: timeout}
}

// Classify 构造提示词并解析模型返回的 determine_agent 调用。
func (l *LLMClassifier) Classify(ctx context.Context, message string, convo *chat.Context) (chat.RoutingDecision, error) {
	if l.client == nil {
		return GeneralFallback("error: 未配置大模型客户端"), nil
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	result, err := l.client.Complete(ctx, llm.Request{
		System: routerSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildRoutingPrompt(message, convo)},
		},
		Functions: []llm.FunctionSpec{determineAgentSpec},
	})
	if err != nil {
		return GeneralFallback(fmt.Sprintf("error: %v", err)), nil
	}

	return decodeDecision(result), nil
}

// buildRoutingPrompt 将当前消息与倒序渲染的历史拼接成一段提示词。
// 历史按时间顺序存储，这里倒序渲染以突出最近消息。
func buildRoutingPrompt(message string, convo *chat.Context) string {
	var builder strings.Builder
	builder.WriteString("Analyze this conversation and determine the best agent to handle it:\n\n")

	builder.WriteString("Previous conversation (most recent first):\n")
	if convo != nil {
		for i := len(convo.History) - 1; i >= 0; i-- {
			turn := convo.History[i]
			builder.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
		}
	}

	builder.WriteString("\nCurrent message:\n")
	builder.WriteString(message)
	return builder.String()
}

// decodeDecision 对函数调用做严格的模式校验解码。
// 缺失或无法解析的结构化输出按可恢复的分类失败处理。
func decodeDecision(result *llm.Result) chat.RoutingDecision {
	if result == nil || result.FunctionCall == nil {
		return chat.RoutingDecision{
			Agent:      chat.IntentGeneral,
			Confidence: 0.5,
			Reasoning:  "failed to determine specific intent",
		}
	}

	var args struct {
		AgentType  string  `json:"agent_type"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(result.FunctionCall.Arguments), &args); err != nil {
		return chat.RoutingDecision{
			Agent:      chat.IntentGeneral,
			Confidence: 0.5,
			Reasoning:  "fallback: unparsable function call",
		}
	}

	intent := chat.Intent(strings.ToLower(strings.TrimSpace(args.AgentType)))
	if !chat.KnownIntent(intent) {
		intent = chat.IntentGeneral
	}

	confidence := args.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return chat.RoutingDecision{
		Agent:      intent,
		Confidence: confidence,
		Reasoning:  args.Reasoning,
	}
}
