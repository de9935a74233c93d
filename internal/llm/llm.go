package llm

import "context"

// Message 是发送给大模型的一条对话消息。
type Message struct {
	Role    string
	Content string
}

// FunctionSpec 描述一个受约束的结构化函数调用。
// Parameters 采用 JSON Schema 形式的参数定义。
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request 描述一次大模型调用。
// 当 Functions 非空时，模型被要求通过函数调用返回结构化结果。
type Request struct {
	System      string
	Messages    []Message
	Functions   []FunctionSpec
	Temperature float64
}

// FunctionCall 是模型返回的结构化函数调用，Arguments 为原始 JSON。
type FunctionCall struct {
	Name      string
	Arguments string
}

// Result 汇总一次调用的产出：自由文本或结构化函数调用。
type Result struct {
	Content      string
	FunctionCall *FunctionCall
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Complete(ctx context.Context, req Request) (*Result, error)
}
