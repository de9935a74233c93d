package agent

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"Sofia-Agent/internal/chat"
	apperr "Sofia-Agent/internal/errors"
	"Sofia-Agent/internal/llm"
)

//go:embed contracts/erc20.json
var erc20Artifact []byte

// 部署目标网络的固定参数。
const (
	deployNetworkName = "unichain"
	deployRPCURL      = "https://sepolia.unichain.org"
	deployChainID     = "222"
)

const (
	defaultTotalSupply = 1_000_000
	defaultDecimals    = 18
)

// extractTokenParamsSpec 让模型从整段会话中抽取代币部署参数。
var extractTokenParamsSpec = llm.FunctionSpec{
	Name:        "extract_token_parameters",
	Description: "Extract ERC-20 token deployment parameters from the conversation.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "The token's full name if found",
			},
			"symbol": map[string]any{
				"type":        "string",
				"description": "The token's ticker symbol, usually 3-4 characters",
			},
			"total_supply": map[string]any{
				"type":        "integer",
				"description": "The total supply of tokens if stated",
			},
			"logo_url": map[string]any{
				"type":        "string",
				"description": "URL of the token logo if one was shared",
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "Explanation of how each parameter was identified",
			},
		},
	},
}

type erc20Contract struct {
	ABI      []map[string]any `json:"abi"`
	Bytecode string           `json:"bytecode"`
}

// tokenParams 聚合从会话中逐步收集到的部署参数。
type tokenParams struct {
	Name        string
	Symbol      string
	TotalSupply int64
	LogoURL     string
}

// DeploymentAgent 通过多轮对话收集参数并产出 ERC-20 部署数据。
type DeploymentAgent struct {
	llm      llm.Client
	contract erc20Contract
}

// NewDeploymentAgent 构造部署智能体，解析内嵌的合约构件。
func NewDeploymentAgent(llmClient llm.Client) (*DeploymentAgent, error) {
	var contract erc20Contract
	if err := json.Unmarshal(erc20Artifact, &contract); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInitializationFailure, "解析合约构件失败")
	}
	if contract.Bytecode == "" {
		return nil, apperr.New(apperr.CodeInitializationFailure, "合约构件缺少字节码")
	}
	return &DeploymentAgent{llm: llmClient, contract: contract}, nil
}

// Process 分析会话收集部署参数，齐全时返回可签名的部署数据。
func (a *DeploymentAgent) Process(ctx context.Context, message string, convo *chat.Context) (*chat.Response, error) {
	params := tokenParams{}

	// Logo 链接直接从会话历史中挖掘，不依赖模型。
	conversation := renderDeploymentHistory(convo, &params)

	a.extractWithLLM(ctx, message, conversation, &params)

	if params.Name != "" && params.Symbol != "" {
		if params.LogoURL == "" {
			return a.needsImage(message, convo, params), nil
		}
		return a.deploymentReady(message, convo, params), nil
	}

	return a.askForMissing(ctx, message, convo, params), nil
}

// renderDeploymentHistory 把历史串成文本，同时顺带提取 Logo 链接。
func renderDeploymentHistory(convo *chat.Context, params *tokenParams) string {
	if convo == nil || len(convo.History) == 0 {
		return ""
	}

	lines := make([]string, 0, len(convo.History))
	for _, turn := range convo.History {
		content := strings.TrimSpace(turn.Content)
		if strings.HasPrefix(content, "http") && (strings.Contains(content, "png") || strings.Contains(content, "jpg")) {
			params.LogoURL = content
			lines = append(lines, fmt.Sprintf("%s: <image_url>", turn.Role))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Role, content))
	}
	return strings.Join(lines, "\n")
}

func (a *DeploymentAgent) extractWithLLM(ctx context.Context, message, conversation string, params *tokenParams) {
	if a.llm == nil {
		return
	}

	prompt := fmt.Sprintf("Previous conversation:\n%s\n\nCurrent message:\n%s", conversation, message)
	req := llm.Request{
		System:    "You are analyzing a conversation to extract token deployment parameters. The conversation history is provided in chronological order. Do not ask for information that was already provided.",
		Messages:  []llm.Message{{Role: "user", Content: prompt}},
		Functions: []llm.FunctionSpec{extractTokenParamsSpec},
	}
	result, err := a.llm.Complete(ctx, req)
	if err != nil || result.FunctionCall == nil {
		return
	}

	var args struct {
		Name        string `json:"name"`
		Symbol      string `json:"symbol"`
		TotalSupply int64  `json:"total_supply"`
		LogoURL     string `json:"logo_url"`
	}
	if err := json.Unmarshal([]byte(result.FunctionCall.Arguments), &args); err != nil {
		return
	}

	if args.Name != "" {
		params.Name = args.Name
	}
	if args.Symbol != "" {
		params.Symbol = args.Symbol
	}
	if args.TotalSupply > 0 {
		params.TotalSupply = args.TotalSupply
	}
	if params.LogoURL == "" && strings.HasPrefix(args.LogoURL, "http") {
		params.LogoURL = args.LogoURL
	}
}

func (a *DeploymentAgent) deploymentReady(message string, convo *chat.Context, params tokenParams) *chat.Response {
	supply := params.TotalSupply
	if supply <= 0 {
		supply = defaultTotalSupply
	}

	resp := chat.NewResponse(chat.TypeDeploymentReady, message, convo)
	resp.Data["network"] = map[string]any{
		"name":     deployNetworkName,
		"rpc_url":  deployRPCURL,
		"chain_id": deployChainID,
	}
	resp.Data["contract_data"] = map[string]any{
		"abi":      a.contract.ABI,
		"bytecode": a.contract.Bytecode,
	}
	resp.Data["constructor_args"] = []any{params.Name, params.Symbol, defaultDecimals}
	resp.Data["deployment_params"] = map[string]any{
		"name":         params.Name,
		"symbol":       params.Symbol,
		"decimals":     defaultDecimals,
		"total_supply": supply,
		"logo_url":     params.LogoURL,
	}
	resp.Response = fmt.Sprintf("Everything is ready to deploy %s (%s) with a total supply of %d tokens on %s. Please confirm the deployment in your wallet.",
		params.Name, params.Symbol, supply, deployNetworkName)
	return resp
}

func (a *DeploymentAgent) needsImage(message string, convo *chat.Context, params tokenParams) *chat.Response {
	supply := params.TotalSupply
	if supply <= 0 {
		supply = defaultTotalSupply
	}

	resp := chat.NewResponse(chat.TypeNeedsImage, message, convo)
	resp.Data["deployment_params"] = map[string]any{
		"name":         params.Name,
		"symbol":       params.Symbol,
		"total_supply": supply,
	}
	resp.Response = fmt.Sprintf("Great! I have all the token details. Now we just need a logo for your %s token. Would you like me to generate one for you?", params.Name)
	return resp
}

// askForMissing 先尝试让模型生成追问话术，失败时退回固定话术。
func (a *DeploymentAgent) askForMissing(ctx context.Context, message string, convo *chat.Context, params tokenParams) *chat.Response {
	resp := chat.NewResponse(chat.TypeGeneral, message, convo)

	if a.llm != nil {
		req := llm.Request{
			System: fmt.Sprintf("Current parameters: name=%q symbol=%q total_supply=%d. Generate a natural response asking for the missing required parameters (name, symbol, total_supply). If all parameters are collected, ask for confirmation.",
				params.Name, params.Symbol, params.TotalSupply),
			Messages: []llm.Message{{Role: "user", Content: message}},
		}
		if result, err := a.llm.Complete(ctx, req); err == nil && result.Content != "" {
			resp.Response = result.Content
			return resp
		}
	}

	missing := make([]string, 0, 2)
	if params.Name == "" {
		missing = append(missing, "the token name")
	}
	if params.Symbol == "" {
		missing = append(missing, "the ticker symbol")
	}
	resp.Response = fmt.Sprintf("To deploy your token I still need %s. What would you like to use?", strings.Join(missing, " and "))
	return resp
}
