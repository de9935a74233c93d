package agent

import (
	"context"
	"strings"
	"testing"

	"Sofia-Agent/internal/chat"
	"Sofia-Agent/internal/llm"
)

func TestNewDeploymentAgentParsesArtifact(t *testing.T) {
	agent, err := NewDeploymentAgent(nil)
	if err != nil {
		t.Fatalf("创建部署智能体失败: %v", err)
	}
	if len(agent.contract.ABI) == 0 || agent.contract.Bytecode == "" {
		t.Fatalf("合约构件不完整")
	}
}

func TestDeploymentReady(t *testing.T) {
	client := &stubLLM{results: []*llm.Result{{
		FunctionCall: &llm.FunctionCall{
			Name:      "extract_token_parameters",
			Arguments: `{"name": "Demo Token", "symbol": "DMT", "total_supply": 5000000}`,
		},
	}}}
	agent, err := NewDeploymentAgent(client)
	if err != nil {
		t.Fatalf("创建部署智能体失败: %v", err)
	}

	convo := &chat.Context{History: []chat.Turn{
		{Role: "user", Content: "I want to create a token called Demo Token with symbol DMT"},
		{Role: "assistant", Content: "Great, do you have a logo?"},
		{Role: "user", Content: "https://img.example/logo.png"},
	}}
	resp, err := agent.Process(context.Background(), "deploy it with 5,000,000 supply", convo)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Type != chat.TypeDeploymentReady {
		t.Fatalf("响应类型不匹配: %s", resp.Type)
	}

	network := resp.Data["network"].(map[string]any)
	if network["name"] != "unichain" || network["chain_id"] != "222" || network["rpc_url"] != "https://sepolia.unichain.org" {
		t.Fatalf("网络信息不匹配: %v", network)
	}

	contractData := resp.Data["contract_data"].(map[string]any)
	if contractData["bytecode"].(string) == "" {
		t.Fatalf("缺少合约字节码")
	}

	args := resp.Data["constructor_args"].([]any)
	if len(args) != 3 || args[0] != "Demo Token" || args[1] != "DMT" || args[2] != defaultDecimals {
		t.Fatalf("构造参数不匹配: %v", args)
	}

	params := resp.Data["deployment_params"].(map[string]any)
	if params["total_supply"].(int64) != 5000000 {
		t.Fatalf("总量不匹配: %v", params["total_supply"])
	}
	if params["logo_url"] != "https://img.example/logo.png" {
		t.Fatalf("Logo 地址不匹配: %v", params["logo_url"])
	}

	// 历史中的 Logo 链接在传给模型前被替换为占位符。
	if !strings.Contains(client.lastReq.Messages[0].Content, "<image_url>") {
		t.Fatalf("Logo 链接应被替换为占位符: %s", client.lastReq.Messages[0].Content)
	}
}

func TestDeploymentNeedsImage(t *testing.T) {
	client := &stubLLM{results: []*llm.Result{{
		FunctionCall: &llm.FunctionCall{
			Name:      "extract_token_parameters",
			Arguments: `{"name": "Demo Token", "symbol": "DMT"}`,
		},
	}}}
	agent, err := NewDeploymentAgent(client)
	if err != nil {
		t.Fatalf("创建部署智能体失败: %v", err)
	}

	resp, err := agent.Process(context.Background(), "create Demo Token with symbol DMT", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Type != chat.TypeNeedsImage {
		t.Fatalf("响应类型不匹配: %s", resp.Type)
	}
	params := resp.Data["deployment_params"].(map[string]any)
	if params["name"] != "Demo Token" || params["symbol"] != "DMT" {
		t.Fatalf("部署参数不匹配: %v", params)
	}
	// 未指定总量时使用默认值。
	if params["total_supply"].(int64) != defaultTotalSupply {
		t.Fatalf("默认总量不匹配: %v", params["total_supply"])
	}
}

func TestDeploymentAsksForMissing(t *testing.T) {
	// 第一次调用没有函数调用，第二次生成追问话术。
	client := &stubLLM{results: []*llm.Result{
		{Content: "no tools"},
		{Content: "What should we name your token?"},
	}}
	agent, err := NewDeploymentAgent(client)
	if err != nil {
		t.Fatalf("创建部署智能体失败: %v", err)
	}

	resp, err := agent.Process(context.Background(), "I want to deploy a token", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Type != chat.TypeGeneral {
		t.Fatalf("响应类型不匹配: %s", resp.Type)
	}
	if resp.Response != "What should we name your token?" {
		t.Fatalf("追问话术不匹配: %s", resp.Response)
	}
}

func TestDeploymentAsksForMissingWithoutLLM(t *testing.T) {
	agent, err := NewDeploymentAgent(nil)
	if err != nil {
		t.Fatalf("创建部署智能体失败: %v", err)
	}

	resp, err := agent.Process(context.Background(), "I want to deploy a token", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if !strings.Contains(resp.Response, "token name") {
		t.Fatalf("应提示缺少名称: %s", resp.Response)
	}
}
