package agent

import (
	"context"
	"strings"
	"testing"

	"Sofia-Agent/internal/chat"
	"Sofia-Agent/internal/llm"
	"Sofia-Agent/internal/pools"
)

func TestLiquidityNoPoolMatch(t *testing.T) {
	service, _ := newTestPoolService(t)
	agent := NewLiquidityAgent(pools.Builtin(), service, nil)

	resp, err := agent.Process(context.Background(), "I want to add liquidity on avalanche", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Type != chat.TypeGeneral {
		t.Fatalf("响应类型不匹配: %s", resp.Type)
	}
	if resp.Data["error"] == nil {
		t.Fatalf("应返回无法确定池子的提示: %v", resp.Data)
	}
	poolKeys := resp.Data["available_pools"].([]string)
	if len(poolKeys) != 2 {
		t.Fatalf("可用池子列表不匹配: %v", poolKeys)
	}
}

func TestLiquidityUnichainComingSoon(t *testing.T) {
	service, _ := newTestPoolService(t)
	agent := NewLiquidityAgent(pools.Builtin(), service, nil)

	resp, err := agent.Process(context.Background(), "add liquidity on unichain", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Data["error"] != "UniChain LP functionality coming soon!" {
		t.Fatalf("应提示 UniChain 尚未上线: %v", resp.Data)
	}
	if !strings.Contains(resp.Response, "coming soon") {
		t.Fatalf("响应文本不匹配: %s", resp.Response)
	}
}

func TestLiquidityNoChainListsOptions(t *testing.T) {
	service, _ := newTestPoolService(t)
	agent := NewLiquidityAgent(pools.Builtin(), service, nil)

	// 没有指明链也没有匹配到池子时列出可选的链。
	resp, err := agent.Process(context.Background(), "I want to provide liquidity", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if !strings.Contains(resp.Response, "Avalanche (AVAX) - Available now") {
		t.Fatalf("应列出 Avalanche 选项: %s", resp.Response)
	}
	if !strings.Contains(resp.Response, "UniChain - Coming soon") {
		t.Fatalf("应列出 UniChain 选项: %s", resp.Response)
	}
}

func TestLiquidityPoolNotLive(t *testing.T) {
	service, _ := newTestPoolService(t)
	agent := NewLiquidityAgent(pools.Builtin(), service, nil)

	resp, err := agent.Process(context.Background(), "add liquidity to avax usdt", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if !strings.Contains(resp.Response, "not live yet") {
		t.Fatalf("应提示池子未上线: %s", resp.Response)
	}
}

func TestLiquidityRequestAmounts(t *testing.T) {
	service, _ := newTestPoolService(t)
	// 模型没有给出函数调用时要求用户补充数量。
	client := &stubLLM{results: []*llm.Result{{Content: "sure"}}}
	agent := NewLiquidityAgent(pools.Builtin(), service, client)

	resp, err := agent.Process(context.Background(), "I want to invest in the AVAX/USDC pool", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Data["action"] != "request_amounts" {
		t.Fatalf("应要求补充数量: %v", resp.Data)
	}
	if !strings.Contains(resp.Response, "AVAX-USDC") {
		t.Fatalf("提示语应包含池子名称: %s", resp.Response)
	}
}

func TestLiquidityPrepareAdd(t *testing.T) {
	service, _ := newTestPoolService(t)
	client := &stubLLM{results: []*llm.Result{{
		FunctionCall: &llm.FunctionCall{
			Name:      "extract_liquidity_amounts",
			Arguments: `{"token_x_amount": 10, "token_y_amount": 150}`,
		},
	}}}
	agent := NewLiquidityAgent(pools.Builtin(), service, client)

	resp, err := agent.Process(context.Background(), "Add 10 AVAX and 150 USDC to the avax usdc pool", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Data["action"] != "add_liquidity" {
		t.Fatalf("应产出建仓数据: %v", resp.Data["action"])
	}
	if resp.Data["network"] != "avalanche" || resp.Data["chain_id"].(int64) != 43114 {
		t.Fatalf("网络信息不匹配: %v", resp.Data)
	}

	params := resp.Data["liquidity_params"].(map[string]any)
	if params["amountX"] != "10000000000000000000" {
		t.Fatalf("AVAX 数量换算不匹配: %v", params["amountX"])
	}
	if params["amountY"] != "150000000" {
		t.Fatalf("USDC 数量换算不匹配: %v", params["amountY"])
	}
	if params["amountXMin"] != "9900000000000000000" {
		t.Fatalf("滑点下限不匹配: %v", params["amountXMin"])
	}
	deltaIDs := params["deltaIds"].([]int64)
	if len(deltaIDs) != 3 || deltaIDs[0] != -1 || deltaIDs[2] != 1 {
		t.Fatalf("默认 bin 区间不匹配: %v", deltaIDs)
	}
	distribution := params["distributionX"].([]string)
	if len(distribution) != 3 || distribution[0] != "500000000000000000" {
		t.Fatalf("流动性分布不匹配: %v", distribution)
	}

	approvals := resp.Data["required_approvals"].([]map[string]any)
	if len(approvals) != 1 || approvals[0]["token"] != "USDC" {
		t.Fatalf("授权列表不匹配: %v", approvals)
	}
}

func TestLiquidityRemove(t *testing.T) {
	service, _ := newTestPoolService(t)
	agent := NewLiquidityAgent(pools.Builtin(), service, nil)

	resp, err := agent.Process(context.Background(), "remove liquidity from the avax usdc pool", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Data["action"] != "remove_liquidity" {
		t.Fatalf("应产出撤仓数据: %v", resp.Data["action"])
	}
}

func TestPriceToBinID(t *testing.T) {
	// 价格为 1 时正好落在基准 bin 上。
	if got := priceToBinID(1, 20); got != 1<<23 {
		t.Fatalf("基准 bin 不匹配: %d", got)
	}
	if got := priceToBinID(0, 20); got != 1<<23 {
		t.Fatalf("非法价格应回落到基准 bin: %d", got)
	}
	if priceToBinID(1.1, 20) <= 1<<23 {
		t.Fatalf("高于基准价应得到更大的 bin 编号")
	}
}

func TestAmountToUnits(t *testing.T) {
	if got := amountToUnits(1.5, 6); got.String() != "1500000" {
		t.Fatalf("精度换算不匹配: %s", got)
	}
	if got := amountToUnits(-1, 18); got.Sign() != 0 {
		t.Fatalf("负数数量应归零: %s", got)
	}
}
