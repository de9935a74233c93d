package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"Sofia-Agent/internal/chat"
	apperr "Sofia-Agent/internal/errors"
	"Sofia-Agent/internal/llm"
	"Sofia-Agent/internal/market"
	"Sofia-Agent/internal/pools"
)

var removeLiquidityCues = []string{"remove liquidity", "withdraw", "exit position"}

// liquidityPrecision 是 Trader Joe V2 分布数组使用的定点基数。
var liquidityPrecision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// liquidityAmountSpec 让模型从消息中抽取建仓数量与价格区间。
var liquidityAmountSpec = llm.FunctionSpec{
	Name:        "extract_liquidity_amounts",
	Description: "Extract the amounts of both tokens the user wants to provide as liquidity, plus an optional price range.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"token_x_amount": map[string]any{
				"type":        "number",
				"description": "Amount of the first token (for example AVAX)",
			},
			"token_y_amount": map[string]any{
				"type":        "number",
				"description": "Amount of the second token (for example USDC)",
			},
			"price_range": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"min": map[string]any{"type": "number"},
					"max": map[string]any{"type": "number"},
				},
			},
		},
	},
}

// LiquidityAgent 协助用户在 Trader Joe V2 池子上准备建仓和撤仓交易。
type LiquidityAgent struct {
	registry *pools.Registry
	pools    *market.PoolService
	llm      llm.Client
}

// NewLiquidityAgent 构造流动性智能体。
func NewLiquidityAgent(registry *pools.Registry, poolService *market.PoolService, llmClient llm.Client) *LiquidityAgent {
	return &LiquidityAgent{registry: registry, pools: poolService, llm: llmClient}
}

// avalancheCues 命中任意一个即认为用户指定了 Avalanche 链。
var avalancheCues = []string{"avalanche", "avax"}

// chainOptionsText 在用户没有指明链时列出可选项。
const chainOptionsText = `Please specify which chain you'd like to provide liquidity on:

Avalanche (AVAX) - Available now
• Trader Joe V2 pools on Avalanche
• Currently supporting AVAX-USDC and AVAX-USDT pairs
• Concentrated liquidity positions for better capital efficiency

UniChain - Coming soon
• UniChain DEX pools
• Multiple pairs with automated market making
• Yield farming opportunities`

// Process 先确定目标链和池子，再按意图准备建仓或撤仓数据。
func (a *LiquidityAgent) Process(ctx context.Context, message string, convo *chat.Context) (*chat.Response, error) {
	lowered := strings.ToLower(message)

	// UniChain 的 LP 能力尚未实现，直接短路返回。
	if strings.Contains(lowered, "unichain") {
		resp := chat.NewResponse(chat.TypeGeneral, message, convo)
		resp.Data["error"] = "UniChain LP functionality coming soon!"
		resp.Response = "UniChain LP functionality coming soon!"
		return resp, nil
	}

	pool, ok := a.registry.Match(message)
	if !ok {
		if !hasAnyCue(lowered, avalancheCues) {
			resp := chat.NewResponse(chat.TypeGeneral, message, convo)
			resp.Response = chainOptionsText
			return resp, nil
		}
		resp := chat.NewResponse(chat.TypeGeneral, message, convo)
		resp.Data["error"] = "Could not determine which pool you want to use"
		resp.Data["available_pools"] = a.registry.Keys()
		resp.Response = "Please mention both tokens of the pool you want to use, for example \"add liquidity to AVAX/USDC\"."
		return resp, nil
	}

	if strings.TrimSpace(pool.PairAddress) == "" {
		resp := chat.NewResponse(chat.TypeGeneral, message, convo)
		resp.Data["pool"] = poolPayload(pool)
		resp.Response = fmt.Sprintf("The %s pool is not live yet. Please try the AVAX-USDC pool in the meantime.", pool.Name)
		return resp, nil
	}

	if hasAnyCue(lowered, removeLiquidityCues) {
		return a.prepareRemoveLiquidity(message, convo, pool), nil
	}

	amounts, priceRange := a.extractAmounts(ctx, message, convo)
	if amounts == nil {
		resp := chat.NewResponse(chat.TypeGeneral, message, convo)
		resp.Data["action"] = "request_amounts"
		resp.Data["pool"] = poolPayload(pool)
		resp.Response = fmt.Sprintf("How much would you like to add to the %s pool? Please specify the amounts for both tokens.", pool.Name)
		return resp, nil
	}

	return a.prepareAddLiquidity(ctx, message, convo, pool, amounts[0], amounts[1], priceRange)
}

// extractAmounts 通过模型函数调用抽取两个代币数量，失败时返回 nil。
func (a *LiquidityAgent) extractAmounts(ctx context.Context, message string, convo *chat.Context) (*[2]float64, *market.PriceRange) {
	if a.llm == nil {
		return nil, nil
	}

	req := llm.Request{
		System:    "You are a liquidity provider assistant for Trader Joe V2 pools. Extract the token amounts the user wants to deposit. Only call the function when the user states concrete amounts.",
		Messages:  buildHistoryMessages(convo, message),
		Functions: []llm.FunctionSpec{liquidityAmountSpec},
	}
	result, err := a.llm.Complete(ctx, req)
	if err != nil || result.FunctionCall == nil {
		return nil, nil
	}

	var args struct {
		TokenXAmount *float64 `json:"token_x_amount"`
		TokenYAmount *float64 `json:"token_y_amount"`
		PriceRange   *struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"price_range"`
	}
	if err := json.Unmarshal([]byte(result.FunctionCall.Arguments), &args); err != nil {
		return nil, nil
	}
	if args.TokenXAmount == nil || args.TokenYAmount == nil {
		return nil, nil
	}

	var priceRange *market.PriceRange
	if args.PriceRange != nil {
		priceRange = &market.PriceRange{Min: args.PriceRange.Min, Max: args.PriceRange.Max}
	}
	return &[2]float64{*args.TokenXAmount, *args.TokenYAmount}, priceRange
}

func (a *LiquidityAgent) prepareAddLiquidity(ctx context.Context, message string, convo *chat.Context, pool pools.Pool, amountX, amountY float64, priceRange *market.PriceRange) (*chat.Response, error) {
	metrics, err := a.pools.GetPoolMetrics(ctx, pool.PairAddress)
	if err != nil {
		return failureResponse(message, convo, apperr.Wrap(err, apperr.CodeUpstreamFailure, "获取池子指标失败"))
	}
	activeID := metrics.ActiveBinID
	currentPrice := metrics.PriceRange.Current

	amountXUnits := amountToUnits(amountX, pool.TokenX.Decimals)
	amountYUnits := amountToUnits(amountY, pool.TokenY.Decimals)

	// 默认在活跃 bin 两侧各放一个 bin，给定价格区间时按区间展开。
	deltaIDs := []int64{-1, 0, 1}
	if priceRange != nil && priceRange.Min > 0 && priceRange.Max >= priceRange.Min {
		minBin := priceToBinID(priceRange.Min, pool.BinStep)
		maxBin := priceToBinID(priceRange.Max, pool.BinStep)
		deltaIDs = deltaIDs[:0]
		for id := minBin; id <= maxBin; id++ {
			deltaIDs = append(deltaIDs, id-activeID)
		}
	}

	half := new(big.Int).Div(liquidityPrecision, big.NewInt(2)).String()
	distributionX := make([]string, len(deltaIDs))
	distributionY := make([]string, len(deltaIDs))
	for i := range deltaIDs {
		distributionX[i] = half
		distributionY[i] = half
	}

	liquidityParams := map[string]any{
		"tokenX":          pool.TokenX.Address,
		"tokenY":          pool.TokenY.Address,
		"binStep":         pool.BinStep,
		"amountX":         amountXUnits.String(),
		"amountY":         amountYUnits.String(),
		"amountXMin":      slippageFloor(amountXUnits).String(),
		"amountYMin":      slippageFloor(amountYUnits).String(),
		"activeIdDesired": activeID,
		"idSlippage":      5,
		"deltaIds":        deltaIDs,
		"distributionX":   distributionX,
		"distributionY":   distributionY,
		"to":              "${USER_ADDRESS}",
		"refundTo":        "${USER_ADDRESS}",
		"deadline":        "${DEADLINE}",
	}

	resp := chat.NewResponse(chat.TypeGeneral, message, convo)
	resp.Data["action"] = "add_liquidity"
	resp.Data["network"] = pool.Network
	resp.Data["chain_id"] = pool.ChainID
	resp.Data["pool"] = poolPayload(pool)
	resp.Data["router_address"] = pool.Router
	resp.Data["pair_address"] = pool.PairAddress
	resp.Data["liquidity_params"] = liquidityParams
	resp.Data["required_approvals"] = []map[string]any{
		{
			"token":   pool.TokenY.Symbol,
			"address": pool.TokenY.Address,
			"amount":  amountYUnits.String(),
			"spender": pool.Router,
		},
	}
	resp.Data["metadata"] = map[string]any{
		"current_price": currentPrice,
		"active_bin_id": activeID,
		"price_range":   priceRangePayload(priceRange),
		"expected_position": map[string]any{
			"token_x": amountX,
			"token_y": amountY,
		},
	}
	resp.Response = fmt.Sprintf("Prepared an add-liquidity transaction for the %s pool: %s %s and %s %s across %d bins. Sign it with your wallet to proceed.",
		pool.Name, formatAmount(amountX), pool.TokenX.Symbol, formatAmount(amountY), pool.TokenY.Symbol, len(deltaIDs))
	return resp, nil
}

func (a *LiquidityAgent) prepareRemoveLiquidity(message string, convo *chat.Context, pool pools.Pool) *chat.Response {
	resp := chat.NewResponse(chat.TypeGeneral, message, convo)
	resp.Data["action"] = "remove_liquidity"
	resp.Data["network"] = pool.Network
	resp.Data["chain_id"] = pool.ChainID
	resp.Data["pool"] = poolPayload(pool)
	resp.Data["router_address"] = pool.Router
	resp.Data["pair_address"] = pool.PairAddress
	resp.Response = fmt.Sprintf("Removing liquidity from the %s pool is not automated yet. Please use the Trader Joe interface for now.", pool.Name)
	return resp
}

// amountToUnits 按代币精度把数量换算成最小单位。
func amountToUnits(amount float64, decimals int) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(amount), new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)))
	units, _ := scaled.Int(nil)
	if units.Sign() < 0 {
		return big.NewInt(0)
	}
	return units
}

// slippageFloor 返回扣除 1% 滑点后的最小可接受数量。
func slippageFloor(units *big.Int) *big.Int {
	floor := new(big.Int).Mul(units, big.NewInt(99))
	return floor.Div(floor, big.NewInt(100))
}

// priceToBinID 按 Trader Joe V2 的定义把价格换算为 bin 编号。
// bin 价格满足 price = (1 + binStep/10000)^(id - 8388608)。
func priceToBinID(price float64, binStep int) int64 {
	if price <= 0 || binStep <= 0 {
		return 1 << 23
	}
	base := 1 + float64(binStep)/10000
	return int64(math.Round(math.Log(price)/math.Log(base))) + (1 << 23)
}

func poolPayload(pool pools.Pool) map[string]any {
	return map[string]any{
		"key":          pool.Key,
		"name":         pool.Name,
		"pair_address": pool.PairAddress,
		"router":       pool.Router,
		"bin_step":     pool.BinStep,
		"tokens": map[string]any{
			"tokenX": map[string]any{
				"symbol":   pool.TokenX.Symbol,
				"address":  pool.TokenX.Address,
				"decimals": pool.TokenX.Decimals,
			},
			"tokenY": map[string]any{
				"symbol":   pool.TokenY.Symbol,
				"address":  pool.TokenY.Address,
				"decimals": pool.TokenY.Decimals,
			},
		},
	}
}

func priceRangePayload(priceRange *market.PriceRange) any {
	if priceRange == nil {
		return nil
	}
	return map[string]any{"min": priceRange.Min, "max": priceRange.Max}
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
