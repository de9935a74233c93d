package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Sofia-Agent/internal/chat"
	apperr "Sofia-Agent/internal/errors"
	"Sofia-Agent/internal/market"
	"Sofia-Agent/internal/pools"
)

var riskQueryKeywords = []string{"risk", "risky", "safe", "danger", "safety", "volatile"}

var strategyQueryKeywords = []string{"strategy", "recommend", "suggestion", "best", "optimal"}

// 不同风险偏好对应的建仓价格区间宽度。
var toleranceRanges = map[string]float64{
	"conservative": 0.02,
	"moderate":     0.05,
	"aggressive":   0.10,
}

// 不同风险偏好建议投入的仓位基准比例。
var tolerancePositionBase = map[string]float64{
	"conservative": 0.10,
	"moderate":     0.25,
	"aggressive":   0.50,
}

// RiskAgent 负责池子风险评估与 LP 策略建议。
type RiskAgent struct {
	pools      *market.PoolService
	historical *market.HistoricalService
	registry   *pools.Registry
}

// NewRiskAgent 构造风险分析智能体。
func NewRiskAgent(poolService *market.PoolService, historical *market.HistoricalService, registry *pools.Registry) *RiskAgent {
	return &RiskAgent{pools: poolService, historical: historical, registry: registry}
}

// Process 从消息中解析池子地址，按关键词分发到风险评估或策略建议，
// 没有命中关键词时给出综合的池子分析。
func (a *RiskAgent) Process(ctx context.Context, message string, convo *chat.Context) (*chat.Response, error) {
	lowered := strings.ToLower(message)

	address := extractPoolAddress(lowered)
	if address == "" && a.registry != nil {
		// 消息里没有地址时尝试按代币符号匹配已知池子。
		if pool, ok := a.registry.Match(message); ok {
			address = pool.PairAddress
		}
	}

	if address == "" {
		resp := chat.NewResponse(chat.TypeGeneral, message, convo)
		resp.Response = "Please provide the pool contract address (0x...) or mention both tokens of a supported pool so I can analyze it."
		return resp, nil
	}

	if isStrategyQuery(lowered) && !isRiskQuery(lowered) {
		return a.strategyRecommendation(ctx, message, convo, address)
	}
	if isRiskQuery(lowered) {
		return a.riskAssessment(ctx, message, convo, address)
	}
	return a.poolAnalysis(ctx, message, convo, address)
}

// poolAnalysis 汇总池子的当前指标和历史表现。
func (a *RiskAgent) poolAnalysis(ctx context.Context, message string, convo *chat.Context, address string) (*chat.Response, error) {
	metrics, err := a.pools.GetPoolMetrics(ctx, address)
	if err != nil {
		return failureResponse(message, convo, apperr.Wrap(err, apperr.CodeUpstreamFailure, "获取池子指标失败"))
	}
	history, err := a.historical.GetPoolHistory(ctx, address)
	if err != nil {
		return failureResponse(message, convo, apperr.Wrap(err, apperr.CodeUpstreamFailure, "获取历史数据失败"))
	}

	resp := chat.NewResponse(chat.TypeGeneral, message, convo)
	resp.Data["pool_address"] = address
	resp.Data["current_metrics"] = map[string]any{
		"tvl":         metrics.TVL,
		"volume_24h":  metrics.Volume24h,
		"fees_24h":    metrics.Fees24h,
		"apr":         metrics.APR,
		"price_range": metrics.PriceRange,
	}
	resp.Data["historical_performance"] = map[string]any{
		"avg_apr_7d":   history.AvgAPR7d,
		"volume_trend": history.VolumeTrend,
		"il_7d":        history.ImpermanentLoss7d,
	}
	resp.Data["analysis_timestamp"] = time.Now().Format(time.RFC3339)
	resp.Response = analysisSummary(metrics, history)
	return resp, nil
}

func (a *RiskAgent) riskAssessment(ctx context.Context, message string, convo *chat.Context, address string) (*chat.Response, error) {
	risk, err := a.pools.GetRiskMetrics(ctx, address)
	if err != nil {
		return failureResponse(message, convo, apperr.Wrap(err, apperr.CodeUpstreamFailure, "获取风险指标失败"))
	}

	resp := chat.NewResponse(chat.TypeRiskAssessment, message, convo)
	resp.Data["risk_scores"] = map[string]any{
		"volatility_risk": risk.VolatilityScore,
		"liquidity_risk":  risk.LiquidityScore,
		"il_risk":         risk.ILRiskScore,
		"overall_risk":    risk.OverallRisk,
	}
	resp.Data["risk_factors"] = risk.RiskFactors
	resp.Data["analysis_timestamp"] = time.Now().Format(time.RFC3339)
	resp.Response = riskSummary(risk)
	return resp, nil
}

func (a *RiskAgent) strategyRecommendation(ctx context.Context, message string, convo *chat.Context, address string) (*chat.Response, error) {
	metrics, err := a.pools.GetPoolMetrics(ctx, address)
	if err != nil {
		return failureResponse(message, convo, apperr.Wrap(err, apperr.CodeUpstreamFailure, "获取池子指标失败"))
	}
	risk, err := a.pools.GetRiskMetrics(ctx, address)
	if err != nil {
		return failureResponse(message, convo, apperr.Wrap(err, apperr.CodeUpstreamFailure, "获取风险指标失败"))
	}

	tolerance := normalizeTolerance(convo.Extra("risk_tolerance", "moderate"))
	spread := toleranceRanges[tolerance]
	current := metrics.PriceRange.Current

	recommended := map[string]any{
		"price_range": map[string]any{
			"min": current * (1 - spread),
			"max": current * (1 + spread),
		},
		"position_size":       suggestPositionSize(risk.OverallRisk, tolerance),
		"rebalance_frequency": rebalanceFrequency(metrics.Volatility),
	}
	expected := map[string]any{
		"estimated_apr": metrics.APR,
		"estimated_il":  risk.ILRiskScore,
		"net_return":    metrics.APR * (1 - risk.ILRiskScore),
	}

	resp := chat.NewResponse(chat.TypeStrategyRecommendation, message, convo)
	resp.Data["recommended_strategy"] = recommended
	resp.Data["expected_returns"] = expected
	resp.Data["risk_tolerance"] = tolerance
	resp.Data["analysis_timestamp"] = time.Now().Format(time.RFC3339)
	resp.Response = strategySummary(tolerance, metrics.APR)
	return resp, nil
}

// extractPoolAddress 在消息里查找 0x 开头的 42 位地址。
func extractPoolAddress(lowered string) string {
	for _, word := range strings.Fields(lowered) {
		word = strings.Trim(word, ".,!?;:()[]\"'")
		if strings.HasPrefix(word, "0x") && len(word) == 42 {
			return word
		}
	}
	return ""
}

func isRiskQuery(lowered string) bool {
	return hasAnyCue(lowered, riskQueryKeywords)
}

func isStrategyQuery(lowered string) bool {
	return hasAnyCue(lowered, strategyQueryKeywords)
}

func normalizeTolerance(tolerance string) string {
	tolerance = strings.ToLower(strings.TrimSpace(tolerance))
	if _, ok := toleranceRanges[tolerance]; !ok {
		return "moderate"
	}
	return tolerance
}

// suggestPositionSize 按综合风险折减基准仓位，返回建议比例。
func suggestPositionSize(overallRisk float64, tolerance string) float64 {
	base := tolerancePositionBase[tolerance]
	size := base * (1 - overallRisk)
	if size < 0.01 {
		size = 0.01
	}
	return size
}

func rebalanceFrequency(volatility float64) string {
	switch {
	case volatility > 0.02:
		return "daily"
	case volatility > 0.01:
		return "weekly"
	default:
		return "monthly"
	}
}

func riskSummary(risk *market.RiskMetrics) string {
	level := "low"
	switch {
	case risk.OverallRisk > 0.66:
		level = "high"
	case risk.OverallRisk > 0.33:
		level = "medium"
	}
	var text strings.Builder
	text.WriteString("Pool risk assessment: overall risk is ")
	text.WriteString(level)
	text.WriteString(".")
	if len(risk.RiskFactors) > 0 {
		text.WriteString(" Watch out for:")
		for factor := range risk.RiskFactors {
			text.WriteString(" ")
			text.WriteString(strings.ReplaceAll(factor, "_", " "))
			text.WriteString(";")
		}
	}
	return text.String()
}

func analysisSummary(metrics *market.PoolMetrics, history *market.HistoricalMetrics) string {
	var text strings.Builder
	fmt.Fprintf(&text, "Pool analysis: TVL $%.0f, 24h volume $%.0f, current APR %.1f%%.", metrics.TVL, metrics.Volume24h, metrics.APR)
	fmt.Fprintf(&text, " Over the last 7 days the average APR was %.1f%% with volume trending %s.", history.AvgAPR7d, history.VolumeTrend.Direction)
	return text.String()
}

func strategySummary(tolerance string, apr float64) string {
	var text strings.Builder
	text.WriteString("Suggested ")
	text.WriteString(tolerance)
	text.WriteString(" LP strategy prepared")
	if apr > 0 {
		text.WriteString(" with an estimated APR before impermanent loss")
	}
	text.WriteString(". Review the recommended price range and position size before committing funds.")
	return text.String()
}
