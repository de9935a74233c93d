package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	apperr "Sofia-Agent/internal/errors"
	"Sofia-Agent/internal/web3"
)

// minHealthyTVL 是流动性风险评分使用的最低 TVL 基准（美元）。
const minHealthyTVL = 100000.0

// 风险因子的触发阈值。
const (
	volatilityWarnLevel = 0.02
	ilWarnLevel         = 0.05
)

// PriceRange 表示池子的价格区间。
type PriceRange struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Current float64 `json:"current"`
}

// PoolMetrics 汇总单个池子的链下与链上指标。
type PoolMetrics struct {
	TVL                   float64            `json:"tvl"`
	Volume24h             float64            `json:"volume_24h"`
	Fees24h               float64            `json:"fees_24h"`
	APR                   float64            `json:"apr"`
	Volatility            float64            `json:"volatility"`
	PriceRange            PriceRange         `json:"price_range"`
	LiquidityDistribution map[string]float64 `json:"liquidity_distribution"`
	IL7d                  float64            `json:"il_7d"`
	ActiveBinID           int64              `json:"active_bin_id"`
	BinStep               uint16             `json:"bin_step"`
}

// RiskMetrics 是由池子指标推导的风险评分，均为 0-1 区间。
type RiskMetrics struct {
	VolatilityScore float64        `json:"volatility_score"`
	LiquidityScore  float64        `json:"liquidity_score"`
	ILRiskScore     float64        `json:"il_risk_score"`
	OverallRisk     float64        `json:"overall_risk"`
	RiskFactors     map[string]any `json:"risk_factors"`
}

// PoolServiceConfig 描述池子指标服务的连接参数。
type PoolServiceConfig struct {
	SubgraphURL string
	Timeout     time.Duration
	CacheTTL    time.Duration
}

// PoolService 聚合子图数据和链上状态，产出池子指标与风险评分。
type PoolService struct {
	subgraphURL string
	httpClient  *http.Client
	chain       web3.Client
	cache       *ttlCache
}

// NewPoolService 构造池子指标服务；chain 为空时跳过链上部分。
func NewPoolService(cfg PoolServiceConfig, chain web3.Client) *PoolService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PoolService{
		subgraphURL: strings.TrimRight(cfg.SubgraphURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		chain:       chain,
		cache:       newTTLCache(ttl),
	}
}

type subgraphPool struct {
	TVLUSD       float64 `json:"tvlUSD"`
	Volume24h    float64 `json:"volume24h"`
	Fees24h      float64 `json:"fees24h"`
	PriceHistory []struct {
		Price float64 `json:"price"`
	} `json:"price_history"`
	PriceRange PriceRange `json:"price_range"`
}

// GetPoolMetrics 获取池子的全部指标，缓存有效期内复用。
func (s *PoolService) GetPoolMetrics(ctx context.Context, pairAddress string) (*PoolMetrics, error) {
	pairAddress = strings.TrimSpace(pairAddress)
	if pairAddress == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "池子地址不能为空")
	}

	cacheKey := "pool_metrics_" + strings.ToLower(pairAddress)
	if cached, ok := s.cache.get(cacheKey); ok {
		metrics := cached.(PoolMetrics)
		return &metrics, nil
	}

	data, err := s.fetchSubgraphPool(ctx, pairAddress)
	if err != nil {
		return nil, err
	}

	prices := make([]float64, 0, len(data.PriceHistory))
	for _, point := range data.PriceHistory {
		prices = append(prices, point.Price)
	}

	metrics := PoolMetrics{
		TVL:        data.TVLUSD,
		Volume24h:  data.Volume24h,
		Fees24h:    data.Fees24h,
		APR:        aprFromFees(data.Fees24h, data.TVLUSD),
		Volatility: logReturnVolatility(prices),
		PriceRange: data.PriceRange,
		IL7d:       impermanentLoss(prices),
	}

	if s.chain != nil {
		state, err := s.chain.FetchPoolState(ctx, common.HexToAddress(pairAddress))
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeUpstreamFailure, "获取链上池子状态失败")
		}
		metrics.ActiveBinID = state.ActiveBinID
		metrics.BinStep = state.BinStep
		metrics.LiquidityDistribution = liquidityDistribution(state.Bins)
	}

	s.cache.set(cacheKey, metrics)
	return &metrics, nil
}

// GetRiskMetrics 基于池子指标计算风险评分。
func (s *PoolService) GetRiskMetrics(ctx context.Context, pairAddress string) (*RiskMetrics, error) {
	metrics, err := s.GetPoolMetrics(ctx, pairAddress)
	if err != nil {
		return nil, err
	}

	volScore := volatilityScore(metrics.Volatility)
	liqScore := liquidityScore(metrics.TVL)
	ilScore := ilRiskScore(metrics.IL7d)

	return &RiskMetrics{
		VolatilityScore: volScore,
		LiquidityScore:  liqScore,
		ILRiskScore:     ilScore,
		OverallRisk:     (volScore + liqScore + ilScore) / 3,
		RiskFactors:     riskFactors(metrics),
	}, nil
}

// GetActiveBinID 读取池子当前活跃 bin。
func (s *PoolService) GetActiveBinID(ctx context.Context, pairAddress string) (int64, error) {
	if s.chain == nil {
		return 0, apperr.New(apperr.CodeInitializationFailure, "未配置区块链客户端")
	}
	state, err := s.chain.FetchPoolState(ctx, common.HexToAddress(pairAddress))
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeUpstreamFailure, "获取链上池子状态失败")
	}
	return state.ActiveBinID, nil
}

func (s *PoolService) fetchSubgraphPool(ctx context.Context, pairAddress string) (*subgraphPool, error) {
	if s.subgraphURL == "" {
		return nil, apperr.New(apperr.CodeInitializationFailure, "未配置池子数据接口地址")
	}

	endpoint := fmt.Sprintf("%s/pools/%s", s.subgraphURL, pairAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "构建池子数据请求失败")
	}
	req.Header.Set("accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUpstreamFailure, "请求池子数据接口失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUpstreamFailure, "读取池子数据响应失败")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.CodeUpstreamFailure, fmt.Sprintf("池子数据接口返回状态码 %d", resp.StatusCode))
	}

	var data subgraphPool
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUpstreamFailure, "解析池子数据响应失败")
	}
	return &data, nil
}

// aprFromFees 按日手续费年化后除以 TVL 得到百分比 APR。
func aprFromFees(fees24h, tvl float64) float64 {
	if tvl <= 0 {
		return 0
	}
	return fees24h * 365 / tvl * 100
}

// logReturnVolatility 计算对数收益率的标准差并按年化因子缩放。
func logReturnVolatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			return 0
		}
		returns = append(returns, math.Log(prices[i])-math.Log(prices[i-1]))
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance) * math.Sqrt(365)
}

// impermanentLoss 按首末价格比估算无常损失的绝对值。
func impermanentLoss(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	start := prices[0]
	end := prices[len(prices)-1]
	if start <= 0 || end <= 0 {
		return 0
	}
	ratio := end / start
	il := 2*math.Sqrt(ratio)/(1+ratio) - 1
	return math.Abs(il)
}

// liquidityDistribution 计算每个 bin 占总储备的比例。
func liquidityDistribution(bins []web3.BinReserves) map[string]float64 {
	if len(bins) == 0 {
		return nil
	}

	total := new(big.Float)
	shares := make(map[string]*big.Float, len(bins))
	for _, bin := range bins {
		liquidity := new(big.Float)
		if bin.ReserveX != nil {
			liquidity.Add(liquidity, new(big.Float).SetInt(bin.ReserveX))
		}
		if bin.ReserveY != nil {
			liquidity.Add(liquidity, new(big.Float).SetInt(bin.ReserveY))
		}
		shares[strconv.FormatInt(bin.ID, 10)] = liquidity
		total.Add(total, liquidity)
	}
	if total.Sign() == 0 {
		return nil
	}

	out := make(map[string]float64, len(shares))
	for id, share := range shares {
		ratio, _ := new(big.Float).Quo(share, total).Float64()
		out[id] = ratio
	}
	return out
}

func volatilityScore(volatility float64) float64 {
	return math.Min(volatility*10, 1.0)
}

func liquidityScore(tvl float64) float64 {
	if tvl <= 0 {
		return 1.0
	}
	return math.Min(minHealthyTVL/tvl, 1.0)
}

func ilRiskScore(il float64) float64 {
	return math.Min(il*20, 1.0)
}

func riskFactors(metrics *PoolMetrics) map[string]any {
	factors := make(map[string]any)
	if metrics.Volatility > volatilityWarnLevel {
		factors["high_volatility"] = map[string]any{"level": "high", "value": metrics.Volatility}
	}
	if metrics.TVL < minHealthyTVL {
		factors["low_liquidity"] = map[string]any{"level": "high", "value": metrics.TVL}
	}
	if metrics.IL7d > ilWarnLevel {
		factors["high_il_risk"] = map[string]any{"level": "high", "value": metrics.IL7d}
	}
	return factors
}
