package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperr "Sofia-Agent/internal/errors"
)

// Quote 表示某个币种的实时报价。
type Quote struct {
	CoinID    string   `json:"coin_id"`
	Symbol    string   `json:"symbol"`
	PriceUSD  float64  `json:"price_usd"`
	Change24h *float64 `json:"price_change_24h,omitempty"`
}

// PriceSource 抽象实时报价来源，便于在测试中替换。
type PriceSource interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}

// priorityCoinIDs 是符号冲突时优先选取的主流币种。
var priorityCoinIDs = map[string]struct{}{
	"bitcoin":     {},
	"ethereum":    {},
	"binancecoin": {},
	"ripple":      {},
	"cardano":     {},
	"solana":      {},
}

// CoinGeckoConfig 描述 CoinGecko 数据源的连接参数。
type CoinGeckoConfig struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// CoinGeckoSource 通过 CoinGecko 公共接口获取报价，带本地缓存。
type CoinGeckoSource struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      *ttlCache
}

// NewCoinGeckoSource 构造 CoinGecko 数据源。
func NewCoinGeckoSource(cfg CoinGeckoConfig) *CoinGeckoSource {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CoinGeckoSource{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      newTTLCache(ttl),
	}
}

type listedCoin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// GetQuote 按符号或名称查询实时价格，结果在缓存有效期内复用。
func (s *CoinGeckoSource) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	term := strings.ToLower(strings.TrimSpace(symbol))
	if term == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "币种符号不能为空")
	}

	cacheKey := "quote_" + term
	if cached, ok := s.cache.get(cacheKey); ok {
		quote := cached.(Quote)
		return &quote, nil
	}

	coinID, err := s.resolveCoinID(ctx, term)
	if err != nil {
		return nil, err
	}
	if coinID == "" {
		return nil, apperr.New(apperr.CodeNotFound, fmt.Sprintf("找不到币种 %s 的价格", symbol))
	}

	query := url.Values{}
	query.Set("ids", coinID)
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")

	var payload map[string]struct {
		USD       float64  `json:"usd"`
		Change24h *float64 `json:"usd_24h_change"`
	}
	if err := s.getJSON(ctx, "/simple/price", query, &payload); err != nil {
		return nil, err
	}
	entry, ok := payload[coinID]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, fmt.Sprintf("找不到币种 %s 的价格", symbol))
	}

	quote := Quote{
		CoinID:    coinID,
		Symbol:    term,
		PriceUSD:  entry.USD,
		Change24h: entry.Change24h,
	}
	s.cache.set(cacheKey, quote)
	return &quote, nil
}

// resolveCoinID 先在市值前 250 的币种中查找，再回退到完整列表。
func (s *CoinGeckoSource) resolveCoinID(ctx context.Context, term string) (string, error) {
	cacheKey := "coin_id_" + term
	if cached, ok := s.cache.get(cacheKey); ok {
		return cached.(string), nil
	}

	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("order", "market_cap_desc")
	query.Set("per_page", "250")
	query.Set("page", "1")
	query.Set("sparkline", "false")

	var topCoins []listedCoin
	if err := s.getJSON(ctx, "/coins/markets", query, &topCoins); err == nil {
		for _, coin := range topCoins {
			if strings.ToLower(coin.Symbol) == term ||
				strings.ToLower(coin.ID) == term ||
				strings.ToLower(coin.Name) == term {
				s.cache.set(cacheKey, coin.ID)
				return coin.ID, nil
			}
		}
		for _, coin := range topCoins {
			if strings.Contains(strings.ToLower(coin.Symbol), term) ||
				strings.Contains(strings.ToLower(coin.ID), term) ||
				strings.Contains(strings.ToLower(coin.Name), term) {
				s.cache.set(cacheKey, coin.ID)
				return coin.ID, nil
			}
		}
	}

	var coins []listedCoin
	if err := s.getJSON(ctx, "/coins/list", nil, &coins); err != nil {
		return "", err
	}

	// 同一符号可能对应多个币种，优先选择主流币。
	for _, coin := range coins {
		if strings.ToLower(coin.Symbol) == term {
			if _, ok := priorityCoinIDs[coin.ID]; ok {
				s.cache.set(cacheKey, coin.ID)
				return coin.ID, nil
			}
		}
	}
	for _, coin := range coins {
		if strings.ToLower(coin.Symbol) == term {
			s.cache.set(cacheKey, coin.ID)
			return coin.ID, nil
		}
	}
	for _, coin := range coins {
		if strings.Contains(strings.ToLower(coin.ID), term) ||
			strings.Contains(strings.ToLower(coin.Symbol), term) ||
			strings.Contains(strings.ToLower(coin.Name), term) {
			s.cache.set(cacheKey, coin.ID)
			return coin.ID, nil
		}
	}
	return "", nil
}

func (s *CoinGeckoSource) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "构建行情请求失败")
	}
	req.Header.Set("accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeUpstreamFailure, "请求行情接口失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeUpstreamFailure, "读取行情响应失败")
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.CodeUpstreamFailure, fmt.Sprintf("行情接口返回状态码 %d", resp.StatusCode))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(err, apperr.CodeUpstreamFailure, "解析行情响应失败")
	}
	return nil
}
