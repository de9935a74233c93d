package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperr "Sofia-Agent/internal/errors"
)

// DollarRate 表示阿根廷单一汇率档位的买卖报价。
type DollarRate struct {
	Moneda    string  `json:"moneda"`
	Casa      string  `json:"casa"`
	Nombre    string  `json:"nombre"`
	Compra    float64 `json:"compra"`
	Venta     float64 `json:"venta"`
	UpdatedAt string  `json:"fechaActualizacion"`
}

// DollarSource 抽象美元汇率来源。
type DollarSource interface {
	GetRates(ctx context.Context) ([]DollarRate, error)
}

// DolarAPIConfig 描述 dolarapi.com 数据源的连接参数。
type DolarAPIConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// DolarAPISource 从 dolarapi.com 获取阿根廷美元汇率。
type DolarAPISource struct {
	baseURL    string
	httpClient *http.Client
	cache      *ttlCache
}

// NewDolarAPISource 构造 dolarapi 数据源。
func NewDolarAPISource(cfg DolarAPIConfig) *DolarAPISource {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dolarapi.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &DolarAPISource{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      newTTLCache(ttl),
	}
}

// GetRates 返回全部汇率档位，缓存有效期内不重复请求。
func (s *DolarAPISource) GetRates(ctx context.Context) ([]DollarRate, error) {
	if cached, ok := s.cache.get("dollar_rates"); ok {
		return cached.([]DollarRate), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/dolares", nil)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "构建汇率请求失败")
	}
	req.Header.Set("accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUpstreamFailure, "请求汇率接口失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUpstreamFailure, "读取汇率响应失败")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.CodeUpstreamFailure, fmt.Sprintf("汇率接口返回状态码 %d", resp.StatusCode))
	}

	var rates []DollarRate
	if err := json.Unmarshal(body, &rates); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUpstreamFailure, "解析汇率响应失败")
	}

	s.cache.set("dollar_rates", rates)
	return rates, nil
}
