package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "dall-e-3"
	defaultTimeout = 120 * time.Second
)

// DallEConfig 描述调用 OpenAI 图片生成接口所需的信息。
type DallEConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DallEClient 通过 OpenAI Images API 生成代币 Logo 等图片。
type DallEClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewDallEClient 根据配置创建图片生成客户端。
func NewDallEClient(cfg DallEConfig) (*DallEClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &DallEClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Generate 按固定的 1024x1024 标准质量生成一张图片。
func (c *DallEClient) Generate(ctx context.Context, prompt string) (*Image, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("图片提示词不能为空")
	}

	payload, err := json.Marshal(map[string]any{
		"model":   c.model,
		"prompt":  prompt,
		"size":    "1024x1024",
		"quality": "standard",
		"n":       1,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化图片请求失败: %w", err)
	}

	endpoint := c.baseURL + "/images/generations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建图片请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求图片接口失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("图片接口返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Data []struct {
			URL           string `json:"url"`
			RevisedPrompt string `json:"revised_prompt"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析图片响应失败: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, errors.New("图片响应中没有有效数据")
	}

	return &Image{
		URL:           decoded.Data[0].URL,
		RevisedPrompt: decoded.Data[0].RevisedPrompt,
	}, nil
}
