package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewDallEClientValidation(t *testing.T) {
	if _, err := NewDallEClient(DallEConfig{}); err == nil {
		t.Fatalf("缺少 API Key 时应当报错")
	}
}

func TestGenerate(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Fatalf("请求路径不匹配: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("鉴权头不匹配: %s", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.Write([]byte(`{"data":[{"url":"https://img.example/logo.png","revised_prompt":"a shiny token logo"}]}`))
	}))
	defer srv.Close()

	client, err := NewDallEClient(DallEConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}

	image, err := client.Generate(context.Background(), "a golden coin")
	if err != nil {
		t.Fatalf("生成图片失败: %v", err)
	}
	if image.URL != "https://img.example/logo.png" {
		t.Fatalf("图片地址不匹配: %s", image.URL)
	}
	if image.RevisedPrompt != "a shiny token logo" {
		t.Fatalf("修订提示词不匹配: %s", image.RevisedPrompt)
	}

	if captured["model"] != "dall-e-3" {
		t.Fatalf("模型不匹配: %v", captured["model"])
	}
	if captured["size"] != "1024x1024" || captured["quality"] != "standard" {
		t.Fatalf("图片参数不匹配: %v", captured)
	}
	if captured["n"].(float64) != 1 {
		t.Fatalf("生成数量不匹配: %v", captured["n"])
	}
}

func TestGenerateEmptyPrompt(t *testing.T) {
	client, err := NewDallEClient(DallEConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}
	if _, err := client.Generate(context.Background(), "   "); err == nil {
		t.Fatalf("空提示词应当报错")
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	client, err := NewDallEClient(DallEConfig{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}
	if _, err := client.Generate(context.Background(), "a coin"); err == nil {
		t.Fatalf("上游错误应当返回错误")
	}
}
