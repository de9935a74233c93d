package agent

import (
	"context"
	"fmt"
	"testing"

	"Sofia-Agent/internal/chat"
	"Sofia-Agent/internal/llm"
	"Sofia-Agent/internal/market"
)

type stubPrices struct {
	quote *market.Quote
	err   error
	last  string
}

func (s *stubPrices) GetQuote(_ context.Context, symbol string) (*market.Quote, error) {
	s.last = symbol
	return s.quote, s.err
}

type stubDollars struct {
	rates []market.DollarRate
	err   error
}

func (s *stubDollars) GetRates(context.Context) ([]market.DollarRate, error) {
	return s.rates, s.err
}

type stubLLM struct {
	results []*llm.Result
	err     error
	calls   int
	lastReq llm.Request
}

func (s *stubLLM) Complete(_ context.Context, req llm.Request) (*llm.Result, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) == 0 {
		return &llm.Result{Content: "ok"}, nil
	}
	result := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return result, nil
}

func TestProcessDollarRates(t *testing.T) {
	dollars := &stubDollars{rates: []market.DollarRate{
		{Nombre: "Oficial", Compra: 980.5, Venta: 1020.5},
		{Nombre: "Blue", Compra: 1200, Venta: 1250},
	}}
	agent := NewGeneralAgent(nil, nil, dollars)

	resp, err := agent.Process(context.Background(), "¿A cuánto está el dolar blue?", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Type != chat.TypeDollarRates {
		t.Fatalf("响应类型不匹配: %s", resp.Type)
	}
	if _, ok := resp.Data["rates"]; !ok {
		t.Fatalf("缺少汇率数据: %v", resp.Data)
	}
	if resp.Response == "" || resp.Metadata.Query != "¿A cuánto está el dolar blue?" {
		t.Fatalf("响应文本或元数据不完整: %+v", resp)
	}
}

func TestProcessPriceQuery(t *testing.T) {
	change := 1.5
	prices := &stubPrices{quote: &market.Quote{CoinID: "bitcoin", PriceUSD: 60000, Change24h: &change}}
	agent := NewGeneralAgent(nil, prices, nil)

	// 带数字但没有换算提示词的消息仍按价格查询处理。
	resp, err := agent.Process(context.Background(), "How much is 0.5 BTC?", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Type != chat.TypePriceQuery {
		t.Fatalf("响应类型不匹配: %s", resp.Type)
	}
	if resp.Data["price_usd"].(float64) != 60000 {
		t.Fatalf("价格不匹配: %v", resp.Data["price_usd"])
	}
	if resp.Data["symbol"] != "btc" || resp.Data["coin_id"] != "bitcoin" {
		t.Fatalf("币种字段不匹配: %v", resp.Data)
	}
	if prices.last != "btc" {
		t.Fatalf("查询符号不匹配: %s", prices.last)
	}
}

func TestProcessConversionToUSD(t *testing.T) {
	prices := &stubPrices{quote: &market.Quote{CoinID: "ethereum", PriceUSD: 3000}}
	agent := NewGeneralAgent(nil, prices, nil)

	resp, err := agent.Process(context.Background(), "Convert 2 ETH to USD", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Type != chat.TypeConversionQuery {
		t.Fatalf("响应类型不匹配: %s", resp.Type)
	}
	if resp.Data["output_amount"].(float64) != 6000 {
		t.Fatalf("换算结果不匹配: %v", resp.Data["output_amount"])
	}
	if resp.Data["input_currency"] != "eth" || resp.Data["output_currency"] != "USD" {
		t.Fatalf("币种方向不匹配: %v", resp.Data)
	}
	if resp.Data["rate"].(float64) != 3000 {
		t.Fatalf("汇率不匹配: %v", resp.Data["rate"])
	}
}

func TestProcessConversionFromUSD(t *testing.T) {
	prices := &stubPrices{quote: &market.Quote{CoinID: "ethereum", PriceUSD: 3000}}
	agent := NewGeneralAgent(nil, prices, nil)

	resp, err := agent.Process(context.Background(), "Convert 3000 USD to ETH please", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Type != chat.TypeConversionQuery {
		t.Fatalf("响应类型不匹配: %s", resp.Type)
	}
	if resp.Data["output_amount"].(float64) != 1 {
		t.Fatalf("换算结果不匹配: %v", resp.Data["output_amount"])
	}
	if resp.Data["input_currency"] != "USD" || resp.Data["output_currency"] != "eth" {
		t.Fatalf("币种方向不匹配: %v", resp.Data)
	}
}

func TestProcessConversionZeroPrice(t *testing.T) {
	prices := &stubPrices{quote: &market.Quote{CoinID: "ethereum", PriceUSD: 0}}
	agent := NewGeneralAgent(nil, prices, nil)

	resp, err := agent.Process(context.Background(), "Convert 10 USD to ETH", nil)
	if err != nil {
		t.Fatalf("价格为零应降级为错误响应而不是 error: %v", err)
	}
	if resp.Type != chat.TypeError || resp.Error == "" {
		t.Fatalf("应返回错误形态的响应: %+v", resp)
	}
}

func TestProcessDollarRatesFailureFallsBackToLLM(t *testing.T) {
	dollars := &stubDollars{err: fmt.Errorf("dolarapi unreachable")}
	client := &stubLLM{results: []*llm.Result{{Content: "No pude consultar las cotizaciones ahora mismo."}}}
	agent := NewGeneralAgent(client, nil, dollars)

	// 汇率源失败时退回自由问答，不产生错误响应。
	resp, err := agent.Process(context.Background(), "¿Cuánto está el dolar blue?", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Type != chat.TypeGeneral {
		t.Fatalf("响应类型不匹配: %s", resp.Type)
	}
	if resp.Response != "No pude consultar las cotizaciones ahora mismo." {
		t.Fatalf("应使用模型回答: %s", resp.Response)
	}
	if client.calls != 1 {
		t.Fatalf("应调用大模型一次: %d", client.calls)
	}
}

func TestProcessDollarRatesFailureWithoutLLM(t *testing.T) {
	dollars := &stubDollars{err: fmt.Errorf("dolarapi unreachable")}
	agent := NewGeneralAgent(nil, nil, dollars)

	resp, err := agent.Process(context.Background(), "¿Cuánto está el dolar blue?", nil)
	if err != nil {
		t.Fatalf("应降级为错误响应而不是 error: %v", err)
	}
	if resp.Type != chat.TypeError || resp.Error == "" {
		t.Fatalf("应返回错误形态的响应: %+v", resp)
	}
}

func TestProcessGeneralFallback(t *testing.T) {
	client := &stubLLM{results: []*llm.Result{{Content: "LPs earn trading fees."}}}
	agent := NewGeneralAgent(client, nil, nil)

	convo := &chat.Context{History: []chat.Turn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}}
	resp, err := agent.Process(context.Background(), "What is liquidity providing?", convo)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Type != chat.TypeGeneral {
		t.Fatalf("响应类型不匹配: %s", resp.Type)
	}
	if resp.Response != "LPs earn trading fees." {
		t.Fatalf("响应文本不匹配: %s", resp.Response)
	}

	// 历史按时间顺序传给模型，末尾是当前消息。
	msgs := client.lastReq.Messages
	if len(msgs) != 3 {
		t.Fatalf("模型消息数量不匹配: %d", len(msgs))
	}
	if msgs[0].Content != "hi" || msgs[1].Content != "hello" || msgs[2].Content != "What is liquidity providing?" {
		t.Fatalf("模型消息顺序不匹配: %+v", msgs)
	}
}

func TestProcessPriceErrorFallsBackToLLM(t *testing.T) {
	prices := &stubPrices{err: fmt.Errorf("上游不可用")}
	client := &stubLLM{results: []*llm.Result{{Content: "I could not fetch the price right now."}}}
	agent := NewGeneralAgent(client, prices, nil)

	resp, err := agent.Process(context.Background(), "price of btc", nil)
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if resp.Type != chat.TypeGeneral || client.calls != 1 {
		t.Fatalf("报价失败时应退回自由问答: %s, llm 调用 %d 次", resp.Type, client.calls)
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"2", 2},
		{"0.5", 0.5},
		{"1,5", 1.5},
		{"1,000.5", 1000.5},
		{"1,000,000", 1000000},
	}
	for _, tc := range cases {
		got, err := parseNumber(tc.in)
		if err != nil {
			t.Fatalf("解析 %q 失败: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("解析 %q 结果不匹配: %v != %v", tc.in, got, tc.want)
		}
	}
	if _, err := parseNumber("btc"); err == nil {
		t.Fatalf("非数字应当报错")
	}
}

func TestFindCryptoSymbolTransliteration(t *testing.T) {
	if got := findCryptoSymbol("сколько стоит бтк?"); got != "btc" {
		t.Fatalf("转写识别失败: %s", got)
	}
	if got := findCryptoSymbol("precio de solana hoy"); got != "sol" {
		t.Fatalf("别名识别失败: %s", got)
	}
	if got := findCryptoSymbol("hello world"); got != "" {
		t.Fatalf("不应识别出币种: %s", got)
	}
}
