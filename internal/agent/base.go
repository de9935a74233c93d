package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"Sofia-Agent/internal/chat"
	apperr "Sofia-Agent/internal/errors"
	"Sofia-Agent/internal/llm"
	"Sofia-Agent/internal/market"
)

// dollarKeywords 命中任意一个即认为是阿根廷美元汇率查询。
var dollarKeywords = []string{
	"dolar", "dolares", "dólar", "dólares", "blue",
	"oficial", "tarjeta", "cripto", "mayorista",
	"cuanto esta", "cuánto está", "cotización", "cotizacion",
	"precio del dolar", "precio dolar",
}

// cryptoAliases 把常见写法（含西里尔字母转写）归一到主符号。
var cryptoAliases = map[string][]string{
	"btc":  {"btc", "bitcoin", "btcs", "xbt", "bitcoins", "бтк"},
	"eth":  {"eth", "ethereum", "ether", "ethereums", "етх"},
	"sol":  {"sol", "solana", "sols", "солана"},
	"usdt": {"usdt", "tether", "тезер"},
	"bnb":  {"bnb", "binance", "binancecoin"},
	"ada":  {"ada", "cardano", "кардано"},
	"xrp":  {"xrp", "ripple", "рипл"},
	"doge": {"doge", "dogecoin", "догекоин"},
}

// conversionCues 出现任意一个才把带数字的币种消息当作换算请求。
var conversionCues = []string{"convert", "to usd", "in usd", "worth", "convertir"}

// fromUSDCues 表示换算方向为美元换币。
var fromUSDCues = []string{"from usd", "usd to", "dollars to", "usd in"}

// GeneralAgent 处理价格、换算、美元汇率以及兜底的闲聊类请求。
type GeneralAgent struct {
	llm     llm.Client
	prices  market.PriceSource
	dollars market.DollarSource
}

// NewGeneralAgent 构造通用智能体。
func NewGeneralAgent(llmClient llm.Client, prices market.PriceSource, dollars market.DollarSource) *GeneralAgent {
	return &GeneralAgent{llm: llmClient, prices: prices, dollars: dollars}
}

// Process 依次尝试美元汇率、价格/换算和自由问答三条路径。
func (a *GeneralAgent) Process(ctx context.Context, message string, convo *chat.Context) (*chat.Response, error) {
	lowered := strings.ToLower(message)

	if a.dollars != nil && isDollarQuery(lowered) {
		rates, err := a.dollars.GetRates(ctx)
		if err == nil {
			return a.dollarRates(message, convo, rates), nil
		}
		// 汇率源不可用时退回自由问答，由模型继续作答。
	}

	symbol := findCryptoSymbol(lowered)
	numbers := findNumbers(message)

	if symbol != "" && a.prices != nil {
		quote, err := a.prices.GetQuote(ctx, symbol)
		if err == nil {
			if len(numbers) > 0 && hasConversionCue(lowered) {
				return a.conversion(message, convo, symbol, numbers[0], quote, lowered)
			}
			return a.priceQuery(message, convo, symbol, quote)
		}
		// 报价失败时退回自由问答，由模型解释原因。
	}

	return a.generalAnswer(ctx, message, convo)
}

func (a *GeneralAgent) dollarRates(message string, convo *chat.Context, rates []market.DollarRate) *chat.Response {
	resp := chat.NewResponse(chat.TypeDollarRates, message, convo)
	resp.Data["rates"] = rates
	resp.Data["timestamp"] = float64(time.Now().Unix())

	var text strings.Builder
	text.WriteString("Cotizaciones del dólar:\n")
	for _, rate := range rates {
		fmt.Fprintf(&text, "\n%s:\nCompra: $%g\nVenta: $%g\n", rate.Nombre, rate.Compra, rate.Venta)
	}
	resp.Response = text.String()
	return resp
}

func (a *GeneralAgent) priceQuery(message string, convo *chat.Context, symbol string, quote *market.Quote) (*chat.Response, error) {
	resp := chat.NewResponse(chat.TypePriceQuery, message, convo)
	resp.Data["price_usd"] = quote.PriceUSD
	resp.Data["symbol"] = symbol
	resp.Data["coin_id"] = quote.CoinID
	resp.Data["timestamp"] = float64(time.Now().Unix())
	if quote.Change24h != nil {
		resp.Data["price_change_24h"] = *quote.Change24h
	}

	if quote.Change24h != nil {
		resp.Response = fmt.Sprintf("%s: $%.2f USD (%+.2f%% 24h)", strings.ToUpper(symbol), quote.PriceUSD, *quote.Change24h)
	} else {
		resp.Response = fmt.Sprintf("%s: $%.2f USD", strings.ToUpper(symbol), quote.PriceUSD)
	}
	return resp, nil
}

func (a *GeneralAgent) conversion(message string, convo *chat.Context, symbol string, amount float64, quote *market.Quote, lowered string) (*chat.Response, error) {
	fromUSD := hasAnyCue(lowered, fromUSDCues)

	var (
		output         float64
		inputCurrency  string
		outputCurrency string
	)
	if fromUSD {
		if quote.PriceUSD == 0 {
			return failureResponse(message, convo, apperr.New(apperr.CodeUpstreamFailure, fmt.Sprintf("币种 %s 的价格为零，无法换算", symbol)))
		}
		output = amount / quote.PriceUSD
		inputCurrency = "USD"
		outputCurrency = symbol
	} else {
		output = amount * quote.PriceUSD
		inputCurrency = symbol
		outputCurrency = "USD"
	}

	resp := chat.NewResponse(chat.TypeConversionQuery, message, convo)
	resp.Data["input_amount"] = amount
	resp.Data["input_currency"] = inputCurrency
	resp.Data["output_amount"] = output
	resp.Data["output_currency"] = outputCurrency
	resp.Data["rate"] = quote.PriceUSD
	resp.Data["timestamp"] = float64(time.Now().Unix())
	resp.Response = fmt.Sprintf("%g %s = %g %s (rate: $%g)", amount, strings.ToUpper(inputCurrency), output, strings.ToUpper(outputCurrency), quote.PriceUSD)
	return resp, nil
}

func (a *GeneralAgent) generalAnswer(ctx context.Context, message string, convo *chat.Context) (*chat.Response, error) {
	if a.llm == nil {
		return failureResponse(message, convo, apperr.New(apperr.CodeInitializationFailure, "未配置大模型客户端"))
	}

	req := llm.Request{
		System:   "You are Sofia, a helpful assistant that answers cryptocurrency questions in the user's language.",
		Messages: buildHistoryMessages(convo, message),
	}
	result, err := a.llm.Complete(ctx, req)
	if err != nil {
		return failureResponse(message, convo, apperr.Wrap(err, apperr.CodeUpstreamFailure, "调用大模型失败"))
	}

	resp := chat.NewResponse(chat.TypeGeneral, message, convo)
	resp.Response = result.Content
	return resp, nil
}

// buildHistoryMessages 把会话历史按时间顺序转成模型消息，末尾追加当前消息。
func buildHistoryMessages(convo *chat.Context, message string) []llm.Message {
	var messages []llm.Message
	if convo != nil {
		for _, turn := range convo.History {
			role := turn.Role
			if role != "user" && role != "assistant" {
				role = "user"
			}
			messages = append(messages, llm.Message{Role: role, Content: turn.Content})
		}
	}
	return append(messages, llm.Message{Role: "user", Content: message})
}

func isDollarQuery(lowered string) bool {
	return hasAnyCue(lowered, dollarKeywords)
}

func hasConversionCue(lowered string) bool {
	return hasAnyCue(lowered, conversionCues) || hasAnyCue(lowered, fromUSDCues)
}

func hasAnyCue(lowered string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(lowered, cue) {
			return true
		}
	}
	return false
}

// findCryptoSymbol 在消息分词后查找第一个可识别的币种别名。
func findCryptoSymbol(lowered string) string {
	for _, word := range strings.Fields(lowered) {
		word = strings.Trim(word, ".,!?;:()[]¿¡\"'")
		for symbol, aliases := range cryptoAliases {
			for _, alias := range aliases {
				if word == alias {
					return symbol
				}
			}
		}
	}
	return ""
}

// findNumbers 提取消息中的数字，兼容小数点和逗号两种小数写法。
func findNumbers(message string) []float64 {
	var numbers []float64
	for _, word := range strings.Fields(message) {
		word = strings.Trim(word, ".,!?;:()[]¿¡\"'$")
		if word == "" {
			continue
		}
		if n, err := parseNumber(word); err == nil {
			numbers = append(numbers, n)
		}
	}
	return numbers
}

func parseNumber(word string) (float64, error) {
	// 同时出现点和逗号时把逗号当千位分隔符，只有逗号时当小数点。
	if strings.Contains(word, ".") {
		word = strings.ReplaceAll(word, ",", "")
	} else if strings.Count(word, ",") == 1 {
		word = strings.Replace(word, ",", ".", 1)
	} else {
		word = strings.ReplaceAll(word, ",", "")
	}
	return strconv.ParseFloat(word, 64)
}
