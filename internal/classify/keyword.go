package classify

import (
	"context"
	"strings"
	"unicode"

	"Sofia-Agent/internal/chat"
)

// defaultGeneralConfidence 是兜底到 general 意图时的固定置信度。
const defaultGeneralConfidence = 0.3

// tradingPhrases 中的短语一旦在消息中完整出现，直接以 1.0 的置信度
// 路由到 trading 智能体。
var tradingPhrases = []string{
	"add liquidity",
	"provide liquidity",
	"remove liquidity",
	"withdraw liquidity",
	"exit position",
}

// intentKeywords 为每个意图维护互不相交的关键词集合。
var intentKeywords = map[chat.Intent]map[string]struct{}{
	chat.IntentRisk: wordSet(
		"risk", "risky", "safe", "danger", "safety", "volatile",
		"volatility", "impermanent", "apr", "analyze", "analysis",
	),
	chat.IntentTrading: wordSet(
		"liquidity", "pool", "pools", "lp", "swap", "deposit",
		"withdraw", "stake", "farm", "yield",
	),
	chat.IntentDeployment: wordSet(
		"deploy", "deployment", "launch", "contract", "erc20",
		"tokenomics", "supply",
	),
	chat.IntentImage: wordSet(
		"image", "logo", "artwork", "picture", "icon", "draw",
	),
}

// KeywordClassifier 基于关键词重合度的确定性分类策略。
// 无任何网络依赖，单次调用复杂度与消息词数成线性关系。
type KeywordClassifier struct{}

// NewKeywordClassifier 创建关键词分类器。
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify 对消息做分词并计算每个意图的关键词命中率。
// 完整交易短语直接短路；全零或并列时兜底到 general。
func (k *KeywordClassifier) Classify(_ context.Context, message string, _ *chat.Context) (chat.RoutingDecision, error) {
	lowered := strings.ToLower(message)

	for _, phrase := range tradingPhrases {
		if strings.Contains(lowered, phrase) {
			return chat.RoutingDecision{
				Agent:      chat.IntentTrading,
				Confidence: 1.0,
				Reasoning:  "matched trading phrase: " + phrase,
			}, nil
		}
	}

	words := tokenize(lowered)
	if len(words) == 0 {
		return chat.RoutingDecision{
			Agent:      chat.IntentGeneral,
			Confidence: defaultGeneralConfidence,
			Reasoning:  "empty message after tokenization",
		}, nil
	}

	best := chat.IntentGeneral
	bestScore := 0.0
	tie := false
	for intent, keywords := range intentKeywords {
		hits := 0
		for word := range words {
			if _, ok := keywords[word]; ok {
				hits++
			}
		}
		score := float64(hits) / float64(len(words))
		switch {
		case score > bestScore:
			best, bestScore, tie = intent, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}

	if bestScore == 0 || tie {
		return chat.RoutingDecision{
			Agent:      chat.IntentGeneral,
			Confidence: defaultGeneralConfidence,
			Reasoning:  "no dominant keyword overlap",
		}, nil
	}

	return chat.RoutingDecision{
		Agent:      best,
		Confidence: bestScore,
		Reasoning:  "keyword overlap",
	}, nil
}

// tokenize 把小写消息拆成去除标点后的词集合。
func tokenize(lowered string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, field := range strings.Fields(lowered) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if word != "" {
			words[word] = struct{}{}
		}
	}
	return words
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}
