package imagegen

import "context"

// Image 表示一次生成的图片结果。
type Image struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt"`
}

// Client 抽象图片生成服务，便于在测试中替换。
type Client interface {
	// Generate 根据提示词生成一张图片。
	Generate(ctx context.Context, prompt string) (*Image, error)
}
