package agent

import (
	"context"
	"fmt"
	"strings"

	"Sofia-Agent/internal/chat"
	apperr "Sofia-Agent/internal/errors"
	"Sofia-Agent/internal/imagegen"
)

// ImageAgent 为代币生成 Logo 等图片。
type ImageAgent struct {
	generator imagegen.Client
}

// NewImageAgent 构造图片智能体。
func NewImageAgent(generator imagegen.Client) *ImageAgent {
	return &ImageAgent{generator: generator}
}

// Process 生成图片；上下文携带部署参数时自动补充 Logo 相关提示词。
func (a *ImageAgent) Process(ctx context.Context, message string, convo *chat.Context) (*chat.Response, error) {
	if a.generator == nil {
		return failureResponse(message, convo, apperr.New(apperr.CodeInitializationFailure, "未配置图片生成客户端"))
	}

	prompt := buildImagePrompt(message, convo)

	image, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return failureResponse(message, convo, apperr.Wrap(err, apperr.CodeUpstreamFailure, "生成图片失败"))
	}

	resp := chat.NewResponse(chat.TypeImageReady, message, convo)
	resp.Data["image_data"] = map[string]any{
		"url":            image.URL,
		"revised_prompt": image.RevisedPrompt,
	}
	resp.Data["prompt"] = prompt
	resp.Response = "I've generated your image! Would you like to use this for a token?"
	return resp, nil
}

// buildImagePrompt 在代币创建的后续轮次里把代币信息拼进提示词。
func buildImagePrompt(message string, convo *chat.Context) string {
	base := strings.TrimSpace(message)

	deployment := convo.ExtraMap("deployment_params")
	if deployment == nil {
		return base
	}

	name, _ := deployment["name"].(string)
	symbol, _ := deployment["symbol"].(string)
	switch {
	case name != "" && symbol != "":
		return fmt.Sprintf("%s for a cryptocurrency token named %s (%s). Make it suitable as a token logo.", base, name, symbol)
	case name != "":
		return fmt.Sprintf("%s for a cryptocurrency token named %s. Make it suitable as a token logo.", base, name)
	default:
		return fmt.Sprintf("%s. Make it suitable as a token logo.", base)
	}
}
