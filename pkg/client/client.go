// Package client implements recognition and translation requests on top of
// a generation Backend.
package client

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/menta2k/image-labeler/pkg/errs"
	"github.com/menta2k/image-labeler/pkg/types"
)

// DefaultTimeout bounds a single model call when the caller's context has no deadline
const DefaultTimeout = 5 * time.Minute

// RecognizePrompt asks the vision model for an exhaustive Chinese tag list.
const RecognizePrompt = `你必须完整描述这张图片的所有重要特征。要求：
1. 详细观察图片的所有细节：主要对象、颜色、场景、风格、背景、构图等
2. 用中文简洁描述，格式为逗号分隔的标签
3. 必须包括所有重要的视觉元素，不能遗漏
4. 只输出标签，不要其他说明文字

示例格式："中国剪纸, 无人物, 红色主题, 白色背景"

现在开始描述图片，必须完整描述：`

// TranslatePrompt asks the text model for a complete English translation.
// The source text is appended after the final line.
const TranslatePrompt = `你必须完整翻译以下所有中文标签为英文。要求：
1. 翻译所有标签，不能遗漏任何内容
2. 输出格式：用逗号分隔的简洁英文标签
3. 只输出翻译结果，不要任何说明、解释或其他文字
4. 必须完整输出，不能中途停止

示例格式："china cut paper, no humans, red theme, white background"

现在开始翻译，必须翻译完整：
`

var thinkBlock = regexp.MustCompile(`(?s)^\s*<think>.*?</think>`)

// Config selects models and sampling for both operations
type Config struct {
	VisionModel string
	TextModel   string
	Sampling    types.Sampling
	Timeout     time.Duration
}

// DefaultConfig returns the models and sampling used by the original deployment
func DefaultConfig() Config {
	return Config{
		VisionModel: "qwen2.5vl:7b",
		TextModel:   "deepseek-r1:8b",
		Sampling: types.Sampling{
			Temperature: 0.3,
			TopP:        0.9,
			MaxTokens:   500,
		},
		Timeout: DefaultTimeout,
	}
}

// Client implements ModelClient over a Backend
type Client struct {
	backend Backend
	config  Config
}

// New creates a client; a zero Timeout falls back to DefaultTimeout
func New(backend Backend, config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Client{backend: backend, config: config}
}

// Recognize returns the vision model's raw description of image.
func (c *Client) Recognize(ctx context.Context, image []byte) (string, error) {
	return c.generate(ctx, "recognize", types.GenerateRequest{
		Model:    c.config.VisionModel,
		Prompt:   RecognizePrompt,
		Images:   [][]byte{image},
		Sampling: c.config.Sampling,
	})
}

// Translate returns the text model's raw translation of text, with any
// leading reasoning block removed.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	out, err := c.generate(ctx, "translate", types.GenerateRequest{
		Model:    c.config.TextModel,
		Prompt:   TranslatePrompt + text,
		Sampling: c.config.Sampling,
	})
	if err != nil {
		return "", err
	}
	return thinkBlock.ReplaceAllString(out, ""), nil
}

func (c *Client) generate(ctx context.Context, op string, req types.GenerateRequest) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	out, err := c.backend.Generate(ctx, req)
	if err != nil {
		var me *errs.ModelError
		if errors.As(err, &me) {
			return "", &errs.ModelError{Op: op, Body: me.Body, Err: me.Err}
		}
		return "", &errs.ModelError{Op: op, Err: err}
	}
	return out, nil
}
