package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"radio-station/config"
	"radio-station/internal/apperr"
)

// Client 是OpenAI兼容接口的客户端
type Client struct {
	client *openai.Client
	config *config.OpenAIConfig
}

// NewClient 创建一个新的AI客户端
func NewClient(cfg *config.OpenAIConfig) *Client {
	if cfg.APIKey == "" {
		log.Println("警告: 未设置OPENAI_API_KEY环境变量")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL

	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

// Complete 发送一次聊天补全请求, 不在这里重试
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	model := c.config.Model
	if req.Thinking && c.config.ThinkingModel != "" {
		model = c.config.ThinkingModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.System,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.User,
			},
		},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	log.Printf("生成AI内容 %s，模型: %s", req.Name, model)

	timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(timeoutCtx, chatReq)
	if err != nil {
		return "", ClassifyOpenAIError(err, "生成AI内容失败")
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", apperr.New(apperr.KindTransient, "AI响应中没有内容")
	}

	log.Printf("AI内容生成成功 %s，使用tokens: %d", req.Name, resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// StatusCode 取出OpenAI错误中的HTTP状态码, 没有时返回0
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// ClassifyOpenAIError 限流/5xx/网络错误为临时错误, 其他4xx为内部错误
func ClassifyOpenAIError(err error, msg string) error {
	code := StatusCode(err)
	switch {
	case code == 0, code == http.StatusTooManyRequests, code >= 500:
		return apperr.Wrap(err, apperr.KindTransient, msg).WithMetadata("status", fmt.Sprint(code))
	default:
		return apperr.Wrap(err, apperr.KindInternal, msg).WithMetadata("status", fmt.Sprint(code))
	}
}
