package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"radio-station/config"
	"radio-station/internal/apperr"
)

// GeminiClient Gemini客户端
type GeminiClient struct {
	client *genai.Client
	config *config.GeminiConfig
}

// NewGeminiClient 创建Gemini客户端
func NewGeminiClient(ctx context.Context, cfg *config.GeminiConfig) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("创建Gemini客户端失败: %w", err)
	}
	return &GeminiClient{client: client, config: cfg}, nil
}

// Close 关闭客户端
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// Complete 生成内容
func (g *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	name := g.config.Model
	if req.Thinking && g.config.ThinkingModel != "" {
		name = g.config.ThinkingModel
	}
	model := g.client.GenerativeModel(name)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	log.Printf("生成AI内容 %s，模型: %s", req.Name, name)
	resp, err := model.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindTransient, "Gemini生成内容失败")
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return "", apperr.New(apperr.KindTransient, "Gemini响应中没有内容")
	}
	return sb.String(), nil
}
