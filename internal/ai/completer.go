// Package ai LLM调用: OpenAI兼容接口和Gemini两种实现, 以及结构化输出校验
package ai

import (
	"context"
	"fmt"
	"strings"

	"radio-station/config"
)

// Request 一次LLM调用
type Request struct {
	// Name 用于日志
	Name        string
	System      string
	User        string
	JSON        bool
	Thinking    bool
	Temperature float32
	MaxTokens   int
}

//go:generate moq -out mocks/completer.go -pkg mocks -skip-ensure -fmt goimports . Completer

// Completer LLM补全接口
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// NewCompleter 根据配置创建LLM客户端
func NewCompleter(ctx context.Context, cfg *config.Config) (Completer, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "", "openai":
		return NewClient(&cfg.OpenAI), nil
	case "gemini":
		return NewGeminiClient(ctx, &cfg.Gemini)
	default:
		return nil, fmt.Errorf("不支持的LLM提供商: %s", cfg.LLM.Provider)
	}
}

// JoinContents 将多个内容合并为一个字符串，以分隔符分隔
func JoinContents(contents []string) string {
	return strings.Join(contents, "\n\n---\n\n")
}
