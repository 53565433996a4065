package ai

import (
	"context"
	"fmt"

	"radio-station/internal/resilience"
)

// Pipeline 一次LLM任务: 准备提示词 -> 调用 -> 后处理
type Pipeline[C any, T any] struct {
	Name        string
	Prepare     func(c C) (Request, error)
	Postprocess func(raw string, c C) (T, error)
}

// Run 执行任务, 调用和后处理失败时按policy整体重试
func (p Pipeline[C, T]) Run(ctx context.Context, llm Completer, c C, policy resilience.RetryPolicy) (T, error) {
	var out T
	req, err := p.Prepare(c)
	if err != nil {
		return out, fmt.Errorf("%s 准备提示词失败: %w", p.Name, err)
	}
	if req.Name == "" {
		req.Name = p.Name
	}
	if policy.Name == "" {
		policy.Name = p.Name
	}

	err = policy.Do(ctx, func(ctx context.Context, attempt int) error {
		raw, err := llm.Complete(ctx, req)
		if err != nil {
			return err
		}
		v, err := p.Postprocess(raw, c)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("%s 失败: %w", p.Name, err)
	}
	return out, nil
}
