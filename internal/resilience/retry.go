// Package resilience 提供统一的重试策略
package resilience

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"radio-station/internal/apperr"
)

// BackoffFunc 根据重试次数(从1开始)返回等待时间
type BackoffFunc func(retry int) time.Duration

// RetryPolicy 重试策略: 最大尝试次数, 退避函数, 可重试判断
type RetryPolicy struct {
	Name        string
	MaxAttempts int
	Backoff     BackoffFunc
	Retryable   func(error) bool
	// Sleep 为空时使用真实计时器
	Sleep func(ctx context.Context, d time.Duration) error
}

// Linear 线性退避: retry * step
func Linear(step time.Duration) BackoffFunc {
	return func(retry int) time.Duration {
		return time.Duration(retry) * step
	}
}

// Exponential 指数退避, 带上限和抖动
func Exponential(base, max time.Duration, jitter float64) BackoffFunc {
	return func(retry int) time.Duration {
		delay := base << min(retry-1, 6)
		if delay > max {
			delay = max
		}
		if jitter > 0 {
			delay = time.Duration(float64(delay) + float64(delay)*jitter*(rand.Float64()-0.5))
		}
		return delay
	}
}

// NoBackoff 不等待, 测试用
func NoBackoff(int) time.Duration { return 0 }

// Do 执行fn, 失败时按策略重试, 返回最后一次的错误
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	p = p.withDefaults()
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(ctx, attempt); lastErr == nil {
			return nil
		}
		if !p.Retryable(lastErr) || attempt == p.MaxAttempts {
			return lastErr
		}
		delay := p.Backoff(attempt)
		log.Printf("%s 失败，正在重试 (%d/%d)，等待 %v: %v", p.Name, attempt, p.MaxAttempts, delay, lastErr)
		if err := p.Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Backoff == nil {
		p.Backoff = NoBackoff
	}
	if p.Retryable == nil {
		p.Retryable = func(err error) bool { return true }
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	if p.Name == "" {
		p.Name = "操作"
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryAll 除了前置条件和数据完整性错误外都重试
func RetryAll(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindPrecondition, apperr.KindDataIntegrity:
		return false
	}
	return !isContextErr(err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// WriterPolicy 台本写作: 最多重试retries次, 线性 n*1s
func WriterPolicy(retries int) RetryPolicy {
	return RetryPolicy{Name: "台本写作", MaxAttempts: retries + 1, Backoff: Linear(time.Second), Retryable: RetryAll}
}

// LLMPolicy LLM调用: 3次, 线性 (i+1)*2s
func LLMPolicy() RetryPolicy {
	return RetryPolicy{Name: "LLM请求", MaxAttempts: 3, Backoff: Linear(2 * time.Second), Retryable: RetryAll}
}

// LongFormTTSPolicy 长文本语音合成: 最多重试5次, 指数退避
func LongFormTTSPolicy() RetryPolicy {
	return RetryPolicy{Name: "长文本语音合成", MaxAttempts: 6, Backoff: Exponential(5*time.Second, time.Minute, 0.2), Retryable: apperr.IsRetryable}
}

// SpeechTTSPolicy 语音生成: 最多重试5次, 线性 n*1s
func SpeechTTSPolicy() RetryPolicy {
	return RetryPolicy{Name: "语音生成", MaxAttempts: 6, Backoff: Linear(time.Second), Retryable: apperr.IsRetryable}
}

// MusicPolicy 音乐生成: 3次, 指数退避
func MusicPolicy() RetryPolicy {
	return RetryPolicy{Name: "音乐生成", MaxAttempts: 3, Backoff: Exponential(2*time.Second, 30*time.Second, 0.2), Retryable: apperr.IsRetryable}
}

// FeedFetchPolicy RSS抓取: 最多重试5次, 间隔1s
func FeedFetchPolicy() RetryPolicy {
	return RetryPolicy{Name: "RSS抓取", MaxAttempts: 6, Backoff: func(int) time.Duration { return time.Second }, Retryable: RetryAll}
}

// SilenceGuardPolicy 静音检测后的重录: 最多retakes次
func SilenceGuardPolicy(retakes int) RetryPolicy {
	return RetryPolicy{
		Name:        "静音检测重录",
		MaxAttempts: retakes + 1,
		Retryable:   func(err error) bool { return apperr.IsKind(err, apperr.KindQualityGuard) },
	}
}
