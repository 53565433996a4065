package tts

import (
	"context"
	"log"
	"strconv"
	"time"

	"radio-station/config"
	"radio-station/internal/apperr"
	"radio-station/internal/audio"
	"radio-station/internal/resilience"
)

// SilenceGuard 合成结果开头或结尾静音过长时视为失败, 重新合成
type SilenceGuard struct {
	next        Synthesizer
	thresholdDB float64
	maxSilence  time.Duration
	policy      resilience.RetryPolicy
}

// NewSilenceGuard 包装一个Synthesizer
func NewSilenceGuard(next Synthesizer, cfg config.RadioConfig) *SilenceGuard {
	return &SilenceGuard{
		next:        next,
		thresholdDB: cfg.SilenceThresholdDB,
		maxSilence:  cfg.SilenceMax,
		policy:      resilience.SilenceGuardPolicy(cfg.SilenceRetakes),
	}
}

// Provider 返回TTS提供商名称
func (g *SilenceGuard) Provider() string { return g.next.Provider() }

// Synthesize 重录次数用完后接受最后一次的结果
func (g *SilenceGuard) Synthesize(ctx context.Context, u Utterance) (*audio.Track, error) {
	var last *audio.Track
	err := g.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		t, err := g.next.Synthesize(ctx, u)
		if err != nil {
			return err
		}
		last = t
		lead, trail := t.LeadingSilence(g.thresholdDB), t.TrailingSilence(g.thresholdDB)
		if lead > g.maxSilence || trail > g.maxSilence {
			return apperr.Newf(apperr.KindQualityGuard, "静音过长 开头 %v 结尾 %v", lead, trail).
				WithMetadata("attempt", strconv.Itoa(attempt))
		}
		return nil
	})
	if err != nil && apperr.IsKind(err, apperr.KindQualityGuard) && last != nil {
		log.Printf("重录后静音仍然过长，使用最后一次结果: %v", err)
		return last, nil
	}
	if err != nil {
		return nil, err
	}
	return last, nil
}
