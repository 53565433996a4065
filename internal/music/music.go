// Package music 按音乐计划生成背景音乐
package music

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"radio-station/config"
	"radio-station/internal/audio"
	"radio-station/internal/models"
)

// stanzaFade 相邻小节段之间的交叉淡化时长
const stanzaFade = 2 * time.Second

//go:generate moq -out mocks/generator.go -pkg mocks -skip-ensure -fmt goimports . Generator

// Generator 音乐生成服务接口
type Generator interface {
	// Generate 生成一个小节段的音乐, 长度由服务决定
	Generate(ctx context.Context, stanza models.MusicStanza) (*audio.Track, error)

	// Name 返回服务名称
	Name() string
}

// Factory 根据配置创建音乐生成服务, 关闭音乐时返回nil
func Factory(ctx context.Context, cfg *config.Config) (Generator, error) {
	switch cfg.Music.Provider {
	case "lyria":
		return NewLyriaGenerator(ctx, cfg.Google, cfg.Music)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("不支持的音乐生成服务: %s", cfg.Music.Provider)
	}
}

// Render 依次生成每个小节段, 循环或截断到计划时长, 相邻小节段交叉淡化
func Render(ctx context.Context, g Generator, plan models.MusicPlan, rate int) (*audio.Track, error) {
	fade := audio.SamplesFor(rate, stanzaFade)
	var out *audio.Track
	for i, stanza := range plan.Stanzas {
		clip, err := g.Generate(ctx, stanza)
		if err != nil {
			return nil, fmt.Errorf("生成第 %d 段音乐失败: %w", i+1, err)
		}
		n := audio.SamplesFor(rate, time.Duration(stanza.Seconds*float64(time.Second)))
		if out == nil {
			out = clip.Resample(rate).Loop(n)
			continue
		}
		overlap := min(fade, out.Len(), n)
		out = audio.Crossfade(out, clip.Resample(rate).Loop(n+overlap), overlap)
	}
	if out == nil {
		return audio.NewTrack(rate, nil), nil
	}
	log.Printf("使用 %s 生成音乐 %q，时长 %v", g.Name(), plan.Title, out.Duration())
	return out, nil
}

// BarSamples 一小节(4拍)的采样数
func BarSamples(bpm float64, rate int) int {
	if bpm <= 0 {
		return 0
	}
	return int(math.Round(4 * 60 / bpm * float64(rate)))
}

// TruncateToBars 截断到整数小节, 不足一小节时原样返回
func TruncateToBars(t *audio.Track, bpm float64) *audio.Track {
	bar := BarSamples(bpm, t.Rate)
	if bar <= 0 || t.Len() < bar {
		return t
	}
	return t.Slice(0, t.Len()/bar*bar)
}
