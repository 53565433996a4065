// Package tts 文本转语音: 长文本合成、LLM语音生成和Polly三种实现
package tts

import (
	"context"
	"fmt"
	"log"
	"strings"

	"radio-station/config"
	"radio-station/internal/audio"
	"radio-station/internal/models"
)

// Utterance 一次合成的文本
type Utterance struct {
	Text           string
	CastID         string
	Voice          string
	Rate           float64
	Pronunciations []models.Pronunciation
	Pro            bool
}

//go:generate moq -out mocks/synthesizer.go -pkg mocks -skip-ensure -fmt goimports . Synthesizer

// Synthesizer 定义TTS服务接口
type Synthesizer interface {
	// Synthesize 将文本转换为语音
	Synthesize(ctx context.Context, u Utterance) (*audio.Track, error)

	// Provider 返回TTS提供商名称
	Provider() string
}

// Factory 根据配置创建TTS服务, LLM语音生成带静音检测
func Factory(ctx context.Context, cfg *config.Config) (Synthesizer, error) {
	switch cfg.TTS.Provider {
	case "longform":
		return NewLongFormSynthesizer(ctx, cfg.TTS.LongForm, cfg.Radio.SampleRate)
	case "polly":
		return NewPollySynthesizer(ctx, cfg.TTS.Polly)
	case "speech", "":
		return NewSilenceGuard(NewSpeechSynthesizer(&cfg.OpenAI, cfg.TTS.Speech), cfg.Radio), nil
	default:
		return nil, fmt.Errorf("不支持的TTS提供商: %s", cfg.TTS.Provider)
	}
}

// MergesSpeakers 长文本和Polly模式下合并同一出演者连续的台词
func MergesSpeakers(provider string) bool {
	return provider != "speech"
}

// Utterances 把台词转换为合成单位; merge为true时合并同一出演者、同一语速的连续台词
func Utterances(seg models.TalkScriptSegment, casts []models.RadioCast, merge, pro bool) []Utterance {
	voices := make(map[string]string, len(casts))
	for _, c := range casts {
		voices[c.ID] = c.VoiceName
	}
	var out []Utterance
	for _, ts := range seg.Scripts {
		text := strings.TrimSpace(ts.Content)
		if text == "" {
			continue
		}
		if merge && len(out) > 0 {
			last := &out[len(out)-1]
			if last.CastID == ts.RadioCastID && last.Rate == ts.Rate() {
				last.Text += "\n" + text
				continue
			}
		}
		out = append(out, Utterance{
			Text:           text,
			CastID:         ts.RadioCastID,
			Voice:          voices[ts.RadioCastID],
			Rate:           ts.Rate(),
			Pronunciations: seg.Pronunciations,
			Pro:            pro,
		})
	}
	return out
}

// Render 依次合成并拼接为一条音轨, 统一到sampleRate
func Render(ctx context.Context, s Synthesizer, utterances []Utterance, sampleRate int) (*audio.Track, error) {
	out := audio.NewTrack(sampleRate, nil)
	for i, u := range utterances {
		t, err := s.Synthesize(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("合成第 %d 句失败: %w", i+1, err)
		}
		out = out.Append(t.Resample(sampleRate))
	}
	log.Printf("使用 %s 合成 %d 句，时长 %v", s.Provider(), len(utterances), out.Duration())
	return out, nil
}

// ApplyPronunciations 把词语替换为指定读音
func ApplyPronunciations(text string, prons []models.Pronunciation) string {
	for _, p := range prons {
		if p.Phrase == "" || p.Pronunciation == "" {
			continue
		}
		text = strings.ReplaceAll(text, p.Phrase, p.Pronunciation)
	}
	return text
}
