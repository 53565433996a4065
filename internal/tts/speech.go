package tts

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/sashabaranov/go-openai"

	"radio-station/config"
	"radio-station/internal/ai"
	"radio-station/internal/apperr"
	"radio-station/internal/audio"
	"radio-station/internal/resilience"
)

// speechPCMRate OpenAI pcm输出为24kHz 16位单声道
const speechPCMRate = 24000

type speechClient interface {
	CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// SpeechSynthesizer LLM原生语音生成, 限流或服务端错误时切换到备用模型
type SpeechSynthesizer struct {
	client speechClient
	cfg    config.SpeechTTSConfig
	policy resilience.RetryPolicy

	mu       sync.Mutex
	fallback bool
}

// NewSpeechSynthesizer 创建语音生成
func NewSpeechSynthesizer(openaiCfg *config.OpenAIConfig, cfg config.SpeechTTSConfig) *SpeechSynthesizer {
	clientConfig := openai.DefaultConfig(openaiCfg.APIKey)
	clientConfig.BaseURL = openaiCfg.BaseURL
	return newSpeech(openai.NewClientWithConfig(clientConfig), cfg)
}

func newSpeech(client speechClient, cfg config.SpeechTTSConfig) *SpeechSynthesizer {
	return &SpeechSynthesizer{client: client, cfg: cfg, policy: resilience.SpeechTTSPolicy()}
}

// Provider 返回TTS提供商名称
func (s *SpeechSynthesizer) Provider() string { return "speech" }

func (s *SpeechSynthesizer) model(pro bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fallback && s.cfg.FallbackModel != "" {
		return s.cfg.FallbackModel
	}
	if pro && s.cfg.ProModel != "" {
		return s.cfg.ProModel
	}
	return s.cfg.Model
}

func (s *SpeechSynthesizer) switchModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fallback && s.cfg.FallbackModel != "" && model != s.cfg.FallbackModel {
		log.Printf("语音模型 %s 不可用，切换到 %s", model, s.cfg.FallbackModel)
		s.fallback = true
	}
}

// Synthesize 生成一句台词的语音
func (s *SpeechSynthesizer) Synthesize(ctx context.Context, u Utterance) (*audio.Track, error) {
	voice := u.Voice
	if voice == "" {
		voice = s.cfg.DefaultVoice
	}
	text := ApplyPronunciations(u.Text, u.Pronunciations)

	var track *audio.Track
	err := s.policy.Do(ctx, func(ctx context.Context, _ int) error {
		model := s.model(u.Pro)
		resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(model),
			Input:          text,
			Voice:          openai.SpeechVoice(voice),
			ResponseFormat: openai.SpeechResponseFormatPcm,
			Speed:          u.Rate,
		})
		if err != nil {
			if code := ai.StatusCode(err); code == http.StatusTooManyRequests || code >= 500 {
				s.switchModel(model)
			}
			return ai.ClassifyOpenAIError(err, "语音生成失败")
		}
		defer resp.Close()

		data, err := io.ReadAll(resp)
		if err != nil {
			return apperr.Wrap(err, apperr.KindTransient, "读取语音数据失败")
		}
		if len(data) == 0 {
			return apperr.New(apperr.KindTransient, "语音数据为空")
		}
		track = audio.DecodePCM16(data, speechPCMRate)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("语音生成失败: %w", err)
	}
	return track, nil
}
