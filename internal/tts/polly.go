package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"radio-station/config"
	"radio-station/internal/apperr"
	"radio-station/internal/audio"
	"radio-station/internal/resilience"
)

const pollyPCMRate = 16000

type pollyClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollySynthesizer Amazon Polly
type PollySynthesizer struct {
	client pollyClient
	cfg    config.PollyTTSConfig
	policy resilience.RetryPolicy
}

// NewPollySynthesizer 创建Polly合成
func NewPollySynthesizer(ctx context.Context, cfg config.PollyTTSConfig) (*PollySynthesizer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("加载AWS配置失败: %w", err)
	}
	return newPolly(polly.NewFromConfig(awsCfg), cfg), nil
}

func newPolly(client pollyClient, cfg config.PollyTTSConfig) *PollySynthesizer {
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = 2500
	}
	return &PollySynthesizer{client: client, cfg: cfg, policy: resilience.SpeechTTSPolicy()}
}

// Provider 返回TTS提供商名称
func (p *PollySynthesizer) Provider() string { return "polly" }

// Synthesize 分块合成PCM后拼接
func (p *PollySynthesizer) Synthesize(ctx context.Context, u Utterance) (*audio.Track, error) {
	voice := u.Voice
	if voice == "" {
		voice = p.cfg.VoiceID
	}
	engine := pollytypes.EngineStandard
	if p.cfg.Engine == "neural" {
		engine = pollytypes.EngineNeural
	}

	out := audio.NewTrack(pollyPCMRate, nil)
	text := ApplyPronunciations(u.Text, u.Pronunciations)
	for _, chunk := range SplitSentences(text, p.cfg.ChunkChars) {
		input := &polly.SynthesizeSpeechInput{
			Engine:       engine,
			OutputFormat: pollytypes.OutputFormatPcm,
			SampleRate:   aws.String(fmt.Sprint(pollyPCMRate)),
			Text:         aws.String(chunk),
			TextType:     pollytypes.TextTypeText,
			VoiceId:      pollytypes.VoiceId(voice),
		}
		if u.Rate > 0 && u.Rate != 1 {
			input.Text = aws.String(fmt.Sprintf(`<speak><prosody rate="%d%%">%s</prosody></speak>`, int(math.Round(u.Rate*100)), escapeXML(chunk)))
			input.TextType = pollytypes.TextTypeSsml
		}

		var data []byte
		err := p.policy.Do(ctx, func(ctx context.Context, _ int) error {
			resp, err := p.client.SynthesizeSpeech(ctx, input)
			if err != nil {
				return classifyPollyError(err)
			}
			if resp == nil || resp.AudioStream == nil {
				return apperr.New(apperr.KindTransient, "Polly没有返回音频")
			}
			defer resp.AudioStream.Close()
			data, err = io.ReadAll(resp.AudioStream)
			if err != nil {
				return apperr.Wrap(err, apperr.KindTransient, "读取Polly音频失败")
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("Polly语音合成失败: %w", err)
		}
		out = out.Append(audio.DecodePCM16(data, pollyPCMRate))
	}
	return out, nil
}

func classifyPollyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ThrottlingException", "ServiceFailureException":
			return apperr.Wrap(err, apperr.KindTransient, "Polly暂时不可用").WithMetadata("code", apiErr.ErrorCode())
		default:
			return apperr.Wrap(err, apperr.KindInternal, "Polly请求失败").WithMetadata("code", apiErr.ErrorCode())
		}
	}
	return apperr.Wrap(err, apperr.KindTransient, "Polly请求失败")
}
