package tts

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"radio-station/config"
	"radio-station/internal/apperr"
	"radio-station/internal/audio"
	"radio-station/internal/resilience"
)

const minChunkChars = 100

var errSentenceTooLong = errors.New("sentences that are too long")

type speechSynthesisClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

// LongFormSynthesizer Google Cloud Text-to-Speech, 长文本分块合成后拼接
type LongFormSynthesizer struct {
	client     speechSynthesisClient
	cfg        config.LongFormTTSConfig
	sampleRate int
	policy     resilience.RetryPolicy
}

// NewLongFormSynthesizer 创建长文本合成
func NewLongFormSynthesizer(ctx context.Context, cfg config.LongFormTTSConfig, sampleRate int, opts ...option.ClientOption) (*LongFormSynthesizer, error) {
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建Text-to-Speech客户端失败: %w", err)
	}
	return newLongForm(client, cfg, sampleRate), nil
}

func newLongForm(client speechSynthesisClient, cfg config.LongFormTTSConfig, sampleRate int) *LongFormSynthesizer {
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = 2000
	}
	return &LongFormSynthesizer{client: client, cfg: cfg, sampleRate: sampleRate, policy: resilience.LongFormTTSPolicy()}
}

// Provider 返回TTS提供商名称
func (l *LongFormSynthesizer) Provider() string { return "longform" }

// Synthesize 按句子分块合成; 服务端报告句子过长时把该块切得更小再试
func (l *LongFormSynthesizer) Synthesize(ctx context.Context, u Utterance) (*audio.Track, error) {
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}
	out := audio.NewTrack(l.sampleRate, nil)
	for _, chunk := range SplitSentences(u.Text, l.cfg.ChunkChars) {
		t, err := l.synthesizeChunk(ctx, u, chunk, l.cfg.ChunkChars)
		if err != nil {
			return nil, err
		}
		out = out.Append(t.Resample(l.sampleRate))
	}
	return out, nil
}

func (l *LongFormSynthesizer) synthesizeChunk(ctx context.Context, u Utterance, text string, maxChars int) (*audio.Track, error) {
	var track *audio.Track
	err := l.policy.Do(ctx, func(ctx context.Context, _ int) error {
		resp, err := l.client.SynthesizeSpeech(ctx, l.request(u, text))
		if err != nil {
			return classifyGRPCError(err)
		}
		track, err = audio.Decode(resp.AudioContent, l.sampleRate)
		return err
	})
	if errors.Is(err, errSentenceTooLong) && maxChars/2 >= minChunkChars {
		log.Printf("句子过长，按 %d 字重新切分", maxChars/2)
		out := audio.NewTrack(l.sampleRate, nil)
		for _, part := range SplitSentences(text, maxChars/2) {
			t, err := l.synthesizeChunk(ctx, u, part, maxChars/2)
			if err != nil {
				return nil, err
			}
			out = out.Append(t.Resample(l.sampleRate))
		}
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("长文本语音合成失败: %w", err)
	}
	return track, nil
}

func (l *LongFormSynthesizer) request(u Utterance, text string) *texttospeechpb.SynthesizeSpeechRequest {
	voice := u.Voice
	if voice == "" {
		voice = l.cfg.DefaultVoice
	}
	input := &texttospeechpb.SynthesisInput{InputSource: &texttospeechpb.SynthesisInput_Text{Text: text}}
	if len(u.Pronunciations) > 0 {
		input.InputSource = &texttospeechpb.SynthesisInput_Ssml{Ssml: phonemeSSML(text, u)}
	}
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: input,
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: l.cfg.LanguageCode,
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(l.sampleRate),
			SpeakingRate:    u.Rate,
		},
	}
}

// phonemeSSML 用<phoneme>标注自定义读音(IPA)
func phonemeSSML(text string, u Utterance) string {
	escaped := escapeXML(text)
	for _, p := range u.Pronunciations {
		if p.Phrase == "" || p.Pronunciation == "" {
			continue
		}
		phrase := escapeXML(p.Phrase)
		tag := fmt.Sprintf(`<phoneme alphabet="ipa" ph="%s">%s</phoneme>`, escapeXML(p.Pronunciation), phrase)
		escaped = strings.ReplaceAll(escaped, phrase, tag)
	}
	return "<speak>" + escaped + "</speak>"
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// classifyGRPCError 限流、不可用、超时为临时错误
func classifyGRPCError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return apperr.Wrap(err, apperr.KindTransient, "语音合成请求失败")
	}
	switch st.Code() {
	case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return apperr.Wrap(err, apperr.KindTransient, "语音合成暂时不可用").WithMetadata("code", st.Code().String())
	case codes.InvalidArgument:
		if strings.Contains(st.Message(), errSentenceTooLong.Error()) {
			return fmt.Errorf("%w: %s", errSentenceTooLong, st.Message())
		}
	}
	return apperr.Wrap(err, apperr.KindInternal, "语音合成失败").WithMetadata("code", st.Code().String())
}
