package music

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"radio-station/config"
	"radio-station/internal/apperr"
	"radio-station/internal/audio"
	"radio-station/internal/models"
	"radio-station/internal/resilience"
)

// lyriaRate Lyria输出48kHz WAV
const lyriaRate = 48000

type predictor interface {
	Predict(ctx context.Context, endpoint string, req *aiplatform.GoogleCloudAiplatformV1PredictRequest) (*aiplatform.GoogleCloudAiplatformV1PredictResponse, error)
}

type servicePredictor struct {
	svc *aiplatform.Service
}

func (p servicePredictor) Predict(ctx context.Context, endpoint string, req *aiplatform.GoogleCloudAiplatformV1PredictRequest) (*aiplatform.GoogleCloudAiplatformV1PredictResponse, error) {
	return p.svc.Projects.Locations.Publishers.Models.Predict(endpoint, req).Context(ctx).Do()
}

// LyriaGenerator Vertex AI上的Lyria文本生成音乐
type LyriaGenerator struct {
	client   predictor
	endpoint string
	policy   resilience.RetryPolicy
}

// NewLyriaGenerator 创建Lyria音乐生成
func NewLyriaGenerator(ctx context.Context, google config.GoogleConfig, cfg config.MusicConfig) (*LyriaGenerator, error) {
	if google.ProjectID == "" {
		return nil, errors.New("GOOGLE_CLOUD_PROJECT 未设置")
	}
	location := cfg.Location
	if location == "" {
		location = google.Location
	}
	opts := []option.ClientOption{option.WithEndpoint(fmt.Sprintf("https://%s-aiplatform.googleapis.com/", location))}
	if google.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(google.CredentialsFile))
	}
	svc, err := aiplatform.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建Vertex AI客户端失败: %w", err)
	}
	endpoint := fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", google.ProjectID, location, cfg.Model)
	return newLyria(servicePredictor{svc: svc}, endpoint), nil
}

func newLyria(client predictor, endpoint string) *LyriaGenerator {
	return &LyriaGenerator{client: client, endpoint: endpoint, policy: resilience.MusicPolicy()}
}

// Name 返回服务名称
func (l *LyriaGenerator) Name() string { return "lyria" }

// Generate 生成一段音乐
func (l *LyriaGenerator) Generate(ctx context.Context, stanza models.MusicStanza) (*audio.Track, error) {
	req := &aiplatform.GoogleCloudAiplatformV1PredictRequest{
		Instances: []interface{}{map[string]interface{}{
			"prompt":          stanza.PromptText(),
			"negative_prompt": stanza.NegativePrompt(),
		}},
		Parameters: map[string]interface{}{"sample_count": 1},
	}

	var track *audio.Track
	err := l.policy.Do(ctx, func(ctx context.Context, _ int) error {
		resp, err := l.client.Predict(ctx, l.endpoint, req)
		if err != nil {
			return classifyAPIError(err)
		}
		data, err := firstAudio(resp)
		if err != nil {
			return err
		}
		track, err = audio.Decode(data, lyriaRate)
		if err != nil {
			return apperr.Wrap(err, apperr.KindTransient, "解析音乐数据失败")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("音乐生成失败: %w", err)
	}
	return track, nil
}

func firstAudio(resp *aiplatform.GoogleCloudAiplatformV1PredictResponse) ([]byte, error) {
	if resp == nil || len(resp.Predictions) == 0 {
		return nil, apperr.New(apperr.KindTransient, "音乐生成没有返回结果")
	}
	pred, ok := resp.Predictions[0].(map[string]interface{})
	if !ok {
		return nil, apperr.New(apperr.KindTransient, "音乐生成结果格式错误")
	}
	encoded, _ := pred["bytesBase64Encoded"].(string)
	if encoded == "" {
		return nil, apperr.New(apperr.KindTransient, "音乐生成结果没有音频")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindTransient, "解码音乐数据失败")
	}
	return data, nil
}

// classifyAPIError 限流和服务端错误可以重试
func classifyAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return apperr.Wrap(err, apperr.KindTransient, "音乐生成暂时不可用").WithMetadata("status", fmt.Sprint(apiErr.Code))
		}
		return apperr.Wrap(err, apperr.KindInternal, "音乐生成请求失败").WithMetadata("status", fmt.Sprint(apiErr.Code))
	}
	return apperr.Wrap(err, apperr.KindTransient, "音乐生成请求失败")
}
