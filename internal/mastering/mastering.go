// Package mastering 把语音和背景音乐混音, 压缩归一化后编码为mp3
package mastering

import (
	"context"
	"errors"
	"fmt"

	"radio-station/config"
	"radio-station/internal/apperr"
	"radio-station/internal/artifact"
	"radio-station/internal/audio"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
	"radio-station/internal/session"
)

const author = "Mastering"

// 母带处理的状态
const (
	StateMixing   = "mixing"
	StateMastered = "mastered"
	StateEncoded  = "encoded"
)

// Encoder 把音轨编码为发布格式
type Encoder interface {
	Encode(ctx context.Context, t *audio.Track) ([]byte, error)
}

// Stage 母带处理阶段
type Stage struct {
	encoder Encoder
	mixer   *Mixer
	rate    int
}

// NewStage 创建母带处理阶段
func NewStage(enc Encoder, cfg config.RadioConfig) *Stage {
	return &Stage{encoder: enc, mixer: NewMixer(cfg), rate: cfg.SampleRate}
}

// Name 阶段名
func (s *Stage) Name() string { return author }

// Run 混音 -> 母带 -> 编码; audio.mp3已存在时直接结束
func (s *Stage) Run(ctx context.Context, rc *pipeline.RunContext) error {
	if ok, err := rc.Artifacts.Exists(ctx, artifact.AudioName); err != nil {
		return err
	} else if ok {
		rc.Emit(author, pipeline.AlreadyFinished)
		return nil
	}

	state, _, _ := session.Value[string](rc.State, session.KeyMasteringState)
	var master *audio.Track
	if state == StateMastered {
		if data, err := rc.Artifacts.Load(ctx, artifact.MasterName); err == nil {
			rc.Logf("使用已保存的母带继续编码")
			if master, err = audio.DecodeWAV(data); err != nil {
				return fmt.Errorf("解析母带失败: %w", err)
			}
		}
	}

	if master == nil {
		if err := rc.State.Set(ctx, session.KeyMasteringState, StateMixing); err != nil {
			return err
		}
		mixed, err := s.mix(ctx, rc)
		if err != nil {
			return err
		}
		rc.Emit(author, fmt.Sprintf("finished mixing (%v), next start mastering", mixed.Duration()))

		master = mixed.Master()
		data, err := audio.EncodeWAV(master)
		if err != nil {
			return fmt.Errorf("编码母带失败: %w", err)
		}
		if _, err := rc.Artifacts.Save(ctx, artifact.MasterName, data, "audio/wav"); err != nil && !errors.Is(err, artifact.ErrExists) {
			return fmt.Errorf("保存母带失败: %w", err)
		}
		if err := rc.State.Set(ctx, session.KeyMasteringState, StateMastered); err != nil {
			return err
		}
		rc.Emit(author, "finished mastering, next start convert to mp3")
	}

	mp3, err := s.encoder.Encode(ctx, master)
	if err != nil {
		return err
	}
	if _, err := rc.Artifacts.Save(ctx, artifact.AudioName, mp3, "audio/mpeg"); err != nil {
		return fmt.Errorf("保存节目音频失败: %w", err)
	}
	if err := rc.State.Set(ctx, session.KeyMasteringState, StateEncoded); err != nil {
		return err
	}
	rc.Emit(author, fmt.Sprintf("generated %s (%v)", artifact.AudioName, master.Duration()))
	return nil
}

// mix 按节目结构顺序混音, 缺少任何预期的产物都直接失败
func (s *Stage) mix(ctx context.Context, rc *pipeline.RunContext) (*audio.Track, error) {
	plan, ok, err := session.Value[models.ProgramPlan](rc.State, session.KeyProgramStructure)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindDataIntegrity, "program structure not found")
	}
	taskIDs, _, err := session.Value[[]string](rc.State, session.KeyRecorderTaskIDs)
	if err != nil {
		return nil, err
	}
	if len(taskIDs) == 0 {
		return nil, apperr.New(apperr.KindDataIntegrity, "recorder task ids not found")
	}
	recorded, _, err := session.Value[[]models.TalkScriptSegment](rc.State, session.KeyRecorderSegments)
	if err != nil {
		return nil, err
	}
	if len(recorded) != len(taskIDs) {
		return nil, apperr.Newf(apperr.KindDataIntegrity, "recorder task ids (%d) and talk script segments (%d) do not match", len(taskIDs), len(recorded))
	}
	composed, _, err := session.Value[[]string](rc.State, session.KeyComposerTaskIDs)
	if err != nil {
		return nil, err
	}
	hasMusic := make(map[string]bool, len(composed))
	for _, id := range composed {
		hasMusic[id] = true
	}

	rc.Emit(author, fmt.Sprintf("start mixing %v", taskIDs))
	var voices, beds []*audio.Track
	for _, sp := range plan.Segments {
		task := sp.TaskID()
		speech := audio.NewTrack(s.rate, nil)
		found := false
		for i, seg := range recorded {
			if seg.TaskID != task {
				continue
			}
			clip, err := s.load(ctx, rc, artifact.VoiceName(taskIDs[i]))
			if err != nil {
				return nil, err
			}
			speech = speech.Append(clip)
			found = true
		}
		if !found {
			rc.Logf("段落 %s 没有台词，跳过", task)
			continue
		}

		var bgm *audio.Track
		switch {
		case hasMusic[task]:
			if bgm, err = s.load(ctx, rc, artifact.MusicName(task)); err != nil {
				return nil, err
			}
		case sp.NeedsMusic():
			rc.Emit(author, fmt.Sprintf("segment %s has no music, mixed with speech only", task))
		}
		voice, bed := s.mixer.Layers(sp, speech, bgm)
		voices = append(voices, voice)
		beds = append(beds, bed)
	}
	if len(voices) == 0 {
		return nil, apperr.New(apperr.KindDataIntegrity, "no recorded segment matches the program structure")
	}
	return s.mixer.Mix(voices, beds), nil
}

func (s *Stage) load(ctx context.Context, rc *pipeline.RunContext, name string) (*audio.Track, error) {
	data, err := rc.Artifacts.Load(ctx, name)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, apperr.Wrapf(err, apperr.KindDataIntegrity, "artifact %s not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("读取产物 %s 失败: %w", name, err)
	}
	t, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, apperr.Wrapf(err, apperr.KindDataIntegrity, "artifact %s is not a valid wav", name)
	}
	return t.Resample(s.rate), nil
}
