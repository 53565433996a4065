// Package recorder 把台词合成为语音, 每个台词段落一个WAV产物
package recorder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"radio-station/config"
	"radio-station/internal/apperr"
	"radio-station/internal/artifact"
	"radio-station/internal/audio"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
	"radio-station/internal/scheduler"
	"radio-station/internal/session"
	"radio-station/internal/tts"
)

const author = "Recorder"

// Stage 录音阶段
type Stage struct {
	tts         tts.Synthesizer
	sampleRate  int
	concurrency int
}

// NewStage 创建录音阶段
func NewStage(s tts.Synthesizer, cfg config.RadioConfig) *Stage {
	return &Stage{tts: s, sampleRate: cfg.SampleRate, concurrency: cfg.RecorderConcurrency}
}

// Name 阶段名
func (s *Stage) Name() string { return author }

// TaskID 第index个台词段落(从0开始)的录音任务ID
func TaskID(index int) string {
	return strconv.Itoa(index + 1)
}

// Run 并发合成所有台词段落, 已有语音产物的段落跳过
func (s *Stage) Run(ctx context.Context, rc *pipeline.RunContext) error {
	if state, _, _ := session.Value[string](rc.State, session.KeyRecorderState); state == session.StateDone {
		rc.Emit(author, pipeline.AlreadyFinished)
		return nil
	}
	segments, ok, err := session.Value[[]models.TalkScriptSegment](rc.State, session.KeyWriterSegments)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindDataIntegrity, "talk script segments not found")
	}

	existing, err := artifactNames(ctx, rc)
	if err != nil {
		return err
	}
	casts := s.casts(rc)
	merge := tts.MergesSpeakers(s.tts.Provider())
	pro := rc.Program != nil && rc.Program.ProMode

	var (
		taskIDs  []string
		recorded []models.TalkScriptSegment
		tasks    []scheduler.Task[models.Event]
	)
	for i, seg := range segments {
		if len(seg.Scripts) == 0 {
			continue
		}
		id := TaskID(i)
		taskIDs = append(taskIDs, id)
		recorded = append(recorded, seg)
		if existing[artifact.VoiceName(id)] {
			rc.Logf("语音 %s 已存在，跳过", artifact.VoiceName(id))
			continue
		}
		tasks = append(tasks, s.task(rc, id, tts.Utterances(seg, casts, merge, pro)))
	}

	rc.Emit(author, fmt.Sprintf("start recording %d talk script segments", len(tasks)))
	emit := func(e models.Event) { rc.Emit(e.Author, e.Content) }
	if err := scheduler.Bounded(ctx, tasks, s.concurrency, emit); err != nil {
		return fmt.Errorf("录音失败: %w", err)
	}

	if err := rc.State.Update(ctx, map[string]any{
		session.KeyRecorderTaskIDs:  taskIDs,
		session.KeyRecorderSegments: recorded,
		session.KeyRecorderState:    session.StateDone,
	}); err != nil {
		return err
	}
	rc.Emit(author, fmt.Sprintf("finish recording %d voices", len(taskIDs)))
	return nil
}

func (s *Stage) task(rc *pipeline.RunContext, id string, utterances []tts.Utterance) scheduler.Task[models.Event] {
	return scheduler.NewTask(fmt.Sprintf("record_%s", id), func(ctx context.Context, emit func(models.Event)) error {
		track, err := tts.Render(ctx, s.tts, utterances, s.sampleRate)
		if err != nil {
			return err
		}
		data, err := audio.EncodeWAV(track)
		if err != nil {
			return fmt.Errorf("编码语音 %s 失败: %w", id, err)
		}
		name := artifact.VoiceName(id)
		if _, err := rc.Artifacts.Save(ctx, name, data, "audio/wav"); err != nil && !errors.Is(err, artifact.ErrExists) {
			return fmt.Errorf("保存语音 %s 失败: %w", name, err)
		}
		emit(models.Event{Author: author, Content: fmt.Sprintf("recorded %s (%v)", name, track.Duration().Round(100*time.Millisecond))})
		return nil
	})
}

// casts 节目出演者加上各段落的嘉宾, 用于确定声音
func (s *Stage) casts(rc *pipeline.RunContext) []models.RadioCast {
	seen := make(map[string]bool)
	var out []models.RadioCast
	add := func(c models.RadioCast) {
		if !seen[c.ID] {
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	for _, c := range rc.Casts {
		add(c)
	}
	if plan, ok, _ := session.Value[models.ProgramPlan](rc.State, session.KeyProgramStructure); ok {
		for _, sp := range plan.Segments {
			for _, c := range sp.RadioCasts {
				add(c)
			}
		}
	}
	return out
}

func artifactNames(ctx context.Context, rc *pipeline.RunContext) (map[string]bool, error) {
	names, err := rc.Artifacts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取产物列表失败: %w", err)
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}
