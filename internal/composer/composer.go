// Package composer 为需要音乐的段落作曲: LLM写音乐计划, 音乐服务按计划生成
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"radio-station/config"
	"radio-station/internal/ai"
	"radio-station/internal/apperr"
	"radio-station/internal/artifact"
	"radio-station/internal/audio"
	"radio-station/internal/models"
	"radio-station/internal/music"
	"radio-station/internal/pipeline"
	"radio-station/internal/resilience"
	"radio-station/internal/scheduler"
	"radio-station/internal/session"
)

const author = "Composer"

// Stage 作曲阶段
type Stage struct {
	llm         ai.Completer
	music       music.Generator
	sampleRate  int
	concurrency int
	policy      resilience.RetryPolicy
}

// NewStage 创建作曲阶段, gen为nil时不生成音乐
func NewStage(llm ai.Completer, gen music.Generator, cfg config.RadioConfig) *Stage {
	return &Stage{
		llm:         llm,
		music:       gen,
		sampleRate:  cfg.SampleRate,
		concurrency: cfg.ComposerConcurrency,
		policy:      resilience.LLMPolicy(),
	}
}

// WithPolicy 替换LLM重试策略
func (s *Stage) WithPolicy(p resilience.RetryPolicy) *Stage {
	s.policy = p
	return s
}

// Name 阶段名
func (s *Stage) Name() string { return author }

// Run 并发作曲, 完成后把平均BPM写回节目结构
func (s *Stage) Run(ctx context.Context, rc *pipeline.RunContext) error {
	if rc.State.Has(session.KeyComposerTaskIDs) {
		rc.Emit(author, pipeline.AlreadyFinished)
		return nil
	}
	plan, ok, err := session.Value[models.ProgramPlan](rc.State, session.KeyProgramStructure)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindDataIntegrity, "program structure not found")
	}

	var targets []models.SegmentPlan
	for _, sp := range plan.Segments {
		if sp.NeedsMusic() {
			targets = append(targets, sp)
		}
	}
	if len(targets) == 0 {
		rc.Emit(author, "no music to compose")
		return rc.State.Set(ctx, session.KeyComposerTaskIDs, []string{})
	}
	if s.music == nil {
		rc.Emit(author, fmt.Sprintf("music generator not configured, %d segments will be mixed without music", len(targets)))
		return rc.State.Set(ctx, session.KeyComposerTaskIDs, []string{})
	}

	names, err := rc.Artifacts.List(ctx)
	if err != nil {
		return fmt.Errorf("读取产物列表失败: %w", err)
	}
	existing := make(map[string]bool, len(names))
	for _, n := range names {
		existing[n] = true
	}

	var (
		mu  sync.Mutex
		bpm = make(map[string]float64)
	)
	record := func(id string, v float64) {
		mu.Lock()
		defer mu.Unlock()
		bpm[id] = v
	}

	taskIDs := make([]string, 0, len(targets))
	var tasks []scheduler.Task[models.Event]
	for _, sp := range targets {
		id := sp.TaskID()
		taskIDs = append(taskIDs, id)
		if existing[artifact.MusicName(id)] {
			rc.Logf("音乐 %s 已存在，跳过", artifact.MusicName(id))
			if mp, ok, _ := session.Value[models.MusicPlan](rc.State, session.MusicPlanKey(id)); ok {
				record(id, mp.AverageBPM())
			}
			continue
		}
		tasks = append(tasks, s.task(rc, sp, record))
	}

	rc.Emit(author, fmt.Sprintf("start composing %d pieces", len(tasks)))
	emit := func(e models.Event) { rc.Emit(e.Author, e.Content) }
	if err := scheduler.Bounded(ctx, tasks, s.concurrency, emit); err != nil {
		return fmt.Errorf("作曲失败: %w", err)
	}

	for i := range plan.Segments {
		if v, ok := bpm[plan.Segments[i].TaskID()]; ok && v > 0 {
			b := v
			plan.Segments[i].MusicBPM = &b
		}
	}
	if err := rc.State.Update(ctx, map[string]any{
		session.KeyProgramStructure: plan,
		session.KeyComposerTaskIDs:  taskIDs,
	}); err != nil {
		return err
	}
	rc.Emit(author, fmt.Sprintf("finish composing %d pieces", len(taskIDs)))
	return nil
}

func (s *Stage) task(rc *pipeline.RunContext, sp models.SegmentPlan, record func(string, float64)) scheduler.Task[models.Event] {
	id := sp.TaskID()
	return scheduler.NewTask(fmt.Sprintf("compose_%s", id), func(ctx context.Context, emit func(models.Event)) error {
		mp, err := s.musicPlan(ctx, rc, sp)
		if err != nil {
			return err
		}
		emit(models.Event{Author: author, Content: fmt.Sprintf("composing %q for segment %s", mp.Title, id)})

		track, err := music.Render(ctx, s.music, mp, s.sampleRate)
		if err != nil {
			return err
		}
		avg := mp.AverageBPM()
		track = music.TruncateToBars(track, avg)
		data, err := audio.EncodeWAV(track)
		if err != nil {
			return fmt.Errorf("编码音乐 %s 失败: %w", id, err)
		}
		name := artifact.MusicName(id)
		if _, err := rc.Artifacts.Save(ctx, name, data, "audio/wav"); err != nil && !errors.Is(err, artifact.ErrExists) {
			return fmt.Errorf("保存音乐 %s 失败: %w", name, err)
		}
		record(id, avg)
		emit(models.Event{Author: author, Content: fmt.Sprintf("composed %s (%.0f BPM, %v)", name, avg, track.Duration())})
		return nil
	})
}

// musicPlan 已保存的音乐计划直接复用
func (s *Stage) musicPlan(ctx context.Context, rc *pipeline.RunContext, sp models.SegmentPlan) (models.MusicPlan, error) {
	key := session.MusicPlanKey(sp.TaskID())
	if mp, ok, err := session.Value[models.MusicPlan](rc.State, key); err != nil {
		return mp, err
	} else if ok {
		return mp, nil
	}

	p := ai.Pipeline[models.SegmentPlan, models.MusicPlan]{
		Name:        fmt.Sprintf("作曲计划 %s", sp.TaskID()),
		Prepare:     prepare,
		Postprocess: decodePlan,
	}
	mp, err := p.Run(ctx, s.llm, sp, s.policy)
	if err != nil {
		return mp, err
	}
	if err := rc.State.Set(ctx, key, mp); err != nil {
		return mp, err
	}
	return mp, nil
}

// Brief 把段落计划写成给作曲LLM的说明
func Brief(sp models.SegmentPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Music Plan]\nTitle: %s\n", sp.Title)
	if sp.IsMusic {
		fmt.Fprintf(&b, "Usage: a music segment played on its own\nDescription: %s\n", sp.Description)
	} else {
		b.WriteString("Usage: background music under talk, keep it calm and unobtrusive\n")
	}
	if sp.BackgroundMusic != "" {
		fmt.Fprintf(&b, "Music: %s\n", sp.BackgroundMusic)
	}
	fmt.Fprintf(&b, "\n[Music Duration Seconds]\n%.0f", sp.SegmentSeconds)
	return b.String()
}

func prepare(sp models.SegmentPlan) (ai.Request, error) {
	return ai.Request{System: ai.ComposerPrompt, User: Brief(sp), JSON: true}, nil
}

func decodePlan(raw string, _ models.SegmentPlan) (models.MusicPlan, error) {
	var mp models.MusicPlan
	err := ai.MusicPlanSchema.Decode(raw, &mp)
	return mp, err
}
