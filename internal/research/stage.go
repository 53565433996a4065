// Package research 为每个内容来源并行调查最新内容
package research

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"radio-station/internal/apperr"
	"radio-station/internal/catalog"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
	"radio-station/internal/scheduler"
	"radio-station/internal/session"
)

const author = "Researcher"

// Researcher 针对一种内容来源的调查
type Researcher interface {
	Research(ctx context.Context, rc *pipeline.RunContext, seg models.ProgramSegment) (models.ResearchResult, error)
}

// Stage 调查阶段
type Stage struct {
	researchers map[models.SegmentKind]Researcher
	programs    catalog.ProgramStore
}

// NewStage 创建调查阶段, programs用于写回水位线, 可以为nil
func NewStage(researchers map[models.SegmentKind]Researcher, programs catalog.ProgramStore) *Stage {
	return &Stage{researchers: researchers, programs: programs}
}

// Name 阶段名
func (s *Stage) Name() string { return author }

// Run 执行调查; 所有来源同时进行, 一个失败不会取消其他来源
func (s *Stage) Run(ctx context.Context, rc *pipeline.RunContext) error {
	if rc.State.Has(session.KeyResearchTaskIDs) && rc.State.Has(session.KeyResearchResults) {
		rc.Emit(author, pipeline.AlreadyFinished)
		return nil
	}
	if len(rc.Segments) == 0 {
		return apperr.New(apperr.KindPrecondition, "no program segments to research")
	}

	taskIDs := make([]string, len(rc.Segments))
	tasks := make([]scheduler.Task[models.Event], 0, len(rc.Segments))
	for i, seg := range rc.Segments {
		if seg.ID == "" {
			seg.ID = uuid.NewString()
			rc.Segments[i].ID = seg.ID
		}
		taskIDs[i] = seg.ID
		researcher, ok := s.researchers[seg.Kind]
		if !ok {
			return apperr.Newf(apperr.KindPrecondition, "unsupported segment kind %q", seg.Kind)
		}
		tasks = append(tasks, s.task(rc, researcher, seg))
	}

	rc.Emit(author, fmt.Sprintf("start researching %d segments", len(tasks)))
	if err := scheduler.Unbounded(ctx, tasks, nil); err != nil {
		return fmt.Errorf("调查失败: %w", err)
	}

	results := make([]models.ResearchResult, 0, len(taskIDs))
	for i, id := range taskIDs {
		var res models.ResearchResult
		ok, err := rc.State.Get(session.ResearchResultKey(id), &res)
		if err != nil {
			return err
		}
		if !ok {
			res = models.NoUpdateResult(rc.Segments[i])
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		return apperr.New(apperr.KindDataIntegrity, "research results not found")
	}

	marks := advanceWatermarks(rc.Segments, rc.Now())
	if err := rc.State.Update(ctx, map[string]any{
		session.KeyResearchTaskIDs: taskIDs,
		session.KeyResearchResults: results,
		session.KeyRunSegments:     rc.Segments,
	}); err != nil {
		return err
	}

	if !rc.DryRun && s.programs != nil {
		if err := s.programs.UpdateWatermarks(ctx, rc.ProgramID, marks); err != nil {
			return fmt.Errorf("写回水位线失败: %w", err)
		}
	}

	rc.Logf("调查完成，共 %d 个结果", len(results))
	rc.Emit(author, "finish researching")
	return nil
}

func (s *Stage) task(rc *pipeline.RunContext, researcher Researcher, seg models.ProgramSegment) scheduler.Task[models.Event] {
	return scheduler.NewTask(fmt.Sprintf("research_%s", seg.ID), func(ctx context.Context, _ func(models.Event)) error {
		rc.Emit(author, fmt.Sprintf("researching %s (%s)", seg.Title, seg.Kind))
		res, err := researcher.Research(ctx, rc, seg)
		if err != nil {
			return err
		}
		res.ID = seg.ID
		res.Kind = seg.Kind
		res.SegmentTitle = seg.Title
		res.SegmentDescription = seg.Description
		res.SegmentConstraints = seg.Constraints
		if res.Entries == nil {
			res.Entries = []models.ResearchEntry{}
		}
		return rc.State.Set(ctx, session.ResearchResultKey(seg.ID), res)
	})
}

// advanceWatermarks 水位线只前移到now
func advanceWatermarks(segments []models.ProgramSegment, now time.Time) map[string]time.Time {
	marks := make(map[string]time.Time, len(segments))
	for i := range segments {
		mark := segments[i].Watermark()
		if now.After(mark) {
			mark = now
		}
		m := mark
		segments[i].LastReadTimestamp = &m
		marks[segments[i].ID] = mark
	}
	return marks
}
